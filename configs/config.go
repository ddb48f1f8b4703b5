package configs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	MinTTLHours = 1
	MaxTTLHours = 8760
)

type Config struct {
	Env         string `yaml:"env"`
	AppPort     string `yaml:"app_port"`
	LogLevel    string `yaml:"log_level"`
	ServiceName string `yaml:"service_name"`
	OTELEnabled bool   `yaml:"otel_enabled"`

	DBHost         string   `yaml:"db_host"`
	DBPort         string   `yaml:"db_port"`
	DBUser         string   `yaml:"db_user"`
	DBPass         string   `yaml:"db_pass"`
	DBName         string   `yaml:"db_name"`
	DBReadReplicas []string `yaml:"db_read_replicas"`
	AutoMigrate    bool     `yaml:"auto_migrate"`

	RedisHost string `yaml:"redis_host"`
	RedisPort string `yaml:"redis_port"`
	RedisPass string `yaml:"redis_pass"`

	S3Endpoint  string `yaml:"s3_endpoint"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3UseSSL    bool   `yaml:"s3_use_ssl"`

	FeedTransport        string `yaml:"feed_transport"` // local | redis | kafka | nats
	FeedCodec            string `yaml:"feed_codec"`     // json | cbor
	FeedSubscriberBuffer int    `yaml:"feed_subscriber_buffer"`
	KafkaBrokers         string `yaml:"kafka_brokers"`
	KafkaTopic           string `yaml:"kafka_topic"`
	KafkaGroupID         string `yaml:"kafka_group_id"`
	NatsURL              string `yaml:"nats_url"`

	CodeLength      int   `yaml:"code_length"`
	CodeRetries     int   `yaml:"code_retries"`
	MaxUploadBytes  int64 `yaml:"max_upload_bytes"`
	MaxContentBytes int   `yaml:"max_content_bytes"`

	SweepInterval     time.Duration `yaml:"sweep_interval"`
	SweepBatch        int           `yaml:"sweep_batch"`
	OrphanGrace       time.Duration `yaml:"orphan_grace"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	IOTimeout         time.Duration `yaml:"io_timeout"`

	RateLimitCreatePerMin int64 `yaml:"rate_limit_create_per_min"`
}

func Default() *Config {
	return &Config{
		Env:         "development",
		AppPort:     ":8080",
		LogLevel:    "info",
		ServiceName: "quick-share",

		DBHost: "localhost",
		DBPort: "5432",
		DBUser: "postgres",
		DBPass: "postgres",
		DBName: "quickshare",

		RedisHost: "localhost",
		RedisPort: "6379",

		S3Endpoint:  "localhost:9000",
		S3AccessKey: "minio",
		S3SecretKey: "minio123",
		S3Bucket:    "room-files",

		FeedTransport:        "local",
		FeedCodec:            "json",
		FeedSubscriberBuffer: 64,
		KafkaBrokers:         "localhost:9092",
		KafkaTopic:           "rooms.changes",
		NatsURL:              "nats://localhost:4222",

		CodeLength:      6,
		CodeRetries:     5,
		MaxUploadBytes:  50 << 20,
		MaxContentBytes: 1 << 20,

		SweepInterval:     time.Minute,
		SweepBatch:        100,
		OrphanGrace:       15 * time.Minute,
		ReconcileInterval: time.Hour,
		IOTimeout:         30 * time.Second,
	}
}

// LoadConfig builds the configuration from defaults, then an optional YAML
// file named by CONFIG_FILE, then environment variables (a .env file in the
// working directory is loaded first when present).
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	cfg.applyEnv()
	if cfg.KafkaGroupID == "" {
		host, _ := os.Hostname()
		cfg.KafkaGroupID = cfg.ServiceName + "-" + host
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Env = getEnv("ENV", c.Env)
	c.AppPort = getEnv("APP_PORT", c.AppPort)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.ServiceName = getEnv("OTEL_SERVICE_NAME", c.ServiceName)
	c.OTELEnabled = getEnvBool("OTEL_ENABLED", c.OTELEnabled)

	c.DBHost = getEnv("DB_HOST", c.DBHost)
	c.DBPort = getEnv("DB_PORT", c.DBPort)
	c.DBUser = getEnv("DB_USER", c.DBUser)
	c.DBPass = getEnv("DB_PASSWORD", c.DBPass)
	c.DBName = getEnv("DB_NAME", c.DBName)
	c.DBReadReplicas = getEnvList("DB_READ_REPLICAS", c.DBReadReplicas)
	c.AutoMigrate = getEnvBool("AUTO_MIGRATE", c.AutoMigrate)

	c.RedisHost = getEnv("REDIS_HOST", c.RedisHost)
	c.RedisPort = getEnv("REDIS_PORT", c.RedisPort)
	c.RedisPass = getEnv("REDIS_PASSWORD", c.RedisPass)

	c.S3Endpoint = getEnv("S3_ENDPOINT", c.S3Endpoint)
	c.S3AccessKey = getEnv("S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = getEnv("S3_SECRET_KEY", c.S3SecretKey)
	c.S3Bucket = getEnv("S3_BUCKET", c.S3Bucket)
	c.S3UseSSL = getEnvBool("S3_USE_SSL", c.S3UseSSL)

	c.FeedTransport = strings.ToLower(getEnv("FEED_TRANSPORT", c.FeedTransport))
	c.FeedCodec = strings.ToLower(getEnv("FEED_CODEC", c.FeedCodec))
	c.FeedSubscriberBuffer = getEnvInt("FEED_SUBSCRIBER_BUFFER", c.FeedSubscriberBuffer)
	c.KafkaBrokers = getEnv("KAFKA_BOOTSTRAP_SERVERS", c.KafkaBrokers)
	c.KafkaTopic = getEnv("FEED_KAFKA_TOPIC", c.KafkaTopic)
	c.KafkaGroupID = getEnv("KAFKA_GROUP_ID", c.KafkaGroupID)
	c.NatsURL = getEnv("NATS_URL", c.NatsURL)

	c.CodeLength = getEnvInt("ROOM_CODE_LENGTH", c.CodeLength)
	c.CodeRetries = getEnvInt("ROOM_CODE_RETRIES", c.CodeRetries)
	c.MaxUploadBytes = getEnvInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	c.MaxContentBytes = getEnvInt("MAX_CONTENT_BYTES", c.MaxContentBytes)

	c.SweepInterval = getEnvDuration("SWEEP_INTERVAL", c.SweepInterval)
	c.SweepBatch = getEnvInt("SWEEP_BATCH", c.SweepBatch)
	c.OrphanGrace = getEnvDuration("ORPHAN_GRACE", c.OrphanGrace)
	c.ReconcileInterval = getEnvDuration("RECONCILE_INTERVAL", c.ReconcileInterval)
	c.IOTimeout = getEnvDuration("IO_TIMEOUT", c.IOTimeout)

	c.RateLimitCreatePerMin = getEnvInt64("RATE_LIMIT_CREATE_PER_MIN", c.RateLimitCreatePerMin)
}

func (c *Config) Validate() error {
	var errs []error
	switch c.FeedTransport {
	case "local", "redis", "kafka", "nats":
	default:
		errs = append(errs, fmt.Errorf("FEED_TRANSPORT %q: want local, redis, kafka or nats", c.FeedTransport))
	}
	switch c.FeedCodec {
	case "json", "cbor":
	default:
		errs = append(errs, fmt.Errorf("FEED_CODEC %q: want json or cbor", c.FeedCodec))
	}
	if c.CodeLength < 4 || c.CodeLength > 16 {
		errs = append(errs, fmt.Errorf("ROOM_CODE_LENGTH %d: want 4..16", c.CodeLength))
	}
	if c.CodeRetries < 1 {
		errs = append(errs, fmt.Errorf("ROOM_CODE_RETRIES %d: want >= 1", c.CodeRetries))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.MaxContentBytes <= 0 {
		errs = append(errs, errors.New("MAX_CONTENT_BYTES must be positive"))
	}
	if c.FeedSubscriberBuffer <= 0 {
		errs = append(errs, errors.New("FEED_SUBSCRIBER_BUFFER must be positive"))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName,
	)
}

func (c *Config) RedisAddr() string { return c.RedisHost + ":" + c.RedisPort }

func (c *Config) String() string {
	return fmt.Sprintf("AppPort=%s, DB=%s:%s/%s, Redis=%s, S3Endpoint=%s, S3Bucket=%s, FeedTransport=%s",
		c.AppPort, c.DBHost, c.DBPort, c.DBName, c.RedisAddr(), c.S3Endpoint, c.S3Bucket, c.FeedTransport)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
