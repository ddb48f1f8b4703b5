package migrate

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "sql")
	if err != nil {
		t.Fatal(err)
	}
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", name)
		}
	}
	if len(ups) == 0 {
		t.Fatal("no migrations embedded")
	}
	for v := range ups {
		if !downs[v] {
			t.Errorf("%s has no down migration", v)
		}
	}
}

func TestRoomsMigrationDefinesCodeIndex(t *testing.T) {
	b, err := migrations.ReadFile("sql/000001_create_rooms.up.sql")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "UNIQUE INDEX IF NOT EXISTS idx_rooms_code") {
		t.Fatal("rooms.code must be uniquely indexed")
	}
}
