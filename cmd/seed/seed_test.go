package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/venkatram-2005/Quick-Share/internal/shared/logx"
)

func TestRunDrivesAPI(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/rooms":
			calls["create"]++
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"code": "ab12cd"})
		case r.Method == http.MethodPut && r.URL.Path == "/rooms/ab12cd/content":
			calls["update"]++
			_ = json.NewEncoder(w).Encode(map[string]any{"code": "ab12cd", "revision": 1})
		case r.Method == http.MethodPost && r.URL.Path == "/rooms/ab12cd/attachments":
			if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
				http.Error(w, "bad content type", http.StatusBadRequest)
				return
			}
			calls["upload"]++
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "x"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	gofakeit.Seed(1)
	codes, err := run(context.Background(), newClient(srv.URL+"/"), options{rooms: 2, ttlHours: 1, attachments: 3}, logx.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if len(codes) != 2 {
		t.Fatalf("codes = %v", codes)
	}
	if calls["create"] != 2 || calls["update"] != 2 || calls["upload"] != 6 {
		t.Fatalf("calls = %v", calls)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limit exceeded","reason":"rate_limited","status":429}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).createRoom(context.Background(), 1)
	if err == nil || !strings.Contains(err.Error(), "rate_limited") {
		t.Fatalf("err = %v", err)
	}
}
