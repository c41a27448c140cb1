package minio

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
)

func newObjectServer(t *testing.T, objects map[string]string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.Header().Set("Last-Modified", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenStreamsObject(t *testing.T) {
	t.Parallel()

	server := newObjectServer(t, map[string]string{"/artifacts/build.zip": "zipdata"})
	adapter, err := NewAdapter(Config{Endpoint: server.URL, AccessKey: "minio", SecretKey: "minio123"})
	if err != nil {
		t.Fatalf("unexpected adapter error: %v", err)
	}
	if adapter.cfg.UseSSL || adapter.cfg.Region != "us-east-1" {
		t.Fatalf("unexpected normalized config %+v", adapter.cfg)
	}
	rc, err := adapter.Open(context.Background(), "artifacts", "build.zip")
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil || string(raw) != "zipdata" {
		t.Fatalf("expected object body, got %q (err=%v)", raw, err)
	}
}

func TestOpenMissingObjectIsNotFound(t *testing.T) {
	t.Parallel()

	server := newObjectServer(t, nil)
	adapter, _ := NewAdapter(Config{Endpoint: server.URL, AccessKey: "minio", SecretKey: "minio123"})
	_, err := adapter.Open(context.Background(), "artifacts", "missing.zip")
	var svcErr *contracts.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Class != contracts.FailureNotFound {
		t.Fatalf("expected not-found service error, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := Config{Endpoint: "https://objects.internal:9000/", AccessKey: "a", SecretKey: "b"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validate error: %v", err)
	}
	if cfg.Endpoint != "objects.internal:9000" || !cfg.UseSSL {
		t.Fatalf("unexpected normalized config %+v", cfg)
	}
	if err := (&Config{Endpoint: "objects:9000"}).Validate(); err == nil {
		t.Fatalf("expected missing credentials to fail")
	}
	if _, err := NewAdapter(Config{AccessKey: "a", SecretKey: "b"}); err == nil {
		t.Fatalf("expected missing endpoint to fail")
	}
}
