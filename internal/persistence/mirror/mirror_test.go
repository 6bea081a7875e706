package mirror

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestConfigFromEnv(t *testing.T) {
	env := map[string]string{
		"FLOWSCULPT_MIRROR_ENDPOINT":          " r2.example.com ",
		"FLOWSCULPT_MIRROR_BUCKET":            "sims",
		"FLOWSCULPT_MIRROR_ACCESS_KEY_ID":     "AK",
		"FLOWSCULPT_MIRROR_SECRET_ACCESS_KEY": "SK",
	}
	cfg, ok := ConfigFromEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	if !ok || cfg.Endpoint != "r2.example.com" || cfg.Bucket != "sims" {
		t.Fatalf("cfg=%+v ok=%v", cfg, ok)
	}
	if _, ok := ConfigFromEnv(func(string) (string, bool) { return "", false }); ok {
		t.Fatalf("empty env should not configure a mirror")
	}
	if _, err := NewClient(Config{Endpoint: "x"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
}

func TestClientPutFile(t *testing.T) {
	var (
		gotPath, gotAuth, gotSHA string
		gotBody                  []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method=%s", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotSHA = r.Header.Get("x-amz-content-sha256")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL, Bucket: "b", AccessKey: "AK", SecretKey: "SK"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	p := filepath.Join(t.TempDir(), "12.snap.zst")
	if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.PutFile(context.Background(), "sims/a b/12.snap.zst", p); err != nil {
		t.Fatalf("put: %v", err)
	}
	if gotPath != "/b/sims/a b/12.snap.zst" {
		t.Fatalf("path=%q", gotPath)
	}
	if string(gotBody) != "hello" {
		t.Fatalf("body=%q", gotBody)
	}
	// sha256("hello")
	if gotSHA != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Fatalf("sha=%s", gotSHA)
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AK/20260102/auto/s3/aws4_request, SignedHeaders=host;x-amz-content-sha256;x-amz-date, Signature=") {
		t.Fatalf("auth=%s", gotAuth)
	}
}

func TestClientPutFile_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()
	c, _ := NewClient(Config{Endpoint: srv.URL, Bucket: "b", AccessKey: "AK", SecretKey: "SK"})
	p := filepath.Join(t.TempDir(), "x")
	_ = os.WriteFile(p, []byte("x"), 0o644)
	err := c.PutFile(context.Background(), "x", p)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("want 403 error, got %v", err)
	}
}

type fakeUploader struct {
	mu    sync.Mutex
	keys  []string
	fails int
}

func (f *fakeUploader) PutFile(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("transient")
	}
	f.keys = append(f.keys, key)
	return nil
}

func TestMirror_KeysAndRetries(t *testing.T) {
	base := t.TempDir()
	snap := filepath.Join(base, "sims", "s1", "snapshots", "9.snap.zst")
	if err := os.MkdirAll(filepath.Dir(snap), 0o755); err != nil {
		t.Fatal(err)
	}
	up := &fakeUploader{fails: 1}
	m := New(up, base, "/backup/", nil)
	m.backoff = time.Millisecond
	m.Enqueue(snap)
	m.Enqueue(filepath.Join(t.TempDir(), "elsewhere"))
	m.Close()

	if len(up.keys) != 1 || up.keys[0] != "backup/sims/s1/snapshots/9.snap.zst" {
		t.Fatalf("keys=%v", up.keys)
	}
	st := m.Stats()
	if st.Uploaded != 1 || st.Failed != 1 {
		t.Fatalf("stats=%+v", st)
	}
	m.Close()
}
