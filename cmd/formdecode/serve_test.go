package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/epithet-ssh/formdecode/pkg/formserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDecodeLogger struct {
	mu     sync.Mutex
	events []*formserver.DecodeEvent
}

func (r *recordingDecodeLogger) LogDecode(ctx context.Context, event *formserver.DecodeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

type mockPutObject struct {
	mu   sync.Mutex
	keys []string
}

func (m *mockPutObject) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if _, err := io.Copy(io.Discard, params.Body); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, *params.Key)
	return &s3.PutObjectOutput{}, nil
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRouter(t *testing.T) {
	c := &ServeCLI{Timeout: time.Minute, RateBurst: 10}
	h := c.router(testLogger(t), formserver.Config{})

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(t, h, "/decode?a=1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"a":"1"`)

	req := httptest.NewRequest(http.MethodPost, "/decode", strings.NewReader("a=1"))
	req.Header.Set("Content-Type", formserver.ContentType)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, h, "/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_RateLimit(t *testing.T) {
	c := &ServeCLI{Timeout: time.Minute, RateLimit: 0.001, RateBurst: 1}
	h := c.router(testLogger(t), formserver.Config{})

	assert.Equal(t, http.StatusOK, get(t, h, "/decode?a=1").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, h, "/decode?a=1").Code)

	// Health checks are not rate limited.
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
}

func TestHandlerConfig_Rules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("required: [name]\nallowed: [name, email]\n"), 0644))

	c := &ServeCLI{BodyLimit: 1024, Rules: path, LowercaseHex: true, Timeout: time.Minute}
	cfg, err := c.handlerConfig(testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, 1024, cfg.BodyLimit)
	require.NotNil(t, cfg.Rules)
	assert.Equal(t, []string{"name"}, cfg.Rules.Required)
	assert.Len(t, cfg.DecodeOptions, 1)

	h := c.router(testLogger(t), cfg)
	assert.Equal(t, http.StatusUnprocessableEntity, get(t, h, "/decode?email=a").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/decode?name=%2fa").Code)
}

func TestHandlerConfig_InvalidRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("required: [token]\nallowed: [name]\n"), 0644))

	_, err := (&ServeCLI{Rules: path}).handlerConfig(testLogger(t))
	require.ErrorContains(t, err, "not in allowed")
}

func TestNewArchiver(t *testing.T) {
	client := &mockPutObject{}
	archiver := newArchiver(client, "bucket", "decodes", testLogger(t))

	event := &formserver.DecodeEvent{
		ID:        "abc",
		Timestamp: time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		Source:    formserver.SourceQuery,
	}
	require.NoError(t, archiver.LogDecode(context.Background(), event))
	require.NoError(t, archiver.Shutdown(5*time.Second))

	assert.Equal(t, []string{"decodes/year=2025/month=03/day=09/decode-abc.json"}, client.keys)
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		w.Write([]byte("access_token=abc&token_type=bearer"))
	}))
	defer server.Close()

	f := &FetchCLI{URL: server.URL, Timeout: 5 * time.Second, BodyLimit: 1024, Output: Output{Format: formatText}}

	var out bytes.Buffer
	err := f.run(context.Background(), testLogger(t), tlsconfigInsecure(false), &out)
	require.ErrorContains(t, err, "insecure")

	err = f.run(context.Background(), testLogger(t), tlsconfigInsecure(true), &out)
	require.NoError(t, err)
	assert.Equal(t, "access_token=abc\ntoken_type=bearer\n", out.String())
}

func TestShutdown_LogsServerError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	})}
	go server.Serve(ln)

	go func() {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-entered

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	client := &mockPutObject{}
	archiver := newArchiver(client, "bucket", "", logger)
	require.NoError(t, archiver.LogDecode(context.Background(), &formserver.DecodeEvent{ID: "abc", Timestamp: time.Now()}))

	// The in-flight request outlives the timeout.
	shutdown(logger, server, archiver, 50*time.Millisecond)

	assert.Contains(t, buf.String(), "http server did not shut down cleanly")
	assert.Contains(t, buf.String(), context.DeadlineExceeded.Error())
	assert.Contains(t, buf.String(), "shutdown complete")
	assert.Len(t, client.keys, 1)
}

func TestShutdown_Clean(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	shutdown(logger, &http.Server{}, nil, time.Second)

	assert.NotContains(t, buf.String(), "did not shut down cleanly")
	assert.Contains(t, buf.String(), "shutdown complete")
}
