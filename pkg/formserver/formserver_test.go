package formserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/epithet-ssh/formdecode/pkg/formserver"
	"github.com/epithet-ssh/formdecode/pkg/urlencoded"
	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/require"
	"gotest.tools/assert"
)

type recordingLogger struct {
	mu     sync.Mutex
	events []*formserver.DecodeEvent
	err    error
}

func (r *recordingLogger) LogDecode(ctx context.Context, event *formserver.DecodeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(tint.NewHandler(t.Output(), &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "15:04:05",
	}))
}

func post(target, contentType, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	return req
}

func serve(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGet_DecodesQuery(t *testing.T) {
	h := formserver.New(testLogger(t), formserver.Config{})

	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/decode?name=%E6%97%A9%E3%81%8F&q=a+b", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-type"))

	var resp formserver.DecodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Assert(t, resp.ID != "")
	assert.DeepEqual(t, map[string]string{"name": "早く", "q": "a b"}, resp.Fields)
}

func TestGet_EmptyQuery(t *testing.T) {
	h := formserver.New(testLogger(t), formserver.Config{})

	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/decode", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.DeepEqual(t, map[string]any{}, resp["fields"])
}

func TestPost_DecodesBody(t *testing.T) {
	h := formserver.New(testLogger(t), formserver.Config{})

	rec := serve(t, h, post("/decode", "application/x-www-form-urlencoded; charset=utf-8", "key=val&key1=val1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp formserver.DecodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.DeepEqual(t, map[string]string{"key": "val", "key1": "val1"}, resp.Fields)
}

func TestPost_UnsupportedContentType(t *testing.T) {
	h := formserver.New(testLogger(t), formserver.Config{})

	rec := serve(t, h, post("/decode", "application/json", `{"a":1}`))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = serve(t, h, post("/decode", "", "a=1"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestPost_BodyTooLarge(t *testing.T) {
	h := formserver.New(testLogger(t), formserver.Config{BodyLimit: 16})

	rec := serve(t, h, post("/decode", formserver.ContentType, "key="+strings.Repeat("v", 13)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	var resp formserver.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, urlencoded.CodeTooLarge, resp.Code)

	rec = serve(t, h, post("/decode", formserver.ContentType, "key="+strings.Repeat("v", 12)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h := formserver.New(testLogger(t), formserver.Config{})

	rec := serve(t, h, httptest.NewRequest(http.MethodPut, "/decode", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		code  string
		error string
	}{
		{"empty key", "=v", urlencoded.CodeEmptyKey, "urlencoded: empty key at offset 0: '=' with no key before it"},
		{"invalid hex", "key=%GZ", urlencoded.CodeInvalidHex, "urlencoded: invalid hex escape at offset 5: 'G' is not a hex digit"},
		{"unterminated key", "key", urlencoded.CodeEndOfInput, ""},
		{"equals in value", "a=b=c", urlencoded.CodeInvalidInput, ""},
		{"invalid utf8", "key=%FF", urlencoded.CodeTextDecoding, ""},
	}

	h := formserver.New(testLogger(t), formserver.Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, h, post("/decode", formserver.ContentType, tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp formserver.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.Assert(t, resp.ID != "")
			if tt.error != "" {
				assert.Equal(t, tt.error, resp.Error)
			}
		})
	}
}

func TestDecodeOptions_LowercaseHex(t *testing.T) {
	h := formserver.New(testLogger(t), formserver.Config{
		DecodeOptions: []urlencoded.Option{urlencoded.LowercaseHex()},
	})

	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/decode?path=%2fhome", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp formserver.DecodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/home", resp.Fields["path"])
}

func TestRuleViolation(t *testing.T) {
	h := formserver.New(testLogger(t), formserver.Config{
		Rules: &formserver.Rules{Required: []string{"name"}},
	})

	rec := serve(t, h, post("/decode", formserver.ContentType, "email=a%40example.com"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp formserver.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, formserver.CodeRuleViolation, resp.Code)
	assert.Equal(t, "missing required keys: name", resp.Error)
}

func TestDecodeEvents(t *testing.T) {
	events := &recordingLogger{}
	h := formserver.New(testLogger(t), formserver.Config{DecodeLogger: events})

	rec := serve(t, h, post("/decode", formserver.ContentType, "secret=hunter2&user=alice"))
	assert.Equal(t, http.StatusOK, rec.Code)
	var ok formserver.DecodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))

	rec = serve(t, h, httptest.NewRequest(http.MethodGet, "/decode?=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Len(t, events.events, 2)

	first := events.events[0]
	assert.Equal(t, ok.ID, first.ID)
	assert.Equal(t, formserver.SourceBody, first.Source)
	assert.Equal(t, len("secret=hunter2&user=alice"), first.Bytes)
	assert.DeepEqual(t, []string{"secret", "user"}, first.Keys)
	assert.Equal(t, "", first.Code)
	assert.Equal(t, "192.0.2.1:1234", first.RemoteAddr)
	assert.Assert(t, !first.Timestamp.IsZero())

	second := events.events[1]
	assert.Equal(t, formserver.SourceQuery, second.Source)
	assert.Equal(t, urlencoded.CodeEmptyKey, second.Code)
	assert.Assert(t, second.Keys == nil)
}

func TestDecodeLoggerFailureDoesNotFailRequest(t *testing.T) {
	events := &recordingLogger{err: errors.New("disk full")}
	h := formserver.New(testLogger(t), formserver.Config{DecodeLogger: events})

	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/decode?a=1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, len(events.events))
}
