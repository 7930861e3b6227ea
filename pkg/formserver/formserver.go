// Package formserver serves the urlencoded decoder over HTTP.
//
// GET requests decode the raw query string. POST requests decode an
// application/x-www-form-urlencoded body. Both answer with JSON.
package formserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/epithet-ssh/formdecode/pkg/urlencoded"
	"github.com/google/uuid"
)

// DefaultBodyLimit is the maximum request body size when Config.BodyLimit is unset.
const DefaultBodyLimit = 8192

// ContentType is the only body type accepted by POST.
const ContentType = "application/x-www-form-urlencoded"

// CodeRuleViolation is the error code returned when decoded fields break the configured Rules.
const CodeRuleViolation = "rule_violation"

// Source values recorded on a DecodeEvent.
const (
	SourceQuery = "query"
	SourceBody  = "body"
)

// Config configures the handler returned by New.
type Config struct {
	// BodyLimit caps the size of a query string or POST body in bytes.
	// Zero means DefaultBodyLimit.
	BodyLimit int

	// Rules is checked against every successfully decoded form. Nil accepts anything.
	Rules *Rules

	// DecodeOptions are passed to every urlencoded.Decode call.
	DecodeOptions []urlencoded.Option

	// DecodeLogger receives one event per request. Nil disables decode logging.
	DecodeLogger DecodeLogger
}

type formServer struct {
	log          *slog.Logger
	bodyLimit    int
	rules        *Rules
	decodeOpts   []urlencoded.Option
	decodeLogger DecodeLogger
}

// New creates a decoding handler which then needs to be mounted on a
// router, a la `r.Handle("/decode", formserver.New(log, cfg))`.
func New(log *slog.Logger, cfg Config) http.Handler {
	fs := &formServer{
		log:          log,
		bodyLimit:    cfg.BodyLimit,
		rules:        cfg.Rules,
		decodeLogger: cfg.DecodeLogger,
	}

	if fs.log == nil {
		fs.log = slog.Default()
	}
	if fs.bodyLimit <= 0 {
		fs.bodyLimit = DefaultBodyLimit
	}
	if fs.decodeLogger == nil {
		fs.decodeLogger = NewNoopDecodeLogger()
	}

	fs.decodeOpts = append(fs.decodeOpts, cfg.DecodeOptions...)
	fs.decodeOpts = append(fs.decodeOpts, urlencoded.MaxLength(fs.bodyLimit))

	return fs
}

// DecodeResponse is the body of a successful decode.
type DecodeResponse struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// ErrorResponse is the body of a failed decode.
type ErrorResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *formServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.decode(w, r, SourceQuery, []byte(r.URL.RawQuery))
	case http.MethodPost:
		s.decodeBody(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.Header().Add("Content-type", "text/plain")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write(fmt.Appendf(nil, "method %s not allowed", r.Method))
	}
}

func (s *formServer) decodeBody(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != ContentType {
		w.Header().Add("Content-type", "text/plain")
		w.WriteHeader(http.StatusUnsupportedMediaType)
		w.Write(fmt.Appendf(nil, "content type must be %s", ContentType))
		return
	}

	// One byte past the limit lets the decoder report ErrTooLarge.
	lr := io.LimitReader(r.Body, int64(s.bodyLimit)+1)
	body, err := io.ReadAll(lr)
	if err != nil {
		w.Header().Add("Content-type", "text/plain")
		w.WriteHeader(http.StatusBadRequest)
		w.Write(fmt.Appendf(nil, "unable to read body: %s", err))
		return
	}

	s.decode(w, r, SourceBody, body)
}

func (s *formServer) decode(w http.ResponseWriter, r *http.Request, source string, data []byte) {
	event := &DecodeEvent{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		RemoteAddr: r.RemoteAddr,
		Source:     source,
		Bytes:      len(data),
	}

	form, err := urlencoded.Decode(data, s.decodeOpts...)
	if err == nil {
		event.Keys = sortedKeys(form)
		err = s.rules.Check(form)
	}

	// Best-effort; a failed audit write never fails the request.
	defer func() {
		if err := s.decodeLogger.LogDecode(r.Context(), event); err != nil {
			s.log.Warn("failed to log decode", "id", event.ID, "error", err)
		}
	}()

	if err != nil {
		status, code := classify(err)
		event.Code = code
		s.writeJSON(w, status, ErrorResponse{ID: event.ID, Error: err.Error(), Code: code})
		return
	}

	s.writeJSON(w, http.StatusOK, DecodeResponse{ID: event.ID, Fields: form})
}

// classify maps a decode or rule error to an HTTP status and error code.
func classify(err error) (int, string) {
	var ruleErr *RuleError
	switch {
	case errors.As(err, &ruleErr):
		return http.StatusUnprocessableEntity, CodeRuleViolation
	case errors.Is(err, urlencoded.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, urlencoded.CodeTooLarge
	default:
		return http.StatusBadRequest, urlencoded.Code(err)
	}
}

func (s *formServer) writeJSON(w http.ResponseWriter, status int, v any) {
	out, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		s.log.Warn("unable to jsonify response", "error", err)
		return
	}

	w.Header().Add("Content-type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(out); err != nil {
		s.log.Warn("unable to write response", "error", err)
	}
}
