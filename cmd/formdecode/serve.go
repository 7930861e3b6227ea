package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/epithet-ssh/formdecode/pkg/config"
	"github.com/epithet-ssh/formdecode/pkg/formserver"
	"github.com/epithet-ssh/formdecode/pkg/ratelimit"
	"github.com/epithet-ssh/formdecode/pkg/urlencoded"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ServeCLI runs the decoding service over HTTP.
type ServeCLI struct {
	Listen        string        `help:"Address to listen on" short:"l" env:"PORT" default:"0.0.0.0:8080"`
	BodyLimit     int           `help:"Maximum request body size in bytes" default:"8192"`
	RateLimit     float64       `help:"Requests per second across all clients (0 means unlimited)" default:"0"`
	RateBurst     int           `help:"Burst size for --rate-limit" default:"10"`
	Timeout       time.Duration `help:"Per-request timeout" default:"60s"`
	Rules         string        `help:"YAML, JSON, or CUE file of required and allowed keys" type:"existingfile"`
	LowercaseHex  bool          `help:"Accept lowercase hex digits in %XY escapes"`
	ArchiveBucket string        `help:"S3 bucket for decode event archival (optional)" env:"ARCHIVE_BUCKET"`
	ArchivePrefix string        `help:"S3 key prefix for decode event archival" env:"ARCHIVE_PREFIX" default:"decodes"`
}

func (c *ServeCLI) Run(logger *slog.Logger) error {
	logger.Debug("serve command called", "serve", c)

	cfg, err := c.handlerConfig(logger)
	if err != nil {
		return err
	}

	var archiver *formserver.S3DecodeArchiver
	if c.ArchiveBucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		archiver = newArchiver(s3.NewFromConfig(awsCfg), c.ArchiveBucket, c.ArchivePrefix, logger)
		cfg.DecodeLogger = formserver.NewMultiDecodeLogger(cfg.DecodeLogger, archiver)
	} else {
		logger.Info("decode archival disabled (no S3 bucket configured)")
	}

	server := &http.Server{
		Addr:              c.Listen,
		Handler:           c.router(logger, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", c.Listen)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdown(logger, server, archiver, 5*time.Second)
	return nil
}

// shutdown stops server, then drains archiver if there is one. Each step
// gets its own timeout; failures are logged, not returned.
func shutdown(logger *slog.Logger, server *http.Server, archiver *formserver.S3DecodeArchiver, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("http server did not shut down cleanly", "error", err)
	}

	if archiver != nil {
		if err := archiver.Shutdown(timeout); err != nil {
			logger.Warn("decode archiver did not drain", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// handlerConfig builds the formserver configuration from flags.
func (c *ServeCLI) handlerConfig(logger *slog.Logger) (formserver.Config, error) {
	cfg := formserver.Config{
		BodyLimit:    c.BodyLimit,
		DecodeLogger: formserver.NewSlogDecodeLogger(logger),
	}
	if c.LowercaseHex {
		cfg.DecodeOptions = append(cfg.DecodeOptions, urlencoded.LowercaseHex())
	}

	if c.Rules != "" {
		rules, err := config.LoadFromFile[formserver.Rules](c.Rules)
		if err != nil {
			return cfg, fmt.Errorf("failed to load rules: %w", err)
		}
		if err := rules.Validate(); err != nil {
			return cfg, fmt.Errorf("invalid rules in %s: %w", c.Rules, err)
		}
		cfg.Rules = rules
		logger.Info("loaded rules", "path", c.Rules, "required", len(rules.Required), "allowed", len(rules.Allowed))
	}

	return cfg, nil
}

func (c *ServeCLI) router(logger *slog.Logger, cfg formserver.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(c.Timeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Content-type", "text/plain")
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(ratelimit.New(c.RateLimit, c.RateBurst), logger))
		r.Handle("/decode", formserver.New(logger, cfg))
	})

	return r
}

func newArchiver(client formserver.S3PutObjectAPI, bucket, prefix string, logger *slog.Logger) *formserver.S3DecodeArchiver {
	logger.Info("decode archival enabled", "bucket", bucket, "prefix", prefix)
	return formserver.NewS3DecodeArchiver(formserver.S3ArchiverConfig{
		S3Client:   client,
		Bucket:     bucket,
		KeyPrefix:  prefix,
		Logger:     logger,
		BufferSize: 100,
	})
}
