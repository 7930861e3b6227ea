package formserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	// ErrArchiverFull is returned when the event queue is full. The event is dropped.
	ErrArchiverFull = errors.New("archiver buffer full")

	// ErrArchiverClosed is returned for events logged after Shutdown.
	ErrArchiverClosed = errors.New("archiver shut down")
)

// S3PutObjectAPI is the subset of *s3.Client used by the archiver.
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ArchiverConfig configures the S3 decode archiver.
type S3ArchiverConfig struct {
	S3Client   S3PutObjectAPI
	Bucket     string
	KeyPrefix  string       // optional, e.g. "decodes"
	Logger     *slog.Logger // for archiver errors
	BufferSize int          // default 100
}

// S3DecodeArchiver writes each decode event to its own S3 object, one JSON
// line per object, under date-partitioned keys. A single goroutine does
// the writing so LogDecode never waits on S3.
type S3DecodeArchiver struct {
	client S3PutObjectAPI
	bucket string
	prefix string
	log    *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan *DecodeEvent
	done   chan struct{}
}

// NewS3DecodeArchiver creates an archiver and starts its writer.
func NewS3DecodeArchiver(cfg S3ArchiverConfig) *S3DecodeArchiver {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &S3DecodeArchiver{
		client: cfg.S3Client,
		bucket: cfg.Bucket,
		prefix: cfg.KeyPrefix,
		log:    cfg.Logger,
		queue:  make(chan *DecodeEvent, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// LogDecode queues event for archival without blocking.
func (a *S3DecodeArchiver) LogDecode(ctx context.Context, event *DecodeEvent) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrArchiverClosed
	}
	select {
	case a.queue <- event:
		return nil
	default:
		a.log.Warn("decode archiver buffer full, dropping event", "id", event.ID)
		return ErrArchiverFull
	}
}

// Shutdown stops accepting events and waits up to timeout for the queued
// ones to be written. It is safe to call more than once.
func (a *S3DecodeArchiver) Shutdown(timeout time.Duration) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

func (a *S3DecodeArchiver) run() {
	defer close(a.done)

	for event := range a.queue {
		key := objectKey(a.prefix, event.Timestamp, event.ID)
		if err := a.put(key, event); err != nil {
			a.log.Error("failed to archive decode event to S3", "id", event.ID, "key", key, "error", err)
			continue
		}
		a.log.Debug("archived decode event", "bucket", a.bucket, "key", key)
	}
}

func (a *S3DecodeArchiver) put(key string, event *DecodeEvent) error {
	line, err := event.toJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(append(line, '\n')),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to write to S3: %w", err)
	}
	return nil
}

// objectKey returns [prefix/]year=YYYY/month=MM/day=DD/decode-<id>.json,
// partitioned on the UTC date.
func objectKey(prefix string, ts time.Time, id string) string {
	return path.Join(prefix, ts.UTC().Format("year=2006/month=01/day=02"), "decode-"+id+".json")
}
