// Package snapshot uploads ICS exports of the calendar to S3-compatible storage.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dukerupert/duende/internal/ics"
	"github.com/dukerupert/duende/internal/model"
)

// ErrDisabled is returned when no bucket is configured.
var ErrDisabled = errors.New("snapshots not configured: S3 credentials missing")

const latestName = "latest.ics"

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
	// Keep is the number of timestamped snapshots retained. Zero keeps all.
	Keep int
}

func (c Config) enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State        State      `json:"state"`
	LastSnapshot *time.Time `json:"last_snapshot,omitempty"`
	LastKey      string     `json:"last_key,omitempty"`
	Error        string     `json:"error,omitempty"`
	InProgress   bool       `json:"in_progress"`
}

// Source supplies the events to export.
type Source func() []model.CalendarEvent

// Manager writes calendar snapshots to a bucket.
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	status Status
	client s3Client
	source Source
	logger *slog.Logger
	now    func() time.Time

	run sync.Mutex // one upload at a time
}

func NewManager(cfg Config, source Source, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:    cfg,
		source: source,
		logger: logger,
		now:    time.Now,
		status: Status{State: StateDisabled},
	}
	if cfg.enabled() {
		m.client = newS3Client(cfg)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Upload writes the current events under a timestamped key and as latest.ics,
// then prunes old snapshots. It returns the timestamped key.
func (m *Manager) Upload(ctx context.Context) (string, error) {
	m.run.Lock()
	defer m.run.Unlock()

	m.mu.RLock()
	client := m.client
	cfg := m.cfg
	previous := m.status
	m.mu.RUnlock()

	if client == nil {
		return "", ErrDisabled
	}

	m.setStatus(Status{State: StateRunning, InProgress: true, LastSnapshot: previous.LastSnapshot, LastKey: previous.LastKey})

	now := m.now().UTC()
	var buf bytes.Buffer
	if err := ics.Encode(&buf, m.source(), now); err != nil {
		m.fail(previous, err)
		return "", err
	}
	data := buf.Bytes()

	key := fmt.Sprintf("%scalendar-%s-%s.ics", cfg.Prefix, now.Format("2006-01-02T150405Z"), uuid.NewString()[:8])
	for _, k := range []string{key, cfg.Prefix + latestName} {
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(cfg.Bucket),
			Key:           aws.String(k),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String("text/calendar; charset=utf-8"),
		})
		if err != nil {
			err = fmt.Errorf("upload %s: %w", k, err)
			m.fail(previous, err)
			return "", err
		}
	}

	m.setStatus(Status{State: StateIdle, LastSnapshot: &now, LastKey: key})
	m.logger.Info("calendar snapshot uploaded", "key", key, "bytes", len(data))

	if cfg.Keep > 0 {
		if err := m.prune(ctx, client, cfg); err != nil {
			m.logger.Warn("prune snapshots", "error", err)
		}
	}
	return key, nil
}

func (m *Manager) fail(previous Status, err error) {
	m.setStatus(Status{State: StateError, Error: err.Error(), LastSnapshot: previous.LastSnapshot, LastKey: previous.LastKey})
	m.logger.Error("calendar snapshot failed", "error", err)
}

// Latest opens the most recent snapshot. The caller closes the reader.
func (m *Manager) Latest(ctx context.Context) (io.ReadCloser, error) {
	m.mu.RLock()
	client := m.client
	cfg := m.cfg
	m.mu.RUnlock()

	if client == nil {
		return nil, ErrDisabled
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(cfg.Prefix + latestName),
	})
	if err != nil {
		return nil, fmt.Errorf("download latest snapshot: %w", err)
	}
	return out.Body, nil
}

// prune deletes the oldest timestamped snapshots beyond cfg.Keep. Keys sort
// chronologically because of their timestamp.
func (m *Manager) prune(ctx context.Context, client s3Client, cfg Config) error {
	var keys []string
	var token *string
	for {
		out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(cfg.Bucket),
			Prefix:            aws.String(cfg.Prefix + "calendar-"),
			ContinuationToken: token,
		})
		if err != nil {
			return fmt.Errorf("list snapshots: %w", err)
		}
		for _, obj := range out.Contents {
			if obj.Key != nil && strings.HasSuffix(*obj.Key, ".ics") {
				keys = append(keys, *obj.Key)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}

	if len(keys) <= cfg.Keep {
		return nil
	}
	sort.Strings(keys)
	for _, k := range keys[:len(keys)-cfg.Keep] {
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(cfg.Bucket),
			Key:    aws.String(k),
		}); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
		m.logger.Debug("pruned snapshot", "key", k)
	}
	return nil
}
