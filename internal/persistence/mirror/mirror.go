package mirror

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Uploader is the part of Client the mirror needs.
type Uploader interface {
	PutFile(ctx context.Context, key, localPath string) error
}

type Stats struct {
	Queued   int
	Uploaded uint64
	Failed   uint64
	Dropped  uint64
}

// Mirror uploads files under a base directory, keyed by their path relative
// to it. Enqueue never blocks the caller for long; a full queue drops.
type Mirror struct {
	up     Uploader
	base   string
	prefix string
	log    logrus.FieldLogger

	jobs    chan string
	wg      sync.WaitGroup
	once    sync.Once
	retries int
	backoff time.Duration

	uploaded atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

func New(up Uploader, baseDir, prefix string, log logrus.FieldLogger) *Mirror {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	m := &Mirror{
		up:      up,
		base:    baseDir,
		prefix:  strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		log:     log,
		jobs:    make(chan string, 256),
		retries: 4,
		backoff: 200 * time.Millisecond,
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for p := range m.jobs {
			m.upload(p)
		}
	}()
	return m
}

func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	select {
	case m.jobs <- localPath:
		return
	default:
	}
	t := time.NewTimer(25 * time.Millisecond)
	defer t.Stop()
	select {
	case m.jobs <- localPath:
	case <-t.C:
		m.dropped.Add(1)
		m.log.WithField("path", localPath).Warn("mirror queue full, dropping upload")
	}
}

// Close waits for queued uploads to finish.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.once.Do(func() {
		close(m.jobs)
		m.wg.Wait()
	})
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		Queued:   len(m.jobs),
		Uploaded: m.uploaded.Load(),
		Failed:   m.failed.Load(),
		Dropped:  m.dropped.Load(),
	}
}

func (m *Mirror) upload(localPath string) {
	key, err := m.key(localPath)
	if err != nil {
		m.failed.Add(1)
		m.log.WithError(err).WithField("path", localPath).Warn("mirror skip")
		return
	}
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = m.up.PutFile(ctx, key, localPath)
		cancel()
		if err == nil {
			m.uploaded.Add(1)
			m.log.WithField("key", key).Debug("mirror uploaded")
			return
		}
		if attempt >= m.retries {
			break
		}
		time.Sleep(time.Duration(attempt*attempt) * m.backoff)
	}
	m.failed.Add(1)
	m.log.WithError(err).WithField("key", key).Error("mirror upload failed")
}

func (m *Mirror) key(localPath string) (string, error) {
	base, err := filepath.Abs(m.base)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", abs, base)
	}
	if m.prefix != "" {
		rel = path.Join(m.prefix, rel)
	}
	return rel, nil
}
