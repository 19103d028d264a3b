// Package media archives message attachments to disk. Archival runs
// detached from the event pipeline: a failed or slow download never delays
// or suppresses the log line and history record already committed.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/user/chatlog/internal/metrics"
	"github.com/user/chatlog/internal/types"
)

// Archiver downloads media into dir/<chat_id>/<message_id>/ with bounded
// concurrency.
type Archiver struct {
	platform types.Platform
	dir      string
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// New creates an Archiver allowing up to maxConcurrent simultaneous
// downloads.
func New(platform types.Platform, dir string, maxConcurrent int64, log *slog.Logger, m *metrics.Metrics) *Archiver {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Archiver{
		platform: platform,
		dir:      dir,
		sem:      semaphore.NewWeighted(maxConcurrent),
		log:      log,
		metrics:  m,
	}
}

// Archive schedules a detached download of the message's media. Web page
// previews and media without a downloadable file (contacts, locations,
// polls) are not archived. The event's ctx is detached so completion of the
// triggering event does not cancel an in-flight download.
func (a *Archiver) Archive(ctx context.Context, msg *types.IncomingMessage) {
	if msg.Media == nil || msg.Media.WebPreview || msg.Media.FileID == "" {
		return
	}
	dctx := context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		if err := a.sem.Acquire(dctx, 1); err != nil {
			return
		}
		defer a.sem.Release(1)

		if err := a.download(dctx, msg); err != nil {
			a.log.Error("media archival failed",
				"chat_id", msg.ChatID, "message_id", msg.ID, "error", err)
			a.metrics.MediaArchives.WithLabelValues("error").Inc()
			return
		}
		a.metrics.MediaArchives.WithLabelValues("ok").Inc()
	}()
}

func (a *Archiver) download(ctx context.Context, msg *types.IncomingMessage) error {
	dest := filepath.Join(a.dir, fmt.Sprintf("%d", msg.ChatID), fmt.Sprintf("%d", msg.ID))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create media dir: %w", err)
	}
	return a.platform.Download(ctx, msg, dest)
}

// Wait blocks until all in-flight downloads have finished. Used on shutdown.
func (a *Archiver) Wait() {
	a.wg.Wait()
}
