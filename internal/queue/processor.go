// Package queue processes the persistent download queue: one item at a time,
// highest priority first, pausing whenever the queue drains or an item fails
// and resuming when something re-arms it.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"filepool/internal/database"
	"filepool/internal/events"
	"filepool/internal/inflight"
	"filepool/internal/transfer"
	"filepool/pkg/models"
)

// Processor states.
const (
	StatePaused  = "paused"
	StateRunning = "running"
)

// Downloader ingests queue items into the pool. Implemented by the filepool
// service; declared here so the processor does not depend on it.
//
//go:generate mockgen -source=processor.go -destination=mocks/mock_processor.go -package=mocks
type Downloader interface {
	// PoolEntry returns the stored metadata of a pool file, or
	// database.ErrNotFound.
	PoolEntry(siteID, fileID string) (*models.FileEntry, error)
	// DownloadForPool transfers a queue item into the pool, storing its
	// metadata and links.
	DownloadForPool(ctx context.Context, entry *models.QueueEntry, onProgress models.ProgressFunc) error
	// AddFileLinks records owner links against an already pooled file.
	AddFileLinks(siteID, fileID string, links []models.FileLink) error
	// StorageAvailable reports whether the pool directory is reachable.
	StorageAvailable() bool
}

// Connectivity reports network state.
type Connectivity interface {
	Online() bool
	LimitedConnection() bool
}

// Processor drains the download queue sequentially. It starts paused; call
// CheckProcessing after enqueuing or when connectivity returns to wake it.
type Processor struct {
	db           *database.DB
	downloader   Downloader
	connectivity Connectivity
	registry     *inflight.Registry
	bus          *events.Bus
	logger       *slog.Logger

	mu    sync.Mutex
	state string
	wake  chan struct{}
}

// NewProcessor creates a paused processor.
func NewProcessor(db *database.DB, downloader Downloader, connectivity Connectivity,
	registry *inflight.Registry, bus *events.Bus,
) *Processor {
	return &Processor{
		db:           db,
		downloader:   downloader,
		connectivity: connectivity,
		registry:     registry,
		bus:          bus,
		logger:       slog.Default(),
		state:        StatePaused,
		wake:         make(chan struct{}, 1),
	}
}

// Start launches the processing loop. It runs until ctx is canceled.
func (p *Processor) Start(ctx context.Context) {
	go p.run(ctx)
}

// State returns the current processing state.
func (p *Processor) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// CheckProcessing wakes the loop if it is paused. Safe to call at any time,
// from any goroutine; redundant calls coalesce.
func (p *Processor) CheckProcessing() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// OnConnectivityChange re-arms the loop when the device comes back online.
func (p *Processor) OnConnectivityChange(online bool) {
	if online {
		p.CheckProcessing()
	}
}

func (p *Processor) setState(state string) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

func (p *Processor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}

		p.setState(StateRunning)
		p.drain(ctx)
		p.setState(StatePaused)
	}
}

// drain processes items until the queue empties, connectivity drops, or an
// item fails. Errors never escape; a failure pauses the loop and the next
// CheckProcessing retries from the top of the queue.
func (p *Processor) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if !p.connectivity.Online() {
			p.logger.Debug("Queue processing paused, device offline")
			return
		}

		if !p.downloader.StorageAvailable() {
			p.logger.Debug("Queue processing paused, storage unavailable")
			return
		}

		entry, err := p.db.NextQueueItem()
		if err != nil {
			if !errors.Is(err, database.ErrNotFound) {
				p.logger.Error("Failed to read download queue", "error", err)
			}
			return
		}

		if err := p.processItem(ctx, entry); err != nil {
			p.logger.Warn("Queue item failed, pausing queue",
				"site_id", entry.SiteID, "file_id", entry.FileID, "error", err)
			return
		}
	}
}

// processItem handles one queue row. A nil return means the row was consumed
// (success or permanent failure) and processing can continue; an error means
// the row stays queued and the loop should pause.
func (p *Processor) processItem(ctx context.Context, entry *models.QueueEntry) error {
	// Fast path: the file may already be pooled and fresh, for instance
	// when it was downloaded directly while queued. Externally sourced
	// files skip this because their freshness cannot be judged locally.
	if !entry.IsExternalFile {
		existing, err := p.downloader.PoolEntry(entry.SiteID, entry.FileID)
		if err == nil && !existing.IsOutdated(entry.Revision, entry.TimeModified) {
			return p.finishItem(entry, p.downloader.AddFileLinks(entry.SiteID, entry.FileID, entry.Links))
		}
	}

	p.publishFile(entry, events.ActionDownloading)

	onProgress := func(progress models.Progress) {
		if waiter, ok := p.registry.GetQueueWaiter(entry.SiteID, entry.FileID); ok {
			waiter.Progress(progress)
		}
	}

	err := p.downloader.DownloadForPool(ctx, entry, onProgress)
	if err == nil {
		return p.finishItem(entry, nil)
	}

	if transfer.IsPermanent(err) {
		// Retrying cannot help. Drop the row so it stops blocking the
		// rest of the queue.
		if deleteErr := p.db.DeleteQueueEntry(entry.SiteID, entry.FileID); deleteErr != nil {
			p.logger.Error("Failed to drop failed queue item",
				"site_id", entry.SiteID, "file_id", entry.FileID, "error", deleteErr)
		}

		p.registry.SettleQueueWaiter(entry.SiteID, entry.FileID, err)
		p.publishFile(entry, events.ActionDownloadError)
		p.logger.Warn("Dropped undownloadable queue item",
			"site_id", entry.SiteID, "file_id", entry.FileID, "error", err)

		return nil
	}

	// Transient failure: keep the row for a later retry but resolve the
	// current waiters so callers are not stuck until then.
	p.registry.SettleQueueWaiter(entry.SiteID, entry.FileID, err)
	p.publishFile(entry, events.ActionDownloadError)

	return err
}

// finishItem removes a consumed row and settles its waiters.
func (p *Processor) finishItem(entry *models.QueueEntry, err error) error {
	if deleteErr := p.db.DeleteQueueEntry(entry.SiteID, entry.FileID); deleteErr != nil {
		return deleteErr
	}

	p.registry.SettleQueueWaiter(entry.SiteID, entry.FileID, err)

	if err == nil {
		p.publishFile(entry, events.ActionDownloaded)
	} else {
		p.publishFile(entry, events.ActionDownloadError)
	}

	return nil
}

func (p *Processor) publishFile(entry *models.QueueEntry, action events.FileAction) {
	event := events.FileEvent{
		SiteID: entry.SiteID,
		FileID: entry.FileID,
		Action: action,
		Links:  entry.Links,
	}

	if err := p.bus.PublishFile(event); err != nil {
		p.logger.Error("Failed to publish file event",
			"file_id", entry.FileID, "action", action, "error", err)
	}
}
