// Package filepool is the façade over the file pool: a persistent,
// de-duplicated store of downloaded files shared across the application,
// fed either by immediate downloads or by the prioritized download queue.
package filepool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"filepool/internal/database"
	"filepool/internal/events"
	"filepool/internal/fileid"
	"filepool/internal/inflight"
	"filepool/internal/transfer"
	"filepool/pkg/models"
)

// Automatic-download size thresholds. Files above the base threshold are
// only fetched automatically on an unmetered connection, and never above
// the unmetered threshold.
const (
	DownloadThreshold          = 2 * 1024 * 1024
	UnmeteredDownloadThreshold = 20 * 1024 * 1024
)

var (
	// ErrDownloadsDisabled is returned when the site forbids file downloads.
	ErrDownloadsDisabled = errors.New("file downloads are disabled for this site")
	// ErrStorageUnavailable is returned when the pool directory is not
	// reachable.
	ErrStorageUnavailable = errors.New("file storage is not available")
	// ErrNotDownloaded is returned when a local copy was required but none
	// exists.
	ErrNotDownloaded = errors.New("file is not downloaded")
)

// DownloadOptions carries the optional parameters of a file request.
type DownloadOptions struct {
	// IgnoreStale serves a stale local copy instead of re-downloading.
	IgnoreStale bool
	// Component and ComponentID link the file to its logical owner.
	Component   string
	ComponentID string
	// Revision and TimeModified describe the freshness of the remote copy.
	// A zero revision is derived from the URL when possible.
	Revision     int64
	TimeModified int64
	// Filesize, when known, avoids a remote size probe in queue decisions.
	Filesize       int64
	IsExternalFile bool
	RepositoryType string
	// Path overrides the destination, relative to the pool root. Empty
	// means the derived pool path.
	Path       string
	OnProgress models.ProgressFunc
}

// QueueOptions carries the optional parameters of an enqueue request.
type QueueOptions struct {
	Priority       int
	Component      string
	ComponentID    string
	Revision       int64
	TimeModified   int64
	IsExternalFile bool
	RepositoryType string
	// Path overrides the destination, relative to the pool root. Empty
	// means the derived pool path.
	Path string
}

// Service composes the stores, the transfer client and the in-flight
// registry into the public file pool API. All methods are safe for
// concurrent use.
type Service struct {
	appDB        *database.DB
	registry     *inflight.Registry
	bus          *events.Bus
	transfer     transfer.Client
	fs           transfer.FS
	sites        SiteProvider
	connectivity Connectivity
	logger       *slog.Logger

	streamingSupported bool

	mu        sync.Mutex
	scheduler QueueScheduler
	siteDBs   map[string]*database.SiteDB
	sizeCache map[string]int64
}

// NewService creates the pool façade. Attach the queue processor afterwards
// with SetQueueScheduler.
func NewService(appDB *database.DB, registry *inflight.Registry, bus *events.Bus,
	transferClient transfer.Client, fs transfer.FS, sites SiteProvider,
	connectivity Connectivity, streamingSupported bool,
) *Service {
	return &Service{
		appDB:              appDB,
		registry:           registry,
		bus:                bus,
		transfer:           transferClient,
		fs:                 fs,
		sites:              sites,
		connectivity:       connectivity,
		logger:             slog.Default(),
		streamingSupported: streamingSupported,
		siteDBs:            make(map[string]*database.SiteDB),
		sizeCache:          make(map[string]int64),
	}
}

// SetQueueScheduler attaches the queue processor so enqueue operations can
// re-arm it.
func (s *Service) SetQueueScheduler(scheduler QueueScheduler) {
	s.mu.Lock()
	s.scheduler = scheduler
	s.mu.Unlock()
}

// Close closes every opened site store.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for siteID, db := range s.siteDBs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close site store %s: %w", siteID, err)
		}
		delete(s.siteDBs, siteID)
	}

	return firstErr
}

// siteDB returns the metadata store of a site, opening it on first use.
func (s *Service) siteDB(siteID string) (*database.SiteDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.siteDBs[siteID]; ok {
		return db, nil
	}

	if err := s.fs.MkdirAll(siteDir(siteID)); err != nil {
		return nil, fmt.Errorf("failed to create site directory: %w", err)
	}

	db, err := database.OpenSite(s.fs.Abs(filepath.Join(siteDir(siteID), "filepool.db")))
	if err != nil {
		return nil, fmt.Errorf("failed to open site store: %w", err)
	}

	s.siteDBs[siteID] = db

	return db, nil
}

func siteDir(siteID string) string {
	return filepath.Join("sites", siteID)
}

func poolDir(siteID string) string {
	return filepath.Join(siteDir(siteID), "filepool")
}

// relPath is the pool-relative path of a file, without extension.
func relPath(siteID, fileID string) string {
	return filepath.Join(poolDir(siteID), fileID)
}

// entryRelPath is the pool-relative on-disk path of a stored entry,
// extension included.
func entryRelPath(entry *models.FileEntry) string {
	if entry.Extension == "" {
		return entry.Path
	}

	return entry.Path + "." + entry.Extension
}

func buildLinks(fileID, component, componentID string) []models.FileLink {
	if component == "" {
		return nil
	}

	return []models.FileLink{{
		FileID:      fileID,
		Component:   component,
		ComponentID: models.NormalizeComponentID(componentID),
	}}
}

// DownloadURL fetches a file into the pool right away and returns its local
// absolute path. Concurrent calls for the same URL and destination share one
// transfer. A fresh pooled copy short-circuits the download.
func (s *Service) DownloadURL(ctx context.Context, siteID, fileURL string, opts DownloadOptions) (string, error) {
	if !s.fs.Available() {
		return "", ErrStorageUnavailable
	}
	if !s.sites.CanDownloadFiles(siteID) {
		return "", ErrDownloadsDisabled
	}

	fixed, err := s.sites.FixPluginfileURL(siteID, fileURL)
	if err != nil {
		return "", fmt.Errorf("failed to fix file URL: %w", err)
	}

	fileID := fileid.ByURL(fixed)
	revision := opts.Revision
	if revision == 0 {
		revision = fileid.RevisionFromURL(fixed)
	}

	db, err := s.siteDB(siteID)
	if err != nil {
		return "", err
	}

	links := buildLinks(fileID, opts.Component, opts.ComponentID)

	if entry, err := db.GetFile(fileID); err == nil {
		// An outdated copy is only refreshed while online; offline it is
		// still the best answer available.
		refresh := entry.IsOutdated(revision, opts.TimeModified) && s.connectivity.Online()
		if (opts.IgnoreStale || !refresh) && s.fs.Exists(entryRelPath(entry)) {
			if err := s.addLinks(db, links); err != nil {
				return "", err
			}

			return s.fs.Abs(entryRelPath(entry)), nil
		}
	}

	rel := opts.Path
	if rel == "" {
		rel = relPath(siteID, fileID)
	}

	key := fileid.DownloadKey(fixed, rel)

	return s.registry.DownloadOrJoin(siteID, key, func() (string, error) {
		s.publishFile(siteID, fileID, events.ActionDownloading, links)

		path, err := s.downloadIntoPool(ctx, db, siteID, fixed, fileID, poolFileParams{
			revision:       revision,
			timemodified:   opts.TimeModified,
			isExternalFile: opts.IsExternalFile,
			repositoryType: opts.RepositoryType,
			path:           rel,
			links:          links,
			onProgress:     opts.OnProgress,
		})
		if err != nil {
			s.publishFile(siteID, fileID, events.ActionDownloadError, links)
			return "", err
		}

		s.publishFile(siteID, fileID, events.ActionDownloaded, links)

		return path, nil
	})
}

type poolFileParams struct {
	revision       int64
	timemodified   int64
	isExternalFile bool
	repositoryType string
	path           string
	links          []models.FileLink
	onProgress     models.ProgressFunc
}

// downloadIntoPool performs the transfer and records the result. The file is
// stored at the requested destination, or under its derived identifier when
// none was given, with the extension appended once known.
func (s *Service) downloadIntoPool(ctx context.Context, db *database.SiteDB,
	siteID, fileURL, fileID string, params poolFileParams,
) (string, error) {
	if err := s.fs.MkdirAll(poolDir(siteID)); err != nil {
		return "", fmt.Errorf("failed to create pool directory: %w", err)
	}

	rel := params.path
	if rel == "" {
		rel = relPath(siteID, fileID)
	}

	result, err := s.transfer.DownloadToPath(ctx, fileURL, s.fs.Abs(rel), params.onProgress)
	if err != nil {
		return "", err
	}

	finalRel := rel
	if result.Extension != "" {
		finalRel = rel + "." + result.Extension
		if err := s.fs.Rename(rel, finalRel); err != nil {
			return "", fmt.Errorf("failed to place pool file: %w", err)
		}
	}

	// A re-download may land at a different path or extension; the previous
	// copy would be orphaned on disk otherwise.
	if old, err := db.GetFile(fileID); err == nil {
		if oldRel := entryRelPath(old); oldRel != finalRel && s.fs.Exists(oldRel) {
			if err := s.fs.Remove(oldRel); err != nil {
				s.logger.Warn("Failed to remove replaced pool file",
					"site_id", siteID, "file_id", fileID, "error", err)
			}
		}
	}

	entry := &models.FileEntry{
		FileID:         fileID,
		URL:            fileid.RemoveRevisionFromURL(fileURL),
		Revision:       params.revision,
		TimeModified:   params.timemodified,
		Stale:          false,
		DownloadTime:   time.Now().Unix(),
		Path:           rel,
		Extension:      result.Extension,
		IsExternalFile: params.isExternalFile,
		RepositoryType: params.repositoryType,
	}
	if err := db.UpsertFile(entry); err != nil {
		return "", err
	}

	if err := s.addLinks(db, params.links); err != nil {
		return "", err
	}

	return s.fs.Abs(finalRel), nil
}

func (s *Service) addLinks(db *database.SiteDB, links []models.FileLink) error {
	for i := range links {
		if err := db.AddLink(&links[i]); err != nil {
			return err
		}
	}

	return nil
}

// PoolEntry returns the stored metadata of a pool file. Part of the queue
// processor's downloader contract.
func (s *Service) PoolEntry(siteID, fileID string) (*models.FileEntry, error) {
	db, err := s.siteDB(siteID)
	if err != nil {
		return nil, err
	}

	return db.GetFile(fileID)
}

// AddFileLinks records owner links against a pooled file. Part of the queue
// processor's downloader contract.
func (s *Service) AddFileLinks(siteID, fileID string, links []models.FileLink) error {
	db, err := s.siteDB(siteID)
	if err != nil {
		return err
	}

	return s.addLinks(db, links)
}

// StorageAvailable reports whether the pool directory is reachable. Part of
// the queue processor's downloader contract.
func (s *Service) StorageAvailable() bool {
	return s.fs.Available()
}

// DownloadForPool transfers a queue item into the pool. Part of the queue
// processor's downloader contract.
func (s *Service) DownloadForPool(ctx context.Context, entry *models.QueueEntry, onProgress models.ProgressFunc) error {
	if !s.fs.Available() {
		return ErrStorageUnavailable
	}

	db, err := s.siteDB(entry.SiteID)
	if err != nil {
		return err
	}

	_, err = s.downloadIntoPool(ctx, db, entry.SiteID, entry.URL, entry.FileID, poolFileParams{
		revision:       entry.Revision,
		timemodified:   entry.TimeModified,
		isExternalFile: entry.IsExternalFile,
		repositoryType: entry.RepositoryType,
		path:           entry.Path,
		links:          entry.Links,
		onProgress:     onProgress,
	})

	return err
}

// AddToQueueByURL enqueues a file for background download. Re-enqueuing a
// queued file merges the requests: the higher priority wins, freshness
// values only move forward and owner links accumulate.
func (s *Service) AddToQueueByURL(siteID, fileURL string, opts QueueOptions) error {
	if !s.sites.CanDownloadFiles(siteID) {
		return ErrDownloadsDisabled
	}

	fixed, err := s.sites.FixPluginfileURL(siteID, fileURL)
	if err != nil {
		return fmt.Errorf("failed to fix file URL: %w", err)
	}

	fileID := fileid.ByURL(fixed)
	revision := opts.Revision
	if revision == 0 {
		revision = fileid.RevisionFromURL(fixed)
	}

	links := buildLinks(fileID, opts.Component, opts.ComponentID)

	existing, err := s.appDB.GetQueueEntry(siteID, fileID)
	switch {
	case err == nil:
		if opts.Priority > existing.Priority {
			existing.Priority = opts.Priority
		}
		if revision > existing.Revision {
			existing.Revision = revision
		}
		if opts.TimeModified > existing.TimeModified {
			existing.TimeModified = opts.TimeModified
		}
		if opts.Path != "" {
			existing.Path = opts.Path
		}
		existing.URL = fixed
		existing.Links = mergeLinks(existing.Links, links)

		if err := s.appDB.UpdateQueueEntry(existing); err != nil {
			return err
		}
	case errors.Is(err, database.ErrNotFound):
		entry := &models.QueueEntry{
			SiteID:         siteID,
			FileID:         fileID,
			URL:            fixed,
			Priority:       opts.Priority,
			Revision:       revision,
			TimeModified:   opts.TimeModified,
			Path:           opts.Path,
			IsExternalFile: opts.IsExternalFile,
			RepositoryType: opts.RepositoryType,
			Links:          links,
			Added:          time.Now().UnixMilli(),
		}
		if err := s.appDB.InsertQueueEntry(entry); err != nil {
			return err
		}
	default:
		return err
	}

	s.checkQueueProcessing()

	return nil
}

func mergeLinks(existing, extra []models.FileLink) []models.FileLink {
	for _, link := range extra {
		duplicate := false
		for _, have := range existing {
			if have == link {
				duplicate = true
				break
			}
		}
		if !duplicate {
			existing = append(existing, link)
		}
	}

	return existing
}

func (s *Service) checkQueueProcessing() {
	s.mu.Lock()
	scheduler := s.scheduler
	s.mu.Unlock()

	if scheduler != nil {
		scheduler.CheckProcessing()
	}
}

// AddToQueueIfNeeded enqueues a file only when its size permits automatic
// download on the current connection. An unknown size is probed remotely and
// cached.
func (s *Service) AddToQueueIfNeeded(ctx context.Context, siteID, fileURL string, size int64, opts QueueOptions) error {
	if size <= 0 {
		size = s.cachedRemoteSize(ctx, fileURL)
	}

	if size > 0 && !s.ShouldDownload(size) {
		return nil
	}

	return s.AddToQueueByURL(siteID, fileURL, opts)
}

// WaitForFile blocks until a queued file settles, forwarding transfer
// progress to onProgress. The newest waiter's callback wins when several
// callers wait on the same file.
func (s *Service) WaitForFile(ctx context.Context, siteID, fileID string, onProgress models.ProgressFunc) error {
	waiter, created := s.registry.QueueWaiter(siteID, fileID, onProgress)

	// The row may already be consumed by the time the waiter exists; a
	// fresh waiter for a gone row would never settle.
	if created {
		if _, err := s.appDB.GetQueueEntry(siteID, fileID); errors.Is(err, database.ErrNotFound) {
			s.registry.SettleQueueWaiter(siteID, fileID, nil)
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-waiter.Done():
		return waiter.Err()
	}
}

// GetURLByURL returns the best source for a file: the local path when a
// fresh copy is pooled, otherwise the online URL after possibly queuing a
// background download.
func (s *Service) GetURLByURL(ctx context.Context, siteID, fileURL string, opts DownloadOptions) (string, error) {
	fixed, err := s.sites.FixPluginfileURL(siteID, fileURL)
	if err != nil {
		return "", fmt.Errorf("failed to fix file URL: %w", err)
	}

	fileID := fileid.ByURL(fixed)
	revision := opts.Revision
	if revision == 0 {
		revision = fileid.RevisionFromURL(fixed)
	}

	db, err := s.siteDB(siteID)
	if err != nil {
		return "", err
	}

	if entry, err := db.GetFile(fileID); err == nil && s.fs.Available() {
		exists := s.fs.Exists(entryRelPath(entry))
		refresh := entry.IsOutdated(revision, opts.TimeModified) && s.connectivity.Online()
		if exists && (opts.IgnoreStale || !refresh) {
			if err := s.addLinks(db, buildLinks(fileID, opts.Component, opts.ComponentID)); err != nil {
				return "", err
			}

			return s.fs.Abs(entryRelPath(entry)), nil
		}

		// The metadata outlived the file on disk; drop it so state queries
		// stop reporting a copy that is not there.
		if !exists {
			if delErr := db.DeleteFile(fileID); delErr != nil {
				s.logger.Warn("Failed to drop dangling file record",
					"site_id", siteID, "file_id", fileID, "error", delErr)
			}
		}
	}

	queueErr := s.AddToQueueIfNeeded(ctx, siteID, fixed, opts.Filesize, QueueOptions{
		Component:      opts.Component,
		ComponentID:    opts.ComponentID,
		Revision:       revision,
		TimeModified:   opts.TimeModified,
		IsExternalFile: opts.IsExternalFile,
		RepositoryType: opts.RepositoryType,
	})
	if queueErr != nil && !errors.Is(queueErr, ErrDownloadsDisabled) {
		s.logger.Warn("Failed to queue background download",
			"site_id", siteID, "file_id", fileID, "error", queueErr)
	}

	return fixed, nil
}

// GetSrcByURL returns the local path of a pooled file, stale or not.
func (s *Service) GetSrcByURL(siteID, fileURL string) (string, error) {
	fixed, err := s.sites.FixPluginfileURL(siteID, fileURL)
	if err != nil {
		return "", fmt.Errorf("failed to fix file URL: %w", err)
	}

	db, err := s.siteDB(siteID)
	if err != nil {
		return "", err
	}

	entry, err := db.GetFile(fileid.ByURL(fixed))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return "", ErrNotDownloaded
		}
		return "", err
	}

	if !s.fs.Available() || !s.fs.Exists(entryRelPath(entry)) {
		return "", ErrNotDownloaded
	}

	return s.fs.Abs(entryRelPath(entry)), nil
}

// GetFilePathByURL returns the absolute path where a file is or would be
// stored. The stored extension is used when the file is already pooled.
func (s *Service) GetFilePathByURL(siteID, fileURL string) (string, error) {
	fixed, err := s.sites.FixPluginfileURL(siteID, fileURL)
	if err != nil {
		return "", fmt.Errorf("failed to fix file URL: %w", err)
	}

	fileID := fileid.ByURL(fixed)

	db, err := s.siteDB(siteID)
	if err != nil {
		return "", err
	}

	if entry, err := db.GetFile(fileID); err == nil {
		return s.fs.Abs(entryRelPath(entry)), nil
	}

	return s.fs.Abs(relPath(siteID, fileID)), nil
}

// GetFileStateByURL reports the download state of a file: downloading while
// queued or transferring, outdated when the pooled copy no longer matches
// the requested freshness, downloaded or not downloaded otherwise.
func (s *Service) GetFileStateByURL(siteID, fileURL string, revision, timemodified int64) (models.DownloadStatus, error) {
	fixed, err := s.sites.FixPluginfileURL(siteID, fileURL)
	if err != nil {
		return "", fmt.Errorf("failed to fix file URL: %w", err)
	}

	fileID := fileid.ByURL(fixed)
	if revision == 0 {
		revision = fileid.RevisionFromURL(fixed)
	}

	if _, err := s.appDB.GetQueueEntry(siteID, fileID); err == nil {
		return models.StatusDownloading, nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return "", err
	}

	if s.registry.DownloadInFlight(siteID, fileid.DownloadKey(fixed, relPath(siteID, fileID))) {
		return models.StatusDownloading, nil
	}

	db, err := s.siteDB(siteID)
	if err != nil {
		return "", err
	}

	entry, err := db.GetFile(fileID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return models.StatusNotDownloaded, nil
		}
		return "", err
	}

	if entry.IsOutdated(revision, timemodified) {
		return models.StatusOutdated, nil
	}

	return models.StatusDownloaded, nil
}

// ShouldDownload reports whether a file of the given size may be downloaded
// automatically on the current connection.
func (s *Service) ShouldDownload(size int64) bool {
	if size <= DownloadThreshold {
		return true
	}

	return !s.connectivity.LimitedConnection() && size <= UnmeteredDownloadThreshold
}

// ShouldDownloadBeforeOpen reports whether a file must be fully downloaded
// before opening. Small files and environments without streaming support
// always download; larger streamable media is opened directly.
func (s *Service) ShouldDownloadBeforeOpen(ctx context.Context, fileURL string, size int64) bool {
	if size <= 0 {
		size = s.cachedRemoteSize(ctx, fileURL)
	}
	if size > 0 && size <= DownloadThreshold {
		return true
	}
	if !s.streamingSupported {
		return true
	}

	if mimetype, err := s.transfer.RemoteMimetype(ctx, fileURL); err == nil && isStreamable(mimetype) {
		return false
	}

	return true
}

func isStreamable(mimetype string) bool {
	return len(mimetype) > 6 && (mimetype[:6] == "audio/" || mimetype[:6] == "video/")
}

// cachedRemoteSize probes the remote size of a URL, caching results for the
// lifetime of the service. Returns -1 when the size cannot be determined.
func (s *Service) cachedRemoteSize(ctx context.Context, fileURL string) int64 {
	s.mu.Lock()
	size, ok := s.sizeCache[fileURL]
	s.mu.Unlock()

	if ok {
		return size
	}

	size, err := s.transfer.RemoteSize(ctx, fileURL)
	if err != nil {
		return -1
	}

	if size > 0 {
		s.mu.Lock()
		s.sizeCache[fileURL] = size
		s.mu.Unlock()
	}

	return size
}

func (s *Service) publishFile(siteID, fileID string, action events.FileAction, links []models.FileLink) {
	event := events.FileEvent{
		SiteID: siteID,
		FileID: fileID,
		Action: action,
		Links:  links,
	}

	if err := s.bus.PublishFile(event); err != nil {
		s.logger.Error("Failed to publish file event",
			"file_id", fileID, "action", action, "error", err)
	}
}
