package filepool

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"filepool/internal/database"
	"filepool/internal/events"
	"filepool/internal/fileid"
	"filepool/pkg/models"
)

// packageKey derives the stored package id for an owner pair.
func packageKey(component, componentID string) string {
	return fileid.PackageID(component, models.NormalizeComponentID(componentID))
}

// StorePackageStatus records a package status transition, remembering the
// replaced status so a failed download can roll back. Storing the current
// status again is a no-op apart from refreshing extra data.
func (s *Service) StorePackageStatus(siteID string, status models.DownloadStatus, component, componentID, extra string) error {
	db, err := s.siteDB(siteID)
	if err != nil {
		return err
	}

	id := packageKey(component, componentID)
	now := time.Now().Unix()

	entry, err := db.GetPackage(id)
	switch {
	case err == nil:
		if entry.Status == status {
			if extra != "" && entry.Extra != extra {
				entry.Extra = extra
				return db.UpsertPackage(entry)
			}

			return nil
		}

		entry.Previous = entry.Status
		entry.PreviousDownloadTime = entry.DownloadTime
		entry.Status = status
		entry.Updated = now
		if status == models.StatusDownloading {
			entry.DownloadTime = now
		}
		if extra != "" {
			entry.Extra = extra
		}
	case errors.Is(err, database.ErrNotFound):
		entry = &models.PackageEntry{
			ID:          id,
			Component:   component,
			ComponentID: models.NormalizeComponentID(componentID),
			Status:      status,
			Updated:     now,
			Extra:       extra,
		}
		if status == models.StatusDownloading {
			entry.DownloadTime = now
		}
	default:
		return err
	}

	if err := db.UpsertPackage(entry); err != nil {
		return err
	}

	s.publishPackage(siteID, component, componentID, status)

	return nil
}

// GetPackageStatus returns the stored status of a package, defaulting to
// not downloaded.
func (s *Service) GetPackageStatus(siteID, component, componentID string) (models.DownloadStatus, error) {
	entry, err := s.getPackage(siteID, component, componentID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return models.StatusNotDownloaded, nil
		}
		return "", err
	}

	return entry.Status, nil
}

// GetPackagePreviousStatus returns the status a package held before its
// current one, defaulting to not downloaded.
func (s *Service) GetPackagePreviousStatus(siteID, component, componentID string) (models.DownloadStatus, error) {
	entry, err := s.getPackage(siteID, component, componentID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return models.StatusNotDownloaded, nil
		}
		return "", err
	}

	if entry.Previous == "" {
		return models.StatusNotDownloaded, nil
	}

	return entry.Previous, nil
}

// SetPackagePreviousStatus rolls a package back to its previous status and
// download time, used when a downloading transition fails.
func (s *Service) SetPackagePreviousStatus(siteID, component, componentID string) (models.DownloadStatus, error) {
	db, err := s.siteDB(siteID)
	if err != nil {
		return "", err
	}

	entry, err := db.GetPackage(packageKey(component, componentID))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return models.StatusNotDownloaded, nil
		}
		return "", err
	}

	status := entry.Previous
	if status == "" {
		status = models.StatusNotDownloaded
	}

	entry.Status = status
	entry.DownloadTime = entry.PreviousDownloadTime
	entry.Updated = time.Now().Unix()

	if err := db.UpsertPackage(entry); err != nil {
		return "", err
	}

	s.publishPackage(siteID, component, componentID, status)

	return status, nil
}

// GetPackageExtra returns the opaque extra data stored with a package.
func (s *Service) GetPackageExtra(siteID, component, componentID string) (string, error) {
	entry, err := s.getPackage(siteID, component, componentID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return "", nil
		}
		return "", err
	}

	return entry.Extra, nil
}

// UpdatePackageDownloadTime refreshes a package's download time without a
// status transition, used when single files inside it are updated.
func (s *Service) UpdatePackageDownloadTime(siteID, component, componentID string) error {
	db, err := s.siteDB(siteID)
	if err != nil {
		return err
	}

	return db.UpdatePackageDownloadTime(packageKey(component, componentID), time.Now().Unix())
}

// ClearAllPackagesStatus wipes every package status record of a site.
func (s *Service) ClearAllPackagesStatus(siteID string) error {
	db, err := s.siteDB(siteID)
	if err != nil {
		return err
	}

	return db.DeleteAllPackages()
}

// DeterminePackagesStatus folds one more package status into a rolled-up
// status. See models.DeterminePackagesStatus.
func (s *Service) DeterminePackagesStatus(current, packageStatus models.DownloadStatus) models.DownloadStatus {
	return models.DeterminePackagesStatus(current, packageStatus)
}

func (s *Service) getPackage(siteID, component, componentID string) (*models.PackageEntry, error) {
	db, err := s.siteDB(siteID)
	if err != nil {
		return nil, err
	}

	return db.GetPackage(packageKey(component, componentID))
}

// DownloadPackage downloads a set of files right away on behalf of one
// owner, updating the package status around the transfer. dirPath overrides
// where the files land, relative to the pool root; empty means the derived
// pool paths.
func (s *Service) DownloadPackage(ctx context.Context, siteID string, files []models.FileRef,
	component, componentID, extra, dirPath string, onProgress models.PackageProgressFunc,
) error {
	return s.DownloadOrPrefetchPackage(ctx, siteID, files, false, component, componentID, extra, dirPath, onProgress)
}

// PrefetchPackage queues a set of files for background download on behalf
// of one owner and waits for the queue to deliver them.
func (s *Service) PrefetchPackage(ctx context.Context, siteID string, files []models.FileRef,
	component, componentID, extra, dirPath string, onProgress models.PackageProgressFunc,
) error {
	return s.DownloadOrPrefetchPackage(ctx, siteID, files, true, component, componentID, extra, dirPath, onProgress)
}

// DownloadOrPrefetchPackage fetches every file of a package, directly or via
// the queue. The package transitions to downloading first, then to
// downloaded on success or back to its previous status on failure.
// Concurrent calls for the same owner pair join the ongoing run.
func (s *Service) DownloadOrPrefetchPackage(ctx context.Context, siteID string, files []models.FileRef,
	prefetch bool, component, componentID, extra, dirPath string, onProgress models.PackageProgressFunc,
) error {
	_, err := s.registry.PackageOrJoin(siteID, packageKey(component, componentID), func() (string, error) {
		if err := s.StorePackageStatus(siteID, models.StatusDownloading, component, componentID, extra); err != nil {
			return "", err
		}

		err := s.fetchPackageFiles(ctx, siteID, files, prefetch, component, componentID, dirPath, onProgress)
		if err != nil {
			if _, rollbackErr := s.SetPackagePreviousStatus(siteID, component, componentID); rollbackErr != nil {
				s.logger.Error("Failed to roll back package status",
					"component", component, "component_id", componentID, "error", rollbackErr)
			}

			return "", err
		}

		if err := s.StorePackageStatus(siteID, models.StatusDownloaded, component, componentID, extra); err != nil {
			return "", err
		}

		return "", nil
	})

	return err
}

// fetchPackageFiles fans the package's remote files out to concurrent
// downloads (or queue waits) and returns the first failure.
func (s *Service) fetchPackageFiles(ctx context.Context, siteID string, files []models.FileRef,
	prefetch bool, component, componentID, dirPath string, onProgress models.PackageProgressFunc,
) error {
	var remote []models.RemoteFileRef
	for _, ref := range files {
		// Files already on disk need no transfer.
		if file, ok := ref.(models.RemoteFileRef); ok {
			remote = append(remote, file)
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var loaded int64
	var firstErr error

	// The aggregate advances by the delta since the file's last report;
	// the file progress stays cumulative.
	report := func(delta int64, fileProgress models.Progress) {
		if onProgress == nil {
			return
		}

		mu.Lock()
		loaded += delta
		snapshot := models.PackageProgress{Loaded: loaded, FileProgress: fileProgress}
		mu.Unlock()

		onProgress(snapshot)
	}

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for _, file := range remote {
		wg.Add(1)
		go func(file models.RemoteFileRef) {
			defer wg.Done()

			var fileLoaded int64
			fileProgress := func(progress models.Progress) {
				delta := progress.Loaded - fileLoaded
				fileLoaded = progress.Loaded
				report(delta, progress)
			}

			if err := s.fetchPackageFile(ctx, siteID, file, prefetch, component, componentID, dirPath, fileProgress); err != nil {
				fail(fmt.Errorf("failed to fetch %s: %w", file.URL, err))
			}
		}(file)
	}

	wg.Wait()

	return firstErr
}

func (s *Service) fetchPackageFile(ctx context.Context, siteID string, file models.RemoteFileRef,
	prefetch bool, component, componentID, dirPath string, onProgress models.ProgressFunc,
) error {
	var dest string
	if dirPath != "" {
		dest = filepath.Join(dirPath, file.Filepath, file.Filename)
	}

	if !prefetch {
		_, err := s.DownloadURL(ctx, siteID, file.URL, DownloadOptions{
			Component:      component,
			ComponentID:    componentID,
			TimeModified:   file.TimeModified,
			Filesize:       file.Filesize,
			IsExternalFile: file.IsExternalFile,
			RepositoryType: file.RepositoryType,
			Path:           dest,
			OnProgress:     onProgress,
		})

		return err
	}

	fixed, err := s.sites.FixPluginfileURL(siteID, file.URL)
	if err != nil {
		return fmt.Errorf("failed to fix file URL: %w", err)
	}
	fileID := fileid.ByURL(fixed)

	// Register the waiter before enqueuing so a fast queue run cannot
	// settle the item before anyone listens.
	waiter, _ := s.registry.QueueWaiter(siteID, fileID, onProgress)

	if err := s.AddToQueueByURL(siteID, fixed, QueueOptions{
		Component:      component,
		ComponentID:    componentID,
		TimeModified:   file.TimeModified,
		IsExternalFile: file.IsExternalFile,
		RepositoryType: file.RepositoryType,
		Path:           dest,
	}); err != nil {
		s.registry.SettleQueueWaiter(siteID, fileID, err)

		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-waiter.Done():
		return waiter.Err()
	}
}

// DownloadOrPrefetchFiles fetches a set of files for one owner without
// touching package status records.
func (s *Service) DownloadOrPrefetchFiles(ctx context.Context, siteID string, files []models.FileRef,
	prefetch bool, component, componentID, dirPath string, onProgress models.PackageProgressFunc,
) error {
	return s.fetchPackageFiles(ctx, siteID, files, prefetch, component, componentID, dirPath, onProgress)
}

func (s *Service) publishPackage(siteID, component, componentID string, status models.DownloadStatus) {
	event := events.PackageEvent{
		SiteID:      siteID,
		Component:   component,
		ComponentID: models.NormalizeComponentID(componentID),
		Status:      status,
	}

	if err := s.bus.PublishPackage(event); err != nil {
		s.logger.Error("Failed to publish package event",
			"component", component, "component_id", componentID, "error", err)
	}
}
