package filepool

import (
	"errors"
	"fmt"

	"filepool/internal/database"
	"filepool/internal/events"
	"filepool/internal/fileid"
	"filepool/pkg/models"
)

// AddFileLinkByURL links an already pooled file to an owner.
func (s *Service) AddFileLinkByURL(siteID, fileURL, component, componentID string) error {
	fixed, err := s.sites.FixPluginfileURL(siteID, fileURL)
	if err != nil {
		return fmt.Errorf("failed to fix file URL: %w", err)
	}

	fileID := fileid.ByURL(fixed)

	db, err := s.siteDB(siteID)
	if err != nil {
		return err
	}

	if _, err := db.GetFile(fileID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotDownloaded
		}
		return err
	}

	return s.addLinks(db, buildLinks(fileID, component, componentID))
}

// ComponentHasFiles reports whether an owner references any pooled file.
func (s *Service) ComponentHasFiles(siteID, component, componentID string) (bool, error) {
	db, err := s.siteDB(siteID)
	if err != nil {
		return false, err
	}

	count, err := db.CountLinksForComponent(component, componentID)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// GetFilesByComponent returns the pooled files an owner references. Links
// pointing at files that no longer exist are skipped.
func (s *Service) GetFilesByComponent(siteID, component, componentID string) ([]*models.FileEntry, error) {
	db, err := s.siteDB(siteID)
	if err != nil {
		return nil, err
	}

	links, err := db.GetLinksForComponent(component, componentID)
	if err != nil {
		return nil, err
	}

	var files []*models.FileEntry
	for _, link := range links {
		entry, err := db.GetFile(link.FileID)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		files = append(files, entry)
	}

	return files, nil
}

// GetFilesSizeByComponent sums the on-disk size of an owner's pooled files.
func (s *Service) GetFilesSizeByComponent(siteID, component, componentID string) (int64, error) {
	files, err := s.GetFilesByComponent(siteID, component, componentID)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, entry := range files {
		size, err := s.fs.Size(entryRelPath(entry))
		if err != nil {
			continue
		}

		total += size
	}

	return total, nil
}

// InvalidateFileByURL marks a pooled file stale so the next access checks
// the server again. The local copy stays usable until then.
func (s *Service) InvalidateFileByURL(siteID, fileURL string) error {
	fixed, err := s.sites.FixPluginfileURL(siteID, fileURL)
	if err != nil {
		return fmt.Errorf("failed to fix file URL: %w", err)
	}

	fileID := fileid.ByURL(fixed)

	db, err := s.siteDB(siteID)
	if err != nil {
		return err
	}

	if err := db.MarkFileStale(fileID); err != nil {
		return err
	}

	s.publishFile(siteID, fileID, events.ActionOutdated, nil)

	return nil
}

// InvalidateFilesByComponent marks every file an owner references stale.
func (s *Service) InvalidateFilesByComponent(siteID, component, componentID string) error {
	db, err := s.siteDB(siteID)
	if err != nil {
		return err
	}

	links, err := db.GetLinksForComponent(component, componentID)
	if err != nil {
		return err
	}

	for _, link := range links {
		if err := db.MarkFileStale(link.FileID); err != nil {
			return err
		}

		s.publishFile(siteID, link.FileID, events.ActionOutdated, nil)
	}

	return nil
}

// InvalidateAllFiles marks every pooled file of a site stale. With
// onlyUnknown, only files whose server copy can change undetected are
// marked: externally sourced files and files without freshness values.
func (s *Service) InvalidateAllFiles(siteID string, onlyUnknown bool) error {
	db, err := s.siteDB(siteID)
	if err != nil {
		return err
	}

	return db.MarkAllFilesStale(onlyUnknown)
}

// RemoveFileByURL deletes a pooled file, its metadata and its links.
func (s *Service) RemoveFileByURL(siteID, fileURL string) error {
	fixed, err := s.sites.FixPluginfileURL(siteID, fileURL)
	if err != nil {
		return fmt.Errorf("failed to fix file URL: %w", err)
	}

	return s.removeFileByID(siteID, fileid.ByURL(fixed))
}

// RemoveFilesByComponent deletes every file an owner references, including
// files shared with other owners.
func (s *Service) RemoveFilesByComponent(siteID, component, componentID string) error {
	db, err := s.siteDB(siteID)
	if err != nil {
		return err
	}

	links, err := db.GetLinksForComponent(component, componentID)
	if err != nil {
		return err
	}

	for _, link := range links {
		if err := s.removeFileByID(siteID, link.FileID); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) removeFileByID(siteID, fileID string) error {
	db, err := s.siteDB(siteID)
	if err != nil {
		return err
	}

	entry, err := db.GetFile(fileID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return err
	}

	links, err := db.GetLinksForFile(fileID)
	if err != nil {
		return err
	}

	if err := db.DeleteLinksForFile(fileID); err != nil {
		return err
	}
	if err := db.DeleteFile(fileID); err != nil {
		return err
	}

	if s.fs.Available() && s.fs.Exists(entryRelPath(entry)) {
		if err := s.fs.Remove(entryRelPath(entry)); err != nil {
			s.logger.Warn("Failed to remove pool file from disk",
				"site_id", siteID, "file_id", fileID, "error", err)
		}
	}

	s.publishFile(siteID, fileID, events.ActionDeleted, links)

	return nil
}

// ClearFilepool deletes every pooled file and link of a site. Package
// status records are kept; use ClearAllPackagesStatus for those.
func (s *Service) ClearFilepool(siteID string) error {
	db, err := s.siteDB(siteID)
	if err != nil {
		return err
	}

	if err := db.DeleteAllFiles(); err != nil {
		return err
	}
	if err := db.DeleteAllLinks(); err != nil {
		return err
	}

	if s.fs.Available() {
		if err := s.fs.RemoveAll(poolDir(siteID)); err != nil {
			return fmt.Errorf("failed to remove pool directory: %w", err)
		}
	}

	return nil
}
