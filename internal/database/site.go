package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"filepool/internal/fileid"
	"filepool/pkg/models"
)

// Current site schema version. Version 2 introduced the separate extension
// column and extension-less file identifiers.
const siteSchemaVersion = 2

// SiteDB wraps a per-site SQLite database with the files, links and packages
// tables. Pending migrations run before OpenSite returns, so a SiteDB handle
// always points at a store in its final shape.
type SiteDB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// OpenSite opens (creating if needed) the metadata store of one site and
// applies pending schema migrations.
func OpenSite(dbPath string) (*SiteDB, error) {
	conn, err := open(dbPath)
	if err != nil {
		return nil, err
	}

	db := &SiteDB{conn: conn, logger: slog.Default()}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize site schema: %w", err)
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate site schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *SiteDB) Close() error {
	return db.conn.Close()
}

func (db *SiteDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		file_id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		revision INTEGER DEFAULT 0,
		timemodified INTEGER DEFAULT 0,
		stale BOOLEAN DEFAULT FALSE,
		download_time INTEGER DEFAULT 0,
		path TEXT NOT NULL,
		extension TEXT,
		is_external_file BOOLEAN DEFAULT FALSE,
		repository_type TEXT
	);

	CREATE TABLE IF NOT EXISTS links (
		file_id TEXT NOT NULL,
		component TEXT NOT NULL,
		component_id TEXT NOT NULL,
		PRIMARY KEY (file_id, component, component_id)
	);

	CREATE INDEX IF NOT EXISTS idx_links_component ON links(component, component_id);

	CREATE TABLE IF NOT EXISTS packages (
		id TEXT PRIMARY KEY,
		component TEXT NOT NULL,
		component_id TEXT NOT NULL,
		status TEXT NOT NULL,
		previous TEXT,
		updated INTEGER DEFAULT 0,
		download_time INTEGER DEFAULT 0,
		previous_download_time INTEGER DEFAULT 0,
		extra TEXT
	);

	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// migrate applies pending migrations. The version row is only advanced after
// a migration fully completes, so an interrupted run resumes on next open.
func (db *SiteDB) migrate() error {
	var version int
	err := db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		version = 0
	} else if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version < 2 {
		if err := db.fillMissingExtensions(); err != nil {
			return err
		}
	}

	if version == 0 {
		_, err = db.conn.Exec("INSERT INTO schema_version (version) VALUES (?)", siteSchemaVersion)
	} else if version < siteSchemaVersion {
		_, err = db.conn.Exec("UPDATE schema_version SET version = ?", siteSchemaVersion)
	}
	if err != nil {
		return fmt.Errorf("failed to store schema version: %w", err)
	}

	return nil
}

// fillMissingExtensions backfills the extension column on legacy rows and
// re-keys their file identifiers to the extension-less form. Rows already
// carrying an extension (including the empty marker) are skipped, so the
// routine is idempotent and safe to interrupt.
func (db *SiteDB) fillMissingExtensions() error {
	rows, err := db.conn.Query("SELECT file_id, path FROM files WHERE extension IS NULL")
	if err != nil {
		return fmt.Errorf("failed to query legacy files: %w", err)
	}
	defer rows.Close()

	type legacyFile struct {
		fileID string
		path   string
	}
	var legacy []legacyFile

	for rows.Next() {
		var file legacyFile
		if err := rows.Scan(&file.fileID, &file.path); err != nil {
			return fmt.Errorf("failed to scan legacy file: %w", err)
		}
		legacy = append(legacy, file)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate legacy files: %w", err)
	}

	for _, file := range legacy {
		if err := db.fillExtension(file.fileID, file.path); err != nil {
			// One bad row must not abort the whole migration: mark it
			// stale so the next download rewrites it.
			db.logger.Warn("Failed to backfill extension, marking file stale",
				"file_id", file.fileID, "error", err)

			if _, staleErr := db.conn.Exec(
				"UPDATE files SET stale = TRUE, extension = '' WHERE file_id = ?", file.fileID,
			); staleErr != nil {
				return fmt.Errorf("failed to mark legacy file stale: %w", staleErr)
			}
		}
	}

	return nil
}

func (db *SiteDB) fillExtension(oldFileID, path string) error {
	extension := ""
	if dot := strings.LastIndex(path, "."); dot >= 0 && dot > strings.LastIndex(path, "/") {
		extension = path[dot+1:]
	}

	if extension == "" {
		// No extension to extract. Invalidate the file so the next
		// download stores it properly.
		_, err := db.conn.Exec(
			"UPDATE files SET stale = TRUE, extension = '' WHERE file_id = ?", oldFileID,
		)
		return err
	}

	newFileID := fileid.RemoveExtension(oldFileID)
	newPath := strings.TrimSuffix(path, "."+extension)

	_, err := db.conn.Exec(
		"UPDATE files SET file_id = ?, extension = ?, path = ? WHERE file_id = ?",
		newFileID, extension, newPath, oldFileID,
	)
	if err != nil {
		return err
	}

	if newFileID == oldFileID {
		return nil
	}

	_, err = db.conn.Exec("UPDATE links SET file_id = ? WHERE file_id = ?", newFileID, oldFileID)
	return err
}

// UpsertFile creates or replaces a file entry.
func (db *SiteDB) UpsertFile(entry *models.FileEntry) error {
	query := `
	INSERT INTO files (
		file_id, url, revision, timemodified, stale, download_time,
		path, extension, is_external_file, repository_type
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(file_id) DO UPDATE SET
		url = excluded.url, revision = excluded.revision,
		timemodified = excluded.timemodified, stale = excluded.stale,
		download_time = excluded.download_time, path = excluded.path,
		extension = excluded.extension,
		is_external_file = excluded.is_external_file,
		repository_type = excluded.repository_type
	`

	_, err := db.conn.Exec(query,
		entry.FileID, entry.URL, entry.Revision, entry.TimeModified,
		entry.Stale, entry.DownloadTime, entry.Path, entry.Extension,
		entry.IsExternalFile, entry.RepositoryType,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}

	return nil
}

// GetFile retrieves a file entry by its identifier.
func (db *SiteDB) GetFile(fileID string) (*models.FileEntry, error) {
	query := `
	SELECT file_id, url, revision, timemodified, stale, download_time,
		   path, extension, is_external_file, repository_type
	FROM files WHERE file_id = ?
	`

	var entry models.FileEntry
	var extension, repositoryType sql.NullString

	err := db.conn.QueryRow(query, fileID).Scan(
		&entry.FileID, &entry.URL, &entry.Revision, &entry.TimeModified,
		&entry.Stale, &entry.DownloadTime, &entry.Path, &extension,
		&entry.IsExternalFile, &repositoryType,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	entry.Extension = extension.String
	entry.RepositoryType = repositoryType.String

	return &entry, nil
}

// DeleteFile removes a file entry.
func (db *SiteDB) DeleteFile(fileID string) error {
	_, err := db.conn.Exec("DELETE FROM files WHERE file_id = ?", fileID)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// DeleteAllFiles removes every file entry of the site.
func (db *SiteDB) DeleteAllFiles() error {
	_, err := db.conn.Exec("DELETE FROM files")
	if err != nil {
		return fmt.Errorf("failed to delete files: %w", err)
	}

	return nil
}

// MarkFileStale flags a single file so the next access re-downloads it.
func (db *SiteDB) MarkFileStale(fileID string) error {
	_, err := db.conn.Exec("UPDATE files SET stale = TRUE WHERE file_id = ?", fileID)
	if err != nil {
		return fmt.Errorf("failed to mark file stale: %w", err)
	}

	return nil
}

// MarkAllFilesStale flags every file of the site. With onlyUnknown, only
// files whose server copy can change without a revision bump are flagged:
// externally-sourced files and files without revision or timemodified.
func (db *SiteDB) MarkAllFilesStale(onlyUnknown bool) error {
	query := "UPDATE files SET stale = TRUE"
	if onlyUnknown {
		query += " WHERE is_external_file = TRUE OR (revision = 0 AND timemodified = 0)"
	}

	_, err := db.conn.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to mark files stale: %w", err)
	}

	return nil
}

// AddLink records that (component, componentId) references a file. Adding an
// identical link twice is a no-op.
func (db *SiteDB) AddLink(link *models.FileLink) error {
	query := `
	INSERT OR IGNORE INTO links (file_id, component, component_id)
	VALUES (?, ?, ?)
	`

	_, err := db.conn.Exec(query, link.FileID, link.Component,
		models.NormalizeComponentID(link.ComponentID))
	if err != nil {
		return fmt.Errorf("failed to add link: %w", err)
	}

	return nil
}

// GetLinksForFile retrieves the owners referencing a file.
func (db *SiteDB) GetLinksForFile(fileID string) ([]models.FileLink, error) {
	return db.queryLinks("SELECT file_id, component, component_id FROM links WHERE file_id = ?", fileID)
}

// GetLinksForComponent retrieves the files referenced by an owner.
func (db *SiteDB) GetLinksForComponent(component, componentID string) ([]models.FileLink, error) {
	return db.queryLinks(
		"SELECT file_id, component, component_id FROM links WHERE component = ? AND component_id = ?",
		component, models.NormalizeComponentID(componentID),
	)
}

func (db *SiteDB) queryLinks(query string, args ...any) ([]models.FileLink, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []models.FileLink
	for rows.Next() {
		var link models.FileLink
		if err := rows.Scan(&link.FileID, &link.Component, &link.ComponentID); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate links: %w", err)
	}

	return links, nil
}

// CountLinksForComponent returns how many files an owner references.
func (db *SiteDB) CountLinksForComponent(component, componentID string) (int, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM links WHERE component = ? AND component_id = ?",
		component, models.NormalizeComponentID(componentID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}

	return count, nil
}

// DeleteLinksForFile removes every link of a file, typically alongside the
// file entry itself.
func (db *SiteDB) DeleteLinksForFile(fileID string) error {
	_, err := db.conn.Exec("DELETE FROM links WHERE file_id = ?", fileID)
	if err != nil {
		return fmt.Errorf("failed to delete links: %w", err)
	}

	return nil
}

// DeleteAllLinks removes every link of the site.
func (db *SiteDB) DeleteAllLinks() error {
	_, err := db.conn.Exec("DELETE FROM links")
	if err != nil {
		return fmt.Errorf("failed to delete links: %w", err)
	}

	return nil
}

// UpsertPackage creates or replaces a package status record.
func (db *SiteDB) UpsertPackage(entry *models.PackageEntry) error {
	query := `
	INSERT INTO packages (
		id, component, component_id, status, previous, updated,
		download_time, previous_download_time, extra
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status, previous = excluded.previous,
		updated = excluded.updated, download_time = excluded.download_time,
		previous_download_time = excluded.previous_download_time,
		extra = excluded.extra
	`

	_, err := db.conn.Exec(query,
		entry.ID, entry.Component, entry.ComponentID, entry.Status,
		entry.Previous, entry.Updated, entry.DownloadTime,
		entry.PreviousDownloadTime, entry.Extra,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert package: %w", err)
	}

	return nil
}

// GetPackage retrieves a package record by its derived identifier.
func (db *SiteDB) GetPackage(id string) (*models.PackageEntry, error) {
	query := `
	SELECT id, component, component_id, status, previous, updated,
		   download_time, previous_download_time, extra
	FROM packages WHERE id = ?
	`

	var entry models.PackageEntry
	var previous, extra sql.NullString

	err := db.conn.QueryRow(query, id).Scan(
		&entry.ID, &entry.Component, &entry.ComponentID, &entry.Status,
		&previous, &entry.Updated, &entry.DownloadTime,
		&entry.PreviousDownloadTime, &extra,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get package: %w", err)
	}

	entry.Previous = models.DownloadStatus(previous.String)
	entry.Extra = extra.String

	return &entry, nil
}

// GetAllPackages retrieves every package record of the site.
func (db *SiteDB) GetAllPackages() ([]*models.PackageEntry, error) {
	query := `
	SELECT id, component, component_id, status, previous, updated,
		   download_time, previous_download_time, extra
	FROM packages
	`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query packages: %w", err)
	}
	defer rows.Close()

	var packages []*models.PackageEntry
	for rows.Next() {
		var entry models.PackageEntry
		var previous, extra sql.NullString

		err := rows.Scan(
			&entry.ID, &entry.Component, &entry.ComponentID, &entry.Status,
			&previous, &entry.Updated, &entry.DownloadTime,
			&entry.PreviousDownloadTime, &extra,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}

		entry.Previous = models.DownloadStatus(previous.String)
		entry.Extra = extra.String
		packages = append(packages, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate packages: %w", err)
	}

	return packages, nil
}

// UpdatePackageDownloadTime updates the download time of a package without
// touching the previous download time.
func (db *SiteDB) UpdatePackageDownloadTime(id string, downloadTime int64) error {
	_, err := db.conn.Exec("UPDATE packages SET download_time = ? WHERE id = ?", downloadTime, id)
	if err != nil {
		return fmt.Errorf("failed to update package download time: %w", err)
	}

	return nil
}

// DeleteAllPackages removes every package record of the site.
func (db *SiteDB) DeleteAllPackages() error {
	_, err := db.conn.Exec("DELETE FROM packages")
	if err != nil {
		return fmt.Errorf("failed to delete packages: %w", err)
	}

	return nil
}
