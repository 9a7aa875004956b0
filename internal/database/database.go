// Package database provides SQLite storage for the filepool: an app-level
// download queue shared across sites, and per-site metadata stores holding
// the downloaded-files registry, component links and package status records.
package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"filepool/pkg/models"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// DB wraps the app-level SQLite database holding the download queue. The
// queue is site-agnostic: items are processed irrespective of which site is
// currently active.
type DB struct {
	conn *sql.DB
}

// New creates the app-level database connection and initializes the schema.
func New(dbPath string) (*DB, error) {
	conn, err := open(dbPath)
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// open opens an SQLite database with connection parameters that help with
// concurrent access.
func open(dbPath string) (*sql.DB, error) {
	connString := dbPath
	if dbPath != ":memory:" {
		connString = dbPath + "?_busy_timeout=30000&_journal_mode=WAL&_synchronous=NORMAL"
	}

	conn, err := sql.Open("sqlite", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't handle concurrent writes well
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	return conn, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS queue (
		site_id TEXT NOT NULL,
		file_id TEXT NOT NULL,
		url TEXT NOT NULL,
		priority INTEGER DEFAULT 0,
		revision INTEGER DEFAULT 0,
		timemodified INTEGER DEFAULT 0,
		path TEXT,
		is_external_file BOOLEAN DEFAULT FALSE,
		repository_type TEXT,
		links TEXT,
		added INTEGER NOT NULL,
		PRIMARY KEY (site_id, file_id)
	);

	CREATE INDEX IF NOT EXISTS idx_queue_order ON queue(priority DESC, added ASC);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// InsertQueueEntry adds a pending download to the queue.
func (db *DB) InsertQueueEntry(entry *models.QueueEntry) error {
	links, err := json.Marshal(entry.Links)
	if err != nil {
		return fmt.Errorf("failed to serialize links: %w", err)
	}

	query := `
	INSERT INTO queue (
		site_id, file_id, url, priority, revision, timemodified,
		path, is_external_file, repository_type, links, added
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = db.conn.Exec(query,
		entry.SiteID, entry.FileID, entry.URL, entry.Priority,
		entry.Revision, entry.TimeModified, entry.Path,
		entry.IsExternalFile, entry.RepositoryType, string(links), entry.Added,
	)
	if err != nil {
		return fmt.Errorf("failed to insert queue entry: %w", err)
	}

	return nil
}

// UpdateQueueEntry updates an existing queue row identified by (siteId, fileId).
func (db *DB) UpdateQueueEntry(entry *models.QueueEntry) error {
	links, err := json.Marshal(entry.Links)
	if err != nil {
		return fmt.Errorf("failed to serialize links: %w", err)
	}

	query := `
	UPDATE queue SET
		url = ?, priority = ?, revision = ?, timemodified = ?, path = ?,
		is_external_file = ?, repository_type = ?, links = ?
	WHERE site_id = ? AND file_id = ?
	`

	_, err = db.conn.Exec(query,
		entry.URL, entry.Priority, entry.Revision, entry.TimeModified,
		entry.Path, entry.IsExternalFile, entry.RepositoryType, string(links),
		entry.SiteID, entry.FileID,
	)
	if err != nil {
		return fmt.Errorf("failed to update queue entry: %w", err)
	}

	return nil
}

// GetQueueEntry retrieves a queue row by its (siteId, fileId) primary key.
func (db *DB) GetQueueEntry(siteID, fileID string) (*models.QueueEntry, error) {
	query := `
	SELECT site_id, file_id, url, priority, revision, timemodified,
		   path, is_external_file, repository_type, links, added
	FROM queue WHERE site_id = ? AND file_id = ?
	`

	return scanQueueEntry(db.conn.QueryRow(query, siteID, fileID))
}

// NextQueueItem retrieves the highest-priority, oldest-enqueued item.
func (db *DB) NextQueueItem() (*models.QueueEntry, error) {
	query := `
	SELECT site_id, file_id, url, priority, revision, timemodified,
		   path, is_external_file, repository_type, links, added
	FROM queue
	ORDER BY priority DESC, added ASC
	LIMIT 1
	`

	return scanQueueEntry(db.conn.QueryRow(query))
}

func scanQueueEntry(row *sql.Row) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	var path, repositoryType, links sql.NullString

	err := row.Scan(
		&entry.SiteID, &entry.FileID, &entry.URL, &entry.Priority,
		&entry.Revision, &entry.TimeModified, &path,
		&entry.IsExternalFile, &repositoryType, &links, &entry.Added,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	entry.Path = path.String
	entry.RepositoryType = repositoryType.String

	if links.String != "" {
		if err := json.Unmarshal([]byte(links.String), &entry.Links); err != nil {
			return nil, fmt.Errorf("failed to parse queue entry links: %w", err)
		}
	}

	return &entry, nil
}

// DeleteQueueEntry removes a queue row.
func (db *DB) DeleteQueueEntry(siteID, fileID string) error {
	_, err := db.conn.Exec("DELETE FROM queue WHERE site_id = ? AND file_id = ?", siteID, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}

	return nil
}

// CountQueueEntries returns the number of pending downloads.
func (db *DB) CountQueueEntries() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM queue").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}

	return count, nil
}
