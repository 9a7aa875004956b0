package database

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"filepool/pkg/models"
)

func setupSiteDB(t *testing.T) *SiteDB {
	t.Helper()

	db, err := OpenSite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func fileEntry(fileID string) *models.FileEntry {
	return &models.FileEntry{
		FileID:    fileID,
		URL:       "https://school.example/file/" + fileID,
		Revision:  1,
		Path:      "sites/site1/filepool/" + fileID,
		Extension: "pdf",
	}
}

func TestFileRoundTrip(t *testing.T) {
	db := setupSiteDB(t)

	entry := &models.FileEntry{
		FileID:         "file1",
		URL:            "https://school.example/file.pdf",
		Revision:       3,
		TimeModified:   100,
		DownloadTime:   5000,
		Path:           "sites/site1/filepool/file1",
		Extension:      "pdf",
		IsExternalFile: true,
		RepositoryType: "dropbox",
	}

	require.NoError(t, db.UpsertFile(entry))

	got, err := db.GetFile("file1")
	require.NoError(t, err)
	require.Equal(t, entry, got)

	// Upsert replaces in place.
	entry.Revision = 4
	entry.Stale = true
	require.NoError(t, db.UpsertFile(entry))

	got, err = db.GetFile("file1")
	require.NoError(t, err)
	require.Equal(t, int64(4), got.Revision)
	require.True(t, got.Stale)
}

func TestGetFileNotFound(t *testing.T) {
	db := setupSiteDB(t)

	_, err := db.GetFile("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteFile(t *testing.T) {
	db := setupSiteDB(t)

	require.NoError(t, db.UpsertFile(fileEntry("file1")))
	require.NoError(t, db.DeleteFile("file1"))

	_, err := db.GetFile("file1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMarkFileStale(t *testing.T) {
	db := setupSiteDB(t)

	require.NoError(t, db.UpsertFile(fileEntry("file1")))
	require.NoError(t, db.MarkFileStale("file1"))

	got, err := db.GetFile("file1")
	require.NoError(t, err)
	require.True(t, got.Stale)
}

func TestMarkAllFilesStaleOnlyUnknown(t *testing.T) {
	db := setupSiteDB(t)

	known := fileEntry("known")
	known.Revision = 2
	require.NoError(t, db.UpsertFile(known))

	external := fileEntry("external")
	external.IsExternalFile = true
	require.NoError(t, db.UpsertFile(external))

	unversioned := fileEntry("unversioned")
	unversioned.Revision = 0
	unversioned.TimeModified = 0
	require.NoError(t, db.UpsertFile(unversioned))

	require.NoError(t, db.MarkAllFilesStale(true))

	got, err := db.GetFile("known")
	require.NoError(t, err)
	require.False(t, got.Stale, "versioned file must keep its freshness")

	got, err = db.GetFile("external")
	require.NoError(t, err)
	require.True(t, got.Stale)

	got, err = db.GetFile("unversioned")
	require.NoError(t, err)
	require.True(t, got.Stale)

	// Without the filter everything goes stale.
	require.NoError(t, db.MarkAllFilesStale(false))
	got, err = db.GetFile("known")
	require.NoError(t, err)
	require.True(t, got.Stale)
}

func TestLinks(t *testing.T) {
	db := setupSiteDB(t)

	link := &models.FileLink{FileID: "file1", Component: "mod_resource", ComponentID: "42"}
	require.NoError(t, db.AddLink(link))
	// Duplicate links collapse into one row.
	require.NoError(t, db.AddLink(link))
	require.NoError(t, db.AddLink(&models.FileLink{FileID: "file2", Component: "mod_resource", ComponentID: "42"}))
	require.NoError(t, db.AddLink(&models.FileLink{FileID: "file1", Component: "mod_page", ComponentID: "7"}))

	byFile, err := db.GetLinksForFile("file1")
	require.NoError(t, err)
	require.Len(t, byFile, 2)

	byComponent, err := db.GetLinksForComponent("mod_resource", "42")
	require.NoError(t, err)
	require.Len(t, byComponent, 2)

	count, err := db.CountLinksForComponent("mod_resource", "42")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	require.NoError(t, db.DeleteLinksForFile("file1"))

	byFile, err = db.GetLinksForFile("file1")
	require.NoError(t, err)
	require.Empty(t, byFile)
}

func TestAddLinkNormalizesComponentID(t *testing.T) {
	db := setupSiteDB(t)

	require.NoError(t, db.AddLink(&models.FileLink{FileID: "file1", Component: "mod_forum"}))

	links, err := db.GetLinksForComponent("mod_forum", "")
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, "-1", links[0].ComponentID)
}

func TestPackageRoundTrip(t *testing.T) {
	db := setupSiteDB(t)

	entry := &models.PackageEntry{
		ID:                   "pkg1",
		Component:            "mod_resource",
		ComponentID:          "42",
		Status:               models.StatusDownloading,
		Previous:             models.StatusNotDownloaded,
		Updated:              100,
		DownloadTime:         100,
		PreviousDownloadTime: 50,
		Extra:                `{"hash":"abc"}`,
	}

	require.NoError(t, db.UpsertPackage(entry))

	got, err := db.GetPackage("pkg1")
	require.NoError(t, err)
	require.Equal(t, entry, got)

	all, err := db.GetAllPackages()
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, db.UpdatePackageDownloadTime("pkg1", 999))
	got, err = db.GetPackage("pkg1")
	require.NoError(t, err)
	require.Equal(t, int64(999), got.DownloadTime)
	require.Equal(t, int64(50), got.PreviousDownloadTime)

	require.NoError(t, db.DeleteAllPackages())
	_, err = db.GetPackage("pkg1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFillMissingExtensionsMigration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "site.db")

	// Build a pre-migration store by hand: file ids and paths still carry
	// the extension, the extension column is empty and no schema version
	// is recorded.
	conn, err := open(dbPath)
	require.NoError(t, err)

	legacy := &SiteDB{conn: conn, logger: slog.Default()}
	require.NoError(t, legacy.initSchema())

	_, err = conn.Exec(
		"INSERT INTO files (file_id, url, path) VALUES (?, ?, ?)",
		"report_abc123.pdf", "https://school.example/report.pdf", "sites/site1/filepool/report_abc123.pdf",
	)
	require.NoError(t, err)
	_, err = conn.Exec(
		"INSERT INTO files (file_id, url, path) VALUES (?, ?, ?)",
		"extensionless_def456", "https://school.example/blob", "sites/site1/filepool/extensionless_def456",
	)
	require.NoError(t, err)
	_, err = conn.Exec(
		"INSERT INTO links (file_id, component, component_id) VALUES (?, ?, ?)",
		"report_abc123.pdf", "mod_resource", "42",
	)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	db, err := OpenSite(dbPath)
	require.NoError(t, err)
	defer db.Close()

	// The extension moved out of the id and path, and links follow.
	got, err := db.GetFile("report_abc123")
	require.NoError(t, err)
	require.Equal(t, "pdf", got.Extension)
	require.Equal(t, "sites/site1/filepool/report_abc123", got.Path)
	require.False(t, got.Stale)

	_, err = db.GetFile("report_abc123.pdf")
	require.ErrorIs(t, err, ErrNotFound)

	links, err := db.GetLinksForFile("report_abc123")
	require.NoError(t, err)
	require.Len(t, links, 1)

	// Files without a recognizable extension are invalidated instead.
	got, err = db.GetFile("extensionless_def456")
	require.NoError(t, err)
	require.True(t, got.Stale)
	require.Empty(t, got.Extension)
}

func TestMigrationRunsOnce(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "site.db")

	db, err := OpenSite(dbPath)
	require.NoError(t, err)

	entry := fileEntry("file1")
	require.NoError(t, db.UpsertFile(entry))
	require.NoError(t, db.Close())

	// Reopening must not touch migrated rows.
	db, err = OpenSite(dbPath)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.GetFile("file1")
	require.NoError(t, err)
	require.Equal(t, entry, got)
}
