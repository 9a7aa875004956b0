package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"filepool/pkg/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func queueEntry(siteID, fileID string, priority int, added int64) *models.QueueEntry {
	return &models.QueueEntry{
		SiteID:   siteID,
		FileID:   fileID,
		URL:      "https://school.example/file/" + fileID,
		Priority: priority,
		Added:    added,
	}
}

func TestQueueEntryRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	entry := &models.QueueEntry{
		SiteID:         "site1",
		FileID:         "file1",
		URL:            "https://school.example/file.pdf",
		Priority:       10,
		Revision:       3,
		TimeModified:   100,
		IsExternalFile: true,
		RepositoryType: "dropbox",
		Links: []models.FileLink{
			{FileID: "file1", Component: "mod_resource", ComponentID: "42"},
		},
		Added: 1000,
	}

	require.NoError(t, db.InsertQueueEntry(entry))

	got, err := db.GetQueueEntry("site1", "file1")
	require.NoError(t, err)
	require.Equal(t, entry, got)
}

func TestGetQueueEntryNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetQueueEntry("site1", "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNextQueueItemOrdering(t *testing.T) {
	db := setupTestDB(t)

	// Same priority: oldest first. Higher priority always wins.
	require.NoError(t, db.InsertQueueEntry(queueEntry("site1", "old-low", 0, 100)))
	require.NoError(t, db.InsertQueueEntry(queueEntry("site1", "new-low", 0, 200)))
	require.NoError(t, db.InsertQueueEntry(queueEntry("site1", "new-high", 99, 300)))

	expected := []string{"new-high", "old-low", "new-low"}
	for _, fileID := range expected {
		entry, err := db.NextQueueItem()
		require.NoError(t, err)
		require.Equal(t, fileID, entry.FileID)
		require.NoError(t, db.DeleteQueueEntry(entry.SiteID, entry.FileID))
	}

	_, err := db.NextQueueItem()
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateQueueEntry(t *testing.T) {
	db := setupTestDB(t)

	entry := queueEntry("site1", "file1", 0, 100)
	require.NoError(t, db.InsertQueueEntry(entry))

	entry.Priority = 50
	entry.Revision = 7
	entry.Links = []models.FileLink{
		{FileID: "file1", Component: "mod_page", ComponentID: "1"},
	}
	require.NoError(t, db.UpdateQueueEntry(entry))

	got, err := db.GetQueueEntry("site1", "file1")
	require.NoError(t, err)
	require.Equal(t, 50, got.Priority)
	require.Equal(t, int64(7), got.Revision)
	require.Len(t, got.Links, 1)
	require.Equal(t, int64(100), got.Added, "added timestamp must survive updates")
}

func TestQueueIsSiteScoped(t *testing.T) {
	db := setupTestDB(t)

	// The same file id can be queued by two sites independently.
	require.NoError(t, db.InsertQueueEntry(queueEntry("site1", "file1", 0, 100)))
	require.NoError(t, db.InsertQueueEntry(queueEntry("site2", "file1", 0, 200)))

	count, err := db.CountQueueEntries()
	require.NoError(t, err)
	require.Equal(t, 2, count)

	require.NoError(t, db.DeleteQueueEntry("site1", "file1"))

	_, err = db.GetQueueEntry("site1", "file1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = db.GetQueueEntry("site2", "file1")
	require.NoError(t, err)
}
