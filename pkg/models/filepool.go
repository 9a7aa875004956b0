// Package models defines the data structures used throughout the application
package models

// DownloadStatus represents the download state of a file or package
type DownloadStatus string

const (
	StatusNotDownloadable DownloadStatus = "notdownloadable"
	StatusNotDownloaded   DownloadStatus = "notdownloaded"
	StatusDownloading     DownloadStatus = "downloading"
	StatusDownloaded      DownloadStatus = "downloaded"
	StatusOutdated        DownloadStatus = "outdated"
)

// DeterminePackagesStatus combines the rolled-up status of a list of packages
// with the status of one more package and returns the new rolled-up status.
// It is a strict left-fold: feed it package statuses one at a time, starting
// from the zero value (empty status).
//
// The status of a list of packages is:
//   - not-downloaded if at least one package is not downloaded.
//   - downloaded if all downloadable packages are downloaded.
//   - downloading if all downloadable packages are downloading or downloaded,
//     with at least one downloading.
//   - outdated if there are no not-downloaded packages and at least one is
//     outdated.
//   - not-downloadable if there are no downloadable packages at all.
func DeterminePackagesStatus(current, packageStatus DownloadStatus) DownloadStatus {
	if current == "" {
		current = StatusNotDownloadable
	}

	switch {
	case packageStatus == StatusNotDownloaded:
		// One package not downloaded dominates everything.
		return StatusNotDownloaded
	case packageStatus == StatusDownloaded && current == StatusNotDownloadable:
		return StatusDownloaded
	case packageStatus == StatusDownloading &&
		(current == StatusNotDownloadable || current == StatusDownloaded):
		return StatusDownloading
	case packageStatus == StatusOutdated && current != StatusNotDownloaded:
		return StatusOutdated
	}

	return current
}

// FileEntry is one downloaded file in the pool, keyed by its derived file
// identifier and scoped to a site. Path excludes the extension; the extension
// is stored separately because early schema versions embedded it in the
// file identifier.
type FileEntry struct {
	FileID         string `json:"file_id" db:"file_id"`
	URL            string `json:"url" db:"url"`
	Revision       int64  `json:"revision" db:"revision"`
	TimeModified   int64  `json:"timemodified" db:"timemodified"`
	Stale          bool   `json:"stale" db:"stale"`
	DownloadTime   int64  `json:"download_time" db:"download_time"`
	Path           string `json:"path" db:"path"`
	Extension      string `json:"extension" db:"extension"`
	IsExternalFile bool   `json:"is_external_file" db:"is_external_file"`
	RepositoryType string `json:"repository_type" db:"repository_type"`
}

// IsOutdated reports whether the entry must be re-downloaded when requested
// with the supplied revision and timemodified values.
func (e *FileEntry) IsOutdated(revision, timemodified int64) bool {
	return e.Stale || revision > e.Revision || timemodified > e.TimeModified
}

// FileLink records that a logical owner (component, componentId) references a
// file. Links allow bulk invalidation or deletion of a component's files
// without touching files shared by other components.
type FileLink struct {
	FileID      string `json:"file_id" db:"file_id"`
	Component   string `json:"component" db:"component"`
	ComponentID string `json:"component_id" db:"component_id"`
}

// NormalizeComponentID maps an absent component ID to the stored placeholder
// so (component, componentId) keys stay stable.
func NormalizeComponentID(componentID string) string {
	if componentID == "" {
		return "-1"
	}

	return componentID
}

// QueueEntry is one pending download. The queue is shared across sites;
// (SiteID, FileID) is the primary key, so re-enqueuing the same file merges
// priority and links instead of duplicating the row.
type QueueEntry struct {
	SiteID         string     `json:"site_id" db:"site_id"`
	FileID         string     `json:"file_id" db:"file_id"`
	URL            string     `json:"url" db:"url"`
	Priority       int        `json:"priority" db:"priority"`
	Revision       int64      `json:"revision" db:"revision"`
	TimeModified   int64      `json:"timemodified" db:"timemodified"`
	Path           string     `json:"path" db:"path"`
	IsExternalFile bool       `json:"is_external_file" db:"is_external_file"`
	RepositoryType string     `json:"repository_type" db:"repository_type"`
	Links          []FileLink `json:"links" db:"links"`
	Added          int64      `json:"added" db:"added"`
}

// PackageEntry is the status record of a named file set belonging to a
// (component, componentId) pair. Previous holds the status to roll back to if
// a downloading transition fails.
type PackageEntry struct {
	ID                   string         `json:"id" db:"id"`
	Component            string         `json:"component" db:"component"`
	ComponentID          string         `json:"component_id" db:"component_id"`
	Status               DownloadStatus `json:"status" db:"status"`
	Previous             DownloadStatus `json:"previous" db:"previous"`
	Updated              int64          `json:"updated" db:"updated"`
	DownloadTime         int64          `json:"download_time" db:"download_time"`
	PreviousDownloadTime int64          `json:"previous_download_time" db:"previous_download_time"`
	Extra                string         `json:"extra" db:"extra"`
}

// FileRef is a closed set of file references: a file known by its remote URL
// or a file already on disk. Callers type-switch instead of probing fields.
type FileRef interface {
	isFileRef()
}

// RemoteFileRef describes a server-side file to download.
type RemoteFileRef struct {
	URL            string `json:"url"`
	Filename       string `json:"filename"`
	Filepath       string `json:"filepath"`
	Filesize       int64  `json:"filesize"`
	TimeModified   int64  `json:"timemodified"`
	IsExternalFile bool   `json:"is_external_file"`
	RepositoryType string `json:"repository_type"`
}

func (RemoteFileRef) isFileRef() {}

// LocalFileRef describes a file already present in the pool.
type LocalFileRef struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

func (LocalFileRef) isFileRef() {}

// Progress reports the byte progress of a single transfer. Total is -1 when
// the server did not announce a length.
type Progress struct {
	Loaded int64
	Total  int64
}

// ProgressFunc receives transfer progress updates.
type ProgressFunc func(Progress)

// PackageProgress aggregates the progress of the files of a package download,
// weighted by bytes loaded across files.
type PackageProgress struct {
	Loaded       int64
	FileProgress Progress
}

// PackageProgressFunc receives aggregated package progress updates.
type PackageProgressFunc func(PackageProgress)
