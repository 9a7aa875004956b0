package filepool

import (
	"filepool/internal/fileid"
	"filepool/pkg/models"
)

// RevisionFromFileList derives the revision of a file set: the highest
// revision any of its URLs carries.
func RevisionFromFileList(files []models.RemoteFileRef) int64 {
	var revision int64
	for _, file := range files {
		if r := fileid.RevisionFromURL(file.URL); r > revision {
			revision = r
		}
	}

	return revision
}

// TimemodifiedFromFileList derives the modification time of a file set: the
// newest timemodified among its files.
func TimemodifiedFromFileList(files []models.RemoteFileRef) int64 {
	var timemodified int64
	for _, file := range files {
		if file.TimeModified > timemodified {
			timemodified = file.TimeModified
		}
	}

	return timemodified
}
