package model

import "fmt"

// FileUnit status constants
const (
	FileStatusPending   = "pending"
	FileStatusUploading = "uploading"
	FileStatusUploaded  = "uploaded"
	FileStatusFailed    = "failed"
	FileStatusSkipped   = "skipped"
)

// fileTransitions enumerates the permitted status edges. A unit can fail
// before its transfer starts (hash or directory provisioning errors), so
// pending reaches failed directly. Re-entry to pending happens only by
// constructing a fresh unit from a failed path.
var fileTransitions = map[string][]string{
	FileStatusPending:   {FileStatusUploading, FileStatusSkipped, FileStatusFailed},
	FileStatusUploading: {FileStatusUploaded, FileStatusFailed},
	FileStatusUploaded:  {},
	FileStatusFailed:    {},
	FileStatusSkipped:   {},
}

// FileUnit is one file's trip through the upload pipeline.
type FileUnit struct {
	Record    *HierarchicalRecord
	Size      int64
	Hash      string
	Status    string
	Attempts  int
	LastError string
}

func NewFileUnit(record *HierarchicalRecord, size int64) *FileUnit {
	return &FileUnit{
		Record: record,
		Size:   size,
		Status: FileStatusPending,
	}
}

// Transition moves the unit to the next status, rejecting edges outside
// the monotonic graph above. Terminal statuses never move again.
func (u *FileUnit) Transition(next string) error {
	for _, allowed := range fileTransitions[u.Status] {
		if allowed == next {
			u.Status = next
			return nil
		}
	}
	return fmt.Errorf("invalid file status transition %s -> %s", u.Status, next)
}

func (u *FileUnit) IsTerminal() bool {
	return len(fileTransitions[u.Status]) == 0
}
