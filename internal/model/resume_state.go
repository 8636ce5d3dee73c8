package model

// SyncRunRecord is one bounded-history entry in the resume state document.
type SyncRunRecord struct {
	Timestamp string `json:"timestamp"`
	RootPath  string `json:"root_path"`
	State     string `json:"state"`
	Total     int    `json:"total"`
	Uploaded  int    `json:"uploaded"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// ResumeStateDocument is the whole-file JSON persisted between runs.
// uploadedFiles maps local path to content hash; a changed hash means new
// content, never a duplicate.
type ResumeStateDocument struct {
	UploadedFiles map[string]string `json:"uploadedFiles"`
	FailedFiles   []string          `json:"failedFiles"`
	LastRootPath  string            `json:"lastRootPath"`
	History       []SyncRunRecord   `json:"history"`
}

func NewResumeStateDocument() *ResumeStateDocument {
	return &ResumeStateDocument{
		UploadedFiles: map[string]string{},
		FailedFiles:   []string{},
		History:       []SyncRunRecord{},
	}
}
