package v1

// StartSyncRequest kicks off a run over root_path. Config overrides, when
// present, patch the active sync configuration before the run starts.
type StartSyncRequest struct {
	RootPath string             `json:"root_path" binding:"required" example:"/data/Gikamura"`
	Config   *SyncConfigPayload `json:"config,omitempty"`
}

// SyncConfigPayload is the mutable subset of the sync configuration.
// Pointer fields distinguish "not provided" from zero values.
type SyncConfigPayload struct {
	MaxConcurrentUploads *int  `json:"max_concurrent_uploads,omitempty" example:"3"`
	RetryAttempts        *int  `json:"retry_attempts,omitempty" example:"3"`
	TimeoutSeconds       *int  `json:"timeout_seconds,omitempty" example:"30"`
	VerifyIntegrity      *bool `json:"verify_integrity,omitempty"`
	ResumeUploads        *bool `json:"resume_uploads,omitempty"`
}

type SyncConfigResponseData struct {
	MaxConcurrentUploads int    `json:"max_concurrent_uploads"`
	RetryAttempts        int    `json:"retry_attempts"`
	TimeoutSeconds       int    `json:"timeout_seconds"`
	VerifyIntegrity      bool   `json:"verify_integrity"`
	ResumeUploads        bool   `json:"resume_uploads"`
	Aggregator           string `json:"aggregator"`
	HasToken             bool   `json:"has_token"`
}

type StartSyncResponseData struct {
	RunId    string `json:"runId"`
	RootPath string `json:"root_path"`
	Status   string `json:"status"`
}

// RunStatsData mirrors the orchestrator's live counters.
type RunStatsData struct {
	TotalFiles     int     `json:"total_files"`
	Uploaded       int     `json:"uploaded"`
	Skipped        int     `json:"skipped"`
	Failed         int     `json:"failed"`
	Processed      int     `json:"processed"`
	TotalBytes     int64   `json:"total_bytes"`
	UploadedBytes  int64   `json:"uploaded_bytes"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	EtaSeconds     float64 `json:"eta_seconds"`
	ThroughputBps  float64 `json:"throughput_bps"`
}

type SyncStatusResponseData struct {
	IsRunning        bool         `json:"is_running"`
	State            string       `json:"state"`
	CurrentOperation string       `json:"current_operation"`
	StoppedEarly     bool         `json:"stopped_early"`
	Stats            RunStatsData `json:"stats"`
}
type SyncStatusResponse struct {
	Response
	Data SyncStatusResponseData
}

type SyncStatsResponseData struct {
	CurrentStats         RunStatsData `json:"current_stats"`
	FailedFilesCount     int          `json:"failed_files_count"`
	SuccessfulFilesCount int          `json:"successful_files_count"`
	LastRootPath         string       `json:"last_root_path"`
}

type RetryFailedResponseData struct {
	FailedFilesCount int    `json:"failed_files_count"`
	Status           string `json:"status"`
}

type SyncRunData struct {
	RunId         string `json:"runId"`
	RootPath      string `json:"root_path"`
	State         string `json:"state"`
	TotalFiles    int    `json:"total_files"`
	Uploaded      int    `json:"uploaded"`
	Skipped       int    `json:"skipped"`
	Failed        int    `json:"failed"`
	UploadedBytes int64  `json:"uploaded_bytes"`
	StoppedEarly  bool   `json:"stopped_early"`
	ErrorMessage  string `json:"error_message,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time,omitempty"`
}

type SyncHistoryResponseData struct {
	History []SyncRunData `json:"history"`
	Count   int           `json:"count"`
}

type ClearStateRequest struct {
	Type string `json:"type" binding:"omitempty,oneof=all failed cache" example:"all"`
}
type ClearStateResponseData struct {
	Cleared []string `json:"cleared"`
}

// ProgressEvent is pushed over the progress websocket after every completed
// file unit and on phase changes.
type ProgressEvent struct {
	State     string       `json:"state"`
	Completed int          `json:"completed"`
	Total     int          `json:"total"`
	Stats     RunStatsData `json:"stats"`
}
