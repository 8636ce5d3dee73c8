package model

import "time"

// SyncRun is the persisted summary of one orchestrated run.
type SyncRun struct {
	Id       int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	RunId    string `json:"run_id" gorm:"column:run_id;size:64;not null;uniqueIndex"`
	RootPath string `json:"root_path" gorm:"column:root_path;size:500;not null"`

	State         string `json:"state" gorm:"column:state;size:50;not null;default:'idle';index"`
	TotalFiles    int    `json:"total_files" gorm:"column:total_files;default:0"`
	Uploaded      int    `json:"uploaded" gorm:"column:uploaded;default:0"`
	Skipped       int    `json:"skipped" gorm:"column:skipped;default:0"`
	Failed        int    `json:"failed" gorm:"column:failed;default:0"`
	TotalBytes    int64  `json:"total_bytes" gorm:"column:total_bytes;default:0"`
	UploadedBytes int64  `json:"uploaded_bytes" gorm:"column:uploaded_bytes;default:0"`
	StoppedEarly  bool   `json:"stopped_early" gorm:"column:stopped_early;default:false"`

	ErrorMessage string `json:"error_message" gorm:"column:error_message;type:text"`

	StartTime *time.Time `json:"start_time" gorm:"column:start_time"`
	EndTime   *time.Time `json:"end_time" gorm:"column:end_time"`

	CreateTime time.Time `json:"create_time" gorm:"column:gmt_create;autoCreateTime"`
	UpdateTime time.Time `json:"update_time" gorm:"column:gmt_modified;autoUpdateTime"`
}

func (SyncRun) TableName() string {
	return "sync_run"
}

// Orchestrator states
const (
	SyncStateIdle            = "idle"
	SyncStateScanning        = "scanning"
	SyncStateValidating      = "validating"
	SyncStateCheckingStorage = "checking_storage"
	SyncStateConverting      = "converting"
	SyncStateGrouping        = "grouping"
	SyncStateUploading       = "uploading"
	SyncStateCompleted       = "completed"
	SyncStateFailed          = "failed"
	SyncStateStopped         = "stopped"
)

// RunStats is the ephemeral per-run progress snapshot.
type RunStats struct {
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
