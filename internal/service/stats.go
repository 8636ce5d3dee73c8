package service

import (
	"sync"
	"time"

	"scansync/internal/model"
)

// StatsAggregator keeps the live counters for one run. All methods are safe
// for concurrent workers; uploaded+skipped+failed never exceeds total.
type StatsAggregator struct {
	mu sync.Mutex

	totalFiles int
	totalBytes int64

	uploaded      int
	skipped       int
	failed        int
	uploadedBytes int64

	startTime time.Time
	endTime   time.Time
}

func NewStatsAggregator() *StatsAggregator {
	return &StatsAggregator{}
}

// Begin fixes the totals before workers start; they do not change for the
// rest of the run.
func (a *StatsAggregator) Begin(totalFiles int, totalBytes int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalFiles = totalFiles
	a.totalBytes = totalBytes
	a.uploaded = 0
	a.skipped = 0
	a.failed = 0
	a.uploadedBytes = 0
	a.startTime = time.Now()
	a.endTime = time.Time{}
}

func (a *StatsAggregator) End() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.endTime = time.Now()
}

func (a *StatsAggregator) RecordUploaded(bytes int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uploaded++
	a.uploadedBytes += bytes
}

func (a *StatsAggregator) RecordSkipped() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skipped++
}

// RecordSkippedN accounts for whole series dropped by the journal
// pre-filter in one shot.
func (a *StatsAggregator) RecordSkippedN(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skipped += n
}

func (a *StatsAggregator) RecordFailed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed++
}

func (a *StatsAggregator) Processed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.uploaded + a.skipped + a.failed
}

func (a *StatsAggregator) Snapshot() model.RunStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := model.RunStats{
		TotalFiles:    a.totalFiles,
		Uploaded:      a.uploaded,
		Skipped:       a.skipped,
		Failed:        a.failed,
		Processed:     a.uploaded + a.skipped + a.failed,
		TotalBytes:    a.totalBytes,
		UploadedBytes: a.uploadedBytes,
	}

	if a.startTime.IsZero() {
		return stats
	}
	end := a.endTime
	if end.IsZero() {
		end = time.Now()
	}
	elapsed := end.Sub(a.startTime).Seconds()
	stats.ElapsedSeconds = elapsed

	if elapsed > 0 {
		stats.ThroughputBps = float64(a.uploadedBytes) / elapsed
		if stats.Processed > 0 && stats.Processed < a.totalFiles {
			perFile := elapsed / float64(stats.Processed)
			stats.EtaSeconds = perFile * float64(a.totalFiles-stats.Processed)
		}
	}
	return stats
}
