package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"scansync/internal/model"
	"scansync/pkg/log"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SeriesLogRepository owns the per-series journal documents, one JSON file
// per series. Appends are read-modify-write of the series' whole document,
// serialized behind one mutex. Write failures are logged; the run keeps
// going without durability for that entry.
type SeriesLogRepository interface {
	// Get returns nil when the series has no journal yet.
	Get(aggregator, scan, series string) *model.SeriesLog
	Append(record *model.HierarchicalRecord, outcome, details, hash string)
	// Status derives the coarse series state, pendente when unjournaled.
	Status(aggregator, scan, series string) string
	// LoadAll reads every journal, keyed by aggregator/scan/series.
	LoadAll() map[string]*model.SeriesLog
	Clear() error
}

func NewSeriesLogRepository(conf *viper.Viper, logger *log.Logger) SeriesLogRepository {
	return &seriesLogRepository{
		dir:    conf.GetString("sync.logs_dir"),
		logger: logger,
	}
}

type seriesLogRepository struct {
	mu     sync.Mutex
	dir    string
	logger *log.Logger
}

func seriesLogFilename(aggregator, scan, series string) string {
	name := fmt.Sprintf("%s_%s_%s.json", aggregator, scan, series)
	name = strings.ReplaceAll(name, string(os.PathSeparator), "-")
	return strings.ReplaceAll(name, "/", "-")
}

func (r *seriesLogRepository) logPath(aggregator, scan, series string) string {
	return filepath.Join(r.dir, seriesLogFilename(aggregator, scan, series))
}

// read loads one journal. Caller holds the mutex.
func (r *seriesLogRepository) read(aggregator, scan, series string) *model.SeriesLog {
	data, err := os.ReadFile(r.logPath(aggregator, scan, series))
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("series log unreadable", zap.String("series", series), zap.Error(err))
		}
		return nil
	}
	var doc model.SeriesLog
	if err := json.Unmarshal(data, &doc); err != nil {
		r.logger.Warn("series log corrupt", zap.String("series", series), zap.Error(err))
		return nil
	}
	return &doc
}

// write persists one journal. Caller holds the mutex.
func (r *seriesLogRepository) write(doc *model.SeriesLog) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.logger.Warn("series log dir create failed", zap.Error(err))
		return
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		r.logger.Warn("series log marshal failed", zap.Error(err))
		return
	}
	path := r.logPath(doc.Agregador, doc.Scan, doc.Serie)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.logger.Warn("series log write failed, continuing", zap.String("path", path), zap.Error(err))
	}
}

func (r *seriesLogRepository) Get(aggregator, scan, series string) *model.SeriesLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read(aggregator, scan, series)
}

func (r *seriesLogRepository) Append(record *model.HierarchicalRecord, outcome, details, hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.read(record.Aggregator, record.Scan, record.Series)
	if doc == nil {
		doc = model.NewSeriesLog(record.Aggregator, record.Scan, record.Series)
	}
	doc.Append(model.SeriesLogEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		Arquivo:   record.Filename,
		Status:    outcome,
		Detalhes:  details,
		Hash:      hash,
	})
	r.write(doc)
}

func (r *seriesLogRepository) Status(aggregator, scan, series string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := r.read(aggregator, scan, series)
	if doc == nil {
		return model.SeriesStatusPending
	}
	return doc.DerivedStatus()
}

func (r *seriesLogRepository) LoadAll() map[string]*model.SeriesLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := map[string]*model.SeriesLog{}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			r.logger.Warn("series log unreadable", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		var doc model.SeriesLog
		if err := json.Unmarshal(data, &doc); err != nil {
			r.logger.Warn("series log corrupt", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		key := fmt.Sprintf("%s/%s/%s", doc.Agregador, doc.Scan, doc.Serie)
		out[key] = &doc
	}
	return out
}

func (r *seriesLogRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
