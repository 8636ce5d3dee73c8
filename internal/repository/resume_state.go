package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"scansync/internal/model"
	"scansync/pkg/log"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Runs kept in the resume document's bounded history.
const resumeHistoryLimit = 10

// ResumeStateRepository owns the content-addressed resume document. Every
// mutation is a whole-document read-modify-write serialized behind one
// mutex; callers never touch the backing file directly. Persistence
// failures are logged and the state stays in memory for the rest of the
// run.
type ResumeStateRepository interface {
	IsUploaded(path, hash string) bool
	MarkUploaded(path, hash string)
	MarkFailed(path string)
	RemoveFailed(path string)
	// FailedFiles drops entries whose file no longer exists on disk and
	// persists the pruned set.
	FailedFiles() []string
	UploadedFiles() map[string]string
	ClearFailed() int
	SetLastRootPath(root string)
	LastRootPath() string
	AppendHistory(rec model.SyncRunRecord)
	History() []model.SyncRunRecord
	Export(path string) error
	Import(path string) error
	Reset() error
}

func NewResumeStateRepository(conf *viper.Viper, logger *log.Logger) ResumeStateRepository {
	r := &resumeStateRepository{
		path:   conf.GetString("sync.state_file"),
		logger: logger,
		doc:    model.NewResumeStateDocument(),
	}
	r.load()
	return r
}

type resumeStateRepository struct {
	mu     sync.Mutex
	path   string
	logger *log.Logger
	doc    *model.ResumeStateDocument
}

func (r *resumeStateRepository) load() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("resume state unreadable, starting empty", zap.String("path", r.path), zap.Error(err))
		}
		return
	}
	doc := model.NewResumeStateDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		r.logger.Warn("resume state corrupt, starting empty", zap.String("path", r.path), zap.Error(err))
		return
	}
	if doc.UploadedFiles == nil {
		doc.UploadedFiles = map[string]string{}
	}
	r.doc = doc
}

// save persists the whole document. Caller holds the mutex.
func (r *resumeStateRepository) save() {
	data, err := json.MarshalIndent(r.doc, "", "  ")
	if err != nil {
		r.logger.Warn("resume state marshal failed", zap.Error(err))
		return
	}
	if dir := filepath.Dir(r.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			r.logger.Warn("resume state dir create failed", zap.Error(err))
			return
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		r.logger.Warn("resume state write failed, continuing in memory", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, r.path); err != nil {
		r.logger.Warn("resume state rename failed, continuing in memory", zap.Error(err))
	}
}

func (r *resumeStateRepository) IsUploaded(path, hash string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.doc.UploadedFiles[path]
	return ok && hash != "" && stored == hash
}

func (r *resumeStateRepository) MarkUploaded(path, hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.UploadedFiles[path] = hash
	r.doc.FailedFiles = slice.Filter(r.doc.FailedFiles, func(_ int, p string) bool { return p != path })
	r.save()
}

func (r *resumeStateRepository) MarkFailed(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slice.Contain(r.doc.FailedFiles, path) {
		r.doc.FailedFiles = append(r.doc.FailedFiles, path)
	}
	r.save()
}

func (r *resumeStateRepository) RemoveFailed(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.FailedFiles = slice.Filter(r.doc.FailedFiles, func(_ int, p string) bool { return p != path })
	r.save()
}

func (r *resumeStateRepository) FailedFiles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := make([]string, 0, len(r.doc.FailedFiles))
	pruned := false
	for _, p := range r.doc.FailedFiles {
		if _, err := os.Stat(p); err == nil {
			kept = append(kept, p)
		} else {
			pruned = true
		}
	}
	if pruned {
		r.doc.FailedFiles = kept
		r.save()
	}
	out := make([]string, len(kept))
	copy(out, kept)
	return out
}

func (r *resumeStateRepository) UploadedFiles() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.doc.UploadedFiles))
	for k, v := range r.doc.UploadedFiles {
		out[k] = v
	}
	return out
}

func (r *resumeStateRepository) ClearFailed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.doc.FailedFiles)
	r.doc.FailedFiles = []string{}
	r.save()
	return n
}

func (r *resumeStateRepository) SetLastRootPath(root string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.LastRootPath = root
	r.save()
}

func (r *resumeStateRepository) LastRootPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.LastRootPath
}

func (r *resumeStateRepository) AppendHistory(rec model.SyncRunRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.History = append(r.doc.History, rec)
	if len(r.doc.History) > resumeHistoryLimit {
		r.doc.History = r.doc.History[len(r.doc.History)-resumeHistoryLimit:]
	}
	r.save()
}

func (r *resumeStateRepository) History() []model.SyncRunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.SyncRunRecord, len(r.doc.History))
	copy(out, r.doc.History)
	return out
}

func (r *resumeStateRepository) Export(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := json.MarshalIndent(r.doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (r *resumeStateRepository) Import(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc := model.NewResumeStateDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return err
	}
	if doc.UploadedFiles == nil {
		doc.UploadedFiles = map[string]string{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc = doc
	r.save()
	return nil
}

func (r *resumeStateRepository) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc = model.NewResumeStateDocument()
	r.save()
	return nil
}
