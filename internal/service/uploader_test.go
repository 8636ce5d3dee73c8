package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"scansync/internal/model"
	"scansync/internal/repository"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

type uploaderEnv struct {
	remote      *fakeRemote
	uploader    UploaderService
	resume      repository.ResumeStateRepository
	seriesLog   repository.SeriesLogRepository
	provisioner ProvisionerService
	holder      *ConfigHolder
	stats       *StatsAggregator
	stop        atomic.Bool
}

func newUploaderEnv(t *testing.T, overrides map[string]interface{}) *uploaderEnv {
	t.Helper()

	remote := newFakeRemote()
	t.Cleanup(remote.Close)

	dir := t.TempDir()
	conf := viper.New()
	conf.Set("sync.state_file", filepath.Join(dir, "sync_state.json"))
	conf.Set("sync.logs_dir", filepath.Join(dir, "_LOGS"))
	resume := repository.NewResumeStateRepository(conf, testLogger())
	seriesLog := repository.NewSeriesLogRepository(conf, testLogger())

	holder := newTestHolder(overrides)
	client := remote.client()
	provisioner := NewProvisionerService(nil, client, holder, testLogger())
	provisioner.ResetCache("Gikamura", "root")

	return &uploaderEnv{
		remote:      remote,
		uploader:    NewUploaderService(nil, client, provisioner, resume, seriesLog, holder, testLogger()),
		resume:      resume,
		seriesLog:   seriesLog,
		provisioner: provisioner,
		holder:      holder,
		stats:       NewStatsAggregator(),
	}
}

// unitFor writes content to disk and wraps it as a pending unit.
func unitFor(t *testing.T, filename, content string) *model.FileUnit {
	t.Helper()
	local := filepath.Join(t.TempDir(), filename)
	assert.NoError(t, os.WriteFile(local, []byte(content), 0o644))

	record := &model.HierarchicalRecord{
		Aggregator: "Gikamura",
		Scan:       "ScanA",
		Series:     "SerieB",
		Chapter:    "Cap 01",
		Filename:   filename,
		LocalPath:  local,
	}
	return model.NewFileUnit(record, int64(len(content)))
}

func md5Hex(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestUploaderUploadsAndRecords(t *testing.T) {
	env := newUploaderEnv(t, nil)
	unit := unitFor(t, "p1.jpg", "page one bytes")

	env.stats.Begin(1, unit.Size)
	err := env.uploader.Run(context.Background(), []*model.FileUnit{unit}, env.stats, &env.stop, nil)
	assert.NoError(t, err)

	assert.Equal(t, model.FileStatusUploaded, unit.Status)
	assert.Equal(t, 1, env.remote.putCount())

	dirID, ok := env.remote.lookup("ScanA", "SerieB", "Cap 01")
	assert.True(t, ok)
	size, ok := env.remote.fileSize(dirID, "p1.jpg")
	assert.True(t, ok)
	assert.Equal(t, unit.Size, size)

	assert.True(t, env.resume.IsUploaded(unit.Record.LocalPath, md5Hex("page one bytes")))
	doc := env.seriesLog.Get("Gikamura", "ScanA", "SerieB")
	assert.NotNil(t, doc)
	assert.Equal(t, 1, doc.Estatisticas.Sucessos)

	st := env.stats.Snapshot()
	assert.Equal(t, 1, st.Uploaded)
	assert.Equal(t, unit.Size, st.UploadedBytes)
}

func TestUploaderSkipsResumeStoreHit(t *testing.T) {
	env := newUploaderEnv(t, nil)
	unit := unitFor(t, "p1.jpg", "unchanged content")
	env.resume.MarkUploaded(unit.Record.LocalPath, md5Hex("unchanged content"))

	env.stats.Begin(1, unit.Size)
	err := env.uploader.Run(context.Background(), []*model.FileUnit{unit}, env.stats, &env.stop, nil)
	assert.NoError(t, err)

	assert.Equal(t, model.FileStatusSkipped, unit.Status)
	assert.Equal(t, 0, env.remote.putCount())
	assert.Equal(t, 1, env.stats.Snapshot().Skipped)

	doc := env.seriesLog.Get("Gikamura", "ScanA", "SerieB")
	assert.Equal(t, 1, doc.Estatisticas.Pulados)
}

func TestUploaderReuploadsChangedContent(t *testing.T) {
	env := newUploaderEnv(t, nil)
	unit := unitFor(t, "p1.jpg", "new content")
	// Same path, different hash: the resume entry does not apply.
	env.resume.MarkUploaded(unit.Record.LocalPath, md5Hex("old content"))

	env.stats.Begin(1, unit.Size)
	err := env.uploader.Run(context.Background(), []*model.FileUnit{unit}, env.stats, &env.stop, nil)
	assert.NoError(t, err)

	assert.Equal(t, model.FileStatusUploaded, unit.Status)
	assert.Equal(t, 1, env.remote.putCount())
	assert.True(t, env.resume.IsUploaded(unit.Record.LocalPath, md5Hex("new content")))
}

func TestUploaderSkipsRemoteExisting(t *testing.T) {
	env := newUploaderEnv(t, nil)
	unit := unitFor(t, "p1.jpg", "already there")

	dirID, err := env.provisioner.EnsureDirectory(context.Background(), unit.Record)
	assert.NoError(t, err)
	env.remote.seedFile(dirID, "p1.jpg", unit.Size)

	env.stats.Begin(1, unit.Size)
	err = env.uploader.Run(context.Background(), []*model.FileUnit{unit}, env.stats, &env.stop, nil)
	assert.NoError(t, err)

	assert.Equal(t, model.FileStatusSkipped, unit.Status)
	assert.Equal(t, 0, env.remote.putCount())
	// The remote copy now counts as uploaded for future resumes.
	assert.True(t, env.resume.IsUploaded(unit.Record.LocalPath, md5Hex("already there")))
}

func TestUploaderRetriesTransientFailure(t *testing.T) {
	env := newUploaderEnv(t, nil)
	env.remote.failPuts = 1
	unit := unitFor(t, "p1.jpg", "flaky network")

	env.stats.Begin(1, unit.Size)
	err := env.uploader.Run(context.Background(), []*model.FileUnit{unit}, env.stats, &env.stop, nil)
	assert.NoError(t, err)

	assert.Equal(t, model.FileStatusUploaded, unit.Status)
	assert.Equal(t, 2, unit.Attempts)
	assert.Equal(t, 2, env.remote.putCount())
}

func TestUploaderMarksFailureAfterExhaustion(t *testing.T) {
	env := newUploaderEnv(t, map[string]interface{}{"sync.retry_attempts": 1})
	env.remote.failPuts = 10
	unit := unitFor(t, "p1.jpg", "doomed")

	env.stats.Begin(1, unit.Size)
	err := env.uploader.Run(context.Background(), []*model.FileUnit{unit}, env.stats, &env.stop, nil)
	assert.NoError(t, err)

	assert.Equal(t, model.FileStatusFailed, unit.Status)
	assert.Contains(t, env.resume.FailedFiles(), unit.Record.LocalPath)
	assert.Equal(t, 1, env.stats.Snapshot().Failed)

	doc := env.seriesLog.Get("Gikamura", "ScanA", "SerieB")
	assert.Equal(t, 1, doc.Estatisticas.Falhas)
}

func TestUploaderAbortsOnAuthRejection(t *testing.T) {
	env := newUploaderEnv(t, nil)
	env.remote.rejectAuth = true
	unit := unitFor(t, "p1.jpg", "rejected")

	env.stats.Begin(1, unit.Size)
	err := env.uploader.Run(context.Background(), []*model.FileUnit{unit}, env.stats, &env.stop, nil)
	assert.Error(t, err)
	assert.True(t, env.stop.Load())
}

func TestUploaderHonorsStopFlag(t *testing.T) {
	env := newUploaderEnv(t, nil)
	unit := unitFor(t, "p1.jpg", "never sent")
	env.stop.Store(true)

	env.stats.Begin(1, unit.Size)
	err := env.uploader.Run(context.Background(), []*model.FileUnit{unit}, env.stats, &env.stop, nil)
	assert.NoError(t, err)

	assert.Equal(t, model.FileStatusPending, unit.Status)
	assert.Equal(t, 0, env.remote.putCount())
}
