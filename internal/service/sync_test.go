package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	v1 "scansync/api/v1"
	"scansync/internal/model"
	"scansync/internal/repository"
	"scansync/pkg/buzzheavier"
	"scansync/pkg/sid"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

type syncEnv struct {
	remote *fakeRemote
	svc    SyncService
	resume repository.ResumeStateRepository
	root   string
}

func newSyncEnv(t *testing.T) *syncEnv {
	t.Helper()

	remote := newFakeRemote()
	t.Cleanup(remote.Close)

	dir := t.TempDir()
	conf := viper.New()
	conf.Set("data.db.user.dsn", filepath.Join(dir, "scansync.db"))
	conf.Set("sync.state_file", filepath.Join(dir, "sync_state.json"))
	conf.Set("sync.logs_dir", filepath.Join(dir, "_LOGS"))
	conf.Set("sync.create_delay_ms", 1)
	conf.Set("buzzheavier.root_id", "root")
	conf.Set("buzzheavier.token", "test-token")

	logger := testLogger()
	db := repository.NewDB(conf, logger)
	repo := repository.NewRepository(logger, db)
	base := NewService(repository.NewTransaction(repo), logger, sid.NewSid(), nil)

	holder := NewConfigHolder(conf)
	client := remote.client()
	auth := buzzheavier.NewAuthManager(client, time.Minute)

	resume := repository.NewResumeStateRepository(conf, logger)
	seriesLog := repository.NewSeriesLogRepository(conf, logger)
	syncRuns := repository.NewSyncRunRepository(repo)

	hierarchy := NewHierarchyService(base, holder, logger)
	scanner := NewScannerService(base, hierarchy, holder, logger)
	validator := NewValidatorService(base, holder, logger)
	provisioner := NewProvisionerService(base, client, holder, logger)
	uploader := NewUploaderService(base, client, provisioner, resume, seriesLog, holder, logger)

	svc := NewSyncService(
		base, conf, holder, client, auth,
		scanner, validator, hierarchy, NewConverter(),
		provisioner, uploader,
		syncRuns, resume, seriesLog, logger,
	)

	root := filepath.Join(dir, "Gikamura")
	return &syncEnv{remote: remote, svc: svc, resume: resume, root: root}
}

// writePage creates a file big enough to clear the minimum size filter.
// The path is mixed into the content so no two pages hash alike.
func (e *syncEnv) writePage(t *testing.T, parts ...string) string {
	t.Helper()
	p := filepath.Join(append([]string{e.root}, parts...)...)
	assert.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	assert.NoError(t, os.WriteFile(p, []byte(p+strings.Repeat("x", 2048)), 0o644))
	return p
}

func (e *syncEnv) waitForIdle(t *testing.T) *v1.SyncStatusResponseData {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		status := e.svc.Status()
		if !status.IsRunning && status.State != model.SyncStateIdle {
			return status
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("sync run did not finish in time")
	return nil
}

func TestSyncRunCompletes(t *testing.T) {
	env := newSyncEnv(t)
	env.writePage(t, "ScanA", "SerieB", "Cap 01", "p1.jpg")
	env.writePage(t, "ScanA", "SerieB", "Cap 01", "p2.jpg")

	data, err := env.svc.StartSync(context.Background(), &v1.StartSyncRequest{RootPath: env.root})
	assert.NoError(t, err)
	assert.NotEmpty(t, data.RunId)

	status := env.waitForIdle(t)
	assert.Equal(t, model.SyncStateCompleted, status.State)
	assert.Equal(t, 2, status.Stats.Uploaded)
	assert.Equal(t, 0, status.Stats.Failed)
	assert.False(t, status.StoppedEarly)

	dirID, ok := env.remote.lookup("Gikamura", "ScanA", "SerieB", "Cap 01")
	assert.True(t, ok)
	_, ok = env.remote.fileSize(dirID, "p1.jpg")
	assert.True(t, ok)

	history, err := env.svc.History(context.Background(), 10)
	assert.NoError(t, err)
	assert.Equal(t, 1, history.Count)
	assert.Equal(t, model.SyncStateCompleted, history.History[0].State)
	assert.Equal(t, 2, history.History[0].Uploaded)

	stats := env.svc.Stats()
	assert.Equal(t, 2, stats.SuccessfulFilesCount)
	assert.Equal(t, env.root, stats.LastRootPath)
}

func TestSyncSecondRunSkipsCompletedSeries(t *testing.T) {
	env := newSyncEnv(t)
	env.writePage(t, "ScanA", "SerieB", "Cap 01", "p1.jpg")
	env.writePage(t, "ScanA", "SerieB", "Cap 01", "p2.jpg")

	_, err := env.svc.StartSync(context.Background(), &v1.StartSyncRequest{RootPath: env.root})
	assert.NoError(t, err)
	env.waitForIdle(t)
	puts := env.remote.putCount()

	_, err = env.svc.StartSync(context.Background(), &v1.StartSyncRequest{RootPath: env.root})
	assert.NoError(t, err)
	status := env.waitForIdle(t)

	// The series journal says completo, so the whole series is skipped
	// without touching the remote.
	assert.Equal(t, model.SyncStateCompleted, status.State)
	assert.Equal(t, 0, status.Stats.Uploaded)
	assert.Equal(t, 2, status.Stats.Skipped)
	assert.Equal(t, puts, env.remote.putCount())
}

func TestSyncStartRejectsMissingRoot(t *testing.T) {
	env := newSyncEnv(t)

	_, err := env.svc.StartSync(context.Background(), &v1.StartSyncRequest{
		RootPath: filepath.Join(env.root, "missing"),
	})
	assert.ErrorIs(t, err, v1.ErrInvalidRootPath)
}

func TestSyncStartConflictsWhileRunning(t *testing.T) {
	env := newSyncEnv(t)
	env.writePage(t, "ScanA", "SerieB", "Cap 01", "p1.jpg")

	inner := env.svc.(*syncService)
	inner.mu.Lock()
	inner.running = true
	inner.mu.Unlock()

	_, err := env.svc.StartSync(context.Background(), &v1.StartSyncRequest{RootPath: env.root})
	assert.ErrorIs(t, err, v1.ErrSyncAlreadyRunning)

	inner.mu.Lock()
	inner.running = false
	inner.mu.Unlock()
}

func TestSyncStopWithoutRun(t *testing.T) {
	env := newSyncEnv(t)
	assert.ErrorIs(t, env.svc.StopSync(), v1.ErrNoSyncRunning)
}

func TestSyncRetryFailedWithEmptySet(t *testing.T) {
	env := newSyncEnv(t)

	data, started, err := env.svc.RetryFailed(context.Background())
	assert.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, 0, data.FailedFilesCount)
	assert.Equal(t, "no_failed_files", data.Status)
}

func TestSyncRunFailsWithoutValidFiles(t *testing.T) {
	env := newSyncEnv(t)
	// Present but unusable: wrong extension and below minimum size.
	p := filepath.Join(env.root, "ScanA", "SerieB", "notes.txt")
	assert.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	assert.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	_, err := env.svc.StartSync(context.Background(), &v1.StartSyncRequest{RootPath: env.root})
	assert.NoError(t, err)

	status := env.waitForIdle(t)
	assert.Equal(t, model.SyncStateFailed, status.State)
}

func TestSyncRunFailsOnUndersizedFile(t *testing.T) {
	env := newSyncEnv(t)
	env.writePage(t, "ScanA", "SerieB", "Cap 01", "p1.jpg")
	// One bad file fails the whole run; nothing is uploaded.
	tiny := filepath.Join(env.root, "ScanA", "SerieB", "Cap 01", "tiny.jpg")
	assert.NoError(t, os.WriteFile(tiny, []byte("x"), 0o644))

	_, err := env.svc.StartSync(context.Background(), &v1.StartSyncRequest{RootPath: env.root})
	assert.NoError(t, err)

	status := env.waitForIdle(t)
	assert.Equal(t, model.SyncStateFailed, status.State)
	assert.Contains(t, status.CurrentOperation, "validation rejected")
	assert.Equal(t, 0, env.remote.putCount())
}

func TestSyncStopTakesEffectOnlyWhileUploading(t *testing.T) {
	env := newSyncEnv(t)
	env.writePage(t, "ScanA", "SerieB", "Cap 01", "p1.jpg")
	env.writePage(t, "ScanA", "SerieB", "Cap 01", "p2.jpg")

	workers := 1
	_, err := env.svc.UpdateConfig(&v1.SyncConfigPayload{MaxConcurrentUploads: &workers})
	assert.NoError(t, err)

	release, started := env.remote.gatePuts()

	_, err = env.svc.StartSync(context.Background(), &v1.StartSyncRequest{RootPath: env.root})
	assert.NoError(t, err)

	// The first transfer is in flight, so the run is in its upload phase.
	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("no transfer reached the remote")
	}
	assert.NoError(t, env.svc.StopSync())
	release()

	status := env.waitForIdle(t)
	assert.Equal(t, model.SyncStateStopped, status.State)
	assert.True(t, status.StoppedEarly)

	// The in-flight transfer finished; the queued one never started.
	assert.Equal(t, 1, status.Stats.Uploaded)
	assert.Equal(t, 1, env.remote.putCount())

	// The preparatory phases all completed before the stop landed.
	_, ok := env.remote.lookup("Gikamura", "ScanA", "SerieB", "Cap 01")
	assert.True(t, ok)
}

func TestSyncRunFailsOnAuthRejection(t *testing.T) {
	env := newSyncEnv(t)
	env.writePage(t, "ScanA", "SerieB", "Cap 01", "p1.jpg")
	env.remote.rejectAuth = true

	_, err := env.svc.StartSync(context.Background(), &v1.StartSyncRequest{RootPath: env.root})
	assert.NoError(t, err)

	status := env.waitForIdle(t)
	assert.Equal(t, model.SyncStateFailed, status.State)
	assert.Equal(t, 0, env.remote.putCount())
}

func TestSyncClearState(t *testing.T) {
	env := newSyncEnv(t)

	failed := env.writePage(t, "ScanA", "SerieB", "Cap 01", "p1.jpg")
	env.resume.MarkFailed(failed)

	_, err := env.svc.ClearState("bogus")
	assert.ErrorIs(t, err, v1.ErrInvalidClearType)

	// An active run blocks clearing entirely.
	inner := env.svc.(*syncService)
	inner.mu.Lock()
	inner.running = true
	inner.mu.Unlock()
	_, err = env.svc.ClearState("failed")
	assert.ErrorIs(t, err, v1.ErrSyncAlreadyRunning)
	assert.NotEmpty(t, env.resume.FailedFiles())
	inner.mu.Lock()
	inner.running = false
	inner.mu.Unlock()

	data, err := env.svc.ClearState("failed")
	assert.NoError(t, err)
	assert.Equal(t, []string{"failed_files"}, data.Cleared)
	assert.Empty(t, env.resume.FailedFiles())
}

func TestSyncConfigRoundTrip(t *testing.T) {
	env := newSyncEnv(t)

	conf := env.svc.GetConfig()
	assert.Equal(t, 3, conf.MaxConcurrentUploads)
	assert.True(t, conf.HasToken)

	workers := 5
	updated, err := env.svc.UpdateConfig(&v1.SyncConfigPayload{MaxConcurrentUploads: &workers})
	assert.NoError(t, err)
	assert.Equal(t, 5, updated.MaxConcurrentUploads)

	bad := 0
	_, err = env.svc.UpdateConfig(&v1.SyncConfigPayload{MaxConcurrentUploads: &bad})
	assert.Error(t, err)
	assert.Equal(t, 5, env.svc.GetConfig().MaxConcurrentUploads)
}

func TestSyncProgressEventsReachSubscribers(t *testing.T) {
	env := newSyncEnv(t)
	env.writePage(t, "ScanA", "SerieB", "Cap 01", "p1.jpg")

	events, cancel := env.svc.Subscribe()
	defer cancel()

	_, err := env.svc.StartSync(context.Background(), &v1.StartSyncRequest{RootPath: env.root})
	assert.NoError(t, err)
	env.waitForIdle(t)

	var states []string
	for {
		select {
		case event := <-events:
			states = append(states, event.State)
			if event.State == model.SyncStateCompleted {
				assert.Equal(t, 1, event.Stats.Uploaded)
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("terminal progress event not received, saw %v", states)
		}
	}
}
