package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	v1 "scansync/api/v1"
	"scansync/internal/model"
	"scansync/internal/repository"
	"scansync/pkg/buzzheavier"
	"scansync/pkg/log"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SyncService is the run orchestrator. At most one run is active per
// process; StartSync claims the slot synchronously and the run itself
// executes on a background goroutine.
type SyncService interface {
	StartSync(ctx context.Context, req *v1.StartSyncRequest) (*v1.StartSyncResponseData, error)
	StopSync() error
	RetryFailed(ctx context.Context) (*v1.RetryFailedResponseData, bool, error)
	Status() *v1.SyncStatusResponseData
	Stats() *v1.SyncStatsResponseData
	History(ctx context.Context, limit int) (*v1.SyncHistoryResponseData, error)
	GetConfig() *v1.SyncConfigResponseData
	UpdateConfig(p *v1.SyncConfigPayload) (*v1.SyncConfigResponseData, error)
	ClearState(clearType string) (*v1.ClearStateResponseData, error)
	Subscribe() (<-chan v1.ProgressEvent, func())
}

func NewSyncService(
	service *Service,
	conf *viper.Viper,
	holder *ConfigHolder,
	client *buzzheavier.Client,
	auth *buzzheavier.AuthManager,
	scanner ScannerService,
	validator ValidatorService,
	hierarchy HierarchyService,
	converter Converter,
	provisioner ProvisionerService,
	uploader UploaderService,
	syncRunRepo repository.SyncRunRepository,
	resumeRepo repository.ResumeStateRepository,
	seriesLogRepo repository.SeriesLogRepository,
	logger *log.Logger,
) SyncService {
	return &syncService{
		Service:       service,
		conf:          conf,
		holder:        holder,
		client:        client,
		auth:          auth,
		scanner:       scanner,
		validator:     validator,
		hierarchy:     hierarchy,
		converter:     converter,
		provisioner:   provisioner,
		uploader:      uploader,
		syncRunRepo:   syncRunRepo,
		resumeRepo:    resumeRepo,
		seriesLogRepo: seriesLogRepo,
		logger:        logger,
		state:         model.SyncStateIdle,
		stats:         NewStatsAggregator(),
		subscribers:   map[chan v1.ProgressEvent]struct{}{},
	}
}

type syncService struct {
	*Service
	conf          *viper.Viper
	holder        *ConfigHolder
	client        *buzzheavier.Client
	auth          *buzzheavier.AuthManager
	scanner       ScannerService
	validator     ValidatorService
	hierarchy     HierarchyService
	converter     Converter
	provisioner   ProvisionerService
	uploader      UploaderService
	syncRunRepo   repository.SyncRunRepository
	resumeRepo    repository.ResumeStateRepository
	seriesLogRepo repository.SeriesLogRepository
	logger        *log.Logger

	mu           sync.Mutex
	running      bool
	state        string
	currentOp    string
	stoppedEarly bool
	runID        string
	stop         atomic.Bool
	stats        *StatsAggregator

	subMu       sync.Mutex
	subscribers map[chan v1.ProgressEvent]struct{}
}

// StartSync claims the single run slot and launches the pipeline. The 409
// answer to a concurrent start happens here, before any goroutine exists.
func (s *syncService) StartSync(ctx context.Context, req *v1.StartSyncRequest) (*v1.StartSyncResponseData, error) {
	if _, err := os.Stat(req.RootPath); err != nil {
		return nil, v1.ErrInvalidRootPath
	}
	if err := s.holder.Patch(req.Config); err != nil {
		return nil, err
	}

	runID, err := s.sid.GenString()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, v1.ErrSyncAlreadyRunning
	}
	s.running = true
	s.runID = runID
	s.state = model.SyncStateScanning
	s.currentOp = "scanning"
	s.stoppedEarly = false
	s.stop.Store(false)
	s.stats = NewStatsAggregator()
	s.mu.Unlock()

	go s.runSync(runID, req.RootPath, nil)

	return &v1.StartSyncResponseData{
		RunId:    runID,
		RootPath: req.RootPath,
		Status:   "started",
	}, nil
}

// StopSync raises the cooperative flag. In-flight transfers finish; no new
// unit starts after they do.
func (s *syncService) StopSync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return v1.ErrNoSyncRunning
	}
	s.stop.Store(true)
	s.stoppedEarly = true
	return nil
}

// RetryFailed re-runs only the files recorded as failed. The bool result
// tells the handler whether a run actually started; an empty failed set is
// a successful no-op, not an error.
func (s *syncService) RetryFailed(ctx context.Context) (*v1.RetryFailedResponseData, bool, error) {
	failed := s.resumeRepo.FailedFiles()
	if len(failed) == 0 {
		return &v1.RetryFailedResponseData{FailedFilesCount: 0, Status: "no_failed_files"}, false, nil
	}

	root := s.resumeRepo.LastRootPath()
	if root == "" {
		return nil, false, v1.ErrNothingToRetry
	}

	var records []*model.HierarchicalRecord
	for _, path := range failed {
		record, err := s.hierarchy.Resolve(path, root)
		if err != nil {
			s.logger.Warn("failed file no longer resolvable", zap.String("path", path), zap.Error(err))
			s.resumeRepo.RemoveFailed(path)
			continue
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return &v1.RetryFailedResponseData{FailedFilesCount: 0, Status: "no_failed_files"}, false, nil
	}

	runID, err := s.sid.GenString()
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, false, v1.ErrSyncAlreadyRunning
	}
	s.running = true
	s.runID = runID
	s.state = model.SyncStateValidating
	s.currentOp = "retrying failed files"
	s.stoppedEarly = false
	s.stop.Store(false)
	s.stats = NewStatsAggregator()
	s.mu.Unlock()

	go s.runSync(runID, root, records)

	return &v1.RetryFailedResponseData{
		FailedFilesCount: len(records),
		Status:           "retry_started",
	}, true, nil
}

// runSync drives one run through its phases. A non-nil preset skips the
// scan and feeds the phases directly (the retry path).
func (s *syncService) runSync(runID, rootPath string, preset []*model.HierarchicalRecord) {
	ctx := context.Background()
	startTime := time.Now()

	run := &model.SyncRun{
		RunId:     runID,
		RootPath:  rootPath,
		State:     model.SyncStateScanning,
		StartTime: &startTime,
	}
	if err := s.syncRunRepo.Create(ctx, run); err != nil {
		s.logger.Warn("sync run row create failed", zap.Error(err))
	}

	var runErr error
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sync run panic", zap.String("runId", runID), zap.Any("panic", r))
			runErr = fmt.Errorf("internal error: %v", r)
		}
		s.finalize(ctx, run, runErr)
	}()

	records := preset
	if records == nil {
		s.setPhase(model.SyncStateScanning, "scanning "+rootPath)
		var err error
		records, _, err = s.scanner.FindValidFiles(rootPath)
		if err != nil {
			runErr = fmt.Errorf("scan failed: %w", err)
			return
		}
	}

	s.setPhase(model.SyncStateValidating, "validating files")
	validation := s.validator.ValidateFiles(records)
	// Validation is all-or-nothing: a single bad file fails the run before
	// anything touches the remote.
	if len(validation.Invalid) > 0 || len(validation.Errors) > 0 {
		runErr = fmt.Errorf("validation rejected %d of %d files", len(validation.Invalid), len(records))
		return
	}
	if len(validation.Valid) == 0 {
		runErr = fmt.Errorf("no valid files under %s", rootPath)
		return
	}

	s.setPhase(model.SyncStateCheckingStorage, "checking remote storage")
	account, err := s.auth.Validate(ctx)
	if err != nil {
		runErr = fmt.Errorf("remote authentication failed: %w", err)
		return
	}
	if quota, err := s.client.GetStorageQuota(ctx); err != nil {
		// Quota lookup is advisory; only a confirmed overrun is fatal.
		s.logger.Warn("storage quota lookup failed, proceeding", zap.Error(err))
	} else if quota.Available < validation.TotalSize {
		runErr = fmt.Errorf("insufficient remote storage: need %d bytes, %d available",
			validation.TotalSize, quota.Available)
		return
	}

	rootID := s.conf.GetString("buzzheavier.root_id")
	if rootID == "" {
		rootID = account.RootID
	}
	aggregator := validation.Valid[0].Aggregator
	aggID, err := s.ensureAggregatorRoot(ctx, rootID, aggregator)
	if err != nil {
		runErr = fmt.Errorf("provision aggregator %q: %w", aggregator, err)
		return
	}
	s.provisioner.ResetCache(aggregator, aggID)

	s.setPhase(model.SyncStateConverting, "converting files")
	converted, cleanup, err := s.converter.Convert(ctx, validation.Valid)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		runErr = fmt.Errorf("conversion failed: %w", err)
		return
	}

	s.setPhase(model.SyncStateGrouping, "grouping by series")
	units, cacheSkipped := s.buildWorklist(converted)

	s.stats.Begin(len(converted), validation.TotalSize)
	if cacheSkipped > 0 {
		s.stats.RecordSkippedN(cacheSkipped)
		s.logger.Info("series already complete, skipped via journal",
			zap.Int("files", cacheSkipped))
	}

	// A stop requested earlier takes effect here: the preparatory phases
	// always run to completion, only the upload loop honors the flag.
	s.setPhase(model.SyncStateUploading, "uploading")
	runErr = s.uploader.Run(ctx, units, s.stats, &s.stop, func(completed, total int) {
		s.broadcast(v1.ProgressEvent{
			State:     model.SyncStateUploading,
			Completed: completed + cacheSkipped,
			Total:     total + cacheSkipped,
			Stats:     toStatsData(s.stats.Snapshot()),
		})
	})
}

// buildWorklist groups the records by series, drops every series whose
// journal already shows it complete or consolidated, and wraps the rest
// as pending units. Dropped series never touch the network.
func (s *syncService) buildWorklist(records []*model.HierarchicalRecord) ([]*model.FileUnit, int) {
	groups := s.hierarchy.GroupBySeries(records)

	var units []*model.FileUnit
	cacheSkipped := 0
	for _, group := range groups {
		first := group[0]
		status := s.seriesLogRepo.Status(first.Aggregator, first.Scan, first.Series)
		if status == model.SeriesStatusConsolidated || status == model.SeriesStatusComplete {
			cacheSkipped += len(group)
			continue
		}
		for _, record := range group {
			var size int64
			if fi, err := os.Stat(record.LocalPath); err == nil {
				size = fi.Size()
			}
			units = append(units, model.NewFileUnit(record, size))
		}
	}
	return units, cacheSkipped
}

// ensureAggregatorRoot finds or creates the aggregator directory directly
// under the account root.
func (s *syncService) ensureAggregatorRoot(ctx context.Context, rootID, aggregator string) (string, error) {
	children, err := s.client.ListChildren(ctx, rootID)
	if err != nil {
		return "", err
	}
	for _, child := range children {
		if child.IsDirectory && child.Name == aggregator {
			return child.ID, nil
		}
	}

	id, err := s.client.CreateDirectory(ctx, rootID, aggregator)
	if err == nil {
		return id, nil
	}
	if buzzheavier.IsConflict(err) {
		children, listErr := s.client.ListChildren(ctx, rootID)
		if listErr != nil {
			return "", listErr
		}
		for _, child := range children {
			if child.IsDirectory && child.Name == aggregator {
				return child.ID, nil
			}
		}
	}
	return "", err
}

// finalize settles the terminal state, persists the run row, and records
// the bounded history entry.
func (s *syncService) finalize(ctx context.Context, run *model.SyncRun, runErr error) {
	s.stats.End()
	snapshot := s.stats.Snapshot()

	s.mu.Lock()
	switch {
	case runErr != nil:
		s.state = model.SyncStateFailed
		s.currentOp = runErr.Error()
	case s.stop.Load():
		s.state = model.SyncStateStopped
		s.stoppedEarly = true
		s.currentOp = "stopped"
	default:
		s.state = model.SyncStateCompleted
		s.currentOp = "completed"
	}
	s.running = false
	finalState := s.state
	stoppedEarly := s.stoppedEarly
	s.mu.Unlock()

	if runErr != nil {
		s.logger.Error("sync run failed", zap.String("runId", run.RunId), zap.Error(runErr))
		run.ErrorMessage = runErr.Error()
	} else {
		s.logger.Info("sync run finished",
			zap.String("runId", run.RunId),
			zap.String("state", finalState),
			zap.Int("uploaded", snapshot.Uploaded),
			zap.Int("skipped", snapshot.Skipped),
			zap.Int("failed", snapshot.Failed))
	}

	endTime := time.Now()
	run.State = finalState
	run.TotalFiles = snapshot.TotalFiles
	run.Uploaded = snapshot.Uploaded
	run.Skipped = snapshot.Skipped
	run.Failed = snapshot.Failed
	run.TotalBytes = snapshot.TotalBytes
	run.UploadedBytes = snapshot.UploadedBytes
	run.StoppedEarly = stoppedEarly
	run.EndTime = &endTime
	if err := s.syncRunRepo.Update(ctx, run); err != nil {
		s.logger.Warn("sync run row update failed", zap.Error(err))
	}

	s.resumeRepo.SetLastRootPath(run.RootPath)
	s.resumeRepo.AppendHistory(model.SyncRunRecord{
		Timestamp: endTime.Format(time.RFC3339),
		RootPath:  run.RootPath,
		State:     finalState,
		Total:     snapshot.TotalFiles,
		Uploaded:  snapshot.Uploaded,
		Skipped:   snapshot.Skipped,
		Failed:    snapshot.Failed,
	})

	s.broadcast(v1.ProgressEvent{
		State:     finalState,
		Completed: snapshot.Processed,
		Total:     snapshot.TotalFiles,
		Stats:     toStatsData(snapshot),
	})
}

func (s *syncService) setPhase(state, operation string) {
	s.mu.Lock()
	s.state = state
	s.currentOp = operation
	s.mu.Unlock()

	snapshot := s.stats.Snapshot()
	s.broadcast(v1.ProgressEvent{
		State:     state,
		Completed: snapshot.Processed,
		Total:     snapshot.TotalFiles,
		Stats:     toStatsData(snapshot),
	})
}

func (s *syncService) Status() *v1.SyncStatusResponseData {
	s.mu.Lock()
	out := &v1.SyncStatusResponseData{
		IsRunning:        s.running,
		State:            s.state,
		CurrentOperation: s.currentOp,
		StoppedEarly:     s.stoppedEarly,
	}
	stats := s.stats
	s.mu.Unlock()

	out.Stats = toStatsData(stats.Snapshot())
	return out
}

func (s *syncService) Stats() *v1.SyncStatsResponseData {
	s.mu.Lock()
	stats := s.stats
	s.mu.Unlock()

	return &v1.SyncStatsResponseData{
		CurrentStats:         toStatsData(stats.Snapshot()),
		FailedFilesCount:     len(s.resumeRepo.FailedFiles()),
		SuccessfulFilesCount: len(s.resumeRepo.UploadedFiles()),
		LastRootPath:         s.resumeRepo.LastRootPath(),
	}
}

func (s *syncService) History(ctx context.Context, limit int) (*v1.SyncHistoryResponseData, error) {
	runs, err := s.syncRunRepo.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := &v1.SyncHistoryResponseData{History: []v1.SyncRunData{}}
	for _, run := range runs {
		item := v1.SyncRunData{
			RunId:         run.RunId,
			RootPath:      run.RootPath,
			State:         run.State,
			TotalFiles:    run.TotalFiles,
			Uploaded:      run.Uploaded,
			Skipped:       run.Skipped,
			Failed:        run.Failed,
			UploadedBytes: run.UploadedBytes,
			StoppedEarly:  run.StoppedEarly,
			ErrorMessage:  run.ErrorMessage,
		}
		if run.StartTime != nil {
			item.StartTime = run.StartTime.Format(time.RFC3339)
		}
		if run.EndTime != nil {
			item.EndTime = run.EndTime.Format(time.RFC3339)
		}
		out.History = append(out.History, item)
	}
	out.Count = len(out.History)
	return out, nil
}

func (s *syncService) GetConfig() *v1.SyncConfigResponseData {
	conf := s.holder.Get()
	return &v1.SyncConfigResponseData{
		MaxConcurrentUploads: conf.MaxConcurrentUploads,
		RetryAttempts:        conf.RetryAttempts,
		TimeoutSeconds:       int(conf.Timeout / time.Second),
		VerifyIntegrity:      conf.VerifyIntegrity,
		ResumeUploads:        conf.ResumeUploads,
		Aggregator:           conf.Aggregator,
		HasToken:             s.conf.GetString("buzzheavier.token") != "",
	}
}

func (s *syncService) UpdateConfig(p *v1.SyncConfigPayload) (*v1.SyncConfigResponseData, error) {
	if err := s.holder.Patch(p); err != nil {
		return nil, err
	}
	return s.GetConfig(), nil
}

// ClearState wipes the selected stores. The run lock stays held across the
// store mutations so a concurrent StartSync cannot slip in mid-clear.
func (s *syncService) ClearState(clearType string) (*v1.ClearStateResponseData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, v1.ErrSyncAlreadyRunning
	}

	out := &v1.ClearStateResponseData{Cleared: []string{}}
	switch clearType {
	case "failed":
		s.resumeRepo.ClearFailed()
		out.Cleared = append(out.Cleared, "failed_files")
	case "cache":
		if err := s.seriesLogRepo.Clear(); err != nil {
			return nil, err
		}
		out.Cleared = append(out.Cleared, "series_logs")
	case "all", "":
		if err := s.resumeRepo.Reset(); err != nil {
			return nil, err
		}
		if err := s.seriesLogRepo.Clear(); err != nil {
			return nil, err
		}
		out.Cleared = append(out.Cleared, "resume_state", "series_logs")
	default:
		return nil, v1.ErrInvalidClearType
	}
	return out, nil
}

// Subscribe registers a progress listener. The returned cancel func must be
// called when the consumer goes away; slow consumers miss events instead of
// blocking the run.
func (s *syncService) Subscribe() (<-chan v1.ProgressEvent, func()) {
	ch := make(chan v1.ProgressEvent, 64)
	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *syncService) broadcast(event v1.ProgressEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func toStatsData(st model.RunStats) v1.RunStatsData {
	return v1.RunStatsData{
		TotalFiles:     st.TotalFiles,
		Uploaded:       st.Uploaded,
		Skipped:        st.Skipped,
		Failed:         st.Failed,
		Processed:      st.Processed,
		TotalBytes:     st.TotalBytes,
		UploadedBytes:  st.UploadedBytes,
		ElapsedSeconds: st.ElapsedSeconds,
		EtaSeconds:     st.EtaSeconds,
		ThroughputBps:  st.ThroughputBps,
	}
}
