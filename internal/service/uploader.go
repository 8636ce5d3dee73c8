package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"scansync/internal/model"
	"scansync/internal/repository"
	"scansync/pkg/buzzheavier"
	"scansync/pkg/hash"
	"scansync/pkg/log"

	"github.com/duke-git/lancet/v2/formatter"
	"go.uber.org/zap"
)

// ProgressFunc receives (completed, total) after every finished unit.
type ProgressFunc func(completed, total int)

// UploaderService drains a worklist with a bounded worker pool. Per-file
// outcomes are values, never errors crossing worker boundaries; the only
// error Run returns is a fatal one (remote auth rejection), which also
// stops scheduling.
type UploaderService interface {
	Run(ctx context.Context, units []*model.FileUnit, stats *StatsAggregator, stop *atomic.Bool, onProgress ProgressFunc) error
}

func NewUploaderService(
	service *Service,
	client *buzzheavier.Client,
	provisioner ProvisionerService,
	resumeRepo repository.ResumeStateRepository,
	seriesLogRepo repository.SeriesLogRepository,
	holder *ConfigHolder,
	logger *log.Logger,
) UploaderService {
	return &uploaderService{
		Service:       service,
		client:        client,
		provisioner:   provisioner,
		resumeRepo:    resumeRepo,
		seriesLogRepo: seriesLogRepo,
		holder:        holder,
		logger:        logger,
	}
}

type uploaderService struct {
	*Service
	client        *buzzheavier.Client
	provisioner   ProvisionerService
	resumeRepo    repository.ResumeStateRepository
	seriesLogRepo repository.SeriesLogRepository
	holder        *ConfigHolder
	logger        *log.Logger
}

func (s *uploaderService) Run(ctx context.Context, units []*model.FileUnit, stats *StatsAggregator, stop *atomic.Bool, onProgress ProgressFunc) error {
	conf := s.holder.Get()
	total := len(units)
	if total == 0 {
		return nil
	}

	work := make(chan *model.FileUnit, total)
	for _, unit := range units {
		work <- unit
	}
	close(work)

	var completed int64
	var fatalMu sync.Mutex
	var fatalErr error

	setFatal := func(err error) {
		fatalMu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		fatalMu.Unlock()
		stop.Store(true)
	}

	var wg sync.WaitGroup
	for i := 0; i < conf.MaxConcurrentUploads; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				// Stop is honored between units, never mid-transfer.
				if stop.Load() {
					return
				}
				unit, ok := <-work
				if !ok {
					return
				}

				err := s.processUnit(ctx, unit, conf, stats)
				if err != nil && buzzheavier.IsUnauthorized(err) {
					setFatal(err)
				}

				done := int(atomic.AddInt64(&completed, 1))
				if onProgress != nil {
					onProgress(done, total)
				}
			}
		}(i)
	}
	wg.Wait()

	fatalMu.Lock()
	defer fatalMu.Unlock()
	return fatalErr
}

// processUnit runs one file through the pipeline. Panics and unexpected
// errors stay inside the unit boundary as a failed-file record; the
// returned error is non-nil only for auth rejections the run must die on.
func (s *uploaderService) processUnit(ctx context.Context, unit *model.FileUnit, conf *SyncConfig, stats *StatsAggregator) (fatal error) {
	record := unit.Record

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("upload pipeline panic", zap.String("file", record.LocalPath), zap.Any("panic", r))
			s.recordFailure(unit, stats, fmt.Sprintf("erro inesperado: %v", r))
		}
	}()

	if conf.VerifyIntegrity {
		digest, err := hash.FileMD5(record.LocalPath)
		if err != nil {
			s.recordFailure(unit, stats, fmt.Sprintf("hash falhou: %v", err))
			return nil
		}
		unit.Hash = digest
	}

	if conf.ResumeUploads && unit.Hash != "" && s.resumeRepo.IsUploaded(record.LocalPath, unit.Hash) {
		s.recordSkip(unit, stats, "já enviado anteriormente (resume)")
		return nil
	}

	containerID, err := s.provisioner.EnsureDirectory(ctx, record)
	if err != nil {
		if buzzheavier.IsUnauthorized(err) {
			return err
		}
		s.recordFailure(unit, stats, fmt.Sprintf("diretório remoto indisponível: %v", err))
		return nil
	}

	exists, size, err := s.client.CheckExists(ctx, containerID, record.Filename)
	if err == nil && exists {
		// Already on the server counts as uploaded for resume purposes.
		if unit.Hash != "" {
			s.resumeRepo.MarkUploaded(record.LocalPath, unit.Hash)
		}
		detail := fmt.Sprintf("Arquivo já existe no servidor - %s", formatter.BinaryBytes(float64(size)))
		s.recordSkip(unit, stats, detail)
		return nil
	}
	if err != nil && buzzheavier.IsUnauthorized(err) {
		return err
	}

	if err := unit.Transition(model.FileStatusUploading); err != nil {
		s.logger.Error("unexpected unit state", zap.String("file", record.LocalPath), zap.Error(err))
		s.recordFailure(unit, stats, err.Error())
		return nil
	}

	if err := s.uploadWithRetry(ctx, unit, containerID, conf); err != nil {
		if buzzheavier.IsUnauthorized(err) {
			return err
		}
		s.recordFailure(unit, stats, err.Error())
		return nil
	}

	s.recordSuccess(unit, stats)
	return nil
}

// uploadWithRetry streams the file, backing off 1s/2s/4s... between
// attempts up to the configured ceiling. Each attempt reopens the file;
// an in-flight attempt is never interrupted.
func (s *uploaderService) uploadWithRetry(ctx context.Context, unit *model.FileUnit, containerID string, conf *SyncConfig) error {
	record := unit.Record
	endpoint := s.client.UploadTarget(containerID, record.Filename)

	var lastErr error
	for attempt := 1; attempt <= conf.RetryAttempts; attempt++ {
		unit.Attempts = attempt

		f, err := os.Open(record.LocalPath)
		if err != nil {
			return fmt.Errorf("abrir arquivo: %w", err)
		}
		_, err = s.client.PutObject(ctx, endpoint, f, unit.Size)
		f.Close()

		if err == nil {
			if conf.VerifyIntegrity {
				ok, confirmErr := s.client.ConfirmUpload(ctx, containerID, record.Filename, unit.Hash)
				if confirmErr != nil {
					err = confirmErr
				} else if !ok {
					err = fmt.Errorf("upload não confirmado pelo servidor")
				}
			}
			if err == nil {
				return nil
			}
		}

		if buzzheavier.IsUnauthorized(err) {
			return err
		}
		lastErr = err
		unit.LastError = err.Error()
		s.logger.Warn("upload attempt failed",
			zap.String("file", record.LocalPath),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < conf.RetryAttempts {
			time.Sleep(time.Duration(1<<(attempt-1)) * time.Second)
		}
	}
	return fmt.Errorf("upload falhou após %d tentativas: %w", conf.RetryAttempts, lastErr)
}

func (s *uploaderService) recordSuccess(unit *model.FileUnit, stats *StatsAggregator) {
	if err := unit.Transition(model.FileStatusUploaded); err != nil {
		s.logger.Error("unexpected unit state", zap.Error(err))
	}
	record := unit.Record
	s.resumeRepo.MarkUploaded(record.LocalPath, unit.Hash)
	detail := fmt.Sprintf("Enviado - %s", formatter.BinaryBytes(float64(unit.Size)))
	s.seriesLogRepo.Append(record, model.SeriesOutcomeSuccess, detail, unit.Hash)
	stats.RecordUploaded(unit.Size)
}

func (s *uploaderService) recordSkip(unit *model.FileUnit, stats *StatsAggregator, detail string) {
	if err := unit.Transition(model.FileStatusSkipped); err != nil {
		s.logger.Error("unexpected unit state", zap.Error(err))
	}
	s.seriesLogRepo.Append(unit.Record, model.SeriesOutcomeSkipped, detail, unit.Hash)
	stats.RecordSkipped()
}

func (s *uploaderService) recordFailure(unit *model.FileUnit, stats *StatsAggregator, detail string) {
	if unit.IsTerminal() {
		return
	}
	if err := unit.Transition(model.FileStatusFailed); err != nil {
		s.logger.Error("unexpected unit state", zap.Error(err))
	}
	unit.LastError = detail
	record := unit.Record
	s.resumeRepo.MarkFailed(record.LocalPath)
	s.seriesLogRepo.Append(record, model.SeriesOutcomeFailure, detail, unit.Hash)
	stats.RecordFailed()
}
