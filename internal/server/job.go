package server

import (
	"context"
	"time"

	"scansync/internal/job"
	"scansync/pkg/log"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

type JobServer struct {
	log       *log.Logger
	scheduler *gocron.Scheduler
	authJob   job.AuthJob
}

func NewJobServer(
	log *log.Logger,
	authJob job.AuthJob,
) *JobServer {
	return &JobServer{
		log:       log,
		scheduler: gocron.NewScheduler(time.UTC),
		authJob:   authJob,
	}
}

func (j *JobServer) Start(ctx context.Context) error {
	// Keeps the auth verdict fresher than its 5 minute cache window.
	_, err := j.scheduler.Every(4).Minutes().Do(func() {
		if err := j.authJob.RefreshToken(ctx); err != nil {
			j.log.Warn("AuthJob.RefreshToken error", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	j.scheduler.StartBlocking()
	return nil
}

func (j *JobServer) Stop(ctx context.Context) error {
	j.scheduler.Stop()
	return nil
}
