package job

import (
	"context"

	"scansync/pkg/buzzheavier"

	"go.uber.org/zap"
)

// AuthJob keeps the remote token verdict warm so runs do not start on a
// stale credential.
type AuthJob interface {
	RefreshToken(ctx context.Context) error
}

func NewAuthJob(job *Job, auth *buzzheavier.AuthManager) AuthJob {
	return &authJob{
		Job:  job,
		auth: auth,
	}
}

type authJob struct {
	*Job
	auth *buzzheavier.AuthManager
}

func (j *authJob) RefreshToken(ctx context.Context) error {
	account, err := j.auth.Validate(ctx)
	if err != nil {
		j.logger.Warn("token revalidation failed", zap.Error(err))
		return err
	}
	j.logger.Debug("token revalidated", zap.String("account", account.Name))
	return nil
}
