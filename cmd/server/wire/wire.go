//go:build wireinject
// +build wireinject

package wire

import (
	"scansync/internal/handler"
	"scansync/internal/job"
	"scansync/internal/repository"
	"scansync/internal/router"
	"scansync/internal/server"
	"scansync/internal/service"
	"scansync/pkg/app"
	"scansync/pkg/buzzheavier"
	"scansync/pkg/jwt"
	"scansync/pkg/log"
	"scansync/pkg/server/http"
	"scansync/pkg/sid"

	"github.com/google/wire"
	"github.com/spf13/viper"
)

var repositorySet = wire.NewSet(
	repository.NewDB,
	repository.NewRepository,
	repository.NewTransaction,
	repository.NewUserRepository,
	repository.NewSyncRunRepository,
	repository.NewResumeStateRepository,
	repository.NewSeriesLogRepository,
)

var serviceSet = wire.NewSet(
	service.NewService,
	service.NewConfigHolder,
	service.NewUserService,
	service.NewHierarchyService,
	service.NewScannerService,
	service.NewValidatorService,
	service.NewConverter,
	service.NewProvisionerService,
	service.NewUploaderService,
	service.NewSyncService,
)

var handlerSet = wire.NewSet(
	handler.NewHandler,
	handler.NewUserHandler,
	handler.NewSyncHandler,
)

var jobSet = wire.NewSet(
	job.NewJob,
	job.NewAuthJob,
)

var serverSet = wire.NewSet(
	server.NewHTTPServer,
	server.NewJobServer,
)

var buzzheavierSet = wire.NewSet(
	buzzheavier.NewClientFromConfig,
	buzzheavier.NewAuthManagerFromConfig,
)

// build App
func newApp(
	httpServer *http.Server,
	jobServer *server.JobServer,
) *app.App {
	return app.NewApp(
		app.WithServer(httpServer, jobServer),
		app.WithName("scansync-server"),
	)
}

func NewWire(*viper.Viper, *log.Logger) (*app.App, func(), error) {
	panic(wire.Build(
		repositorySet,
		serviceSet,
		handlerSet,
		jobSet,
		serverSet,
		buzzheavierSet,
		wire.Struct(new(router.RouterDeps), "*"),
		sid.NewSid,
		jwt.NewJwt,
		newApp,
	))
}
