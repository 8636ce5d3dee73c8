package router

import (
	"scansync/internal/handler"
	"scansync/pkg/jwt"
	"scansync/pkg/log"

	"github.com/spf13/viper"
)

type RouterDeps struct {
	Logger      *log.Logger
	Config      *viper.Viper
	JWT         *jwt.JWT
	UserHandler *handler.UserHandler
	SyncHandler *handler.SyncHandler
}
