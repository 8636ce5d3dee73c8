package handler

import (
	"net/http"
	"strconv"
	"time"

	v1 "scansync/api/v1"
	"scansync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type SyncHandler struct {
	*Handler
	syncService service.SyncService
	upgrader    websocket.Upgrader
}

func NewSyncHandler(handler *Handler, syncService service.SyncService) *SyncHandler {
	return &SyncHandler{
		Handler:     handler,
		syncService: syncService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// StartSync launches a run in the background and answers immediately.
// A run already in flight is a conflict, not a queue.
func (h *SyncHandler) StartSync(ctx *gin.Context) {
	var req v1.StartSyncRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.syncService.StartSync(ctx, &req)
	if err != nil {
		switch err {
		case v1.ErrSyncAlreadyRunning:
			v1.HandleError(ctx, http.StatusConflict, err, nil)
		case v1.ErrInvalidRootPath:
			v1.HandleError(ctx, http.StatusBadRequest, err, nil)
		default:
			h.logger.WithContext(ctx).Error("syncService.StartSync error", zap.Error(err))
			v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		}
		return
	}

	v1.HandleAccepted(ctx, data)
}

func (h *SyncHandler) StopSync(ctx *gin.Context) {
	if err := h.syncService.StopSync(); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// RetryFailed answers 202 when a retry run starts and 200 when there was
// nothing to retry.
func (h *SyncHandler) RetryFailed(ctx *gin.Context) {
	data, started, err := h.syncService.RetryFailed(ctx)
	if err != nil {
		switch err {
		case v1.ErrSyncAlreadyRunning:
			v1.HandleError(ctx, http.StatusConflict, err, nil)
		case v1.ErrNothingToRetry:
			v1.HandleError(ctx, http.StatusBadRequest, err, nil)
		default:
			h.logger.WithContext(ctx).Error("syncService.RetryFailed error", zap.Error(err))
			v1.HandleError(ctx, http.StatusInternalServerError, v1.ErrInternalServerError, nil)
		}
		return
	}

	if started {
		v1.HandleAccepted(ctx, data)
		return
	}
	v1.HandleSuccess(ctx, data)
}

func (h *SyncHandler) GetStatus(ctx *gin.Context) {
	v1.HandleSuccess(ctx, h.syncService.Status())
}

func (h *SyncHandler) GetStats(ctx *gin.Context) {
	v1.HandleSuccess(ctx, h.syncService.Stats())
}

func (h *SyncHandler) GetHistory(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	data, err := h.syncService.History(ctx, limit)
	if err != nil {
		h.logger.WithContext(ctx).Error("syncService.History error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, v1.ErrInternalServerError, nil)
		return
	}
	v1.HandleSuccess(ctx, data)
}

func (h *SyncHandler) GetConfig(ctx *gin.Context) {
	v1.HandleSuccess(ctx, h.syncService.GetConfig())
}

func (h *SyncHandler) UpdateConfig(ctx *gin.Context) {
	var req v1.SyncConfigPayload
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.syncService.UpdateConfig(&req)
	if err != nil {
		h.logger.WithContext(ctx).Warn("config update rejected", zap.Error(err))
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}
	v1.HandleSuccess(ctx, data)
}

func (h *SyncHandler) ClearState(ctx *gin.Context) {
	var req v1.ClearStateRequest
	if ctx.Request.ContentLength > 0 {
		// Absent body means clear everything.
		if err := ctx.ShouldBindJSON(&req); err != nil {
			v1.HandleError(ctx, http.StatusBadRequest, v1.ErrInvalidClearType, nil)
			return
		}
	}

	data, err := h.syncService.ClearState(req.Type)
	if err != nil {
		switch err {
		case v1.ErrSyncAlreadyRunning:
			v1.HandleError(ctx, http.StatusConflict, err, nil)
		case v1.ErrInvalidClearType:
			v1.HandleError(ctx, http.StatusBadRequest, err, nil)
		default:
			h.logger.WithContext(ctx).Error("syncService.ClearState error", zap.Error(err))
			v1.HandleError(ctx, http.StatusInternalServerError, v1.ErrInternalServerError, nil)
		}
		return
	}
	v1.HandleSuccess(ctx, data)
}

// Progress upgrades to a websocket and streams run progress events until
// the client hangs up.
func (h *SyncHandler) Progress(ctx *gin.Context) {
	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		h.logger.WithContext(ctx).Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := h.syncService.Subscribe()
	defer cancel()

	// Reader goroutine only notices the disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
