package admin

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/tablesplit/pkg/errors"
	"github.com/tokmz/tablesplit/pkg/logger"
	"github.com/tokmz/tablesplit/pkg/realtime"
)

// ManagerSource 获取连接管理器，通常为 (*realtime.Registry).Manager
type ManagerSource func() (*realtime.Manager, error)

// Handler 运维诊断接口
type Handler struct {
	source ManagerSource
	log    logger.Logger
}

// StateView 连接状态
type StateView struct {
	State         realtime.ConnectionState `json:"state"`
	NativeState   string                   `json:"native_state"`
	Connected     bool                     `json:"connected"`
	Session       *realtime.Session        `json:"session,omitempty"`
	Handlers      []string                 `json:"handlers"`
	DroppedEvents int64                    `json:"dropped_events"`
	CheckedAt     time.Time                `json:"checked_at"`
}

// ConnectRequest 连接请求
type ConnectRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Nickname string `json:"nickname"`
}

// New 创建运维接口
func New(source ManagerSource, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{source: source, log: log.Named("realtime.admin")}
}

// Register 注册路由
//
//	GET  /realtime/state
//	POST /realtime/connect
//	POST /realtime/disconnect
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/realtime")
	g.GET("/state", h.State)
	g.POST("/connect", h.Connect)
	g.POST("/disconnect", h.Disconnect)
}

// State 查询连接状态
func (h *Handler) State(c *gin.Context) {
	m, err := h.source()
	if err != nil {
		RespondError(c, err)
		return
	}
	view := StateView{
		State:         m.State(),
		NativeState:   m.NativeState(),
		Connected:     m.IsConnected(),
		Handlers:      m.HandlerKeys(),
		DroppedEvents: m.DroppedEvents(),
		CheckedAt:     time.Now(),
	}
	if view.Handlers == nil {
		view.Handlers = []string{}
	}
	if s, ok := m.Session(); ok {
		view.Session = &s
	}
	Success(c, view)
}

// Connect 以指定用户连接
func (h *Handler) Connect(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, errors.ErrBadRequest.WithError(err))
		return
	}
	m, err := h.source()
	if err != nil {
		RespondError(c, err)
		return
	}

	ctx := logger.WithUserID(c.Request.Context(), req.UserID)
	s, err := m.Connect(ctx, req.UserID, req.Nickname)
	if err != nil {
		h.log.WarnContext(ctx, "admin connect failed", zap.Error(err))
		RespondError(c, err)
		return
	}
	Success(c, s)
}

// Disconnect 断开连接
func (h *Handler) Disconnect(c *gin.Context) {
	m, err := h.source()
	if err != nil {
		RespondError(c, err)
		return
	}
	if err := m.Disconnect(c.Request.Context()); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"state": m.State()})
}
