package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kunalsinghdadhwal/axi-vid/backend/internal/metrics"
	"github.com/kunalsinghdadhwal/axi-vid/backend/internal/signaling"
)

// Server owns the HTTP surface of the signaling service.
type Server struct {
	hub      *signaling.Hub
	relay    *signaling.Relay
	metrics  *metrics.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
	engine   *gin.Engine
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithOriginCheck restricts which browser origins may open a signaling link.
func WithOriginCheck(allowed func(origin string) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			return allowed(r.Header.Get("Origin"))
		}
	}
}

func New(hub *signaling.Hub, relay *signaling.Relay, opts ...Option) *Server {
	s := &Server{
		hub:    hub,
		relay:  relay,
		logger: slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024, // 64 KB
			WriteBufferSize: 64 * 1024, // 64 KB
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.logger))
	s.engine = engine
	s.RegisterRoutes(&engine.RouterGroup)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(metrics.PrometheusHandler(s.metrics)))
	router.GET("/ws/:room_id", s.serveWs)

	api := router.Group("/api")
	{
		api.POST("/create-room", s.createRoom)
		api.GET("/room/:room_id/status", s.roomStatus)
		api.GET("/stats", s.stats)
	}
}

type ErrorResponse struct {
	Message string `json:"message"`
}

type CreateRoomResponse struct {
	RoomID string `json:"room_id"`
	WsURL  string `json:"ws_url"`
}

type RoomStatusResponse struct {
	RoomID    string `json:"room_id"`
	PeerCount int    `json:"peer_count"`
	Available bool   `json:"available"`
}

func (s *Server) health(ctx *gin.Context) {
	ctx.String(http.StatusOK, "Signaling server is healthy.")
}

func (s *Server) createRoom(ctx *gin.Context) {
	id := s.hub.CreateRoom()
	ctx.JSON(http.StatusOK, CreateRoomResponse{
		RoomID: id,
		WsURL:  "/ws/" + id,
	})
}

func (s *Server) roomStatus(ctx *gin.Context) {
	id := ctx.Param("room_id")
	if !signaling.ValidRoomID(id) {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Message: signaling.ErrInvalidRoomID.Error()})
		return
	}
	count := s.hub.Occupancy(id)
	ctx.JSON(http.StatusOK, RoomStatusResponse{
		RoomID:    id,
		PeerCount: count,
		Available: count < signaling.MaxPeersPerRoom,
	})
}

func (s *Server) stats(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, s.hub.Stats())
}

// serveWs upgrades the request and hands the link to the relay. The handler
// returns once the participant has departed.
func (s *Server) serveWs(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	if !signaling.ValidRoomID(roomID) {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Message: signaling.ErrInvalidRoomID.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", "room", roomID, "err", err)
		return
	}
	s.relay.Serve(conn, roomID)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		logger.Debug("http request",
			slog.String("method", ctx.Request.Method),
			slog.String("path", ctx.FullPath()),
			slog.Int("status", ctx.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}
