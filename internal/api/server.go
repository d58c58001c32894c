// Package api exposes the admin HTTP surface: signal intake, a manual
// reconcile trigger and read-only order/position listings.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sigtrade/internal/logger"
	"sigtrade/internal/store/model"
	"sigtrade/internal/types"
)

// Store is the read slice the listing endpoints need.
type Store interface {
	OpenPositions(ctx context.Context) ([]model.Position, error)
	OrdersByStatus(ctx context.Context, status types.OrderStatus, limit int) ([]model.Order, error)
	OrdersByPosition(ctx context.Context, positionID int64) ([]model.Order, error)
}

// Intake accepts one raw signal payload.
type Intake interface {
	Accept(ctx context.Context, raw []byte) (types.Signal, int, error)
}

// Ticker runs one reconcile pass on demand.
type Ticker interface {
	RunTick(ctx context.Context) error
}

type ServerConfig struct {
	Addr   string
	Token  string // empty disables auth
	Store  Store
	Intake Intake
	Engine Ticker
}

type Server struct {
	addr   string
	router *gin.Engine
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil || cfg.Intake == nil || cfg.Engine == nil {
		return nil, errors.New("api server requires store, intake and engine")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9982"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	group := router.Group("/api")
	if cfg.Token != "" {
		group.Use(tokenAuth(cfg.Token))
	}
	h := &handlers{cfg: cfg}
	group.POST("/signals", h.postSignal)
	group.POST("/tick", h.postTick)
	group.GET("/positions", h.getPositions)
	group.GET("/positions/:id/orders", h.getPositionOrders)
	group.GET("/orders", h.getOrders)

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("api: listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func tokenAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer "+token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}
