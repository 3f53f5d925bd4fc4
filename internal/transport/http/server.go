// Package statushttp exposes a minimal operational HTTP surface: health,
// recent automation events, user configuration import and manual triggers.
package statushttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"capfolio/internal/config"
	"capfolio/internal/logger"
	"capfolio/internal/scheduler"
	"capfolio/internal/store"
)

type Server struct {
	addr   string
	router *gin.Engine
	srv    *http.Server
}

type ServerConfig struct {
	Addr     string
	Configs  store.ConfigStore
	Events   store.EventStore
	Auto     *scheduler.Automation
	Profiles *config.ProfileRegistry
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Configs == nil || cfg.Auto == nil {
		return nil, errors.New("status http server requires config store and automation")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handlers{
		configs:  cfg.Configs,
		events:   cfg.Events,
		auto:     cfg.Auto,
		profiles: cfg.Profiles,
	}
	api := router.Group("/api")
	api.GET("/events", h.recentEvents)
	api.GET("/profiles", h.listProfiles)
	api.GET("/users/:id/config", h.getConfig)
	api.PUT("/users/:id/config", h.putConfig)
	api.POST("/users/:id/rebalance", h.triggerRebalance)

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Infof("status http server listening on %s", s.addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

func parseLimit(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
