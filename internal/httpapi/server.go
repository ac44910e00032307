// Package httpapi is the HTTP surface of an engine: JSON endpoints for the
// manual controls and chat, plus a server-sent event stream of state.
package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"macro-meal-engine/internal/chat"
	"macro-meal-engine/internal/config"
	"macro-meal-engine/internal/planner"
	"macro-meal-engine/internal/session"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Engine is the session the API drives. *app.Engine implements it.
type Engine interface {
	Snapshot() session.State
	Subscribe(fn session.Subscriber) func()
	SetCalories(calories int) session.State
	SetExclusions(exclusions string) session.State
	Submit(ctx context.Context, message string) (chat.Result, error)
	Retry()
}

type caloriesRequest struct {
	Calories *int `json:"calories" binding:"required"`
}

type exclusionsRequest struct {
	Exclusions *string `json:"exclusions" binding:"required"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply  string                        `json:"reply"`
	Params *planner.GenerationParameters `json:"params,omitempty"`
}

// Server routes HTTP requests to one engine.
type Server struct {
	engine      Engine
	router      *gin.Engine
	broadcaster *Broadcaster
	secret      string
	logger      *slog.Logger
	unsubscribe func()
}

// NewServer builds the router. metrics is mounted at /metrics when non-nil.
func NewServer(cfg *config.Config, engine Engine, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:      engine,
		router:      gin.New(),
		broadcaster: NewBroadcaster(),
		secret:      cfg.APIJWTSecret,
		logger:      logger,
	}
	s.unsubscribe = engine.Subscribe(s.broadcaster.Observe)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true

	s.router.Use(gin.Recovery(), s.logRequests)
	if len(cfg.CORSOrigins) > 0 {
		s.router.Use(cors.New(corsConfig))
	}

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		s.router.GET("/metrics", gin.WrapH(metrics))
	}

	api := s.router.Group("/api", s.requireToken)
	{
		api.GET("/state", s.getState)
		api.PUT("/params/calories", s.setCalories)
		api.PUT("/params/exclusions", s.setExclusions)
		api.POST("/chat", s.postChat)
		api.POST("/retry", s.postRetry)
		api.GET("/events", s.streamEvents)
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close disconnects stream clients and stops observing the engine.
func (s *Server) Close() {
	s.unsubscribe()
	s.broadcaster.Close()
}

func (s *Server) logRequests(c *gin.Context) {
	c.Next()
	s.logger.Debug("HTTP request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
	)
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

func (s *Server) setCalories(c *gin.Context) {
	var req caloriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	c.JSON(http.StatusOK, s.engine.SetCalories(*req.Calories).Params)
}

func (s *Server) setExclusions(c *gin.Context) {
	var req exclusionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	c.JSON(http.StatusOK, s.engine.SetExclusions(*req.Exclusions).Params)
}

func (s *Server) postChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	res, err := s.engine.Submit(c.Request.Context(), req.Message)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		// The error turn is already in the chat log.
		c.JSON(http.StatusBadGateway, gin.H{"error": chat.ErrorReply})
	default:
		c.JSON(http.StatusOK, chatResponse{Reply: res.Reply, Params: res.Params})
	}
}

func (s *Server) postRetry(c *gin.Context) {
	s.engine.Retry()
	c.Status(http.StatusAccepted)
}

func (s *Server) streamEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ch := s.broadcaster.Add(s.engine.Snapshot)
	defer s.broadcaster.Remove(ch)

	c.Stream(func(w io.Writer) bool {
		select {
		case state, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("state", state)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
