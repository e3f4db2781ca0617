// Package server exposes the relay over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/elee1766/chatrelay/src/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Relay is the conversation logic the HTTP surface drives.
type Relay interface {
	HandleTurn(ctx context.Context, conversationID, role, content string) (*session.TurnResult, error)
	Ask(ctx context.Context, question string) (string, error)
}

// ConversationCounter reports how many conversations are held.
type ConversationCounter interface {
	Len() int
}

// Config configures a Server.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	// CORSOrigins lists allowed origins; empty or "*" allows any.
	CORSOrigins []string
	ChatModel   string
	AskModel    string
	Logger      *slog.Logger
}

// Server is the HTTP front of the relay.
type Server struct {
	config        Config
	relay         Relay
	conversations ConversationCounter
	engine        *gin.Engine
	logger        *slog.Logger
	started       time.Time
	host          *HostInfo
}

var registerTagNames sync.Once

// New builds the router. conversations may be nil.
func New(config Config, relay Relay, conversations ConversationCounter) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http_server")

	registerTagNames.Do(useJSONFieldNames)

	s := &Server{
		config:        config,
		relay:         relay,
		conversations: conversations,
		logger:        logger,
		started:       time.Now(),
		host:          lookupHost(logger),
	}
	s.engine = s.routes()
	return s
}

// Handler returns the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	// /chat and /chat/ are both routed explicitly
	r.RedirectTrailingSlash = false
	r.Use(requestID(), accessLog(s.logger), recovery(s.logger), cors.New(corsConfig(s.config.CORSOrigins)))

	r.GET("/", s.handleRoot)
	r.POST("/ask", s.handleAsk)
	r.POST("/chat/", s.handleChat)
	r.POST("/chat", s.handleChat)
	r.GET("/status", s.handleStatus)
	r.GET("/schema", s.handleSchema)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Detail: "Not Found"})
	})
	return r
}

// Run serves on the configured address until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", listener.Addr().String())
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "timeout", s.config.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// echo the caller's origin so credentials stay allowed
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = origins
	}
	return config
}

// useJSONFieldNames makes validation errors report json field names.
func useJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
}
