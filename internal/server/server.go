// Package server exposes the companion over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/felixgeelhaar/dreamer/internal/companion"
	"github.com/felixgeelhaar/dreamer/internal/guard"
	"github.com/felixgeelhaar/dreamer/internal/memory"
	"github.com/felixgeelhaar/dreamer/internal/observe"
	"github.com/felixgeelhaar/dreamer/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Companion is what the handlers need from companion.Companion.
type Companion interface {
	Chat(ctx context.Context, message string) (companion.Reply, error)
	Dream(ctx context.Context) string
}

// Facts lists stored facts for the /facts endpoint.
type Facts interface {
	RecentFacts(ctx context.Context, n int) ([]store.Fact, error)
}

type Options struct {
	Addr           string
	AllowedOrigins []string
}

type Server struct {
	companion Companion
	facts     Facts
	obs       *observe.Observer
	opts      Options
	engine    *gin.Engine
}

func New(c Companion, f Facts, obs *observe.Observer, opts Options) *Server {
	if obs == nil {
		obs = observe.Nop()
	}
	if opts.Addr == "" {
		opts.Addr = ":8000"
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:3000"}
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{companion: c, facts: f, obs: obs, opts: opts}
	s.engine = s.routes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(s.requestLog(), gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.obs.Log().Error().Str("panic", fmt.Sprint(recovered)).Msg("handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprint(recovered)})
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.opts.AllowedOrigins,
		AllowMethods:     []string{"*"},
		AllowHeaders:     []string{"*"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/", s.handleRoot)
	r.POST("/chat", s.handleChat)
	r.GET("/dream", s.handleDream)
	r.GET("/facts", s.handleFacts)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.obs.Log().Info().Str("addr", s.opts.Addr).Msg("dreamer api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.obs.Log().Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("latency", time.Since(start).String()).
			Msg("request")
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

// QueryResult mirrors the column layout of a vector query result.
type QueryResult struct {
	IDs       []string            `json:"ids"`
	Documents []string            `json:"documents"`
	Metadatas []map[string]string `json:"metadatas"`
	Distances []float32           `json:"distances"`
}

func newQueryResult(results []memory.Result) QueryResult {
	q := QueryResult{
		IDs:       make([]string, 0, len(results)),
		Documents: make([]string, 0, len(results)),
		Metadatas: make([]map[string]string, 0, len(results)),
		Distances: make([]float32, 0, len(results)),
	}
	for _, r := range results {
		q.IDs = append(q.IDs, r.ID)
		q.Documents = append(q.Documents, r.Document)
		q.Metadatas = append(q.Metadatas, r.Metadata)
		q.Distances = append(q.Distances, r.Distance)
	}
	return q
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Dreamer API is running"})
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}

	reply, err := s.companion.Chat(c.Request.Context(), req.Message)
	if err != nil {
		if errors.Is(err, guard.ErrPolicyViolation) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		s.obs.Log().Error().Err(err).Msg("error processing chat")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"response":         reply.Response,
		"related_memories": newQueryResult(reply.RelatedMemories),
	})
}

func (s *Server) handleDream(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"dream": s.companion.Dream(c.Request.Context())})
}

func (s *Server) handleFacts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "limit must be a non-negative integer"})
		return
	}

	facts, err := s.facts.RecentFacts(c.Request.Context(), limit)
	if err != nil {
		s.obs.Log().Error().Err(err).Msg("error listing facts")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"facts": facts})
}
