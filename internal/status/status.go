// Package status serves the progress of a running tokenization pipeline over
// HTTP.
package status

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"tinylm/pkg/corpus"
)

// Snapshot is the body of GET /status.
type Snapshot struct {
	corpus.Stats
	GiB     float64   `json:"gib_written"`
	Hours   float64   `json:"hours_elapsed"`
	Final   bool      `json:"final"`
	Updated time.Time `json:"updated"`
}

// Tracker keeps the latest pipeline snapshot. It implements corpus.Observer.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	clock func() time.Time
}

var _ corpus.Observer = (*Tracker)(nil)

func NewTracker() *Tracker {
	return &Tracker{clock: time.Now}
}

// Observe records stats as the latest snapshot.
func (t *Tracker) Observe(stats corpus.Stats, final bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap = Snapshot{
		Stats:   stats,
		GiB:     stats.GiB(),
		Hours:   stats.Hours(),
		Final:   final,
		Updated: t.clock(),
	}
}

// Snapshot returns the latest snapshot.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Server exposes a Tracker.
type Server struct {
	tracker *Tracker
}

func NewServer(tracker *Tracker) *Server {
	return &Server{tracker: tracker}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/status", s.handleStatus)
}

// Echo builds an instance with the standard middleware and routes.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	s.Register(e)
	return e
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	sc := echo.StartConfig{Address: addr}
	return sc.Start(ctx, s.Echo())
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(c *echo.Context) error {
	snap := s.tracker.Snapshot()
	if snap.RunID == "" {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "no run in progress"})
	}
	return c.JSON(http.StatusOK, snap)
}
