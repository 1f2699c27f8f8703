// Package adminapi exposes a small echo/v4 HTTP surface for health
// checks and room/relay metrics, separate from the QUIC/WebTransport
// media endpoint, following the reference server's APIServer.
package adminapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/SweetLiberty92/Paracord-sub001/internal/logx"
	"github.com/SweetLiberty92/Paracord-sub001/internal/room"
)

// RelayStats is the narrow surface this package needs from the relay
// forwarder, kept as an interface so tests don't need a real Forwarder.
type RelayStats interface {
	DatagramsForwarded() uint64
	BytesForwarded() uint64
	BreakerTrips() uint64
}

// Server is the admin HTTP surface.
type Server struct {
	rooms *room.Manager
	relay RelayStats
	echo  *echo.Echo
	lg    *logx.Logger
}

// New constructs a Server and registers its routes.
func New(rooms *room.Manager, relay RelayStats) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	lg := logx.New("adminapi")
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			lg.Printf("%s %s %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = jsonErrorHandler

	s := &Server{rooms: rooms, relay: relay, echo: e, lg: lg}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/rooms", s.handleRooms)
	s.echo.GET("/api/metrics", s.handleMetrics)
}

// Run starts the HTTP server on addr and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.lg.Printf("server error: %v", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		s.lg.Printf("shutdown: %v", err)
	}
}

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Rooms:  s.rooms.Count(),
	})
}

// RoomsResponse is the payload for GET /api/rooms.
type RoomsResponse struct {
	Rooms []RoomSummary `json:"rooms"`
}

// RoomSummary describes one active room.
type RoomSummary struct {
	ID           string `json:"id"`
	Participants int    `json:"participants"`
}

func (s *Server) handleRooms(c echo.Context) error {
	ids := s.rooms.List()
	out := make([]RoomSummary, 0, len(ids))
	for _, id := range ids {
		r := s.rooms.Get(id)
		if r == nil {
			continue
		}
		out = append(out, RoomSummary{ID: id, Participants: r.Count()})
	}
	return c.JSON(http.StatusOK, RoomsResponse{Rooms: out})
}

// MetricsResponse is the payload for GET /api/metrics.
type MetricsResponse struct {
	Rooms              int    `json:"rooms"`
	DatagramsForwarded uint64 `json:"datagrams_forwarded"`
	BytesForwarded     uint64 `json:"bytes_forwarded"`
	BreakerTrips       uint64 `json:"breaker_trips"`
}

func (s *Server) handleMetrics(c echo.Context) error {
	resp := MetricsResponse{Rooms: s.rooms.Count()}
	if s.relay != nil {
		resp.DatagramsForwarded = s.relay.DatagramsForwarded()
		resp.BytesForwarded = s.relay.BytesForwarded()
		resp.BreakerTrips = s.relay.BreakerTrips()
	}
	return c.JSON(http.StatusOK, resp)
}

// jsonErrorHandler ensures all error responses carry a consistent JSON
// body: {"error": "message"}.
func jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if c.Response().Committed {
		return
	}
	_ = c.JSON(code, map[string]string{"error": msg})
}
