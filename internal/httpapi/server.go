package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"townbeat/internal/db"
	"townbeat/internal/globaltime"
)

const (
	defaultPageSize = 25
	maxPageSize     = 200
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server is the read-only editorial API: regions, drafts, published posts,
// run ledger, and per-region stats. All writes go through the pipeline.
type Server struct {
	pool    *db.Pool
	regions *db.RegionStore
	runs    *db.RunStore
	stats   *db.StatsStore
	logger  zerolog.Logger
	opts    Options
}

func NewServer(pool *db.Pool, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		pool:    pool,
		regions: db.NewRegionStore(pool),
		runs:    db.NewRunStore(pool),
		stats:   db.NewStatsStore(pool),
		logger:  logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.buildEcho()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("townbeat api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("townbeat api server stopped")
	return nil
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/regions", s.handleRegions)
	api.GET("/regions/:slug/stats", s.handleRegionStats)
	api.GET("/regions/:slug/runs", s.handleRegionRuns)
	api.GET("/drafts", s.handleDrafts)
	api.GET("/posts", s.handlePosts)
	api.GET("/posts/:slug", s.handlePostDetail)

	return e
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "townbeat",
		"time":    globaltime.Now().UTC(),
	})
}

type regionItem struct {
	RegionUUID string `json:"region_uuid"`
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	Timezone   string `json:"timezone"`
}

func (s *Server) handleRegions(c echo.Context) error {
	regions, err := s.regions.List(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query regions failed")
		return internalError(c, "Failed to load regions")
	}

	items := make([]regionItem, 0, len(regions))
	for _, region := range regions {
		items = append(items, regionItem{
			RegionUUID: region.RegionUUID,
			Slug:       region.Slug,
			Name:       region.Name,
			Timezone:   region.Timezone,
		})
	}
	return success(c, map[string]any{"items": items})
}

func (s *Server) handleRegionStats(c echo.Context) error {
	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		return failValidation(c, map[string]string{"slug": "is required"})
	}
	days, err := parsePositiveInt(c.QueryParam("days"), 7, 1, 90)
	if err != nil {
		return failValidation(c, map[string]string{"days": err.Error()})
	}

	region, err := s.regions.BySlug(c.Request().Context(), slug)
	if err != nil {
		s.logger.Error().Err(err).Str("slug", slug).Msg("query region failed")
		return internalError(c, "Failed to load region")
	}
	if region == nil {
		return failNotFound(c, "Region not found")
	}

	stats, err := s.stats.RegionStats(c.Request().Context(), region.RegionID, region.Slug, days)
	if err != nil {
		s.logger.Error().Err(err).Str("slug", slug).Msg("query region stats failed")
		return internalError(c, "Failed to load region stats")
	}
	return success(c, stats)
}

type runItem struct {
	RunUUID     string         `json:"run_uuid"`
	RegionSlug  string         `json:"region_slug"`
	Mode        string         `json:"mode"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	PhaseCounts map[string]int `json:"phase_counts,omitempty"`
	Error       *string        `json:"error,omitempty"`
}

func (s *Server) handleRegionRuns(c echo.Context) error {
	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		return failValidation(c, map[string]string{"slug": "is required"})
	}
	limit, err := parsePositiveInt(c.QueryParam("limit"), 20, 1, 100)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	runs, err := s.runs.ListRecent(c.Request().Context(), slug, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("slug", slug).Msg("query workflow runs failed")
		return internalError(c, "Failed to load workflow runs")
	}

	items := make([]runItem, 0, len(runs))
	for _, run := range runs {
		item := runItem{
			RunUUID:    run.RunUUID,
			RegionSlug: run.RegionSlug,
			Mode:       run.Mode,
			Status:     run.Status,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Error:      run.ErrorMessage,
		}
		if len(run.PhaseCounts) > 0 {
			_ = json.Unmarshal(run.PhaseCounts, &item.PhaseCounts)
		}
		items = append(items, item)
	}
	return success(c, map[string]any{"items": items})
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func parseTimeFilter(raw string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		utc := ts.UTC()
		return &utc, nil
	}

	if day, err := time.Parse("2006-01-02", trimmed); err == nil {
		utc := day.UTC()
		if endOfDay {
			utc = utc.Add((24 * time.Hour) - time.Nanosecond)
		}
		return &utc, nil
	}

	return nil, fmt.Errorf("invalid time format")
}
