// Package server exposes grant generation as a polling-based web API.
package server

import (
	"fmt"
	"log"
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grantforge/grantforge/config"
	"github.com/grantforge/grantforge/internal/agent/core"
	"github.com/grantforge/grantforge/internal/agent/telemetry"
)

// Run builds the full service from config and serves until the listener
// fails. addr overrides the configured listen address when non-empty.
func Run(cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Top-level dependency wiring: one provider, one telemetry, one
	// orchestrator, one job slot.
	tele := telemetry.NewTelemetry(cfg.Telemetry)
	llmProvider, err := core.NewLLMProvider(cfg.LLM)
	if err != nil {
		return err
	}
	orch, err := core.NewOrchestrator(cfg, llmProvider, tele)
	if err != nil {
		return err
	}
	jobs, err := NewJobStore(cfg.General.DataDir)
	if err != nil {
		return err
	}

	api := e.Group("/api")
	gh := &GrantsHandler{
		Orch:           orch,
		Jobs:           jobs,
		Timeout:        cfg.General.MaxProcessingTime,
		AttachmentName: cfg.Export.AttachmentName,
	}
	gh.Register(api)

	// Static shells; the review page polls the API until the draft lands
	e.File("/", filepath.Join(cfg.Server.StaticDir, "index.html"))
	e.File("/review", filepath.Join(cfg.Server.StaticDir, "review.html"))

	if addr == "" {
		addr = cfg.Server.Listen
	}
	if addr == "" {
		addr = ":5000"
	}
	if addr[0] != ':' && !hasHost(addr) {
		addr = ":" + addr
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

func hasHost(addr string) bool {
	for _, c := range addr {
		if c == ':' {
			return true
		}
	}
	return false
}
