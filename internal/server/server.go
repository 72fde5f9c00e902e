// Package server exposes the research pipeline over HTTP: trigger a
// research run, list stored sessions and inspect a session's full state.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/core"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/telemetry"
	"github.com/mohammad-safakhou/deepresearch/internal/session/vault"
)

// Run builds the full dependency graph from cfg and serves the API on
// addr until the listener fails.
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
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	llm, err := core.NewLLMProvider(cfg.LLM)
	if err != nil {
		return err
	}
	registry, err := core.NewToolRegistry(cfg.Search, cfg.Fetch)
	if err != nil {
		return err
	}
	tele := telemetry.NewTelemetry(cfg.Telemetry)
	orch, err := core.NewOrchestrator(cfg.Agents, llm, registry, core.NoOpProgress{}, tele)
	if err != nil {
		return err
	}
	writer, err := vault.NewWriter(cfg.Vault.Path)
	if err != nil {
		return err
	}
	loader := vault.NewLoader(cfg.Vault.Path)

	h := &ResearchHandler{Orch: orch, LLM: llm, Writer: writer, Loader: loader}
	h.Register(e.Group("/api"))

	if addr == "" {
		addr = cfg.Server.Address
	}
	if addr == "" {
		addr = ":10001"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
