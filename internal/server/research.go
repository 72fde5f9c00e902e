package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/deepresearch/internal/agent/core"
	"github.com/mohammad-safakhou/deepresearch/internal/session"
	"github.com/mohammad-safakhou/deepresearch/internal/session/vault"
	"github.com/mohammad-safakhou/deepresearch/provider"
)

// ResearchHandler serves research runs and stored sessions.
type ResearchHandler struct {
	Orch   *core.Orchestrator
	LLM    provider.Provider
	Writer *vault.Writer
	Loader *vault.Loader
}

func (h *ResearchHandler) Register(g *echo.Group) {
	g.POST("/research", h.research)
	g.GET("/sessions", h.listSessions)
	g.GET("/sessions/:id", h.showSession)
}

// research runs the full pipeline synchronously and persists the session
// before responding. Long queries hold the connection open; clients that
// need progress should watch /metrics.
func (h *ResearchHandler) research(c echo.Context) error {
	var req struct {
		Query string `json:"query"`
	}
	if err := c.Bind(&req); err != nil || req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}

	ctx := c.Request().Context()
	result, err := h.Orch.Research(ctx, req.Query)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	s := session.New(req.Query, result.Model, time.Now())
	result.FillSession(&s, time.Now())
	s.Insights = vault.ExtractInsights(ctx, h.LLM, &s)
	if _, err := h.Writer.Save(&s); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": s.SessionID,
		"version":    s.Version,
		"report":     s.Report,
		"sources":    s.AllSources,
		"workers":    len(s.Workers),
		"cost":       s.Cost,
		"tokens":     s.Tokens,
		"duration":   result.Duration.Seconds(),
	})
}

func (h *ResearchHandler) listSessions(c echo.Context) error {
	items, err := h.Loader.List()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

// showSession loads a session by id. The id may carry a version suffix
// ("session_x_v2"); otherwise the version query parameter applies,
// defaulting to 1.
func (h *ResearchHandler) showSession(c echo.Context) error {
	id, version := session.SplitVersionedID(c.Param("id"))
	if version == 0 {
		version = 1
		if v := c.QueryParam("version"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid version")
			}
			version = n
		}
	}

	s, err := h.Loader.Load(id, version)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, s)
}
