// Package httpapi serves the run index as a read-only JSON API.
package httpapi

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/filter"
	"github.com/dmora/runctl/index"
	"github.com/dmora/runctl/workspace"
)

// Source is the read side of the orchestrator.
type Source interface {
	Snapshot(ctx context.Context) (*index.Snapshot, error)
	Events(r io.Reader, family runctl.Family) (iter.Seq2[runctl.Event, error], error)
}

// Handler handles run queries.
type Handler struct {
	src    Source
	logger *zap.Logger
}

// NewHandler creates a handler over src. A nil logger discards output.
func NewHandler(src Source, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{src: src, logger: logger}
}

// RegisterRoutes registers the query routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	e.GET("/runs", h.ListRuns)
	e.GET("/runs/:ref", h.ShowRun)
	e.GET("/runs/:ref/output", h.RunOutput)
	e.GET("/runs/:ref/report", h.RunReport)

	e.GET("/stats", h.Stats)
}

// RunDetail is the body of GET /runs/:ref.
type RunDetail struct {
	index.Summary
	Records   []index.Record       `json:"records"`
	Artifacts []workspace.Artifact `json:"artifacts"`

	// ReportPath is where the run's report is written. For a retry it is
	// the report of the run whose input was replayed.
	ReportPath string `json:"report_path"`
}

// OutputBody is the body of GET /runs/:ref/output.
type OutputBody struct {
	RunID       string         `json:"run_id"`
	Events      []runctl.Event `json:"events"`
	ParseErrors int            `json:"parse_errors"`
}

// Health reports liveness.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListRuns lists runs in start order.
// GET /runs?session=&failed=
func (h *Handler) ListRuns(c echo.Context) error {
	failed := false
	if v := c.QueryParam("failed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "failed must be a boolean")
		}
		failed = b
	}
	f := index.Filter{Session: c.QueryParam("session"), Failed: failed}
	if v := c.QueryParam("family"); v != "" {
		fam, err := runctl.ParseFamily(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.Family = fam
	}
	snap, err := h.snapshot(c)
	if err != nil {
		return err
	}
	runs := snap.List(f)
	return c.JSON(http.StatusOK, index.Summaries(runs))
}

// ShowRun returns one run with its records and artifacts.
// GET /runs/:ref
func (h *Handler) ShowRun(c echo.Context) error {
	snap, run, err := h.resolve(c)
	if err != nil {
		return err
	}
	sum := run.Summary()
	return c.JSON(http.StatusOK, RunDetail{
		Summary:    sum,
		Records:    run.Records,
		Artifacts:  workspace.RunDir{Path: sum.RunDir}.Artifacts(),
		ReportPath: snap.ReportPath(run),
	})
}

// RunOutput returns the parsed events of a run's captured output.
// GET /runs/:ref/output?type=text,result
func (h *Handler) RunOutput(c echo.Context) error {
	var types []runctl.EventType
	if v := c.QueryParam("type"); v != "" {
		var err error
		if types, err = filter.ParseTypes(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	_, run, err := h.resolve(c)
	if err != nil {
		return err
	}
	sum := run.Summary()
	f, err := os.Open(workspace.RunDir{Path: sum.RunDir}.Output())
	if errors.Is(err, os.ErrNotExist) {
		return echo.NewHTTPError(http.StatusNotFound, "run has no captured output")
	}
	if err != nil {
		h.logger.Error("open output", zap.String("run_id", run.ID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read output")
	}
	defer f.Close()

	seq, err := h.src.Events(f, sum.Family)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(types) > 0 {
		seq = filter.Filter(seq, types...)
	}
	body := OutputBody{RunID: run.ID, Events: []runctl.Event{}}
	for ev, err := range seq {
		if err != nil {
			body.ParseErrors++
			continue
		}
		ev.Raw = nil
		body.Events = append(body.Events, ev)
	}
	return c.JSON(http.StatusOK, body)
}

// RunReport returns the report written by the run as Markdown.
// GET /runs/:ref/report
func (h *Handler) RunReport(c echo.Context) error {
	snap, run, err := h.resolve(c)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(snap.ReportPath(run))
	if errors.Is(err, os.ErrNotExist) {
		return echo.NewHTTPError(http.StatusNotFound, "run has no report")
	}
	if err != nil {
		h.logger.Error("read report", zap.String("run_id", run.ID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read report")
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", data)
}

// Stats aggregates runs per session.
// GET /stats?session=
func (h *Handler) Stats(c echo.Context) error {
	snap, err := h.snapshot(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"sessions":  snap.Stats(c.QueryParam("session")),
		"malformed": snap.Malformed,
	})
}

func (h *Handler) snapshot(c echo.Context) (*index.Snapshot, error) {
	snap, err := h.src.Snapshot(c.Request().Context())
	if err != nil {
		h.logger.Error("load index", zap.Error(err))
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to load index")
	}
	return snap, nil
}

func (h *Handler) resolve(c echo.Context) (*index.Snapshot, *index.Run, error) {
	snap, err := h.snapshot(c)
	if err != nil {
		return nil, nil, err
	}
	run, err := snap.Resolve(c.Param("ref"))
	switch {
	case errors.Is(err, runctl.ErrNotFound):
		return nil, nil, echo.NewHTTPError(http.StatusNotFound, err.Error())
	case err != nil:
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return snap, run, nil
}
