package scheduler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/recoup/recoup/internal/domain/draftclaim"
	"github.com/recoup/recoup/internal/platform/apperr"
)

// Handler exposes the manual trigger surface: each endpoint invokes one
// guarded job and reports its result, or 409 when that job is mid-run.
type Handler struct {
	sched *Scheduler
}

func NewHandler(sched *Scheduler) *Handler {
	return &Handler{sched: sched}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/ops/jobs", h.jobs)
	api.POST("/ops/scan-documents", h.scanDocuments)
	api.POST("/ops/scan-calendar", h.scanCalendar)
	api.POST("/ops/sync-claims", h.syncClaims)
	api.POST("/ops/run-matching", h.runMatching)
	api.POST("/ops/generate-drafts", h.generateDrafts)
	api.POST("/ops/submit-ready", h.submitReady)
}

type jobStatus struct {
	Job    Job    `json:"job"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

func (h *Handler) jobs(c echo.Context) error {
	active := h.sched.Active()
	out := make([]jobStatus, 0, len(active))
	for _, j := range Jobs() {
		out = append(out, jobStatus{Job: j, Label: j.Label(), Active: active[j]})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) scanDocuments(c echo.Context) error {
	res, err := h.sched.ScanDocuments(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) scanCalendar(c echo.Context) error {
	res, err := h.sched.ScanCalendar(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) syncClaims(c echo.Context) error {
	res, err := h.sched.SyncClaims(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) runMatching(c echo.Context) error {
	res, err := h.sched.RunMatching(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

type generateDraftsRequest struct {
	Window draftclaim.Window `json:"window"`
}

func (h *Handler) generateDrafts(c echo.Context) error {
	var req generateDraftsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Window == "" {
		req.Window = draftclaim.WindowForever
	}

	res, err := h.sched.GenerateDrafts(c.Request().Context(), req.Window)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) submitReady(c echo.Context) error {
	res, err := h.sched.SubmitReady(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
