package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Mirjalol49/promed-bot/internal/model"
	"github.com/Mirjalol49/promed-bot/internal/service"
	"github.com/labstack/echo/v4"
)

type SchedulerControl interface {
	Start() bool
	Stop() bool
	IsRunning() bool
}

type ReminderSweeper interface {
	Sweep(ctx context.Context, daysOffset int) (service.ReminderResult, error)
}

type Cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

type TaskLister interface {
	ListByStatus(ctx context.Context, status model.TaskStatus, limit, offset int) ([]model.OutboundTask, error)
}

var reminderDays = map[string]int{"today": 0, "tomorrow": 1}

type Handler struct {
	sched     SchedulerControl
	reminders ReminderSweeper
	cleaner   Cleaner
	tasks     TaskLister
}

func NewHandler(s SchedulerControl, reminders ReminderSweeper, cleaner Cleaner, tasks TaskLister) *Handler {
	return &Handler{sched: s, reminders: reminders, cleaner: cleaner, tasks: tasks}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/health", h.Health)

	g.GET("/scheduler/status", h.SchedulerStatus)
	g.POST("/scheduler/start", h.SchedulerStart)
	g.POST("/scheduler/stop", h.SchedulerStop)

	g.POST("/reminders/:day", h.TriggerReminders)
	g.POST("/cleanup", h.TriggerCleanup)

	g.GET("/tasks", h.ListTasks)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStart(c echo.Context) error {
	h.sched.Start()
	return c.JSON(http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(c echo.Context) error {
	h.sched.Stop()
	return c.JSON(http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

// TriggerReminders runs a reminder sweep for "today" or "tomorrow".
func (h *Handler) TriggerReminders(c echo.Context) error {
	day := c.Param("day")
	offset, ok := reminderDays[day]
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "day must be today or tomorrow")
	}

	res, err := h.reminders.Sweep(c.Request().Context(), offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"day":     day,
		"matched": res.Matched,
		"sent":    res.Sent,
		"failed":  res.Failed,
	})
}

func (h *Handler) TriggerCleanup(c echo.Context) error {
	n, err := h.cleaner.Cleanup(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"deleted": n})
}

// ListTasks pages through tasks of one status, delivered by default.
func (h *Handler) ListTasks(c echo.Context) error {
	status := model.TaskStatus(c.QueryParam("status"))
	if status == "" {
		status = model.TaskDelivered
	}
	if !knownStatus(status) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status "+string(status))
	}

	limit := parseInt(c.QueryParam("limit"), 50)
	offset := parseInt(c.QueryParam("offset"), 0)

	items, err := h.tasks.ListByStatus(c.Request().Context(), status, limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []model.OutboundTask{}
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func knownStatus(status model.TaskStatus) bool {
	if status == model.TaskPending || status == model.TaskProcessing {
		return true
	}
	for _, s := range model.TerminalStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
