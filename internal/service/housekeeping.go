package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mirjalol49/promed-bot/internal/metrics"
	"github.com/Mirjalol49/promed-bot/internal/model"
	"github.com/Mirjalol49/promed-bot/internal/repo"
)

const retention = 24 * time.Hour

// Housekeeper removes finished tasks once they are a day old.
type Housekeeper struct {
	tasks repo.TaskRepository
	log   *slog.Logger
	now   func() time.Time
}

func NewHousekeeper(tasks repo.TaskRepository, log *slog.Logger) *Housekeeper {
	return &Housekeeper{tasks: tasks, log: log, now: time.Now}
}

func (h *Housekeeper) Cleanup(ctx context.Context) (int64, error) {
	cutoff := model.Timestamp(h.now().Add(-retention))

	n, err := h.tasks.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up tasks: %w", err)
	}

	metrics.TasksCleaned.Add(float64(n))
	h.log.Info("task cleanup completed", "deleted", n, "created_before", cutoff)
	return n, nil
}
