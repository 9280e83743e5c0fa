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

type ReminderResult struct {
	Matched int
	Sent    int
	Failed  int
}

// Reminder notifies patients of scheduled injections. Reminders go straight
// to the gateway and are neither retried nor deduplicated.
type Reminder struct {
	patients repo.PatientRepository
	gateway  Gateway
	loc      *time.Location

	log *slog.Logger
	now func() time.Time
}

func NewReminder(patients repo.PatientRepository, gateway Gateway, loc *time.Location, log *slog.Logger) *Reminder {
	if loc == nil {
		loc = time.UTC
	}
	return &Reminder{
		patients: patients,
		gateway:  gateway,
		loc:      loc,
		log:      log,
		now:      time.Now,
	}
}

// Sweep reminds every linked patient with a Scheduled injection daysOffset
// days from today, by calendar date in the reminder's time zone.
func (r *Reminder) Sweep(ctx context.Context, daysOffset int) (ReminderResult, error) {
	var res ReminderResult

	patients, err := r.patients.ListWithInjections(ctx)
	if err != nil {
		return res, fmt.Errorf("listing patients: %w", err)
	}

	target := r.now().In(r.loc).AddDate(0, 0, daysOffset)
	targetDay := target.Format(time.DateOnly)

	for _, p := range patients {
		if p.ChatIdentity == "" || !hasInjectionOn(p.Injections, targetDay, r.loc) {
			continue
		}
		res.Matched++

		text := reminderText(p, daysOffset, target)
		if _, err := r.gateway.SendText(ctx, p.ChatIdentity, text, model.FormatPlain); err != nil {
			res.Failed++
			metrics.RemindersSent.WithLabelValues("failed").Inc()
			r.log.Warn("sending reminder failed", "patient_id", p.ID, "err", err)
			continue
		}
		res.Sent++
		metrics.RemindersSent.WithLabelValues("sent").Inc()
	}

	r.log.Info("reminder sweep completed",
		"day", targetDay,
		"matched", res.Matched,
		"sent", res.Sent,
		"failed", res.Failed,
	)
	return res, nil
}

func hasInjectionOn(injections []model.Injection, day string, loc *time.Location) bool {
	for _, inj := range injections {
		if inj.Status != model.InjectionScheduled {
			continue
		}
		if d, ok := inj.Day(loc); ok && d == day {
			return true
		}
	}
	return false
}

func reminderText(p model.Patient, daysOffset int, day time.Time) string {
	t := textsFor(p.PreferredLanguage)
	format := t.ReminderToday
	if daysOffset != 0 {
		format = t.ReminderTomorrow
	}
	return fmt.Sprintf(format, p.FullName, day.Format("02.01.2006"))
}
