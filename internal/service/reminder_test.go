package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Mirjalol49/promed-bot/internal/model"
)

var tashkent = time.FixedZone("UZT", 5*60*60)

func reminderPatients() *fakePatients {
	return newFakePatients(
		model.Patient{ID: "a", FullName: "Aziza", ChatIdentity: "1", PreferredLanguage: "en", Injections: []model.Injection{
			{ID: "a1", Date: "2026-10-15T09:00", Status: model.InjectionScheduled},
		}},
		model.Patient{ID: "b", FullName: "Bobur", ChatIdentity: "2", Injections: []model.Injection{
			{ID: "b1", Date: "2026-10-15T09:00", Status: model.InjectionCompleted},
		}},
		model.Patient{ID: "c", FullName: "Charos", Injections: []model.Injection{
			{ID: "c1", Date: "2026-10-15T10:00", Status: model.InjectionScheduled},
		}},
		model.Patient{ID: "d", FullName: "Dilnoza", ChatIdentity: "4", PreferredLanguage: "ru", Injections: []model.Injection{
			{ID: "d1", Date: "2026-10-14T20:00:00Z", Status: model.InjectionScheduled},
		}},
		model.Patient{ID: "e", FullName: "Eldor", ChatIdentity: "5", Injections: []model.Injection{
			{ID: "e1", Date: "2026-10-14", Status: model.InjectionScheduled},
			{ID: "e2", Date: "2026-10-15", Status: model.InjectionCancelled},
		}},
	)
}

func newTestReminder(patients *fakePatients, gw Gateway) *Reminder {
	r := NewReminder(patients, gw, tashkent, discardLogger())
	r.now = func() time.Time { return fixedNow }
	return r
}

func TestReminder_TomorrowSweep(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	res, err := newTestReminder(reminderPatients(), gw).Sweep(context.Background(), 1)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Matched != 2 || res.Sent != 2 {
		t.Fatalf("expected 2 matched and sent, got %+v", res)
	}

	calls := gw.Calls()
	if calls[0].ChatID != "1" || calls[1].ChatID != "4" {
		t.Fatalf("expected reminders to chats 1 and 4, got %+v", calls)
	}
	if want := "Dear Aziza, you have an injection scheduled tomorrow, 15.10.2026."; calls[0].Payload != want {
		t.Fatalf("expected %q, got %q", want, calls[0].Payload)
	}
}

func TestReminder_TodaySweep(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	res, err := newTestReminder(reminderPatients(), gw).Sweep(context.Background(), 0)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Sent != 1 {
		t.Fatalf("expected 1 reminder, got %+v", res)
	}
	if c := gw.Calls()[0]; c.ChatID != "5" {
		t.Fatalf("expected reminder to chat 5, got %+v", c)
	}
}

func TestReminder_SendFailuresAreCounted(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.errs["SendText"] = errors.New("bot was blocked by the user")

	res, err := newTestReminder(reminderPatients(), gw).Sweep(context.Background(), 1)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Failed != 2 || res.Sent != 0 {
		t.Fatalf("expected 2 failures, got %+v", res)
	}
}

func TestReminder_ListFailure(t *testing.T) {
	t.Parallel()

	patients := reminderPatients()
	patients.err = errors.New("connection refused")

	if _, err := newTestReminder(patients, newFakeGateway()).Sweep(context.Background(), 0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestHousekeeper_DeletesTerminalTasksOlderThanADay(t *testing.T) {
	t.Parallel()

	old := model.Timestamp(fixedNow.Add(-25 * time.Hour))
	recent := model.Timestamp(fixedNow.Add(-time.Hour))
	tasks := newFakeTasks(
		model.OutboundTask{ID: "sent", Status: model.TaskSent, CreatedAt: old},
		model.OutboundTask{ID: "delivered", Status: model.TaskDelivered, CreatedAt: old},
		model.OutboundTask{ID: "failed", Status: model.TaskFailed, CreatedAt: old},
		model.OutboundTask{ID: "pending", Status: model.TaskPending, CreatedAt: old},
		model.OutboundTask{ID: "fresh", Status: model.TaskDeleted, CreatedAt: recent},
	)

	h := NewHousekeeper(tasks, discardLogger())
	h.now = func() time.Time { return fixedNow }

	n, err := h.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deletions, got %d", n)
	}
	if tasks.cleanCut != model.Timestamp(fixedNow.Add(-24*time.Hour)) {
		t.Fatalf("unexpected cutoff %q", tasks.cleanCut)
	}
	if _, ok := tasks.tasks["pending"]; !ok {
		t.Fatalf("pending task must survive cleanup")
	}
}
