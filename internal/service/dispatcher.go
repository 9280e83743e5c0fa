package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Mirjalol49/promed-bot/internal/cache"
	"github.com/Mirjalol49/promed-bot/internal/metrics"
	"github.com/Mirjalol49/promed-bot/internal/model"
	"github.com/Mirjalol49/promed-bot/internal/repo"
)

const (
	reasonNoContent  = "No content"
	reasonSendFailed = "Failed to send message"

	// gatewayTimeout bounds the gateway calls of one task, fallbacks included.
	gatewayTimeout = 60 * time.Second
)

// CycleResult counts what one polling cycle did.
type CycleResult struct {
	Requeued  int
	Pending   int
	Claimed   int
	Conflicts int

	Delivered int
	Failed    int
	Edited    int
	Deleted   int
}

func (r *CycleResult) count(status model.TaskStatus) {
	switch status {
	case model.TaskDelivered:
		r.Delivered++
	case model.TaskFailed:
		r.Failed++
	case model.TaskEdited:
		r.Edited++
	case model.TaskDeleted:
		r.Deleted++
	}
}

// Dispatcher drains the task store, delivering each claimed task through
// the gateway and writing the outcome back.
type Dispatcher struct {
	tasks    repo.TaskRepository
	messages repo.MessageRepository
	gateway  Gateway

	deliveries cache.DeliveryCache
	staleAfter time.Duration

	log *slog.Logger
	now func() time.Time
}

func NewDispatcher(tasks repo.TaskRepository, messages repo.MessageRepository, gateway Gateway, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		tasks:    tasks,
		messages: messages,
		gateway:  gateway,
		log:      log,
		now:      time.Now,
	}
}

// WithDeliveryCache records every delivery in c and consults it before
// sending, so a task reclaimed after a crash is not sent twice.
func (d *Dispatcher) WithDeliveryCache(c cache.DeliveryCache) *Dispatcher {
	d.deliveries = c
	return d
}

// WithStaleAfter enables requeueing of tasks left in PROCESSING for longer
// than after. Zero disables it.
func (d *Dispatcher) WithStaleAfter(after time.Duration) *Dispatcher {
	d.staleAfter = after
	return d
}

// RunCycle processes every task that is PENDING at the start of the cycle,
// oldest first and one at a time.
func (d *Dispatcher) RunCycle(ctx context.Context) CycleResult {
	var res CycleResult

	if d.staleAfter > 0 {
		res.Requeued = d.requeueStale(ctx)
	}

	pending, err := d.tasks.ListPending(ctx)
	if err != nil {
		d.log.Error("listing pending tasks failed", "err", err)
		return res
	}
	res.Pending = len(pending)

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt < pending[j].CreatedAt
	})

	for _, task := range pending {
		if ctx.Err() != nil {
			break
		}

		err := d.tasks.Claim(ctx, task.ID, model.Timestamp(d.now()))
		switch {
		case errors.Is(err, repo.ErrClaimConflict), errors.Is(err, repo.ErrTaskGone):
			res.Conflicts++
			metrics.ClaimConflicts.Inc()
			d.log.Debug("task claim skipped", "task_id", task.ID, "reason", err)
			continue
		case err != nil:
			d.log.Error("claiming task failed", "task_id", task.ID, "err", err)
			continue
		}

		res.Claimed++
		res.count(d.Process(ctx, task))
	}

	return res
}

func (d *Dispatcher) requeueStale(ctx context.Context) int {
	cutoff := model.Timestamp(d.now().Add(-d.staleAfter))
	n, err := d.tasks.RequeueStale(ctx, cutoff)
	if err != nil {
		d.log.Error("requeueing stale tasks failed", "err", err)
		return 0
	}
	if n > 0 {
		metrics.TasksRequeued.Add(float64(n))
		d.log.Warn("requeued stale processing tasks", "count", n, "claimed_before", cutoff)
	}
	return int(n)
}

// Process dispatches a claimed task and writes its terminal status. It
// returns the status written.
//
// A claimed task runs to completion on a context detached from ctx: a
// shutdown mid-dispatch must neither abort the gateway call nor leave the
// task in PROCESSING. Gateway calls are bounded by gatewayTimeout instead.
func (d *Dispatcher) Process(ctx context.Context, task model.OutboundTask) (status model.TaskStatus) {
	ctx = context.WithoutCancel(ctx)
	callCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("task dispatch panic recovered", "task_id", task.ID, "panic", r)
			status = d.fail(ctx, task, fmt.Sprint(r))
		}
	}()

	action, err := model.ParseAction(task.Action)
	if err != nil {
		return d.fail(ctx, task, err.Error())
	}

	switch action {
	case model.ActionDelete:
		d.delete(callCtx, task)
		return d.finish(ctx, task, model.TaskDeleted)
	case model.ActionEdit:
		d.edit(callCtx, task)
		return d.finish(ctx, task, model.TaskEdited)
	default:
		return d.send(callCtx, ctx, task)
	}
}

// delete is best-effort: a message that is already gone still counts as
// deleted.
func (d *Dispatcher) delete(ctx context.Context, task model.OutboundTask) {
	if task.TargetMessageID == "" {
		return
	}
	if err := d.gateway.DeleteMessage(ctx, task.TargetChatID, task.TargetMessageID); err != nil {
		d.log.Warn("gateway delete failed", "task_id", task.ID, "err", err)
	}
}

func (d *Dispatcher) edit(ctx context.Context, task model.OutboundTask) {
	err := d.gateway.EditText(ctx, task.TargetChatID, task.TargetMessageID, task.Text, model.FormatMarkdown)
	if err == nil {
		return
	}
	d.log.Debug("edit text failed, retrying as caption", "task_id", task.ID, "err", err)

	if err := d.gateway.EditCaption(ctx, task.TargetChatID, task.TargetMessageID, task.Text, model.FormatMarkdown); err != nil {
		d.log.Warn("gateway edit failed", "task_id", task.ID, "err", err)
	}
}

// send calls the gateway on callCtx and writes results on ctx.
func (d *Dispatcher) send(callCtx, ctx context.Context, task model.OutboundTask) model.TaskStatus {
	if !task.HasContent() {
		return d.fail(ctx, task, reasonNoContent)
	}

	if msgID, sentAt, ok := d.cachedDelivery(ctx, task.ID); ok {
		d.log.Info("task already delivered, skipping resend", "task_id", task.ID, "message_id", msgID)
		return d.deliver(ctx, task, msgID, sentAt)
	}

	msgID, err := d.dispatchSend(callCtx, task)
	if err != nil {
		return d.fail(ctx, task, err.Error())
	}
	if msgID == "" {
		return d.fail(ctx, task, reasonSendFailed)
	}

	sentAt := d.now()
	if d.deliveries != nil {
		if err := d.deliveries.StoreSent(ctx, task.ID, msgID, sentAt); err != nil {
			d.log.Warn("caching delivery failed", "task_id", task.ID, "err", err)
		}
	}
	return d.deliver(ctx, task, msgID, sentAt)
}

// dispatchSend picks the first payload kind present: image, then voice,
// then text. Formatted sends fall back to plain once.
func (d *Dispatcher) dispatchSend(ctx context.Context, task model.OutboundTask) (string, error) {
	switch {
	case task.ImageURL != "":
		msgID, err := d.gateway.SendPhoto(ctx, task.TargetChatID, task.ImageURL, task.Text, model.FormatMarkdown)
		if err == nil {
			return msgID, nil
		}
		d.log.Debug("markdown caption rejected, sending plain", "task_id", task.ID, "err", err)
		return d.gateway.SendPhoto(ctx, task.TargetChatID, task.ImageURL, task.Text, model.FormatPlain)

	case task.VoiceURL != "":
		return d.gateway.SendVoice(ctx, task.TargetChatID, task.VoiceURL)

	default:
		msgID, err := d.gateway.SendText(ctx, task.TargetChatID, task.Text, model.FormatMarkdown)
		if err == nil {
			return msgID, nil
		}
		d.log.Debug("markdown text rejected, sending plain", "task_id", task.ID, "err", err)
		return d.gateway.SendText(ctx, task.TargetChatID, task.Text, model.FormatPlain)
	}
}

func (d *Dispatcher) cachedDelivery(ctx context.Context, taskID string) (string, time.Time, bool) {
	if d.deliveries == nil {
		return "", time.Time{}, false
	}
	msgID, sentAt, ok, err := d.deliveries.LookupSent(ctx, taskID)
	if err != nil {
		d.log.Warn("delivery cache lookup failed", "task_id", taskID, "err", err)
		return "", time.Time{}, false
	}
	return msgID, sentAt, ok && msgID != ""
}

func (d *Dispatcher) deliver(ctx context.Context, task model.OutboundTask, msgID string, sentAt time.Time) model.TaskStatus {
	if err := d.tasks.MarkDelivered(ctx, task.ID, msgID, model.Timestamp(sentAt)); err != nil {
		d.log.Error("marking task delivered failed", "task_id", task.ID, "err", err)
		return model.TaskProcessing
	}
	metrics.TasksProcessed.WithLabelValues(string(model.TaskDelivered)).Inc()
	d.log.Info("task delivered", "task_id", task.ID, "message_id", msgID)

	if task.LinksBack() {
		d.linkBack(ctx, task, msgID)
	}
	return model.TaskDelivered
}

// linkBack is a non-blocking side effect: the task stays delivered when
// the transcript cannot be updated.
func (d *Dispatcher) linkBack(ctx context.Context, task model.OutboundTask, msgID string) {
	err := d.messages.LinkDelivered(ctx, task.PatientID, task.OriginalMessageID, msgID)
	if err != nil {
		metrics.LinkBackFailures.Inc()
		d.log.Warn("link back failed",
			"task_id", task.ID,
			"patient_id", task.PatientID,
			"message_id", task.OriginalMessageID,
			"err", err,
		)
	}
}

func (d *Dispatcher) fail(ctx context.Context, task model.OutboundTask, reason string) model.TaskStatus {
	if err := d.tasks.MarkFailed(ctx, task.ID, reason); err != nil {
		d.log.Error("writing task failure failed", "task_id", task.ID, "err", err)
		return model.TaskProcessing
	}
	metrics.TasksProcessed.WithLabelValues(string(model.TaskFailed)).Inc()
	d.log.Warn("task failed", "task_id", task.ID, "reason", reason)
	return model.TaskFailed
}

func (d *Dispatcher) finish(ctx context.Context, task model.OutboundTask, status model.TaskStatus) model.TaskStatus {
	if err := d.tasks.MarkStatus(ctx, task.ID, status); err != nil {
		d.log.Error("writing task status failed", "task_id", task.ID, "status", status, "err", err)
		return model.TaskProcessing
	}
	metrics.TasksProcessed.WithLabelValues(string(status)).Inc()
	d.log.Info("task finished", "task_id", task.ID, "status", status)
	return status
}
