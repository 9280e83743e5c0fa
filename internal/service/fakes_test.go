package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Mirjalol49/promed-bot/internal/model"
	"github.com/Mirjalol49/promed-bot/internal/repo"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type gatewayCall struct {
	Method    string
	ChatID    string
	MessageID string
	Payload   string
	Format    model.Format
}

// fakeGateway records every call. errs maps a method name to the error it
// returns; a "Method:format" key narrows the error to one format.
type fakeGateway struct {
	mu      sync.Mutex
	calls   []gatewayCall
	errs    map[string]error
	nextID  int
	emptyID bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{errs: map[string]error{}, nextID: 999}
}

func (g *fakeGateway) record(call gatewayCall) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
	if err, ok := g.errs[call.Method+":"+strconv.Itoa(int(call.Format))]; ok {
		return err
	}
	return g.errs[call.Method]
}

func (g *fakeGateway) messageID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.emptyID {
		return ""
	}
	id := strconv.Itoa(g.nextID)
	g.nextID++
	return id
}

func (g *fakeGateway) Calls() []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gatewayCall(nil), g.calls...)
}

func (g *fakeGateway) SendText(ctx context.Context, chatID, text string, format model.Format) (string, error) {
	if err := g.record(gatewayCall{Method: "SendText", ChatID: chatID, Payload: text, Format: format}); err != nil {
		return "", err
	}
	return g.messageID(), nil
}

func (g *fakeGateway) SendPhoto(ctx context.Context, chatID, url, caption string, format model.Format) (string, error) {
	if err := g.record(gatewayCall{Method: "SendPhoto", ChatID: chatID, Payload: url, Format: format}); err != nil {
		return "", err
	}
	return g.messageID(), nil
}

func (g *fakeGateway) SendVoice(ctx context.Context, chatID, url string) (string, error) {
	if err := g.record(gatewayCall{Method: "SendVoice", ChatID: chatID, Payload: url}); err != nil {
		return "", err
	}
	return g.messageID(), nil
}

func (g *fakeGateway) EditText(ctx context.Context, chatID, messageID, text string, format model.Format) error {
	return g.record(gatewayCall{Method: "EditText", ChatID: chatID, MessageID: messageID, Payload: text, Format: format})
}

func (g *fakeGateway) EditCaption(ctx context.Context, chatID, messageID, caption string, format model.Format) error {
	return g.record(gatewayCall{Method: "EditCaption", ChatID: chatID, MessageID: messageID, Payload: caption, Format: format})
}

func (g *fakeGateway) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	return g.record(gatewayCall{Method: "DeleteMessage", ChatID: chatID, MessageID: messageID})
}

func (g *fakeGateway) FileURL(ctx context.Context, fileID string) (string, error) {
	if err := g.record(gatewayCall{Method: "FileURL", Payload: fileID}); err != nil {
		return "", err
	}
	return "https://api.telegram.test/file/" + fileID, nil
}

func (g *fakeGateway) RequestContact(ctx context.Context, chatID, prompt, button string) error {
	return g.record(gatewayCall{Method: "RequestContact", ChatID: chatID, Payload: prompt})
}

type fakeTasks struct {
	mu       sync.Mutex
	tasks    map[string]*model.OutboundTask
	claimErr map[string]error
	claimed  []string
	staleCut string
	requeued int64
	cleanCut string
}

func newFakeTasks(tasks ...model.OutboundTask) *fakeTasks {
	f := &fakeTasks{tasks: map[string]*model.OutboundTask{}, claimErr: map[string]error{}}
	for _, t := range tasks {
		t := t
		if t.Status == "" {
			t.Status = model.TaskPending
		}
		f.tasks[t.ID] = &t
	}
	return f
}

func (f *fakeTasks) Get(id string) model.OutboundTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.tasks[id]
}

func (f *fakeTasks) Enqueue(ctx context.Context, task model.OutboundTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[task.ID] = &task
	return nil
}

// ListPending returns tasks in map order so callers must sort.
func (f *fakeTasks) ListPending(ctx context.Context) ([]model.OutboundTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.OutboundTask
	for _, t := range f.tasks {
		if t.Status == model.TaskPending {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeTasks) Claim(ctx context.Context, id, claimedAt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.claimErr[id]; err != nil {
		return err
	}
	t, ok := f.tasks[id]
	if !ok {
		return repo.ErrTaskGone
	}
	if t.Status != model.TaskPending {
		return repo.ErrClaimConflict
	}
	t.Status = model.TaskProcessing
	t.ClaimedAt = claimedAt
	f.claimed = append(f.claimed, id)
	return nil
}

func (f *fakeTasks) update(id string, fn func(t *model.OutboundTask)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return repo.ErrNotFound
	}
	fn(t)
	return nil
}

func (f *fakeTasks) MarkDelivered(ctx context.Context, id, targetMessageID, sentAt string) error {
	return f.update(id, func(t *model.OutboundTask) {
		t.Status = model.TaskDelivered
		t.TargetMessageID = targetMessageID
		t.SentAt = sentAt
	})
}

func (f *fakeTasks) MarkFailed(ctx context.Context, id, reason string) error {
	return f.update(id, func(t *model.OutboundTask) {
		t.Status = model.TaskFailed
		t.Error = reason
	})
}

func (f *fakeTasks) MarkStatus(ctx context.Context, id string, status model.TaskStatus) error {
	return f.update(id, func(t *model.OutboundTask) {
		t.Status = status
		t.Error = ""
	})
}

func (f *fakeTasks) RequeueStale(ctx context.Context, claimedBefore string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleCut = claimedBefore
	var n int64
	for _, t := range f.tasks {
		if t.Status == model.TaskProcessing && t.ClaimedAt < claimedBefore {
			t.Status = model.TaskPending
			t.Error = ""
			n++
		}
	}
	f.requeued += n
	return n, nil
}

func (f *fakeTasks) DeleteTerminalBefore(ctx context.Context, createdBefore string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanCut = createdBefore
	var n int64
	for id, t := range f.tasks {
		for _, s := range model.TerminalStatuses {
			if t.Status == s && t.CreatedAt < createdBefore {
				delete(f.tasks, id)
				n++
				break
			}
		}
	}
	return n, nil
}

func (f *fakeTasks) ListByStatus(ctx context.Context, status model.TaskStatus, limit, offset int) ([]model.OutboundTask, error) {
	return nil, errors.New("not implemented")
}

type fakePatients struct {
	mu         sync.Mutex
	patients   map[string]*model.Patient
	activities map[string][]model.Activity
	err        error
}

func newFakePatients(patients ...model.Patient) *fakePatients {
	f := &fakePatients{patients: map[string]*model.Patient{}, activities: map[string][]model.Activity{}}
	for _, p := range patients {
		p := p
		f.patients[p.ID] = &p
	}
	return f
}

func (f *fakePatients) find(match func(p *model.Patient) bool) (*model.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.patients {
		if match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakePatients) FindByChatIdentity(ctx context.Context, chatID string) (*model.Patient, error) {
	return f.find(func(p *model.Patient) bool { return chatID != "" && p.ChatIdentity == chatID })
}

func (f *fakePatients) FindByPhone(ctx context.Context, phone string) (*model.Patient, error) {
	return f.find(func(p *model.Patient) bool { return p.Phone == phone })
}

func (f *fakePatients) LinkChatIdentity(ctx context.Context, patientID, chatID, language string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[patientID]
	if !ok || (p.ChatIdentity != "" && p.ChatIdentity != chatID) {
		return repo.ErrNotFound
	}
	p.ChatIdentity = chatID
	p.PreferredLanguage = language
	return nil
}

func (f *fakePatients) RecordActivity(ctx context.Context, patientID string, a model.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[patientID]
	if !ok {
		return repo.ErrNotFound
	}
	p.LastActiveAt = a.At
	p.LastMessagePreview = a.Preview
	p.UnreadCount++
	f.activities[patientID] = append(f.activities[patientID], a)
	return nil
}

func (f *fakePatients) ListWithInjections(ctx context.Context) ([]model.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Patient
	for _, p := range f.patients {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakePatients) Get(id string) model.Patient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.patients[id]
}

type fakeMessages struct {
	mu       sync.Mutex
	messages []model.PatientMessage
	links    []string
	linkErr  error
	seenErr  error
	seen     []string
}

func (f *fakeMessages) FindByExternalID(ctx context.Context, patientID, externalID string) (*model.PatientMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if externalID != "" && m.PatientID == patientID && m.ExternalMessageID == externalID {
			return &m, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeMessages) FindByText(ctx context.Context, patientID, text string) (*model.PatientMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if text != "" && m.PatientID == patientID && m.Text == text {
			return &m, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeMessages) InsertMessage(ctx context.Context, msg model.PatientMessage) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if msg.ExternalMessageID != "" && m.PatientID == msg.PatientID && m.ExternalMessageID == msg.ExternalMessageID {
			return false, nil
		}
	}
	f.messages = append(f.messages, msg)
	return true, nil
}

func (f *fakeMessages) DeleteMessage(ctx context.Context, patientID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.messages {
		if m.PatientID == patientID && m.ID == id {
			f.messages = append(f.messages[:i], f.messages[i+1:]...)
			return nil
		}
	}
	return repo.ErrNotFound
}

func (f *fakeMessages) UpdateMessageText(ctx context.Context, patientID, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.messages {
		if m.PatientID == patientID && m.ID == id {
			f.messages[i].Text = text
			f.messages[i].Edited = true
			return nil
		}
	}
	return repo.ErrNotFound
}

func (f *fakeMessages) LinkDelivered(ctx context.Context, patientID, id, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, patientID+"/"+id+"="+externalID)
	return f.linkErr
}

func (f *fakeMessages) MarkDoctorMessagesSeen(ctx context.Context, patientID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, patientID)
	return 0, f.seenErr
}

func (f *fakeMessages) All() []model.PatientMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.PatientMessage(nil), f.messages...)
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]model.ChatSession
	now      func() time.Time
}

func newFakeSessions(now func() time.Time) *fakeSessions {
	return &fakeSessions{sessions: map[string]model.ChatSession{}, now: now}
}

func (f *fakeSessions) PutSession(ctx context.Context, s model.ChatSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ChatID] = s
	return nil
}

func (f *fakeSessions) GetSession(ctx context.Context, chatID string) (*model.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[chatID]
	if !ok || !s.ExpiresAt.After(f.now()) {
		return nil, repo.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSessions) DeleteSession(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, chatID)
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
	at      map[string]time.Time
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]string{}, at: map[string]time.Time{}}
}

func (c *fakeCache) StoreSent(ctx context.Context, taskID, remoteMessageID string, sentAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[taskID] = remoteMessageID
	c.at[taskID] = sentAt
	return nil
}

func (c *fakeCache) LookupSent(ctx context.Context, taskID string) (string, time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.entries[taskID]
	return id, c.at[taskID], ok, nil
}
