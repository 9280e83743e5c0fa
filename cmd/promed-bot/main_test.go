package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Mirjalol49/promed-bot/internal/model"
	"github.com/Mirjalol49/promed-bot/internal/repo"
)

func TestNewLogger_LevelsByEnv(t *testing.T) {
	var buf bytes.Buffer

	log := newLogger("local", &buf)
	log.Debug("debug line")
	if !strings.Contains(buf.String(), "debug line") {
		t.Fatalf("expected debug output in local env, got %q", buf.String())
	}

	buf.Reset()
	log = newLogger("prod", &buf)
	log.Debug("hidden")
	log.Info("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug to be filtered in prod, got %q", out)
	}
	if !strings.HasPrefix(out, "{") || !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("expected json output in prod, got %q", out)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	want := map[string]bool{"run": false, "remind": false, "cleanup": false, "migrate": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("expected subcommand %q", name)
		}
	}
}

func TestRemindCmd_RejectsUnknownDay(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"remind", "yesterday"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown day") {
		t.Fatalf("expected unknown day error, got %v", err)
	}
}

func TestMigrateAndCleanup_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "promed.db")
	t.Setenv("ENV", "prod")
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("DATABASE_URL", dbPath)
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("STORAGE_ENDPOINT", "")

	execute := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		root := newRootCmd()
		root.SetArgs(args)
		root.SetOut(&out)
		root.SetErr(&bytes.Buffer{})
		if err := root.Execute(); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		return out.String()
	}

	if out := execute("migrate"); !strings.Contains(out, "migrations applied") {
		t.Fatalf("unexpected migrate output %q", out)
	}
	// second run is a no-op
	execute("migrate")

	ctx := context.Background()
	store, err := repo.Open(ctx, "sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	old := model.Timestamp(time.Now().Add(-48 * time.Hour))
	fresh := model.Timestamp(time.Now())
	for _, task := range []model.OutboundTask{
		{ID: "old-delivered", Status: model.TaskDelivered, TargetChatID: "1", Text: "a", CreatedAt: old},
		{ID: "old-pending", Status: model.TaskPending, TargetChatID: "1", Text: "b", CreatedAt: old},
		{ID: "fresh-failed", Status: model.TaskFailed, TargetChatID: "1", Text: "c", CreatedAt: fresh},
	} {
		if err := store.Enqueue(ctx, task); err != nil {
			t.Fatalf("enqueue %s: %v", task.ID, err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	if out := execute("cleanup"); strings.TrimSpace(out) != "deleted=1" {
		t.Fatalf("expected one deleted task, got %q", out)
	}
}

func TestRunWorker_RequiresTelegramToken(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "promed.db"))
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	err := runWorker(context.Background(), false)
	if err == nil || !strings.Contains(err.Error(), "TELEGRAM_BOT_TOKEN") {
		t.Fatalf("expected missing token error, got %v", err)
	}
}
