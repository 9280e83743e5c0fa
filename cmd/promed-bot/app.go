package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mirjalol49/promed-bot/internal/api"
	"github.com/Mirjalol49/promed-bot/internal/bot"
	"github.com/Mirjalol49/promed-bot/internal/cache"
	"github.com/Mirjalol49/promed-bot/internal/client"
	"github.com/Mirjalol49/promed-bot/internal/config"
	"github.com/Mirjalol49/promed-bot/internal/gateway"
	"github.com/Mirjalol49/promed-bot/internal/instance"
	"github.com/Mirjalol49/promed-bot/internal/migrations"
	"github.com/Mirjalol49/promed-bot/internal/repo"
	"github.com/Mirjalol49/promed-bot/internal/scheduler"
	"github.com/Mirjalol49/promed-bot/internal/service"
	"github.com/Mirjalol49/promed-bot/internal/storage"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// app holds the connections shared by every command.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	store *repo.Store
	rdb   *redis.Client
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	log := setupLogger(cfg.Env)
	return newApp(ctx, cfg, log)
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	store, err := repo.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, store: store}

	if cfg.Redis.Enabled() {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn("closing redis failed", "err", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing database failed", "err", err)
	}
}

func (a *app) sessions() repo.SessionRepository {
	if a.rdb != nil {
		return cache.NewRedisSessions(a.rdb)
	}
	return a.store
}

func (a *app) telegram() (*gateway.Telegram, error) {
	if err := a.cfg.RequireTelegram(); err != nil {
		return nil, err
	}
	return gateway.NewTelegram(a.cfg.Telegram.Token, a.cfg.Telegram.APIURL)
}

func (a *app) dispatcher(gw service.Gateway) *service.Dispatcher {
	d := service.NewDispatcher(a.store, a.store, gw, a.log).
		WithStaleAfter(a.cfg.Scheduler.StaleAfter)
	if a.rdb != nil {
		d.WithDeliveryCache(cache.NewRedisCache(a.rdb, a.cfg.Redis.TTL))
	}
	return d
}

func (a *app) inbound(gw service.Gateway) (*service.Inbound, error) {
	in := service.NewInbound(a.store, a.store, gw, a.log).
		WithNoticeTTL(a.cfg.Telegram.NoticeTTL)
	if !a.cfg.Storage.Enabled() {
		return in, nil
	}

	objects, err := storage.New(storage.Config{
		Endpoint:  a.cfg.Storage.Endpoint,
		AccessKey: a.cfg.Storage.AccessKey,
		SecretKey: a.cfg.Storage.SecretKey,
		Bucket:    a.cfg.Storage.Bucket,
		Region:    a.cfg.Storage.Region,
		UseSSL:    a.cfg.Storage.UseSSL,
		PublicURL: a.cfg.Storage.PublicURL,
	})
	if err != nil {
		return nil, err
	}
	return in.WithAttachmentStore(client.NewFileClient(a.cfg.Telegram.DownloadTimeout), objects), nil
}

func (a *app) reminder(gw service.Gateway) *service.Reminder {
	return service.NewReminder(a.store, gw, a.cfg.Reminder.Location(), a.log)
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func runWorker(ctx context.Context, migrate bool) error {
	ctx, stop := signalContext(ctx)
	defer stop()

	cfg, err := config.LoadAll(ctx)
	if err != nil {
		return err
	}
	log := setupLogger(cfg.Env)
	if err := cfg.RequireTelegram(); err != nil {
		return err
	}

	guard, err := instance.Acquire(cfg.Process.PIDFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := guard.Release(); err != nil {
			log.Warn("releasing pid file failed", "err", err)
		}
	}()

	if migrate {
		if err := migrations.Up(cfg.Database.Driver, cfg.Database.URL); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	tg, err := a.telegram()
	if err != nil {
		return err
	}
	dispatcher := a.dispatcher(tg)
	inbound, err := a.inbound(tg)
	if err != nil {
		return err
	}
	verifier := service.NewVerifier(a.store, a.sessions(), tg, log).
		WithSessionTTL(cfg.Telegram.SessionTTL)
	reminder := a.reminder(tg)
	housekeeper := service.NewHousekeeper(a.store, log)

	poller, err := scheduler.New("poll", cfg.Scheduler.Interval, func(ctx context.Context) {
		res := dispatcher.RunCycle(ctx)
		if res.Claimed > 0 || res.Requeued > 0 {
			log.Info("dispatch cycle finished",
				"pending", res.Pending,
				"claimed", res.Claimed,
				"delivered", res.Delivered,
				"failed", res.Failed,
				"conflicts", res.Conflicts,
				"requeued", res.Requeued,
			)
		}
	}, log)
	if err != nil {
		return err
	}

	loc := cfg.Reminder.Location()
	jobs := []struct {
		name string
		expr string
		job  func(context.Context)
	}{
		{"remind-today", cfg.Reminder.TodayCron, sweepJob(reminder, 0, log)},
		{"remind-tomorrow", cfg.Reminder.TomorrowCron, sweepJob(reminder, 1, log)},
		{"cleanup", cfg.Reminder.CleanupCron, func(ctx context.Context) {
			if _, err := housekeeper.Cleanup(ctx); err != nil {
				log.Error("task cleanup failed", "err", err)
			}
		}},
	}
	crons := make([]*scheduler.Cron, 0, len(jobs))
	for _, j := range jobs {
		c, err := scheduler.NewCron(j.name, j.expr, loc, j.job, log)
		if err != nil {
			return err
		}
		crons = append(crons, c)
	}

	e := api.Router(api.NewHandler(poller, reminder, housekeeper, a.store), log)
	e.Use(echoprometheus.NewMiddleware("promed"))
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("promed-bot starting",
		"env", cfg.Env,
		"addr", cfg.Server.Address,
		"interval", cfg.Scheduler.Interval,
		"redis", cfg.Redis.Enabled(),
		"storage", cfg.Storage.Enabled(),
		"timezone", cfg.Reminder.Timezone,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(ctx) })
	for _, c := range crons {
		g.Go(func() error { return c.Run(ctx) })
	}
	g.Go(func() error {
		return bot.NewRouter(verifier, inbound, log).Run(ctx, tg.Bot())
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("promed-bot stopped")
	return err
}

func sweepJob(r *service.Reminder, daysOffset int, log *slog.Logger) func(context.Context) {
	return func(ctx context.Context) {
		if _, err := r.Sweep(ctx, daysOffset); err != nil {
			log.Error("reminder sweep failed", "days_offset", daysOffset, "err", err)
		}
	}
}

func runReminders(ctx context.Context, daysOffset int, out io.Writer) error {
	ctx, stop := signalContext(ctx)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	tg, err := a.telegram()
	if err != nil {
		return err
	}
	res, err := a.reminder(tg).Sweep(ctx, daysOffset)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "matched=%d sent=%d failed=%d\n", res.Matched, res.Sent, res.Failed)
	return err
}

func runCleanup(ctx context.Context, out io.Writer) error {
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := service.NewHousekeeper(a.store, a.log).Cleanup(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "deleted=%d\n", n)
	return err
}

func runMigrations(ctx context.Context, out io.Writer) error {
	cfg, err := config.LoadAll(ctx)
	if err != nil {
		return err
	}
	setupLogger(cfg.Env)

	if err := migrations.Up(cfg.Database.Driver, cfg.Database.URL); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, "migrations applied")
	return err
}
