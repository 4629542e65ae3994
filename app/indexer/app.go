package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/worth-network/worthx/pkg/config"
	"github.com/worth-network/worthx/pkg/db/postgres"
	"github.com/worth-network/worthx/pkg/db/postgres/social"
	"github.com/worth-network/worthx/pkg/indexer/accounts"
	"github.com/worth-network/worthx/pkg/indexer/blocks"
	"github.com/worth-network/worthx/pkg/indexer/community"
	"github.com/worth-network/worthx/pkg/indexer/feed"
	"github.com/worth-network/worthx/pkg/indexer/follow"
	"github.com/worth-network/worthx/pkg/indexer/jobs"
	"github.com/worth-network/worthx/pkg/indexer/mutes"
	"github.com/worth-network/worthx/pkg/indexer/notify"
	"github.com/worth-network/worthx/pkg/indexer/payments"
	"github.com/worth-network/worthx/pkg/indexer/posts"
	"github.com/worth-network/worthx/pkg/indexer/state"
	"github.com/worth-network/worthx/pkg/indexer/syncer"
	"github.com/worth-network/worthx/pkg/logging"
	"github.com/worth-network/worthx/pkg/metrics"
	"github.com/worth-network/worthx/pkg/redis"
	"github.com/worth-network/worthx/pkg/rpc"
	"github.com/worth-network/worthx/pkg/utils"
)

// ErrServerMode is returned for --mode server; the read API is a separate service.
var ErrServerMode = errors.New("server mode is served by the query service, not the indexer")

// MuteReloadSpec reloads the muted-account list at the top of every hour.
const MuteReloadSpec = "0 0 * * * *"

type App struct {
	Logger  *zap.Logger
	Config  *config.Config
	DB      *social.DB
	Chain   *rpc.HTTPClient
	Metrics *metrics.Metrics
	Redis   *redis.Client

	State       *state.DbState
	Accounts    *accounts.Materializer
	Communities *community.Registry
	Mutes       *mutes.List
	Posts       *posts.Posts
	Cache       *posts.Cache
	Follows     *follow.Tracker
	Feed        *feed.Cache
	Blocks      *blocks.Applier
	Sync        *syncer.Controller
	Audits      *jobs.Auditor

	Server *http.Server
	Cron   *cron.Cron
}

// Initialize connects the stores and wires every component. Only the
// status mode skips the chain client.
func Initialize(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New()
	if err != nil {
		return nil, err
	}

	poolConfig := postgres.GetPoolConfigForComponent("indexer")
	db, err := social.New(ctx, logger, cfg.DatabaseURL, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	app := &App{
		Logger:  logger,
		Config:  cfg,
		DB:      db,
		Metrics: metrics.New(),
	}
	app.State = state.New(logging.Component(logger, "state"), db)
	if cfg.Mode == config.ModeStatus {
		return app, nil
	}

	app.Chain = rpc.NewHTTPWithOpts(rpc.Opts{
		Endpoints:       cfg.ChainURL,
		RPS:             utils.EnvInt("RPC_RPS", 50),
		Burst:           utils.EnvInt("RPC_BURST", 100),
		BreakerFailures: 5,
		BreakerCooldown: 10 * time.Second,
		FetchWorkers:    utils.EnvInt("RPC_FETCH_WORKERS", 8),
	})

	if cfg.RedisAddr != "" {
		app.Redis, err = redis.NewClient(ctx, logging.Component(logger, "redis"), cfg.RedisAddr)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	app.wire()
	return app, nil
}

func (a *App) wire() {
	cfg, log := a.Config, a.Logger
	notifier := notify.NewWriter(logging.Component(log, "notify"), a.DB)

	a.Accounts = accounts.New(logging.Component(log, "accounts"), a.DB, a.Chain)
	a.Communities = community.New(logging.Component(log, "community"), a.DB, a.Accounts, notifier)
	a.Accounts.SetRegistrar(a.Communities, cfg.CommunityStartTime())
	a.Mutes = mutes.New(logging.Component(log, "mutes"), cfg.MutedAccountsURL, &http.Client{Timeout: 30 * time.Second})

	a.Feed = feed.New(logging.Component(log, "feed"), a.DB, a.State)
	a.Cache = posts.NewCache(logging.Component(log, "posts_cache"), a.DB, a.Chain, a.Accounts, a.Mutes, notifier, a.State)
	a.Posts = posts.New(logging.Component(log, "posts"), a.DB, a.Cache, a.Feed, a.Accounts, a.Communities, a.State)
	a.Follows = follow.New(logging.Component(log, "follow"), a.DB, a.Accounts, notifier, a.State)
	pay := payments.New(logging.Component(log, "payments"), payments.Config{
		BurnAccount: cfg.BurnAccount,
		Token:       cfg.PromotionToken,
	}, a.DB, a.Accounts, a.Cache, a.State)

	a.Blocks = blocks.New(logging.Component(log, "blocks"), blocks.Deps{
		Store:    a.DB,
		Accounts: a.Accounts,
		Posts:    a.Posts,
		Cache:    a.Cache,
		Payments: pay,
		Follows:  a.Follows,
		Feed:     a.Feed,
		Notifier: notifier,
		Phase:    a.State,
	})

	deps := syncer.Deps{
		Store:       a.DB,
		Chain:       a.Chain,
		State:       a.State,
		Blocks:      a.Blocks,
		Accounts:    a.Accounts,
		Cache:       a.Cache,
		Follows:     a.Follows,
		Feed:        a.Feed,
		Communities: a.Communities,
		Mutes:       a.Mutes,
		Recorder:    a.Metrics,
	}
	if a.Redis != nil {
		deps.Publisher = a.Redis
	}
	a.Sync = syncer.New(logging.Component(log, "sync"), syncer.Options{
		TrailBlocks:     cfg.TrailBlocks,
		MaxGap:          cfg.MaxGap,
		CheckpointsDir:  cfg.CheckpointsDir,
		TestMaxBlock:    cfg.TestMaxBlock,
		TestDisableSync: cfg.TestDisableSync,
	}, deps)

	a.Audits = jobs.New(logging.Component(log, "audit"), a.DB, a.Cache, a.Posts, a.Chain, a.Metrics)
}

// RunSync serves status and metrics, schedules the mute reload and runs the
// sync controller until ctx ends.
func (a *App) RunSync(ctx context.Context) error {
	if err := a.StartServer(ctx); err != nil {
		return err
	}
	if err := a.SetupScheduler(ctx, cron.DefaultLogger); err != nil {
		return err
	}
	a.Cron.Start()
	a.Logger.Info("[INIT] cron started", zap.String("spec", MuteReloadSpec))

	return a.Sync.Run(ctx)
}

// RunAudit runs the consistency audits once. The live sync must be stopped.
func (a *App) RunAudit(ctx context.Context, out io.Writer) error {
	if err := a.Sync.Prepare(ctx); err != nil {
		return err
	}
	reports, err := a.Audits.RunAll(ctx)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return errors.Join(err, enc.Encode(reports))
}

// PrintStatus writes the persisted sync status as JSON.
func (a *App) PrintStatus(ctx context.Context, out io.Writer) error {
	status, err := a.State.Status(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

// SetupScheduler registers the hourly mute list reload.
func (a *App) SetupScheduler(ctx context.Context, logger cron.Logger) error {
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger)))
	_, err := a.Cron.AddFunc(MuteReloadSpec, func() {
		rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		n := a.Mutes.Load(rctx)
		a.Logger.Info("[LIVE] muted accounts reloaded", zap.Int("count", n))
	})
	return err
}

// Stop releases every connection. Safe to call more than once.
func (a *App) Stop() {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
		a.Cron = nil
	}
	if a.Server != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.Server.Shutdown(sctx)
		cancel()
		a.Server = nil
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
		a.Redis = nil
	}
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
	}
	a.Logger.Info("さようなら!")
	_ = a.Logger.Sync()
}
