// Package syncer drives the indexer: initial load, catch-up to the last
// irreversible block, and live block following with fork recovery.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/indexer/blocks"
	"github.com/worth-network/worthx/pkg/indexer/posts"
	"github.com/worth-network/worthx/pkg/indexer/state"
	"github.com/worth-network/worthx/pkg/metrics"
	"github.com/worth-network/worthx/pkg/redis"
	"github.com/worth-network/worthx/pkg/rpc"
)

const (
	DefaultChunkSize = 1000
	// liveSpread refreshes at most one in liveSpread dirty accounts per live block.
	liveSpread = 8
	// staleAccounts is how many of the oldest cached accounts are re-queued per sweep.
	staleAccounts = 500
	slowBlock     = time.Second
)

type State interface {
	Initialize(ctx context.Context) error
	IsInitialSync() bool
	FinishInitialSync(ctx context.Context) error
	UpdateChainState(ctx context.Context, chain state.Chain) (uint64, error)
}

type Blocks interface {
	Head(ctx context.Context) (*models.Block, error)
	HeadNum(ctx context.Context) (uint64, error)
	ForgetHead()
	Process(ctx context.Context, block *rpc.Block) (uint64, error)
	ProcessMulti(ctx context.Context, blocks []*rpc.Block) error
	VerifyHead(ctx context.Context, chain blocks.Chain) (int, error)
}

type Accounts interface {
	LoadIDs(ctx context.Context) error
	FetchRanks(ctx context.Context) error
	Flush(ctx context.Context, trx bool, spread int) (int, error)
	DirtyOldest(ctx context.Context, limit int) (int, error)
}

type PostCache interface {
	DirtyPaidouts(ctx context.Context, date time.Time) (int, error)
	Flush(ctx context.Context, trx bool) (posts.Counts, error)
	RecoverMissingPosts(ctx context.Context) error
}

type Follows interface {
	Flush(ctx context.Context, trx bool) (int, error)
	ForceRecount(ctx context.Context) error
}

type Feed interface {
	Rebuild(ctx context.Context, truncate bool) error
}

type Communities interface {
	Load(ctx context.Context) error
	RecalcPendingPayouts(ctx context.Context) error
}

type Mutes interface {
	Load(ctx context.Context) int
}

// Store scopes a unit of work in one transaction.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Recorder interface {
	Committed(phase string, blocks int, head uint64)
	LiveBlock(d time.Duration)
	PostLevels(counts map[string]int)
	Accounts(n int)
	Fork(popped int)
}

// Publisher fans committed blocks out to subscribers. Optional.
type Publisher interface {
	PublishBlock(ctx context.Context, ev redis.BlockEvent)
}

type Options struct {
	TrailBlocks    int
	MaxGap         int
	CheckpointsDir string
	ChunkSize      int
	// TestMaxBlock stops the catch-up below this height and skips live mode.
	TestMaxBlock uint64
	// TestDisableSync skips catch-up and streams without a gap limit.
	TestDisableSync bool
}

type Deps struct {
	Store       Store
	Chain       rpc.Client
	State       State
	Blocks      Blocks
	Accounts    Accounts
	Cache       PostCache
	Follows     Follows
	Feed        Feed
	Communities Communities
	Mutes       Mutes
	Recorder    Recorder
	Publisher   Publisher
}

// Progress is what a Listen run committed before it returned.
type Progress struct {
	Blocks int
	Head   uint64
}

type Controller struct {
	logger *zap.Logger
	opts   Options
	Deps

	schedule []task
	head     atomic.Uint64
}

func New(logger *zap.Logger, opts Options, deps Deps) *Controller {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	c := &Controller{logger: logger, opts: opts, Deps: deps}
	c.schedule = c.maintenance()
	return c
}

// Prepare loads the process-wide caches. It runs once per process.
func (c *Controller) Prepare(ctx context.Context) error {
	if err := c.State.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize state: %w", err)
	}
	if err := c.Accounts.LoadIDs(ctx); err != nil {
		return fmt.Errorf("load account ids: %w", err)
	}
	if err := c.Accounts.FetchRanks(ctx); err != nil {
		return fmt.Errorf("fetch ranks: %w", err)
	}
	if err := c.Communities.Load(ctx); err != nil {
		return fmt.Errorf("load communities: %w", err)
	}
	n := c.Mutes.Load(ctx)
	c.logger.Info("[INIT] muted accounts loaded", zap.Int("count", n))
	return c.Communities.RecalcPendingPayouts(ctx)
}

// Run prepares, finishes or verifies the previous run, then loops between
// catch-up and live mode. Forks and stream gaps restart the loop from the
// durable head. It returns nil when ctx ends.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Prepare(ctx); err != nil {
		return err
	}

	if c.State.IsInitialSync() {
		if err := c.Initial(ctx); err != nil {
			return quiet(ctx, err)
		}
		if err := c.State.FinishInitialSync(ctx); err != nil {
			return err
		}
	} else {
		if err := c.recoverFork(ctx); err != nil {
			return quiet(ctx, err)
		}
		if err := c.Cache.RecoverMissingPosts(ctx); err != nil {
			return quiet(ctx, err)
		}
	}

	if err := c.updateChainState(ctx); err != nil {
		return quiet(ctx, err)
	}

	if c.opts.TestMaxBlock > 0 {
		_, err := c.FromChain(ctx, false)
		return quiet(ctx, err)
	}
	if c.opts.TestDisableSync {
		_, err := c.Listen(ctx)
		return quiet(ctx, err)
	}

	for {
		if _, err := c.FromChain(ctx, false); err != nil {
			return quiet(ctx, err)
		}
		if err := c.sweepPayouts(ctx); err != nil {
			return quiet(ctx, err)
		}

		progress, err := c.Listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if !recoverable(err) {
			return err
		}
		c.logger.Error("[FORK] live stream interrupted, restarting",
			zap.Uint64("head", progress.Head),
			zap.Int("blocks", progress.Blocks),
			zap.Error(err),
		)
		if err := c.recoverFork(ctx); err != nil {
			return quiet(ctx, err)
		}
	}
}

// Initial runs the bulk load and the one-time cache builds.
func (c *Controller) Initial(ctx context.Context) error {
	if !c.State.IsInitialSync() {
		return errors.New("initial sync already finished")
	}

	c.logger.Info("[INIT] *** Initial fast sync ***")
	if c.opts.CheckpointsDir != "" {
		if _, err := c.FromCheckpoints(ctx, c.opts.CheckpointsDir); err != nil {
			return err
		}
	}
	if _, err := c.FromChain(ctx, true); err != nil {
		return err
	}

	c.logger.Info("[INIT] *** Initial cache build ***")
	if err := c.Cache.RecoverMissingPosts(ctx); err != nil {
		return err
	}
	if err := c.Feed.Rebuild(ctx, true); err != nil {
		return err
	}
	return c.Follows.ForceRecount(ctx)
}

// FromChain applies blocks from the stored head up to the last irreversible
// block (exclusive) in chunks. Outside the initial sync each chunk is
// followed by account and post cache flushes.
func (c *Controller) FromChain(ctx context.Context, initial bool) (int, error) {
	head, err := c.Blocks.HeadNum(ctx)
	if err != nil {
		return 0, err
	}
	lbound := head + 1
	ubound := c.opts.TestMaxBlock
	if ubound == 0 {
		if ubound, err = c.Chain.LastIrreversible(ctx); err != nil {
			return 0, fmt.Errorf("last irreversible: %w", err)
		}
	}
	if ubound <= lbound {
		return 0, nil
	}

	phase := metrics.PhaseCatchup
	if initial {
		phase = metrics.PhaseInitial
	}
	c.logger.Info("[SYNC] start", zap.Uint64("block", lbound), zap.Uint64("count", ubound-lbound))

	applied := 0
	for lbound < ubound {
		start := time.Now()
		to := min(lbound+uint64(c.opts.ChunkSize), ubound)
		batch, err := c.Chain.GetBlocksRange(ctx, lbound, to)
		if err != nil {
			return applied, fmt.Errorf("fetch blocks [%d, %d): %w", lbound, to, err)
		}
		fetched := time.Now()
		if err := c.Blocks.ProcessMulti(ctx, batch); err != nil {
			return applied, err
		}
		applied += len(batch)
		c.record(phase, len(batch), to-1)

		last := batch[len(batch)-1]
		if !initial {
			if err := c.flushChunk(ctx, last); err != nil {
				return applied, err
			}
		}

		elapsed := time.Since(start)
		c.logger.Info("[SYNC] Got block",
			zap.Uint64("num", to-1),
			zap.String("timestamp", last.Timestamp),
			zap.Int("blocks", len(batch)),
			zap.Duration("fetch", fetched.Sub(start)),
			zap.Duration("apply", elapsed-fetched.Sub(start)),
			zap.Float64("bps", float64(len(batch))/max(elapsed.Seconds(), 1e-3)),
		)
		lbound = to
	}
	return applied, nil
}

func (c *Controller) flushChunk(ctx context.Context, last *rpc.Block) error {
	n, err := c.Accounts.Flush(ctx, true, 1)
	if err != nil {
		return err
	}
	c.recordAccounts(n)
	date, err := last.Time()
	if err != nil {
		return err
	}
	if _, err := c.Cache.DirtyPaidouts(ctx, date); err != nil {
		return err
	}
	counts, err := c.Cache.Flush(ctx, true)
	if err != nil {
		return err
	}
	c.recordPosts(counts)
	return nil
}

// sweepPayouts queues posts paid out up to the stored head and flushes them.
func (c *Controller) sweepPayouts(ctx context.Context) error {
	head, err := c.Blocks.Head(ctx)
	if err != nil || head == nil {
		return err
	}
	if _, err := c.Cache.DirtyPaidouts(ctx, head.CreatedAt); err != nil {
		return err
	}
	counts, err := c.Cache.Flush(ctx, true)
	if err != nil {
		return err
	}
	c.recordPosts(counts)
	return nil
}

// Listen follows the chain block by block until ctx ends or the stream
// fails. A *rpc.ForkError or a stream gap is recoverable by the caller.
func (c *Controller) Listen(ctx context.Context) (Progress, error) {
	var progress Progress
	if c.opts.TrailBlocks < 0 || c.opts.TrailBlocks > 100 {
		return progress, fmt.Errorf("trail blocks %d out of range [0, 100]", c.opts.TrailBlocks)
	}
	maxGap := c.opts.MaxGap
	if c.opts.TestDisableSync {
		maxGap = 0
	}

	head, err := c.Blocks.HeadNum(ctx)
	if err != nil {
		return progress, err
	}
	progress.Head = head
	stream, err := c.Chain.StreamBlocks(ctx, head+1, c.opts.TrailBlocks, maxGap)
	if err != nil {
		return progress, err
	}

	for {
		block, err := stream.Next(ctx)
		if err != nil {
			return progress, err
		}
		num, err := c.applyLive(ctx, block)
		if err != nil {
			return progress, err
		}
		progress.Blocks++
		progress.Head = num

		if err := c.maintain(ctx, num, block); err != nil {
			return progress, err
		}
	}
}

// applyLive commits one block and its flushes as a single unit of work.
func (c *Controller) applyLive(ctx context.Context, block *rpc.Block) (uint64, error) {
	start := time.Now()
	date, err := block.Time()
	if err != nil {
		return 0, err
	}

	var (
		num     uint64
		follows int
		accts   int
		counts  posts.Counts
	)
	err = c.Store.InTx(ctx, func(ctx context.Context) error {
		var err error
		if num, err = c.Blocks.Process(ctx, block); err != nil {
			return err
		}
		if follows, err = c.Follows.Flush(ctx, false); err != nil {
			return err
		}
		if accts, err = c.Accounts.Flush(ctx, false, liveSpread); err != nil {
			return err
		}
		if _, err = c.Cache.DirtyPaidouts(ctx, date); err != nil {
			return err
		}
		counts, err = c.Cache.Flush(ctx, false)
		return err
	})
	if err != nil {
		c.Blocks.ForgetHead()
		return 0, err
	}

	elapsed := time.Since(start)
	fields := []zap.Field{
		zap.Uint64("num", num),
		zap.String("timestamp", block.Timestamp),
		zap.Int("txs", len(block.Transactions)),
		zap.Int("posts", counts.Insert),
		zap.Int("edits", counts.Update),
		zap.Int("payouts", counts.Payout),
		zap.Int("votes", counts.Upvote),
		zap.Int("counts", counts.Recount),
		zap.Int("accts", accts),
		zap.Int("follows", follows),
		zap.Int64("ms", elapsed.Milliseconds()),
	}
	if elapsed > slowBlock {
		fields = append(fields, zap.Bool("slow", true))
	}
	c.logger.Info("[LIVE] Got block", fields...)

	c.record(metrics.PhaseLive, 1, num)
	c.recordPosts(counts)
	c.recordAccounts(accts)
	if c.Recorder != nil {
		c.Recorder.LiveBlock(elapsed)
	}
	if c.Publisher != nil {
		c.Publisher.PublishBlock(ctx, redis.BlockEvent{
			Num:       num,
			Hash:      block.BlockID,
			Timestamp: date,
			Txs:       len(block.Transactions),
			Phase:     metrics.PhaseLive,
		})
	}
	return num, nil
}

// recoverFork re-reads the durable head and pops blocks the chain no longer has.
func (c *Controller) recoverFork(ctx context.Context) error {
	popped, err := c.Blocks.VerifyHead(ctx, c.Chain)
	if c.Recorder != nil && popped > 0 {
		c.Recorder.Fork(popped)
	}
	return err
}

func (c *Controller) updateChainState(ctx context.Context) error {
	head, err := c.State.UpdateChainState(ctx, c.Chain)
	if err != nil {
		return err
	}
	c.logger.Debug("[SYNC] chain state updated", zap.Uint64("head", head))
	return nil
}

// LastCommitted is the height of the last block this process committed.
func (c *Controller) LastCommitted() uint64 {
	return c.head.Load()
}

func (c *Controller) record(phase string, n int, head uint64) {
	c.head.Store(head)
	if c.Recorder != nil {
		c.Recorder.Committed(phase, n, head)
	}
}

func (c *Controller) recordPosts(counts posts.Counts) {
	if c.Recorder != nil && counts.Total() > 0 {
		c.Recorder.PostLevels(counts.ByLevel())
	}
}

func (c *Controller) recordAccounts(n int) {
	if c.Recorder != nil && n > 0 {
		c.Recorder.Accounts(n)
	}
}

// recoverable reports whether the live loop may restart after err.
func recoverable(err error) bool {
	var fork *rpc.ForkError
	return errors.As(err, &fork) || errors.Is(err, rpc.ErrGapTooLarge)
}

// quiet maps errors caused by shutdown to nil.
func quiet(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
