package syncer

import (
	"context"

	"go.uber.org/zap"

	"github.com/worth-network/worthx/pkg/rpc"
)

// task runs whenever the committed height is a multiple of every. At ~3s
// blocks: 20 is a minute, 100 five minutes, 200 ten, 1200 an hour.
type task struct {
	name  string
	every uint64
	run   func(ctx context.Context) error
}

func (c *Controller) maintenance() []task {
	return []task{
		{name: "ranks", every: 1200, run: func(ctx context.Context) error {
			return c.Accounts.FetchRanks(ctx)
		}},
		{name: "community_payouts", every: 200, run: func(ctx context.Context) error {
			return c.Communities.RecalcPendingPayouts(ctx)
		}},
		{name: "stale_accounts", every: 100, run: func(ctx context.Context) error {
			n, err := c.Accounts.DirtyOldest(ctx, staleAccounts)
			c.logger.Info("[LIVE] 5-min stats", zap.Int("stale_accounts", n))
			return err
		}},
		{name: "chain_state", every: 20, run: c.updateChainState},
	}
}

// maintain runs the tasks due at height num, in schedule order.
func (c *Controller) maintain(ctx context.Context, num uint64, block *rpc.Block) error {
	if num%1200 == 0 {
		c.logger.Warn("head block", zap.Uint64("num", num), zap.String("timestamp", block.Timestamp))
	}
	for _, t := range c.schedule {
		if num%t.every != 0 {
			continue
		}
		if err := t.run(ctx); err != nil {
			c.logger.Error("[LIVE] maintenance failed", zap.String("task", t.name), zap.Uint64("num", num), zap.Error(err))
			return err
		}
	}
	return nil
}
