// Package blocks applies chain blocks to the primary tables in strict
// height order and pops blocks orphaned by a fork.
package blocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/indexer/notify"
	"github.com/worth-network/worthx/pkg/rpc"
)

// MaxForkDepth bounds how many blocks VerifyHead will pop.
const MaxForkDepth = 25

var (
	// ErrOutOfOrder means a block is not the successor of the stored head.
	ErrOutOfOrder = errors.New("block out of order")
	// ErrForkTooDeep means the stored head diverges from the chain by more than MaxForkDepth.
	ErrForkTooDeep = errors.New("fork deeper than limit")
)

type Store interface {
	HeadBlock(ctx context.Context) (*models.Block, bool, error)
	InsertBlock(ctx context.Context, b *models.Block) error
	PopBlock(ctx context.Context, b *models.Block) (*models.PopStats, error)
	InsertReblog(ctx context.Context, account string, postID int64, createdAt time.Time) (bool, error)
	DeleteReblog(ctx context.Context, account string, postID int64) (bool, error)
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Accounts interface {
	Register(ctx context.Context, names []string, date time.Time) error
	Exists(name string) bool
	GetID(name string) (int64, error)
	DefaultScore(name string) (int, error)
	Dirty(name string) bool
}

type Posts interface {
	CommentOp(ctx context.Context, op *rpc.CommentOp, date time.Time) error
	DeleteOp(ctx context.Context, op *rpc.DeleteCommentOp) error
	GetIDAndDepth(ctx context.Context, author, permlink string) (int64, int, bool, error)
}

type PostCache interface {
	Vote(author, permlink string, postID int64, voter string)
}

type Payments interface {
	OpTransfer(ctx context.Context, op *rpc.TransferOp, txIdx int, num uint64, date time.Time) (bool, error)
}

type Follows interface {
	FollowOp(ctx context.Context, account string, payload json.RawMessage, date time.Time) error
	Flush(ctx context.Context, trx bool) (int, error)
	ForceRecount(ctx context.Context) error
}

type Feed interface {
	Insert(ctx context.Context, postID, accountID int64, createdAt time.Time) error
	Delete(ctx context.Context, postID int64, accountID *int64) (int64, error)
}

type Notifier interface {
	Write(ctx context.Context, n notify.Notice) error
}

type Phase interface {
	IsInitialSync() bool
}

// Chain is the block lookup VerifyHead compares against.
type Chain interface {
	GetBlock(ctx context.Context, num uint64) (*rpc.Block, error)
}

// Deps bundles the collaborators an Applier dispatches ops to.
type Deps struct {
	Store    Store
	Accounts Accounts
	Posts    Posts
	Cache    PostCache
	Payments Payments
	Follows  Follows
	Feed     Feed
	Notifier Notifier
	Phase    Phase
}

type Applier struct {
	logger *zap.Logger
	Deps

	head *models.Block
}

func New(logger *zap.Logger, deps Deps) *Applier {
	return &Applier{logger: logger, Deps: deps}
}

// Head returns the stored head block, or nil before the first block.
func (a *Applier) Head(ctx context.Context) (*models.Block, error) {
	if a.head != nil {
		return a.head, nil
	}
	head, ok, err := a.Store.HeadBlock(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		a.head = head
	}
	return head, nil
}

// HeadNum returns the stored head height, 0 before the first block.
func (a *Applier) HeadNum(ctx context.Context) (uint64, error) {
	head, err := a.Head(ctx)
	if err != nil || head == nil {
		return 0, err
	}
	return head.Num, nil
}

// ForgetHead drops the cached head. Call it after a rolled back transaction.
func (a *Applier) ForgetHead() {
	a.head = nil
}

// Process applies one block. It must be the successor of the stored head.
func (a *Applier) Process(ctx context.Context, block *rpc.Block) (uint64, error) {
	num, err := block.Num()
	if err != nil {
		return 0, err
	}
	date, err := block.Time()
	if err != nil {
		return 0, err
	}
	head, err := a.Head(ctx)
	if err != nil {
		return 0, err
	}

	var expected uint64 = 1
	if head != nil {
		expected = head.Num + 1
	}
	if num != expected {
		return 0, fmt.Errorf("%w: got %d, expected %d", ErrOutOfOrder, num, expected)
	}
	if head != nil && block.Previous != head.Hash {
		return 0, &rpc.ForkError{Num: num, Expected: head.Hash, Got: block.Previous}
	}

	row := &models.Block{
		Num:       num,
		Hash:      block.BlockID,
		Prev:      block.Previous,
		Txs:       len(block.Transactions),
		Ops:       block.OpCount(),
		CreatedAt: date,
	}
	if err := a.Store.InsertBlock(ctx, row); err != nil {
		return 0, err
	}

	if err := a.registerAccounts(ctx, block, date); err != nil {
		return 0, fmt.Errorf("block %d: %w", num, err)
	}
	for txIdx, tx := range block.Transactions {
		for _, op := range tx.Operations {
			if err := a.applyOp(ctx, op, txIdx, num, date); err != nil {
				return 0, fmt.Errorf("block %d tx %d %s: %w", num, txIdx, op.Type, err)
			}
		}
	}

	a.head = row
	return num, nil
}

// ProcessMulti applies a batch of blocks and the follow-count flush in one transaction.
func (a *Applier) ProcessMulti(ctx context.Context, blocks []*rpc.Block) error {
	err := a.Store.InTx(ctx, func(ctx context.Context) error {
		for _, b := range blocks {
			if _, err := a.Process(ctx, b); err != nil {
				return err
			}
		}
		_, err := a.Follows.Flush(ctx, false)
		return err
	})
	if err != nil {
		a.ForgetHead()
		return err
	}
	return nil
}

// VerifyHead compares the stored head with the chain and pops stored
// blocks until they agree. It returns the number of blocks popped.
func (a *Applier) VerifyHead(ctx context.Context, chain Chain) (int, error) {
	popped := 0
	for {
		a.ForgetHead()
		head, err := a.Head(ctx)
		if err != nil {
			return popped, err
		}
		if head == nil {
			break
		}
		onChain, err := chain.GetBlock(ctx, head.Num)
		if err != nil {
			return popped, err
		}
		if onChain == nil {
			return popped, fmt.Errorf("%w: %d", rpc.ErrBlockMissing, head.Num)
		}
		if onChain.BlockID == head.Hash {
			break
		}
		if popped >= MaxForkDepth {
			return popped, fmt.Errorf("%w: %d blocks below %d", ErrForkTooDeep, popped, head.Num)
		}

		a.logger.Warn("[FORK] popping block", zap.Uint64("num", head.Num), zap.String("hash", head.Hash))
		var stats *models.PopStats
		err = a.Store.InTx(ctx, func(ctx context.Context) error {
			var err error
			stats, err = a.Store.PopBlock(ctx, head)
			return err
		})
		if err != nil {
			return popped, err
		}
		a.logger.Warn("[FORK] popped block",
			zap.Uint64("num", head.Num),
			zap.Int64("posts", stats.Posts),
			zap.Int64("feed_rows", stats.FeedRows),
			zap.Int64("reblogs", stats.Reblogs),
			zap.Int64("follows", stats.Follows),
			zap.Int64("payments", stats.Payments),
		)
		popped++
	}
	a.ForgetHead()

	if popped > 0 {
		a.logger.Warn("[FORK] recovered", zap.Int("popped", popped))
		if err := a.Follows.ForceRecount(ctx); err != nil {
			return popped, err
		}
	}
	return popped, nil
}
