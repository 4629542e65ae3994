// Package payments turns burn transfers into promoted-post balances.
package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/normalize"
	"github.com/worth-network/worthx/pkg/rpc"
)

const (
	DefaultBurnAccount = "null"
	DefaultToken       = normalize.WBD
)

type Store interface {
	PostID(ctx context.Context, author, permlink string) (int64, bool, error)
	InsertPayment(ctx context.Context, p *models.Payment) (int64, error)
	PostPromoted(ctx context.Context, id int64) (decimal.Decimal, error)
	SetPostPromoted(ctx context.Context, id int64, amount decimal.Decimal) error
}

// Accounts resolves registered names.
type Accounts interface {
	Exists(name string) bool
	GetID(name string) (int64, error)
}

// PostCache is told about new balances so the cached row follows.
type PostCache interface {
	UpdatePromotedAmount(postID int64, amount decimal.Decimal)
	Vote(author, permlink string, postID int64, voter string)
}

type Phase interface {
	IsInitialSync() bool
}

type Config struct {
	BurnAccount string
	Token       string
}

type Processor struct {
	logger   *zap.Logger
	store    Store
	accounts Accounts
	cache    PostCache
	phase    Phase
	burn     string
	token    string
}

func New(logger *zap.Logger, cfg Config, store Store, accounts Accounts, cache PostCache, phase Phase) *Processor {
	if cfg.BurnAccount == "" {
		cfg.BurnAccount = DefaultBurnAccount
	}
	if cfg.Token == "" {
		cfg.Token = DefaultToken
	}
	return &Processor{
		logger:   logger,
		store:    store,
		accounts: accounts,
		cache:    cache,
		phase:    phase,
		burn:     cfg.BurnAccount,
		token:    cfg.Token,
	}
}

// OpTransfer applies a transfer op. It reports whether a payment was recorded;
// rejected transfers are not errors.
func (p *Processor) OpTransfer(ctx context.Context, op *rpc.TransferOp, txIdx int, num uint64, date time.Time) (bool, error) {
	rec, author, permlink, err := p.validated(ctx, op, txIdx, num)
	if err != nil || rec == nil {
		return false, err
	}

	id, err := p.store.InsertPayment(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("insert payment block %d tx %d: %w", num, txIdx, err)
	}
	rec.ID = id

	current, err := p.store.PostPromoted(ctx, rec.PostID)
	if err != nil {
		return false, err
	}
	balance := current.Add(rec.Amount)
	if err := p.store.SetPostPromoted(ctx, rec.PostID, balance); err != nil {
		return false, fmt.Errorf("update promoted post %d: %w", rec.PostID, err)
	}

	if !p.phase.IsInitialSync() {
		p.cache.UpdatePromotedAmount(rec.PostID, balance)
		p.cache.Vote(author, permlink, rec.PostID, "")
	}
	p.logger.Debug("promotion payment",
		zap.Uint64("block", num),
		zap.String("from", op.From),
		zap.String("post", author+"/"+permlink),
		zap.Stringer("amount", rec.Amount),
		zap.Stringer("balance", balance),
		zap.Time("date", date),
	)
	return true, nil
}

func (p *Processor) validated(ctx context.Context, op *rpc.TransferOp, txIdx int, num uint64) (*models.Payment, string, string, error) {
	if op.To != p.burn {
		return nil, "", "", nil
	}

	amount, token, err := normalize.ParseAmount(op.Amount)
	if err != nil {
		p.reject(num, "unparseable amount", op)
		return nil, "", "", nil
	}
	if token != p.token {
		return nil, "", "", nil
	}

	author, permlink, ok := SplitMemo(op.Memo)
	if !ok {
		p.reject(num, "invalid memo", op)
		return nil, "", "", nil
	}
	if !p.accounts.Exists(author) {
		p.reject(num, "unknown author", op)
		return nil, "", "", nil
	}

	postID, found, err := p.store.PostID(ctx, author, permlink)
	if err != nil {
		return nil, "", "", err
	}
	if !found {
		p.reject(num, "post does not exist", op)
		return nil, "", "", nil
	}

	// a transfer that made it this far was accepted by the chain, so both
	// parties must be registered; anything else is an ordering bug
	from, err := p.accounts.GetID(op.From)
	if err != nil {
		p.logger.Error("payment sender not registered", zap.Uint64("block", num), zap.String("from", op.From))
		return nil, "", "", fmt.Errorf("payment block %d: sender: %w", num, err)
	}
	to, err := p.accounts.GetID(op.To)
	if err != nil {
		p.logger.Error("burn account not registered", zap.Uint64("block", num), zap.String("to", op.To))
		return nil, "", "", fmt.Errorf("payment block %d: burn account: %w", num, err)
	}

	return &models.Payment{
		BlockNum:    num,
		TxIdx:       txIdx,
		PostID:      postID,
		FromAccount: from,
		ToAccount:   to,
		Amount:      amount,
		Token:       token,
	}, author, permlink, nil
}

func (p *Processor) reject(num uint64, reason string, op *rpc.TransferOp) {
	p.logger.Debug("promotion transfer rejected",
		zap.Uint64("block", num),
		zap.String("reason", reason),
		zap.String("from", op.From),
		zap.String("memo", op.Memo),
	)
}

// SplitMemo parses "@author/permlink".
func SplitMemo(memo string) (author, permlink string, ok bool) {
	if memo == "" || memo[0] != '@' || strings.Count(memo, "/") != 1 {
		return "", "", false
	}
	author, permlink, _ = strings.Cut(memo[1:], "/")
	return author, permlink, true
}
