package blocks

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/worth-network/worthx/pkg/indexer/notify"
	"github.com/worth-network/worthx/pkg/rpc"
)

// registerAccounts registers every account created in the block before any
// other op of the block can reference it.
func (a *Applier) registerAccounts(ctx context.Context, block *rpc.Block, date time.Time) error {
	var names []string
	for _, tx := range block.Transactions {
		for _, op := range tx.Operations {
			name, err := registeredName(op)
			if err != nil {
				return err
			}
			if name != "" {
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return nil
	}
	return a.Accounts.Register(ctx, names, date)
}

func registeredName(op rpc.Operation) (string, error) {
	switch op.Type {
	case "pow":
		var v rpc.PowOp
		if err := op.Decode(&v); err != nil {
			return "", err
		}
		return v.WorkerAccount, nil
	case "pow2":
		var v rpc.Pow2Op
		if err := op.Decode(&v); err != nil {
			return "", err
		}
		return v.WorkerAccount()
	case "account_create", "account_create_with_delegation", "create_claimed_account":
		var v rpc.AccountCreateOp
		if err := op.Decode(&v); err != nil {
			return "", err
		}
		return v.NewAccountName, nil
	}
	return "", nil
}

func (a *Applier) applyOp(ctx context.Context, op rpc.Operation, txIdx int, num uint64, date time.Time) error {
	switch op.Type {
	case "account_update", "account_update2":
		var v rpc.AccountUpdateOp
		if err := op.Decode(&v); err != nil {
			return err
		}
		a.Accounts.Dirty(v.Account)

	case "comment":
		var v rpc.CommentOp
		if err := op.Decode(&v); err != nil {
			return err
		}
		return a.Posts.CommentOp(ctx, &v, date)

	case "delete_comment":
		var v rpc.DeleteCommentOp
		if err := op.Decode(&v); err != nil {
			return err
		}
		return a.Posts.DeleteOp(ctx, &v)

	case "vote":
		var v rpc.VoteOp
		if err := op.Decode(&v); err != nil {
			return err
		}
		if a.Phase.IsInitialSync() {
			return nil
		}
		a.Accounts.Dirty(v.Author)
		a.Accounts.Dirty(v.Voter)
		a.Cache.Vote(v.Author, v.Permlink, 0, v.Voter)

	case "transfer":
		var v rpc.TransferOp
		if err := op.Decode(&v); err != nil {
			return err
		}
		_, err := a.Payments.OpTransfer(ctx, &v, txIdx, num, date)
		return err

	case "custom_json":
		var v rpc.CustomJSONOp
		if err := op.Decode(&v); err != nil {
			return err
		}
		return a.customJSON(ctx, &v, date)
	}
	return nil
}

// customJSON handles ["follow", {...}] and ["reblog", {...}] payloads under
// the "follow" id. Anything malformed is dropped.
func (a *Applier) customJSON(ctx context.Context, op *rpc.CustomJSONOp, date time.Time) error {
	if op.ID != "follow" {
		return nil
	}
	if len(op.RequiredPostingAuths) != 1 {
		a.logger.Debug("follow custom_json needs one posting auth", zap.Strings("auths", op.RequiredPostingAuths))
		return nil
	}
	account := op.RequiredPostingAuths[0]

	var body []json.RawMessage
	if err := json.Unmarshal([]byte(op.JSON), &body); err != nil || len(body) != 2 {
		a.logger.Debug("invalid follow custom_json", zap.String("account", account), zap.String("json", op.JSON))
		return nil
	}
	var action string
	if err := json.Unmarshal(body[0], &action); err != nil {
		return nil
	}
	switch action {
	case "follow":
		return a.Follows.FollowOp(ctx, account, body[1], date)
	case "reblog":
		return a.reblog(ctx, account, body[1], date)
	}
	return nil
}

type reblogOp struct {
	Account  string `json:"account"`
	Author   string `json:"author"`
	Permlink string `json:"permlink"`
	Delete   string `json:"delete"`
}

func (a *Applier) reblog(ctx context.Context, account string, payload json.RawMessage, date time.Time) error {
	var op reblogOp
	if err := json.Unmarshal(payload, &op); err != nil {
		return nil
	}
	if op.Account != account || op.Author == account || !a.Accounts.Exists(op.Author) {
		return nil
	}
	postID, depth, ok, err := a.Posts.GetIDAndDepth(ctx, op.Author, op.Permlink)
	if err != nil {
		return err
	}
	if !ok || depth > 0 {
		a.logger.Debug("reblog of unknown or non-root post", zap.String("author", op.Author), zap.String("permlink", op.Permlink))
		return nil
	}
	accountID, err := a.Accounts.GetID(account)
	if err != nil {
		return err
	}

	if op.Delete == "delete" {
		removed, err := a.Store.DeleteReblog(ctx, account, postID)
		if err != nil || !removed || a.Phase.IsInitialSync() {
			return err
		}
		_, err = a.Feed.Delete(ctx, postID, &accountID)
		return err
	}

	added, err := a.Store.InsertReblog(ctx, account, postID, date)
	if err != nil || !added || a.Phase.IsInitialSync() {
		return err
	}
	if err := a.Feed.Insert(ctx, postID, accountID, date); err != nil {
		return err
	}
	authorID, err := a.Accounts.GetID(op.Author)
	if err != nil {
		return err
	}
	score, err := a.Accounts.DefaultScore(account)
	if err != nil {
		return err
	}
	return a.Notifier.Write(ctx, notify.Notice{
		Type:   notify.Reblog,
		When:   date,
		SrcID:  notify.ID(accountID),
		DstID:  notify.ID(authorID),
		PostID: notify.ID(postID),
		Score:  score,
	})
}
