package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/worth-network/worthx/pkg/normalize"
)

// Block is a signed block as returned by condenser_api.get_block.
type Block struct {
	BlockID      string        `json:"block_id"`
	Previous     string        `json:"previous"`
	Timestamp    string        `json:"timestamp"`
	Witness      string        `json:"witness"`
	Transactions []Transaction `json:"transactions"`
}

// Num returns the block height encoded in the block id.
func (b *Block) Num() (uint64, error) {
	return normalize.BlockNum(b.BlockID)
}

// Time returns the block timestamp.
func (b *Block) Time() (time.Time, error) {
	return normalize.ParseTime(b.Timestamp)
}

// OpCount returns the number of operations across all transactions.
func (b *Block) OpCount() int {
	n := 0
	for _, tx := range b.Transactions {
		n += len(tx.Operations)
	}
	return n
}

// Transaction is the operation list of a transaction.
type Transaction struct {
	Operations []Operation `json:"operations"`
}

// Operation is a static-variant operation. Both the legacy ["vote", {...}]
// form and the {"type": "vote_operation", "value": {...}} form decode to
// Type "vote".
type Operation struct {
	Type  string
	Value json.RawMessage
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty operation")
	}
	switch data[0] {
	case '[':
		var pair []json.RawMessage
		if err := json.Unmarshal(data, &pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("operation: expected [type, value], got %d elements", len(pair))
		}
		var name any
		if err := json.Unmarshal(pair[0], &name); err != nil {
			return err
		}
		o.Type = opName(fmt.Sprint(name))
		o.Value = pair[1]
	case '{':
		var obj struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		o.Type = opName(obj.Type)
		o.Value = obj.Value
	default:
		return fmt.Errorf("operation: unexpected json %q", data[:1])
	}
	return nil
}

func (o Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{o.Type, o.Value})
}

// Decode unmarshals the operation value into v.
func (o *Operation) Decode(v any) error {
	if err := json.Unmarshal(o.Value, v); err != nil {
		return fmt.Errorf("decode %s op: %w", o.Type, err)
	}
	return nil
}

func opName(s string) string {
	return strings.TrimSuffix(s, "_operation")
}

// Operation payloads.
type (
	VoteOp struct {
		Voter    string `json:"voter"`
		Author   string `json:"author"`
		Permlink string `json:"permlink"`
		Weight   int    `json:"weight"`
	}

	CommentOp struct {
		ParentAuthor   string `json:"parent_author"`
		ParentPermlink string `json:"parent_permlink"`
		Author         string `json:"author"`
		Permlink       string `json:"permlink"`
		Title          string `json:"title"`
		Body           string `json:"body"`
		JSONMetadata   string `json:"json_metadata"`
	}

	DeleteCommentOp struct {
		Author   string `json:"author"`
		Permlink string `json:"permlink"`
	}

	TransferOp struct {
		From   string          `json:"from"`
		To     string          `json:"to"`
		Amount json.RawMessage `json:"amount"`
		Memo   string          `json:"memo"`
	}

	CustomJSONOp struct {
		ID                   string   `json:"id"`
		RequiredAuths        []string `json:"required_auths"`
		RequiredPostingAuths []string `json:"required_posting_auths"`
		JSON                 string   `json:"json"`
	}

	AccountCreateOp struct {
		Creator        string `json:"creator"`
		NewAccountName string `json:"new_account_name"`
	}

	AccountUpdateOp struct {
		Account string `json:"account"`
	}

	PowOp struct {
		WorkerAccount string `json:"worker_account"`
	}

	Pow2Op struct {
		Work Operation `json:"work"`
	}
)

// WorkerAccount returns the account registered by a pow2 op.
func (p *Pow2Op) WorkerAccount() (string, error) {
	var work struct {
		Input struct {
			WorkerAccount string `json:"worker_account"`
		} `json:"input"`
	}
	if err := p.Work.Decode(&work); err != nil {
		return "", err
	}
	return work.Input.WorkerAccount, nil
}

// Account is the subset of condenser_api.get_accounts fields the indexer reads.
type Account struct {
	Name                string          `json:"name"`
	Created             string          `json:"created"`
	Proxy               string          `json:"proxy"`
	PostCount           int64           `json:"post_count"`
	Reputation          json.Number     `json:"reputation"`
	VestingShares       json.RawMessage `json:"vesting_shares"`
	ReceivedVesting     json.RawMessage `json:"received_vesting_shares"`
	DelegatedVesting    json.RawMessage `json:"delegated_vesting_shares"`
	ProxiedVsfVotes     []json.Number   `json:"proxied_vsf_votes"`
	LastAccountUpdate   string          `json:"last_account_update"`
	LastPost            string          `json:"last_post"`
	LastRootPost        string          `json:"last_root_post"`
	LastVoteTime        string          `json:"last_vote_time"`
	JSONMetadata        string          `json:"json_metadata"`
	PostingJSONMetadata string          `json:"posting_json_metadata"`

	// Raw is the account object exactly as the node returned it.
	Raw json.RawMessage `json:"-"`
}

func (a *Account) UnmarshalJSON(data []byte) error {
	type plain Account
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Account(p)
	a.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// ActiveVote is one vote entry of a post.
type ActiveVote struct {
	Voter      string      `json:"voter"`
	Rshares    json.Number `json:"rshares"`
	Percent    json.Number `json:"percent"`
	Reputation json.Number `json:"reputation"`
	Time       string      `json:"time"`
}

// Beneficiary is a payout route of a post.
type Beneficiary struct {
	Account string `json:"account"`
	Weight  int    `json:"weight"`
}

// Content is a post as returned by condenser_api.get_content. A post that
// does not exist comes back with an empty Author.
type Content struct {
	ID                  int64           `json:"id"`
	Author              string          `json:"author"`
	Permlink            string          `json:"permlink"`
	Category            string          `json:"category"`
	ParentAuthor        string          `json:"parent_author"`
	ParentPermlink      string          `json:"parent_permlink"`
	Title               string          `json:"title"`
	Body                string          `json:"body"`
	JSONMetadata        string          `json:"json_metadata"`
	Created             string          `json:"created"`
	LastUpdate          string          `json:"last_update"`
	CashoutTime         string          `json:"cashout_time"`
	LastPayout          string          `json:"last_payout"`
	Depth               int             `json:"depth"`
	Children            int             `json:"children"`
	NetRshares          json.Number     `json:"net_rshares"`
	AuthorReputation    json.Number     `json:"author_reputation"`
	PendingPayoutValue  json.RawMessage `json:"pending_payout_value"`
	TotalPayoutValue    json.RawMessage `json:"total_payout_value"`
	CuratorPayoutValue  json.RawMessage `json:"curator_payout_value"`
	MaxAcceptedPayout   json.RawMessage `json:"max_accepted_payout"`
	PercentWorthDollars int             `json:"percent_worth_dollars"`
	Beneficiaries       []Beneficiary   `json:"beneficiaries"`
	ActiveVotes         []ActiveVote    `json:"active_votes"`
}

// Exists reports whether the node returned a real post.
func (c *Content) Exists() bool {
	return c != nil && c.Author != ""
}

// PostKey addresses a post by author and permlink.
type PostKey struct {
	Author   string
	Permlink string
}

// DynamicGlobalProperties is the subset of dgpo fields the indexer reads.
type DynamicGlobalProperties struct {
	HeadBlockNumber          uint64          `json:"head_block_number"`
	LastIrreversibleBlockNum uint64          `json:"last_irreversible_block_num"`
	Time                     string          `json:"time"`
	TotalVestingFundWorth    json.RawMessage `json:"total_vesting_fund_worth"`
	TotalVestingShares       json.RawMessage `json:"total_vesting_shares"`
}

// ChainProperties bundles dgpo with derived prices.
type ChainProperties struct {
	DGPO          json.RawMessage
	Head          uint64
	WorthPerMVest decimal.Decimal
	UsdPerWorth   decimal.Decimal
	WbdPerWorth   decimal.Decimal
}
