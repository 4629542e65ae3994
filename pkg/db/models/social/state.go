package social

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ChainState is the single persisted chain-properties row.
type ChainState struct {
	BlockNum      uint64          `db:"block_num" json:"block_num"`
	WorthPerMVest decimal.Decimal `db:"worth_per_mvest" json:"worth_per_mvest"`
	UsdPerWorth   decimal.Decimal `db:"usd_per_worth" json:"usd_per_worth"`
	WbdPerWorth   decimal.Decimal `db:"wbd_per_worth" json:"wbd_per_worth"`
	DGPO          json.RawMessage `db:"dgpo" json:"dgpo"`
}

// SyncStatus is the snapshot printed by the status mode and served on /status.
type SyncStatus struct {
	InitialSync   bool      `json:"initial_sync"`
	HeadBlock     uint64    `json:"head_block"`
	HeadDate      time.Time `json:"head_date"`
	ChainStateNum uint64    `json:"chain_state_block"`
	Accounts      int64     `json:"accounts"`
	Posts         int64     `json:"posts"`
	CachedPosts   int64     `json:"cached_posts"`
	FeedRows      int64     `json:"feed_rows"`
	Payments      int64     `json:"payments"`
}
