package social

import (
	"github.com/shopspring/decimal"
)

// Payment is an append-only promotion payment derived from a transfer to the burn account.
type Payment struct {
	ID          int64           `db:"id" json:"id"`
	BlockNum    uint64          `db:"block_num" json:"block_num"`
	TxIdx       int             `db:"tx_idx" json:"tx_idx"`
	PostID      int64           `db:"post_id" json:"post_id"`
	FromAccount int64           `db:"from_account" json:"from_account"`
	ToAccount   int64           `db:"to_account" json:"to_account"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Token       string          `db:"token" json:"token"`
}
