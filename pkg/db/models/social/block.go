package social

import (
	"time"
)

// Block is the applied-block ledger row. Num is strictly contiguous.
type Block struct {
	Num       uint64    `db:"num" json:"num"`
	Hash      string    `db:"hash" json:"hash"`
	Prev      string    `db:"prev" json:"prev"`
	Txs       int       `db:"txs" json:"txs"`
	Ops       int       `db:"ops" json:"ops"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PopStats counts the rows removed when a forked block is popped.
type PopStats struct {
	Posts       int64 `json:"posts"`
	CachedPosts int64 `json:"cached_posts"`
	FeedRows    int64 `json:"feed_rows"`
	Reblogs     int64 `json:"reblogs"`
	Follows     int64 `json:"follows"`
	Notifs      int64 `json:"notifs"`
	Payments    int64 `json:"payments"`
}
