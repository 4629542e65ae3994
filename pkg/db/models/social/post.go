package social

import (
	"time"

	"github.com/shopspring/decimal"
)

// Post is the primary post row. Posts are never hard-deleted; IsDeleted marks removal.
type Post struct {
	ID          int64           `db:"id" json:"id"`
	ParentID    *int64          `db:"parent_id" json:"parent_id,omitempty"`
	Author      string          `db:"author" json:"author"`
	Permlink    string          `db:"permlink" json:"permlink"`
	Category    string          `db:"category" json:"category"`
	CommunityID *int64          `db:"community_id" json:"community_id,omitempty"`
	Depth       int             `db:"depth" json:"depth"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	IsDeleted   bool            `db:"is_deleted" json:"is_deleted"`
	Promoted    decimal.Decimal `db:"promoted" json:"promoted"`
}

// PostRef identifies a post by id and url parts.
type PostRef struct {
	ID       int64  `db:"id" json:"id"`
	Author   string `db:"author" json:"author"`
	Permlink string `db:"permlink" json:"permlink"`
}

// URL returns the author/permlink key.
func (r PostRef) URL() string {
	return r.Author + "/" + r.Permlink
}

// CachedPost is a denormalized post snapshot refreshed from the chain.
type CachedPost struct {
	PostID      int64            `db:"post_id" json:"post_id"`
	Author      string           `db:"author" json:"author"`
	Permlink    string           `db:"permlink" json:"permlink"`
	Category    string           `db:"category" json:"category"`
	CommunityID *int64           `db:"community_id" json:"community_id,omitempty"`
	Depth       int              `db:"depth" json:"depth"`
	Children    int              `db:"children" json:"children"`
	AuthorRep   float64          `db:"author_rep" json:"author_rep"`
	Title       string           `db:"title" json:"title"`
	Preview     string           `db:"preview" json:"preview"`
	Body        string           `db:"body" json:"body"`
	Votes       string           `db:"votes" json:"votes"`
	Payout      decimal.Decimal  `db:"payout" json:"payout"`
	Promoted    *decimal.Decimal `db:"promoted" json:"promoted,omitempty"`
	Rshares     decimal.Decimal  `db:"rshares" json:"rshares"`
	ScTrend     float64          `db:"sc_trend" json:"sc_trend"`
	ScHot       float64          `db:"sc_hot" json:"sc_hot"`
	TotalVotes  int              `db:"total_votes" json:"total_votes"`
	UpVotes     int              `db:"up_votes" json:"up_votes"`
	FlagWeight  float64          `db:"flag_weight" json:"flag_weight"`
	ImgURL      string           `db:"img_url" json:"img_url"`
	IsPaidout   bool             `db:"is_paidout" json:"is_paidout"`
	IsGrayed    bool             `db:"is_grayed" json:"is_grayed"`
	IsHidden    bool             `db:"is_hidden" json:"is_hidden"`
	IsNSFW      bool             `db:"is_nsfw" json:"is_nsfw"`
	IsDeclined  bool             `db:"is_declined" json:"is_declined"`
	IsFullPower bool             `db:"is_full_power" json:"is_full_power"`
	PayoutAt    time.Time        `db:"payout_at" json:"payout_at"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
	JSON        string           `db:"json" json:"json"`
	RawJSON     string           `db:"raw_json" json:"raw_json"`
}

// FeedEntry is one materialized feed row.
type FeedEntry struct {
	AccountID int64     `db:"account_id" json:"account_id"`
	PostID    int64     `db:"post_id" json:"post_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Reblog records an account resharing a root post.
type Reblog struct {
	Account   string    `db:"account" json:"account"`
	PostID    int64     `db:"post_id" json:"post_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// UncachedPost is a live post with no cache row yet, plus its promoted balance.
type UncachedPost struct {
	PostRef
	Promoted decimal.Decimal `db:"promoted" json:"promoted"`
}
