package social

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	models "github.com/worth-network/worthx/pkg/db/models/social"
)

// LastCachedPostID returns the highest cached post id, 0 when empty.
func (db *DB) LastCachedPostID(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COALESCE(MAX(post_id), 0) FROM worth_posts_cache`)
}

const upsertCachedPostSQL = `
	INSERT INTO worth_posts_cache (
		post_id, author, permlink, category, community_id, depth, children, author_rep,
		title, preview, body, votes, payout, promoted, rshares, sc_trend, sc_hot,
		total_votes, up_votes, flag_weight, img_url, is_paidout, is_grayed, is_hidden,
		is_nsfw, is_declined, is_full_power, payout_at, created_at, updated_at, json, raw_json
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		COALESCE($14, (SELECT promoted FROM worth_posts WHERE id = $1), 0),
		$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32
	)
	ON CONFLICT (post_id) DO UPDATE SET
		category = EXCLUDED.category,
		community_id = EXCLUDED.community_id,
		children = EXCLUDED.children,
		author_rep = EXCLUDED.author_rep,
		title = EXCLUDED.title,
		preview = EXCLUDED.preview,
		body = EXCLUDED.body,
		votes = EXCLUDED.votes,
		payout = EXCLUDED.payout,
		promoted = COALESCE($14, worth_posts_cache.promoted),
		rshares = EXCLUDED.rshares,
		sc_trend = EXCLUDED.sc_trend,
		sc_hot = EXCLUDED.sc_hot,
		total_votes = EXCLUDED.total_votes,
		up_votes = EXCLUDED.up_votes,
		flag_weight = EXCLUDED.flag_weight,
		img_url = EXCLUDED.img_url,
		is_paidout = EXCLUDED.is_paidout,
		is_grayed = EXCLUDED.is_grayed,
		is_hidden = EXCLUDED.is_hidden,
		is_nsfw = EXCLUDED.is_nsfw,
		is_declined = EXCLUDED.is_declined,
		is_full_power = EXCLUDED.is_full_power,
		payout_at = EXCLUDED.payout_at,
		created_at = EXCLUDED.created_at,
		updated_at = EXCLUDED.updated_at,
		json = EXCLUDED.json,
		raw_json = EXCLUDED.raw_json
`

// UpsertCachedPosts writes cache rows in one batch. A nil Promoted keeps the stored value.
func (db *DB) UpsertCachedPosts(ctx context.Context, posts []*models.CachedPost) error {
	if len(posts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range posts {
		batch.Queue(upsertCachedPostSQL,
			p.PostID, p.Author, p.Permlink, p.Category, p.CommunityID, p.Depth, p.Children, p.AuthorRep,
			p.Title, p.Preview, p.Body, p.Votes, p.Payout, p.Promoted, p.Rshares, p.ScTrend, p.ScHot,
			p.TotalVotes, p.UpVotes, p.FlagWeight, p.ImgURL, p.IsPaidout, p.IsGrayed, p.IsHidden,
			p.IsNSFW, p.IsDeclined, p.IsFullPower, p.PayoutAt, p.CreatedAt, p.UpdatedAt, p.JSON, p.RawJSON,
		)
	}
	if err := db.SendBatch(ctx, batch); err != nil {
		return fmt.Errorf("upsert cached posts: %w", err)
	}
	return nil
}

// DeleteCachedPost removes the cache row of a post.
func (db *DB) DeleteCachedPost(ctx context.Context, postID int64) error {
	return db.Exec(ctx, `DELETE FROM worth_posts_cache WHERE post_id = $1`, postID)
}

// PaidoutPosts lists cached posts whose payout time has passed but are not marked paid out.
func (db *DB) PaidoutPosts(ctx context.Context, date time.Time) ([]models.PostRef, error) {
	return db.queryRefs(ctx, `
		SELECT post_id, author, permlink FROM worth_posts_cache
		WHERE is_paidout = false AND payout_at <= $1
		ORDER BY post_id
	`, date)
}
