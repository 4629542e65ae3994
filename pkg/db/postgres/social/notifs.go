package social

import (
	"context"
	"fmt"

	models "github.com/worth-network/worthx/pkg/db/models/social"
)

// InsertNotification appends a notification row.
func (db *DB) InsertNotification(ctx context.Context, n *models.Notification) error {
	return db.Exec(ctx, `
		INSERT INTO worth_notifs (type_id, score, created_at, src_id, dst_id, post_id, community_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.TypeID, n.Score, n.CreatedAt, n.SrcID, n.DstID, n.PostID, n.CommunityID, n.Payload)
}

// NotificationExists reports whether a notification of the type already links src, dst and post.
func (db *DB) NotificationExists(ctx context.Context, typeID int, srcID, dstID, postID int64) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM worth_notifs
			WHERE type_id = $1 AND src_id = $2 AND dst_id = $3 AND post_id = $4
		)
	`, typeID, srcID, dstID, postID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("notification exists: %w", err)
	}
	return exists, nil
}
