package social

import (
	"time"
)

// Follow state bits.
const (
	FollowNone   = 0
	FollowBlog   = 1
	FollowIgnore = 2
)

// Follow is a follower -> following edge.
type Follow struct {
	Follower  int64     `db:"follower" json:"follower"`
	Following int64     `db:"following" json:"following"`
	State     int       `db:"state" json:"state"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Notification is a row in the notification log.
type Notification struct {
	TypeID      int       `db:"type_id" json:"type_id"`
	SrcID       *int64    `db:"src_id" json:"src_id,omitempty"`
	DstID       *int64    `db:"dst_id" json:"dst_id,omitempty"`
	PostID      *int64    `db:"post_id" json:"post_id,omitempty"`
	CommunityID *int64    `db:"community_id" json:"community_id,omitempty"`
	Score       int       `db:"score" json:"score"`
	Payload     string    `db:"payload" json:"payload"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Community is a community account registration.
type Community struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	TypeID    int       `db:"type_id" json:"type_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
