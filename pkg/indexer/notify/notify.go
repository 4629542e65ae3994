// Package notify writes rows to the notification log.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	models "github.com/worth-network/worthx/pkg/db/models/social"
)

// Type is the notification type_id.
type Type int

const (
	NewCommunity Type = iota + 1
	SetRole
	SetProps
	SetLabel
	MutePost
	UnmutePost
	PinPost
	UnpinPost
	FlagPost
	Error
	Subscribe
	Reply
	ReplyComment
	Reblog
	Follow
	Mention
	Vote
)

// DefaultScore is used when a notice carries no score.
const DefaultScore = 35

var typeNames = map[Type]string{
	NewCommunity: "new_community",
	SetRole:      "set_role",
	SetProps:     "set_props",
	SetLabel:     "set_label",
	MutePost:     "mute_post",
	UnmutePost:   "unmute_post",
	PinPost:      "pin_post",
	UnpinPost:    "unpin_post",
	FlagPost:     "flag_post",
	Error:        "error",
	Subscribe:    "subscribe",
	Reply:        "reply",
	ReplyComment: "reply_comment",
	Reblog:       "reblog",
	Follow:       "follow",
	Mention:      "mention",
	Vote:         "vote",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// social types are high volume and not logged individually
func (t Type) quiet() bool {
	return t >= Reply && t <= Vote
}

// Notice is one notification to write.
type Notice struct {
	Type        Type
	When        time.Time
	SrcID       *int64
	DstID       *int64
	PostID      *int64
	CommunityID *int64
	Score       int
	Payload     string
}

// Store persists notifications.
type Store interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
}

type Writer struct {
	logger *zap.Logger
	store  Store
}

func NewWriter(logger *zap.Logger, store Store) *Writer {
	return &Writer{logger: logger, store: store}
}

// Write stores a notice.
func (w *Writer) Write(ctx context.Context, n Notice) error {
	if _, ok := typeNames[n.Type]; !ok {
		return fmt.Errorf("unknown notification type %d", int(n.Type))
	}
	score := n.Score
	if score == 0 {
		score = DefaultScore
	}
	if !n.Type.quiet() {
		w.logger.Info("[NOTIFY]",
			zap.Stringer("type", n.Type),
			zap.Int64p("src", n.SrcID),
			zap.Int64p("dst", n.DstID),
			zap.Int64p("post", n.PostID),
			zap.Int64p("community", n.CommunityID),
			zap.String("payload", n.Payload),
			zap.Int("score", score),
		)
	}
	row := &models.Notification{
		TypeID:      int(n.Type),
		SrcID:       n.SrcID,
		DstID:       n.DstID,
		PostID:      n.PostID,
		CommunityID: n.CommunityID,
		Score:       score,
		Payload:     n.Payload,
		CreatedAt:   n.When,
	}
	if err := w.store.InsertNotification(ctx, row); err != nil {
		return fmt.Errorf("write %s notification: %w", n.Type, err)
	}
	return nil
}

// ID returns a pointer to id, for the optional Notice fields.
func ID(id int64) *int64 {
	return &id
}
