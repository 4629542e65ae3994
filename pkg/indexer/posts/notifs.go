package posts

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/worth-network/worthx/pkg/indexer/notify"
	"github.com/worth-network/worthx/pkg/normalize"
)

const (
	minVoteRshares = 10_000_000_000
	minVoteContrib = 20
)

// notifications writes reply, mention and vote notices for a refreshed post.
func (c *Cache) notifications(ctx context.Context, f flushedPost) error {
	content := f.content
	authorID, err := c.accounts.GetID(content.Author)
	if err != nil {
		return err
	}
	when, err := normalize.ParseTime(content.LastUpdate)
	if err != nil {
		when = f.row.UpdatedAt
	}

	if f.post.level == LevelInsert {
		if err := c.notifyReply(ctx, f, authorID, when); err != nil {
			return err
		}
	}
	if f.post.level == LevelInsert || f.post.level == LevelUpdate {
		if err := c.notifyMentions(ctx, f, authorID, when); err != nil {
			return err
		}
	}
	if len(f.post.votes) > 0 {
		return c.notifyVotes(ctx, f, authorID)
	}
	return nil
}

func (c *Cache) notifyReply(ctx context.Context, f flushedPost, authorID int64, when time.Time) error {
	parent := f.content.ParentAuthor
	if parent == "" || parent == f.content.Author || c.mutes.IsMuted(parent) {
		return nil
	}
	parentID, err := c.accounts.GetID(parent)
	if err != nil {
		return err
	}
	ignoring, err := c.store.IsIgnoring(ctx, parentID, authorID)
	if err != nil || ignoring {
		return err
	}
	score, err := c.accounts.DefaultScore(f.content.Author)
	if err != nil {
		return err
	}
	typ := notify.ReplyComment
	if f.content.Depth == 1 {
		typ = notify.Reply
	}
	return c.notifier.Write(ctx, notify.Notice{
		Type:   typ,
		When:   when,
		SrcID:  notify.ID(authorID),
		DstID:  notify.ID(parentID),
		PostID: notify.ID(f.post.id),
		Score:  score,
	})
}

func (c *Cache) notifyMentions(ctx context.Context, f flushedPost, authorID int64, when time.Time) error {
	var names []string
	seen := map[string]bool{f.content.Author: true, f.content.ParentAuthor: true}
	for _, name := range Mentions(f.content.Body) {
		if seen[name] || !c.accounts.Exists(name) {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}

	score, err := c.accounts.DefaultScore(f.content.Author)
	if err != nil {
		return err
	}
	limit := 25
	switch {
	case score < 30:
		limit = 5
	case score < 60:
		limit = 10
	}
	if len(names) > limit {
		c.logger.Info("skip mentions", zap.Int("count", len(names)), zap.String("url", f.post.url))
		return nil
	}
	penalty := min(score, 2*(len(names)-1))

	for _, name := range names {
		id, err := c.accounts.GetID(name)
		if err != nil {
			return err
		}
		exists, err := c.store.NotificationExists(ctx, int(notify.Mention), authorID, id, f.post.id)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		ignoring, err := c.store.IsIgnoring(ctx, id, authorID)
		if err != nil {
			return err
		}
		if ignoring {
			continue
		}
		err = c.notifier.Write(ctx, notify.Notice{
			Type:   notify.Mention,
			When:   when,
			SrcID:  notify.ID(authorID),
			DstID:  notify.ID(id),
			PostID: notify.ID(f.post.id),
			Score:  score - penalty,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// notifyVotes notifies the author of votes worth at least $0.020.
func (c *Cache) notifyVotes(ctx context.Context, f flushedPost, authorID int64) error {
	voters := make(map[string]bool, len(f.post.votes))
	for _, v := range f.post.votes {
		voters[v] = true
	}
	ratio := 0.0
	if !f.row.Rshares.IsZero() {
		ratio = f.row.Payout.Div(f.row.Rshares).InexactFloat64()
	}

	for _, vote := range f.content.ActiveVotes {
		if !voters[vote.Voter] {
			continue
		}
		rshares, err := decimal.NewFromString(numberOr(vote.Rshares, "0"))
		if err != nil || rshares.LessThan(decimal.NewFromInt(minVoteRshares)) {
			continue
		}
		contrib := int64(1000 * ratio * rshares.InexactFloat64())
		if contrib < minVoteContrib {
			continue
		}
		voterID, err := c.accounts.GetID(vote.Voter)
		if err != nil {
			return err
		}
		exists, err := c.store.NotificationExists(ctx, int(notify.Vote), voterID, authorID, f.post.id)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		when, err := normalize.ParseTime(vote.Time)
		if err != nil {
			when = f.row.UpdatedAt
		}
		err = c.notifier.Write(ctx, notify.Notice{
			Type:    notify.Vote,
			When:    when,
			SrcID:   notify.ID(voterID),
			DstID:   notify.ID(authorID),
			PostID:  notify.ID(f.post.id),
			Score:   min(100, (len(strconv.FormatInt(contrib, 10))-1)*25),
			Payload: fmt.Sprintf("$%.3f", float64(contrib)/1000),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Mentions returns the lowercased @names in body, deduplicated, in order.
// A name is 3 to 16 chars of [a-z0-9.-], starting and ending alphanumeric,
// not preceded by a word or url char and not followed by a lowercase letter.
func Mentions(body string) []string {
	var (
		out  []string
		seen = map[string]bool{}
	)
	for i := 0; i < len(body); i++ {
		if body[i] != '@' || (i > 0 && blocksMention(body[i-1])) {
			continue
		}
		name, ok := mentionAt(body[i+1:])
		if !ok {
			continue
		}
		name = strings.ToLower(name)
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
		i += len(name)
	}
	return out
}

// mentionAt matches the longest valid name at the start of s.
func mentionAt(s string) (string, bool) {
	run := 0
	for run < len(s) && run < 16 {
		ch := s[run]
		if !isAlnum(ch) && ch != '-' && ch != '.' {
			break
		}
		run++
	}
	if run == 0 || !isAlnum(s[0]) {
		return "", false
	}
	for n := run; n >= 3; n-- {
		if !isAlnum(s[n-1]) {
			continue
		}
		if n < len(s) && s[n] >= 'a' && s[n] <= 'z' {
			continue
		}
		return s[:n], true
	}
	return "", false
}

func blocksMention(ch byte) bool {
	return isAlnum(ch) || strings.IndexByte("_!#$%&*@\\/", ch) >= 0
}

func isAlnum(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9'
}
