package posts

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/normalize"
	"github.com/worth-network/worthx/pkg/rpc"
)

const (
	previewLen   = 1024
	maxImgURL    = 1024
	maxTags      = 5
	maxChildren  = 32767
	trendScale   = 240000
	hotScale     = 10000
	rsharesUnit  = 10000000
	paidSentinel = "1969"
)

var hideThreshold = decimal.RequireFromString("0.02")

// postLegacy is the part of the chain snapshot kept verbatim in raw_json.
type postLegacy struct {
	ID                  int64             `json:"id"`
	Beneficiaries       []rpc.Beneficiary `json:"beneficiaries"`
	CuratorPayoutValue  json.RawMessage   `json:"curator_payout_value,omitempty"`
	MaxAcceptedPayout   json.RawMessage   `json:"max_accepted_payout,omitempty"`
	ParentAuthor        string            `json:"parent_author"`
	ParentPermlink      string            `json:"parent_permlink"`
	PercentWorthDollars int               `json:"percent_worth_dollars"`
}

func buildRow(id int64, c *rpc.Content, core *models.Post, promoted *decimal.Decimal, mutes Muter) (*models.CachedPost, error) {
	created, err := normalize.ParseTime(c.Created)
	if err != nil {
		return nil, err
	}
	updated, err := normalize.ParseTime(c.LastUpdate)
	if err != nil {
		updated = created
	}
	paid := strings.HasPrefix(c.CashoutTime, paidSentinel)
	payoutRaw := c.CashoutTime
	if paid {
		payoutRaw = c.LastPayout
	}
	payoutAt, err := normalize.ParseTime(payoutRaw)
	if err != nil {
		return nil, fmt.Errorf("payout time: %w", err)
	}

	md := metadata(c.JSONMetadata)
	body := stripNUL(c.Body)
	pending := normalize.WbdAmount(c.PendingPayoutValue)
	payout := normalize.WbdAmount(c.TotalPayoutValue).
		Add(normalize.WbdAmount(c.CuratorPayoutValue)).
		Add(pending)
	rshares, err := decimal.NewFromString(numberOr(c.NetRshares, "0"))
	if err != nil {
		return nil, fmt.Errorf("net_rshares: %w", err)
	}
	stats := voteStats(c.ActiveVotes)
	rep := normalize.RepLog10(c.AuthorReputation.String())

	row := &models.CachedPost{
		PostID:      id,
		Author:      c.Author,
		Permlink:    c.Permlink,
		Category:    core.Category,
		CommunityID: core.CommunityID,
		Depth:       c.Depth,
		Children:    min(c.Children, maxChildren),
		AuthorRep:   rep,
		Title:       stripNUL(c.Title),
		Preview:     truncRunes(body, previewLen),
		Body:        body,
		Votes:       stats.csv,
		Payout:      payout,
		Promoted:    promoted,
		Rshares:     rshares,
		ScTrend:     score(rshares, created, trendScale),
		ScHot:       score(rshares, created, hotScale),
		TotalVotes:  stats.total,
		UpVotes:     stats.up,
		FlagWeight:  stats.flagWeight,
		ImgURL:      imageURL(md),
		IsPaidout:   paid,
		IsGrayed:    rep < 1 || mutes.IsMuted(c.Author),
		IsHidden:    rep < 0 && pending.LessThan(hideThreshold),
		IsNSFW:      slices.Contains(tags(core.Category, md), "nsfw"),
		IsDeclined:  declined(c),
		IsFullPower: c.PercentWorthDollars == 0,
		PayoutAt:    payoutAt,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}
	if len(md) > 0 {
		raw, err := json.Marshal(md)
		if err == nil {
			row.JSON = stripNUL(string(raw))
		}
	}
	legacy, err := json.Marshal(postLegacy{
		ID:                  c.ID,
		Beneficiaries:       c.Beneficiaries,
		CuratorPayoutValue:  c.CuratorPayoutValue,
		MaxAcceptedPayout:   c.MaxAcceptedPayout,
		ParentAuthor:        c.ParentAuthor,
		ParentPermlink:      c.ParentPermlink,
		PercentWorthDollars: c.PercentWorthDollars,
	})
	if err != nil {
		return nil, err
	}
	row.RawJSON = string(legacy)
	return row, nil
}

// score orders posts by log-scaled rshares plus a time bonus.
func score(rshares decimal.Decimal, created time.Time, timescale float64) float64 {
	mod := rshares.Div(decimal.NewFromInt(rsharesUnit)).InexactFloat64()
	order := math.Log10(math.Max(math.Abs(mod), 1))
	sign := -1.0
	if mod > 0 {
		sign = 1
	}
	return sign*order + float64(created.Unix())/timescale
}

type stats struct {
	csv        string
	total      int
	up         int
	flagWeight float64
}

func voteStats(votes []rpc.ActiveVote) stats {
	var (
		out  stats
		neg  decimal.Decimal
		rows = make([]string, 0, len(votes))
	)
	for _, v := range votes {
		rs, err := decimal.NewFromString(numberOr(v.Rshares, "0"))
		if err != nil {
			rs = decimal.Zero
		}
		out.total++
		if rs.IsPositive() {
			out.up++
		} else if rs.IsNegative() {
			neg = neg.Add(rs.Abs())
		}
		rep := normalize.RepLog10(v.Reputation.String())
		rows = append(rows, strings.Join([]string{
			v.Voter,
			rs.String(),
			numberOr(v.Percent, "0"),
			strconv.FormatFloat(rep, 'f', -1, 64),
		}, ","))
	}
	out.csv = strings.Join(rows, "\n")
	digits := len(neg.Div(decimal.NewFromInt(2)).Truncate(0).String())
	out.flagWeight = float64(max(digits-11, 0))
	return out
}

func declined(c *rpc.Content) bool {
	if len(c.MaxAcceptedPayout) > 0 && normalize.WbdAmount(c.MaxAcceptedPayout).IsZero() {
		return true
	}
	return len(c.Beneficiaries) == 1 &&
		c.Beneficiaries[0].Account == "null" &&
		c.Beneficiaries[0].Weight == 10000
}

func metadata(raw string) map[string]any {
	var md map[string]any
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return nil
	}
	return md
}

func imageURL(md map[string]any) string {
	images, ok := md["image"].([]any)
	if !ok || len(images) == 0 {
		return ""
	}
	url, ok := images[0].(string)
	if !ok {
		return ""
	}
	return normalize.SafeImgURL(url, maxImgURL)
}

// tags returns the category plus metadata tags, lowercased, at most five.
func tags(category string, md map[string]any) []string {
	all := []string{category}
	if list, ok := md["tags"].([]any); ok {
		for _, t := range list {
			all = append(all, fmt.Sprint(t))
		}
	}
	if len(all) > maxTags {
		all = all[:maxTags]
	}
	for i, t := range all {
		all[i] = strings.ToLower(t)
	}
	return all
}

func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "[NUL]")
}

func truncRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func numberOr(n json.Number, def string) string {
	if n == "" {
		return def
	}
	return n.String()
}
