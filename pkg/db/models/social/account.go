package social

import (
	"time"
)

// Account is the registry row: an immutable (id, name) pair plus the creation date.
type Account struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AccountCache carries every column the materializer overwrites on refresh.
// Rank is nil when no ranking has been computed yet; the column is then left untouched.
type AccountCache struct {
	Name         string    `db:"name" json:"name"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	Proxy        string    `db:"proxy" json:"proxy"`
	PostCount    int64     `db:"post_count" json:"post_count"`
	Reputation   float64   `db:"reputation" json:"reputation"`
	ProxyWeight  float64   `db:"proxy_weight" json:"proxy_weight"`
	VoteWeight   float64   `db:"vote_weight" json:"vote_weight"`
	ActiveAt     time.Time `db:"active_at" json:"active_at"`
	CachedAt     time.Time `db:"cached_at" json:"cached_at"`
	DisplayName  string    `db:"display_name" json:"display_name"`
	About        string    `db:"about" json:"about"`
	Location     string    `db:"location" json:"location"`
	Website      string    `db:"website" json:"website"`
	ProfileImage string    `db:"profile_image" json:"profile_image"`
	CoverImage   string    `db:"cover_image" json:"cover_image"`
	RawJSON      string    `db:"raw_json" json:"raw_json"`
	Rank         *int      `db:"rank" json:"rank,omitempty"`
}

// AccountCacheColumns is the static field-to-column order used by the UPDATE statements.
var AccountCacheColumns = []string{
	"created_at", "proxy", "post_count", "reputation", "proxy_weight",
	"vote_weight", "active_at", "cached_at", "display_name", "about",
	"location", "website", "profile_image", "cover_image", "raw_json",
}

// Values returns the column values in AccountCacheColumns order.
func (a *AccountCache) Values() []any {
	return []any{
		a.CreatedAt, a.Proxy, a.PostCount, a.Reputation, a.ProxyWeight,
		a.VoteWeight, a.ActiveAt, a.CachedAt, a.DisplayName, a.About,
		a.Location, a.Website, a.ProfileImage, a.CoverImage, a.RawJSON,
	}
}
