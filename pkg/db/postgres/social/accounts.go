package social

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	models "github.com/worth-network/worthx/pkg/db/models/social"
)

// AccountIDs loads the whole name -> id registry.
func (db *DB) AccountIDs(ctx context.Context) (map[string]int64, error) {
	rows, err := db.Query(ctx, `SELECT id, name FROM worth_accounts`)
	if err != nil {
		return nil, fmt.Errorf("query account ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan account id: %w", err)
		}
		out[name] = id
	}
	return out, rows.Err()
}

// InsertAccounts creates registry rows for names and returns the ids of all of them.
func (db *DB) InsertAccounts(ctx context.Context, names []string, createdAt time.Time) (map[string]int64, error) {
	if len(names) == 0 {
		return map[string]int64{}, nil
	}
	_, err := db.GetExecutor(ctx).Exec(ctx, `
		INSERT INTO worth_accounts (name, created_at)
		SELECT n, $2 FROM unnest($1::text[]) AS n
		ON CONFLICT (name) DO NOTHING
	`, names, createdAt)
	if err != nil {
		return nil, fmt.Errorf("insert accounts: %w", err)
	}

	rows, err := db.Query(ctx, `SELECT id, name FROM worth_accounts WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("reload account ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64, len(names))
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[name] = id
	}
	return out, rows.Err()
}

// AccountNames returns every registered name.
func (db *DB) AccountNames(ctx context.Context) ([]string, error) {
	return db.queryStrings(ctx, `SELECT name FROM worth_accounts ORDER BY id`)
}

// OldestCachedAccounts returns the names refreshed longest ago.
func (db *DB) OldestCachedAccounts(ctx context.Context, limit int) ([]string, error) {
	return db.queryStrings(ctx, `SELECT name FROM worth_accounts ORDER BY cached_at, name LIMIT $1`, limit)
}

// RankedAccountIDs returns ids ordered by vote weight, heaviest first.
func (db *DB) RankedAccountIDs(ctx context.Context) ([]int64, error) {
	rows, err := db.Query(ctx, `SELECT id FROM worth_accounts ORDER BY vote_weight DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query ranked accounts: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

var (
	updateAccountSQL         = buildAccountUpdate(false)
	updateAccountWithRankSQL = buildAccountUpdate(true)
)

// buildAccountUpdate renders the static UPDATE for models.AccountCacheColumns.
func buildAccountUpdate(withRank bool) string {
	sets := make([]string, 0, len(models.AccountCacheColumns)+1)
	for i, col := range models.AccountCacheColumns {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
	}
	next := len(models.AccountCacheColumns) + 1
	if withRank {
		sets = append(sets, fmt.Sprintf("rank = $%d", next))
		next++
	}
	return fmt.Sprintf("UPDATE worth_accounts SET %s WHERE name = $%d", strings.Join(sets, ", "), next)
}

// UpdateAccountCaches writes one UPDATE per row in a single batch.
func (db *DB) UpdateAccountCaches(ctx context.Context, accounts []*models.AccountCache) error {
	if len(accounts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range accounts {
		args := a.Values()
		query := updateAccountSQL
		if a.Rank != nil {
			query = updateAccountWithRankSQL
			args = append(args, *a.Rank)
		}
		args = append(args, a.Name)
		batch.Queue(query, args...)
	}
	if err := db.SendBatch(ctx, batch); err != nil {
		return fmt.Errorf("update account caches: %w", err)
	}
	return nil
}

func (db *DB) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *DB) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
