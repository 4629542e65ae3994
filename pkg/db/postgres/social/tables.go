package social

import (
	"context"
)

func (db *DB) initAccounts(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS worth_accounts (
			id            SERIAL PRIMARY KEY,
			name          VARCHAR(16) NOT NULL UNIQUE,
			created_at    TIMESTAMP NOT NULL,
			reputation    FLOAT NOT NULL DEFAULT 25,
			display_name  VARCHAR(20) NOT NULL DEFAULT '',
			about         VARCHAR(160) NOT NULL DEFAULT '',
			location      VARCHAR(30) NOT NULL DEFAULT '',
			website       VARCHAR(100) NOT NULL DEFAULT '',
			profile_image VARCHAR(1024) NOT NULL DEFAULT '',
			cover_image   VARCHAR(1024) NOT NULL DEFAULT '',
			followers     INTEGER NOT NULL DEFAULT 0,
			following     INTEGER NOT NULL DEFAULT 0,
			proxy         VARCHAR(16) NOT NULL DEFAULT '',
			post_count    INTEGER NOT NULL DEFAULT 0,
			proxy_weight  FLOAT NOT NULL DEFAULT 0,
			vote_weight   FLOAT NOT NULL DEFAULT 0,
			rank          INTEGER NOT NULL DEFAULT 0,
			active_at     TIMESTAMP NOT NULL DEFAULT '1970-01-01 00:00:00',
			cached_at     TIMESTAMP NOT NULL DEFAULT '1970-01-01 00:00:00',
			raw_json      TEXT
		);

		CREATE INDEX IF NOT EXISTS worth_accounts_ix_cached_at ON worth_accounts (cached_at, name);
		CREATE INDEX IF NOT EXISTS worth_accounts_ix_vote_weight ON worth_accounts (vote_weight);
	`
	return db.Exec(ctx, query)
}

func (db *DB) initPosts(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS worth_posts (
			id           SERIAL PRIMARY KEY,
			parent_id    INTEGER,
			author       VARCHAR(16) NOT NULL,
			permlink     VARCHAR(255) NOT NULL,
			category     VARCHAR(255) NOT NULL DEFAULT '',
			community_id INTEGER,
			depth        SMALLINT NOT NULL DEFAULT 0,
			created_at   TIMESTAMP NOT NULL,
			is_deleted   BOOLEAN NOT NULL DEFAULT false,
			promoted     NUMERIC(10, 3) NOT NULL DEFAULT 0,
			UNIQUE (author, permlink)
		);

		CREATE INDEX IF NOT EXISTS worth_posts_ix_parent ON worth_posts (parent_id);
		CREATE INDEX IF NOT EXISTS worth_posts_ix_created ON worth_posts (created_at);
		CREATE INDEX IF NOT EXISTS worth_posts_ix_deleted ON worth_posts (id) WHERE is_deleted = true;
	`
	return db.Exec(ctx, query)
}

func (db *DB) initPostsCache(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS worth_posts_cache (
			post_id      INTEGER PRIMARY KEY,
			author       VARCHAR(16) NOT NULL,
			permlink     VARCHAR(255) NOT NULL,
			category     VARCHAR(255) NOT NULL DEFAULT '',
			community_id INTEGER,
			depth        SMALLINT NOT NULL DEFAULT 0,
			children     SMALLINT NOT NULL DEFAULT 0,
			author_rep   FLOAT NOT NULL DEFAULT 0,
			title        VARCHAR(255) NOT NULL DEFAULT '',
			preview      VARCHAR(1024) NOT NULL DEFAULT '',
			body         TEXT NOT NULL DEFAULT '',
			votes        TEXT NOT NULL DEFAULT '',
			payout       NUMERIC(10, 3) NOT NULL DEFAULT 0,
			promoted     NUMERIC(10, 3) NOT NULL DEFAULT 0,
			rshares       NUMERIC(30, 0) NOT NULL DEFAULT 0,
			sc_trend      FLOAT NOT NULL DEFAULT 0,
			sc_hot        FLOAT NOT NULL DEFAULT 0,
			total_votes   INTEGER NOT NULL DEFAULT 0,
			up_votes      INTEGER NOT NULL DEFAULT 0,
			flag_weight   FLOAT NOT NULL DEFAULT 0,
			img_url       VARCHAR(1024) NOT NULL DEFAULT '',
			is_paidout    BOOLEAN NOT NULL DEFAULT false,
			is_grayed     BOOLEAN NOT NULL DEFAULT false,
			is_hidden     BOOLEAN NOT NULL DEFAULT false,
			is_nsfw       BOOLEAN NOT NULL DEFAULT false,
			is_declined   BOOLEAN NOT NULL DEFAULT false,
			is_full_power BOOLEAN NOT NULL DEFAULT false,
			payout_at     TIMESTAMP NOT NULL DEFAULT '1970-01-01 00:00:00',
			created_at    TIMESTAMP NOT NULL DEFAULT '1970-01-01 00:00:00',
			updated_at    TIMESTAMP NOT NULL DEFAULT '1970-01-01 00:00:00',
			json          TEXT NOT NULL DEFAULT '',
			raw_json      TEXT
		);

		CREATE INDEX IF NOT EXISTS worth_posts_cache_ix_payout_at ON worth_posts_cache (payout_at) WHERE is_paidout = false;
		CREATE INDEX IF NOT EXISTS worth_posts_cache_ix_community ON worth_posts_cache (community_id) WHERE is_paidout = false;
		CREATE INDEX IF NOT EXISTS worth_posts_cache_ix_sc_trend ON worth_posts_cache (sc_trend) WHERE is_paidout = false AND depth = 0;
		CREATE INDEX IF NOT EXISTS worth_posts_cache_ix_sc_hot ON worth_posts_cache (sc_hot) WHERE is_paidout = false AND depth = 0;
	`
	return db.Exec(ctx, query)
}

func (db *DB) initFeedCache(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS worth_feed_cache (
			post_id    INTEGER NOT NULL,
			account_id INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (account_id, post_id)
		);

		CREATE INDEX IF NOT EXISTS worth_feed_cache_ix_post ON worth_feed_cache (post_id);
		CREATE INDEX IF NOT EXISTS worth_feed_cache_ix_created ON worth_feed_cache (created_at);
	`
	return db.Exec(ctx, query)
}

func (db *DB) initReblogs(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS worth_reblogs (
			account    VARCHAR(16) NOT NULL,
			post_id    INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (account, post_id)
		);

		CREATE INDEX IF NOT EXISTS worth_reblogs_ix_post ON worth_reblogs (post_id);
	`
	return db.Exec(ctx, query)
}

func (db *DB) initFollows(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS worth_follows (
			follower   INTEGER NOT NULL,
			following  INTEGER NOT NULL,
			state      SMALLINT NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (following, follower)
		);

		CREATE INDEX IF NOT EXISTS worth_follows_ix_follower ON worth_follows (follower, following) WHERE state IN (1, 3);
	`
	return db.Exec(ctx, query)
}

func (db *DB) initPayments(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS worth_payments (
			id           SERIAL PRIMARY KEY,
			block_num    INTEGER NOT NULL,
			tx_idx       SMALLINT NOT NULL,
			post_id      INTEGER NOT NULL,
			from_account INTEGER NOT NULL,
			to_account   INTEGER NOT NULL,
			amount       NUMERIC(10, 3) NOT NULL,
			token        VARCHAR(5) NOT NULL
		);

		CREATE INDEX IF NOT EXISTS worth_payments_ix_block ON worth_payments (block_num);
		CREATE INDEX IF NOT EXISTS worth_payments_ix_post ON worth_payments (post_id);
	`
	return db.Exec(ctx, query)
}

func (db *DB) initBlocks(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS worth_blocks (
			num        INTEGER PRIMARY KEY,
			hash       CHAR(40) NOT NULL UNIQUE,
			prev       CHAR(40),
			txs        SMALLINT NOT NULL DEFAULT 0,
			ops        SMALLINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		);
	`
	return db.Exec(ctx, query)
}

func (db *DB) initState(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS worth_state (
			id              SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			initial_sync    BOOLEAN NOT NULL DEFAULT true,
			block_num       INTEGER NOT NULL DEFAULT 0,
			worth_per_mvest NUMERIC(12, 6) NOT NULL DEFAULT 0,
			usd_per_worth   NUMERIC(12, 6) NOT NULL DEFAULT 0,
			wbd_per_worth   NUMERIC(12, 6) NOT NULL DEFAULT 0,
			dgpo            TEXT NOT NULL DEFAULT ''
		);

		INSERT INTO worth_state (id) VALUES (1) ON CONFLICT (id) DO NOTHING;
	`
	return db.Exec(ctx, query)
}

func (db *DB) initCommunities(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS worth_communities (
			id          INTEGER PRIMARY KEY,
			name        VARCHAR(16) NOT NULL UNIQUE,
			type_id     SMALLINT NOT NULL,
			created_at  TIMESTAMP NOT NULL,
			sum_pending NUMERIC(12, 3) NOT NULL DEFAULT 0,
			num_pending INTEGER NOT NULL DEFAULT 0,
			rank        INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS worth_roles (
			account_id   INTEGER NOT NULL,
			community_id INTEGER NOT NULL,
			role_id      SMALLINT NOT NULL DEFAULT 0,
			created_at   TIMESTAMP NOT NULL,
			PRIMARY KEY (account_id, community_id)
		);
	`
	return db.Exec(ctx, query)
}

func (db *DB) initNotifs(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS worth_notifs (
			id           SERIAL PRIMARY KEY,
			type_id      SMALLINT NOT NULL,
			score        SMALLINT NOT NULL,
			created_at   TIMESTAMP NOT NULL,
			src_id       INTEGER,
			dst_id       INTEGER,
			post_id      INTEGER,
			community_id INTEGER,
			payload      TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS worth_notifs_ix_dst ON worth_notifs (dst_id, id) WHERE dst_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS worth_notifs_ix_created ON worth_notifs (created_at);
	`
	return db.Exec(ctx, query)
}
