// Package config parses the indexer's command line. Every option can also be
// set through its environment variable.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/worth-network/worthx/pkg/normalize"
)

// Process modes.
const (
	ModeSync   = "sync"
	ModeStatus = "status"
	ModeAudit  = "audit"
	ModeServer = "server"
)

// Config defines the indexer options.
type Config struct {
	Mode             string   `long:"mode" env:"WORTH_MODE" default:"sync" choice:"sync" choice:"status" choice:"audit" choice:"server" description:"Run mode"`
	DatabaseURL      string   `long:"database-url" env:"DATABASE_URL" description:"Postgres connection url"`
	ChainURL         []string `long:"chain-url" env:"CHAIN_URL" env-delim:"," description:"Chain node JSON-RPC endpoint; repeat or comma separate for failover"`
	TrailBlocks      int      `long:"trail-blocks" env:"TRAIL_BLOCKS" default:"2" description:"Blocks to trail head by in live mode (0-100)"`
	MaxGap           int      `long:"max-gap" env:"MAX_GAP" default:"100" description:"Largest head lag tolerated before the live stream restarts"`
	MutedAccountsURL string   `long:"muted-accounts-url" env:"MUTED_ACCOUNTS_URL" description:"URL of the whitespace separated muted account list"`
	CheckpointsDir   string   `long:"checkpoints-dir" env:"CHECKPOINTS_DIR" default:"checkpoints" description:"Directory of <num>.json.lst block files replayed on initial sync"`
	RedisAddr        string   `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for block events; empty disables publishing"`
	HTTPAddr         string   `long:"http-addr" env:"HTTP_ADDR" default:":8080" description:"Status and metrics listen address"`
	BurnAccount      string   `long:"burn-account" env:"BURN_ACCOUNT" default:"null" description:"Account whose incoming transfers promote posts"`
	PromotionToken   string   `long:"promotion-token" env:"PROMOTION_TOKEN" default:"WBD" description:"Token symbol accepted for promotion"`
	CommunityStart   string   `long:"community-start" env:"COMMUNITY_START" default:"2019-02-22T00:00:00" description:"Names registered after this block time are checked for communities"`
	TestMaxBlock     uint64   `long:"test-max-block" env:"TEST_MAX_BLOCK" description:"Debug: sync below this height, then exit"`
	TestDisableSync  bool     `long:"test-disable-sync" env:"TEST_DISABLE_SYNC" description:"Debug: skip catch-up and stream without a gap limit"`

	communityStart time.Time
}

// Parse parses args (without the program name) and validates the result.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option ranges and the options the chosen mode needs.
func (c *Config) Validate() error {
	if c.TrailBlocks < 0 || c.TrailBlocks > 100 {
		return fmt.Errorf("--trail-blocks must be within [0, 100], got %d", c.TrailBlocks)
	}
	if c.MaxGap < 0 {
		return fmt.Errorf("--max-gap must not be negative, got %d", c.MaxGap)
	}
	if c.DatabaseURL == "" {
		return errors.New("--database-url is required")
	}
	if c.Mode != ModeStatus && len(c.ChainURL) == 0 {
		return errors.New("--chain-url is required")
	}
	start, err := normalize.ParseTime(c.CommunityStart)
	if err != nil {
		return fmt.Errorf("--community-start: %w", err)
	}
	c.communityStart = start
	return nil
}

// CommunityStartTime is the parsed --community-start.
func (c *Config) CommunityStartTime() time.Time {
	return c.communityStart
}
