package config

import (
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]string{"--database-url", "postgres://localhost/worth", "--chain-url", "http://node:8090"})
	require.NoError(t, err)

	assert.Equal(t, ModeSync, cfg.Mode)
	assert.Equal(t, 2, cfg.TrailBlocks)
	assert.Equal(t, 100, cfg.MaxGap)
	assert.Equal(t, "null", cfg.BurnAccount)
	assert.Equal(t, "WBD", cfg.PromotionToken)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, time.Date(2019, 2, 22, 0, 0, 0, 0, time.UTC), cfg.CommunityStartTime())
	assert.False(t, cfg.TestDisableSync)
}

func TestParseEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/worth")
	t.Setenv("CHAIN_URL", "http://a:8090,http://b:8090")
	t.Setenv("TRAIL_BLOCKS", "0")
	t.Setenv("WORTH_MODE", "audit")
	t.Setenv("TEST_MAX_BLOCK", "5000")

	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, ModeAudit, cfg.Mode)
	assert.Equal(t, []string{"http://a:8090", "http://b:8090"}, cfg.ChainURL)
	assert.Equal(t, 0, cfg.TrailBlocks)
	assert.Equal(t, uint64(5000), cfg.TestMaxBlock)
}

func TestValidate(t *testing.T) {
	base := []string{"--database-url", "postgres://localhost/worth"}

	cases := []struct {
		name string
		args []string
		ok   bool
	}{
		{"status needs no chain", append([]string{"--mode", "status"}, base...), true},
		{"sync needs chain", base, false},
		{"trail too large", append([]string{"--chain-url", "http://n", "--trail-blocks", "101"}, base...), false},
		{"negative gap", append([]string{"--chain-url", "http://n", "--max-gap=-1"}, base...), false},
		{"bad community start", append([]string{"--chain-url", "http://n", "--community-start", "soon"}, base...), false},
		{"no database", []string{"--chain-url", "http://n"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.args)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestParseRejectsUnknownMode(t *testing.T) {
	_, err := Parse([]string{"--mode", "replay", "--database-url", "x"})
	var ferr *flags.Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, flags.ErrInvalidChoice, ferr.Type)
}
