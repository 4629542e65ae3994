// Package mutes holds the externally curated list of muted accounts.
package mutes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/worth-network/worthx/pkg/utils"
)

const maxListBytes = 16 << 20

// List is swapped wholesale on every load, so readers never see a partial set.
type List struct {
	logger *zap.Logger
	url    string
	client *http.Client

	accounts atomic.Pointer[xsync.Map[string, struct{}]]
	fetched  atomic.Pointer[time.Time]
}

func New(logger *zap.Logger, url string, client *http.Client) *List {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	l := &List{logger: logger, url: url, client: client}
	l.accounts.Store(xsync.NewMap[string, struct{}]())
	return l
}

// Load refetches the list. A failed fetch leaves the list empty rather than stale.
func (l *List) Load(ctx context.Context) int {
	set := xsync.NewMap[string, struct{}]()
	if l.url != "" {
		names, err := l.fetch(ctx)
		if err != nil {
			l.logger.Warn("muted accounts fetch failed", zap.String("url", l.url), zap.Error(err))
		}
		for _, name := range names {
			set.Store(name, struct{}{})
		}
	}
	l.accounts.Store(set)
	now := time.Now()
	l.fetched.Store(&now)
	l.logger.Info("muted accounts loaded", zap.Int("muted", set.Size()))
	return set.Size()
}

func (l *List) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListBytes))
	if err != nil {
		return nil, err
	}
	return strings.Fields(string(body)), nil
}

// IsMuted reports whether name is on the list.
func (l *List) IsMuted(name string) bool {
	_, ok := l.accounts.Load().Load(name)
	return ok
}

// Count returns the list size.
func (l *List) Count() int {
	return l.accounts.Load().Size()
}

// FetchedAt is the time of the last load, zero before the first one.
func (l *List) FetchedAt() time.Time {
	if t := l.fetched.Load(); t != nil {
		return *t
	}
	return time.Time{}
}
