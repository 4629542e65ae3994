// Package jobs holds the consistency audits that reconcile the posts table
// with the posts cache. They run with the live sync stopped.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/indexer/posts"
	"github.com/worth-network/worthx/pkg/rpc"
	"github.com/worth-network/worthx/pkg/utils"
)

// DefaultWindow is the id span scanned per window.
const DefaultWindow int64 = 1_000_000

const contentBatch = 1000

// Job names, used in logs and metrics.
const (
	JobCacheMissing  = "cache_missing"
	JobCacheDeleted  = "cache_deleted"
	JobCacheUndelete = "cache_undelete"
)

type Store interface {
	LastPostID(ctx context.Context) (int64, error)
	MissingCachePosts(ctx context.Context, lbound, ubound int64) ([]models.PostRef, error)
	DeletedCachedPosts(ctx context.Context, lbound, ubound int64) ([]models.PostRef, error)
	DeletedPosts(ctx context.Context, lbound, ubound int64) ([]models.PostRef, error)
	DeleteCachedPost(ctx context.Context, postID int64) error
	DeleteFeedEntries(ctx context.Context, postID int64) (int64, error)
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Cache is the posts cache the audits re-drive.
type Cache interface {
	Insert(author, permlink string, postID int64)
	Flush(ctx context.Context, trx bool) (posts.Counts, error)
}

// Undeleter restores a post wrongly marked deleted.
type Undeleter interface {
	Undelete(ctx context.Context, id int64, c *rpc.Content) error
}

type Content interface {
	GetContentBatch(ctx context.Context, keys []rpc.PostKey) ([]*rpc.Content, error)
}

// Recorder receives per-job outcome counts.
type Recorder interface {
	Audit(job string, repaired, failed int)
}

// WindowReport is the outcome of one id window.
type WindowReport struct {
	Lbound   int64  `json:"lbound"`
	Ubound   int64  `json:"ubound"`
	Found    int    `json:"found"`
	Repaired int    `json:"repaired"`
	Failed   int    `json:"failed"`
	Error    string `json:"error,omitempty"`
}

type Auditor struct {
	logger   *zap.Logger
	store    Store
	cache    Cache
	posts    Undeleter
	chain    Content
	recorder Recorder
	window   int64
}

func New(logger *zap.Logger, store Store, cache Cache, undeleter Undeleter, chain Content, recorder Recorder) *Auditor {
	return &Auditor{
		logger:   logger,
		store:    store,
		cache:    cache,
		posts:    undeleter,
		chain:    chain,
		recorder: recorder,
		window:   DefaultWindow,
	}
}

// SetWindow overrides the window size.
func (a *Auditor) SetWindow(n int64) {
	if n > 0 {
		a.window = n
	}
}

type windowFunc func(ctx context.Context, report *WindowReport) error

// scan runs fn over [i*w+1, (i+1)*w] windows up to the last post id. A
// failing window is recorded and the scan moves on.
func (a *Auditor) scan(ctx context.Context, job string, fn windowFunc) ([]WindowReport, error) {
	last, err := a.store.LastPostID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", job, err)
	}

	var (
		reports []WindowReport
		errs    []error
		start   = time.Now()
	)
	for lbound := int64(1); lbound <= last; lbound += a.window {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report := WindowReport{Lbound: lbound, Ubound: lbound + a.window - 1}
		if err := fn(ctx, &report); err != nil {
			report.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s window [%d, %d]: %w", job, report.Lbound, report.Ubound, err))
		}
		reports = append(reports, report)
		if a.recorder != nil {
			a.recorder.Audit(job, report.Repaired, report.Failed)
		}
		a.logger.Info("[AUDIT] window",
			zap.String("job", job),
			zap.Int64("lbound", report.Lbound),
			zap.Int64("ubound", report.Ubound),
			zap.Int("found", report.Found),
			zap.Int("repaired", report.Repaired),
			zap.Int("failed", report.Failed),
		)
	}
	a.logger.Info("[AUDIT] done", zap.String("job", job), zap.Int("windows", len(reports)), zap.Duration("duration", time.Since(start)))
	return reports, errors.Join(errs...)
}

// AuditCacheMissing inserts cache rows for live posts that have none.
func (a *Auditor) AuditCacheMissing(ctx context.Context) ([]WindowReport, error) {
	return a.scan(ctx, JobCacheMissing, func(ctx context.Context, r *WindowReport) error {
		missing, err := a.store.MissingCachePosts(ctx, r.Lbound, r.Ubound)
		if err != nil {
			return err
		}
		r.Found = len(missing)
		if len(missing) == 0 {
			return nil
		}
		for _, p := range missing {
			a.cache.Insert(p.Author, p.Permlink, p.ID)
		}
		if _, err := a.cache.Flush(ctx, true); err != nil {
			return err
		}
		still, err := a.store.MissingCachePosts(ctx, r.Lbound, r.Ubound)
		if err != nil {
			return err
		}
		r.Failed = len(still)
		r.Repaired = r.Found - r.Failed
		return nil
	})
}

// AuditCacheDeleted drops cache and feed rows of deleted posts.
func (a *Auditor) AuditCacheDeleted(ctx context.Context) ([]WindowReport, error) {
	return a.scan(ctx, JobCacheDeleted, func(ctx context.Context, r *WindowReport) error {
		stale, err := a.store.DeletedCachedPosts(ctx, r.Lbound, r.Ubound)
		if err != nil {
			return err
		}
		r.Found = len(stale)
		for _, p := range stale {
			err := a.store.InTx(ctx, func(ctx context.Context) error {
				if err := a.store.DeleteCachedPost(ctx, p.ID); err != nil {
					return err
				}
				_, err := a.store.DeleteFeedEntries(ctx, p.ID)
				return err
			})
			if err != nil {
				a.logger.Warn("[AUDIT] drop cached post failed", zap.Int64("id", p.ID), zap.Error(err))
				r.Failed++
				continue
			}
			r.Repaired++
		}
		return nil
	})
}

// AuditCacheUndelete restores deleted posts whose content the chain still serves.
func (a *Auditor) AuditCacheUndelete(ctx context.Context) ([]WindowReport, error) {
	return a.scan(ctx, JobCacheUndelete, func(ctx context.Context, r *WindowReport) error {
		deleted, err := a.store.DeletedPosts(ctx, r.Lbound, r.Ubound)
		if err != nil {
			return err
		}
		for _, chunk := range utils.Chunk(deleted, contentBatch) {
			keys := make([]rpc.PostKey, len(chunk))
			for i, p := range chunk {
				keys[i] = rpc.PostKey{Author: p.Author, Permlink: p.Permlink}
			}
			contents, err := a.chain.GetContentBatch(ctx, keys)
			if err != nil {
				return err
			}
			for i, p := range chunk {
				if i >= len(contents) || !contents[i].Exists() {
					continue
				}
				r.Found++
				err := a.store.InTx(ctx, func(ctx context.Context) error {
					return a.posts.Undelete(ctx, p.ID, contents[i])
				})
				if err != nil {
					a.logger.Warn("[AUDIT] undelete failed", zap.String("url", p.URL()), zap.Error(err))
					r.Failed++
					continue
				}
				r.Repaired++
			}
		}
		if r.Repaired > 0 {
			_, err := a.cache.Flush(ctx, true)
			return err
		}
		return nil
	})
}

// RunAll runs the three audits in order and joins their errors.
func (a *Auditor) RunAll(ctx context.Context) (map[string][]WindowReport, error) {
	out := make(map[string][]WindowReport, 3)
	var errs []error
	for _, job := range []struct {
		name string
		fn   func(context.Context) ([]WindowReport, error)
	}{
		{JobCacheDeleted, a.AuditCacheDeleted},
		{JobCacheUndelete, a.AuditCacheUndelete},
		{JobCacheMissing, a.AuditCacheMissing},
	} {
		reports, err := job.fn(ctx)
		out[job.name] = reports
		if err != nil {
			errs = append(errs, err)
		}
	}
	return out, errors.Join(errs...)
}
