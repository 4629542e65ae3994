package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/alitto/pond/v2"
)

// GetBlock fetches one block. A null result means the block is not produced yet.
func (c *HTTPClient) GetBlock(ctx context.Context, num uint64) (*Block, error) {
	var raw json.RawMessage
	if err := c.call(ctx, methodGetBlock, []any{num}, &raw); err != nil {
		return nil, err
	}
	return decodeBlock(raw)
}

func decodeBlock(raw json.RawMessage) (*Block, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var b Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	if b.BlockID == "" {
		return nil, nil
	}
	return &b, nil
}

// GetBlocksRange fetches [lbound, ubound) with batched calls spread over a
// bounded worker pool. The result is ordered by height and complete.
func (c *HTTPClient) GetBlocksRange(ctx context.Context, lbound, ubound uint64) ([]*Block, error) {
	if ubound <= lbound {
		return nil, nil
	}
	total := int(ubound - lbound)
	blocks := make([]*Block, total)

	var (
		mu       sync.Mutex
		firstErr error
	)
	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	pool := pond.NewPool(c.fetchWorkers)
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for off := 0; off < total; off += c.batchSize {
		start, end := off, off+c.batchSize
		if end > total {
			end = total
		}
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				return
			}
			params := make([]any, 0, end-start)
			for i := start; i < end; i++ {
				params = append(params, []any{lbound + uint64(i)})
			}
			results, err := c.callBatch(groupCtx, methodGetBlock, params)
			if err != nil {
				setErr(err)
				return
			}
			for i, raw := range results {
				b, err := decodeBlock(raw)
				if err != nil {
					setErr(err)
					return
				}
				blocks[start+i] = b
			}
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		setErr(err)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, b := range blocks {
		num := lbound + uint64(i)
		if b == nil {
			return nil, fmt.Errorf("%w: %d", ErrBlockMissing, num)
		}
		got, err := b.Num()
		if err != nil {
			return nil, err
		}
		if got != num {
			return nil, fmt.Errorf("block %d returned for height %d", got, num)
		}
	}
	return blocks, nil
}
