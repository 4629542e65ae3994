package rpc

import (
	"context"
	"fmt"
	"time"
)

// BlockInterval is the chain's target block time.
const BlockInterval = 3 * time.Second

// stallPolls is how many consecutive empty polls are tolerated before the
// stream re-checks head and gives up.
const stallPolls = 20

type blockSource interface {
	GetBlock(ctx context.Context, num uint64) (*Block, error)
	HeadBlock(ctx context.Context) (uint64, error)
}

type blockStream struct {
	src      blockSource
	next     uint64
	prevID   string
	trail    int
	maxGap   int
	interval time.Duration
	queue    []*Block
}

// StreamBlocks starts a stream at height start. Blocks are emitted once
// trailBlocks newer blocks have arrived. maxGap <= 0 disables the gap check.
func (c *HTTPClient) StreamBlocks(ctx context.Context, start uint64, trailBlocks, maxGap int) (BlockStream, error) {
	return NewBlockStream(ctx, c, start, trailBlocks, maxGap, c.pollInterval)
}

// NewBlockStream builds a stream over any block source.
func NewBlockStream(ctx context.Context, src blockSource, start uint64, trailBlocks, maxGap int, interval time.Duration) (BlockStream, error) {
	if start == 0 {
		return nil, fmt.Errorf("stream start must be >= 1")
	}
	if trailBlocks < 0 {
		trailBlocks = 0
	}
	s := &blockStream{
		src:      src,
		next:     start,
		trail:    trailBlocks,
		maxGap:   maxGap,
		interval: interval,
	}
	if err := s.checkGap(ctx); err != nil {
		return nil, err
	}
	if start > 1 {
		prev, err := src.GetBlock(ctx, start-1)
		if err != nil {
			return nil, fmt.Errorf("stream parent %d: %w", start-1, err)
		}
		if prev == nil {
			return nil, fmt.Errorf("%w: %d", ErrBlockMissing, start-1)
		}
		s.prevID = prev.BlockID
	}
	return s, nil
}

func (s *blockStream) checkGap(ctx context.Context) error {
	if s.maxGap <= 0 {
		return nil
	}
	head, err := s.src.HeadBlock(ctx)
	if err != nil {
		return err
	}
	if head > s.next && head-s.next > uint64(s.maxGap) {
		return fmt.Errorf("%w: head %d, next %d, max %d", ErrGapTooLarge, head, s.next, s.maxGap)
	}
	return nil
}

// Next blocks until the next block is available, ctx ends, or the chain forks.
func (s *blockStream) Next(ctx context.Context) (*Block, error) {
	for len(s.queue) <= s.trail {
		block, err := s.wait(ctx, s.next)
		if err != nil {
			return nil, err
		}
		if s.prevID != "" && block.Previous != s.prevID {
			return nil, &ForkError{Num: s.next, Expected: s.prevID, Got: block.Previous}
		}
		s.prevID = block.BlockID
		s.queue = append(s.queue, block)
		s.next++
	}
	out := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return out, nil
}

func (s *blockStream) wait(ctx context.Context, num uint64) (*Block, error) {
	misses := 0
	for {
		block, err := s.src.GetBlock(ctx, num)
		if err != nil {
			return nil, err
		}
		if block != nil {
			return block, nil
		}
		misses++
		if misses%stallPolls == 0 {
			head, err := s.src.HeadBlock(ctx)
			if err != nil {
				return nil, err
			}
			if head >= num {
				return nil, fmt.Errorf("%w: block %d not served but head is %d", ErrStreamStalled, num, head)
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.interval):
		}
	}
}
