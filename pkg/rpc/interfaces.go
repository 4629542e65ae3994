package rpc

import (
	"context"
)

// Client captures the chain calls used by the sync controller and the materializers.
type Client interface {
	// GetBlock returns nil without error when the block is not produced yet.
	GetBlock(ctx context.Context, num uint64) (*Block, error)
	// GetBlocksRange returns blocks [lbound, ubound) in height order.
	GetBlocksRange(ctx context.Context, lbound, ubound uint64) ([]*Block, error)
	StreamBlocks(ctx context.Context, start uint64, trailBlocks, maxGap int) (BlockStream, error)
	HeadBlock(ctx context.Context) (uint64, error)
	LastIrreversible(ctx context.Context) (uint64, error)
	GDGPExtended(ctx context.Context) (*ChainProperties, error)
	GetAccounts(ctx context.Context, names []string) ([]*Account, error)
	GetContentBatch(ctx context.Context, keys []PostKey) ([]*Content, error)
}

// BlockStream yields blocks in height order, trailing head by a fixed number of blocks.
type BlockStream interface {
	Next(ctx context.Context) (*Block, error)
}

var _ Client = (*HTTPClient)(nil)
