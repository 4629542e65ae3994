package rpc

import (
	"context"
	"fmt"

	"github.com/worth-network/worthx/pkg/utils"
)

// GetAccounts fetches accounts by name, in request order. Names the node
// does not know are absent from the result.
func (c *HTTPClient) GetAccounts(ctx context.Context, names []string) ([]*Account, error) {
	out := make([]*Account, 0, len(names))
	for _, chunk := range utils.Chunk(names, maxAccountsPerRequest) {
		var accounts []*Account
		if err := c.call(ctx, methodGetAccounts, []any{chunk}, &accounts); err != nil {
			return nil, err
		}
		if len(accounts) > len(chunk) {
			return nil, fmt.Errorf("get_accounts: asked %d, got %d", len(chunk), len(accounts))
		}
		out = append(out, accounts...)
	}
	return out, nil
}
