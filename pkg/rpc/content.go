package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/worth-network/worthx/pkg/utils"
)

// GetContentBatch fetches posts by key, in request order. Missing posts are
// returned as Content with an empty Author.
func (c *HTTPClient) GetContentBatch(ctx context.Context, keys []PostKey) ([]*Content, error) {
	out := make([]*Content, 0, len(keys))
	for _, chunk := range utils.Chunk(keys, maxContentPerBatchCall) {
		params := make([]any, len(chunk))
		for i, k := range chunk {
			params[i] = []any{k.Author, k.Permlink}
		}
		results, err := c.callBatch(ctx, methodGetContent, params)
		if err != nil {
			return nil, err
		}
		for i, raw := range results {
			var post Content
			if len(raw) > 0 && string(raw) != "null" {
				if err := json.Unmarshal(raw, &post); err != nil {
					return nil, fmt.Errorf("decode content %s/%s: %w", chunk[i].Author, chunk[i].Permlink, err)
				}
			}
			out = append(out, &post)
		}
	}
	return out, nil
}
