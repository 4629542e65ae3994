package syncer

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/worth-network/worthx/pkg/metrics"
	"github.com/worth-network/worthx/pkg/rpc"
)

const checkpointSuffix = ".json.lst"

// maxLine bounds one block line in a checkpoint file.
const maxLine = 64 << 20

type checkpoint struct {
	num  uint64
	path string
}

// listCheckpoints returns the <num>.json.lst files of dir in height order.
func listCheckpoints(dir string) ([]checkpoint, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+checkpointSuffix))
	if err != nil {
		return nil, err
	}
	out := make([]checkpoint, 0, len(paths))
	for _, p := range paths {
		num, err := strconv.ParseUint(strings.TrimSuffix(filepath.Base(p), checkpointSuffix), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("checkpoint name %s: %w", p, err)
		}
		out = append(out, checkpoint{num: num, path: p})
	}
	slices.SortFunc(out, func(a, b checkpoint) int { return cmp.Compare(a.num, b.num) })
	return out, nil
}

// FromCheckpoints replays on-disk block files. Each file is named by its last
// block height and holds one JSON block per line, continuing from the
// previous file. Blocks at or below the stored head are skipped.
func (c *Controller) FromCheckpoints(ctx context.Context, dir string) (int, error) {
	files, err := listCheckpoints(dir)
	if err != nil {
		return 0, err
	}
	head, err := c.Blocks.HeadNum(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	var lastRead uint64
	for _, f := range files {
		if head < f.num {
			c.logger.Info("[SYNC] load checkpoint", zap.String("path", f.path), zap.Uint64("head", head))
			n, err := c.replayFile(ctx, f.path, head-lastRead)
			applied += n
			if err != nil {
				return applied, err
			}
			head = f.num
		}
		lastRead = f.num
	}
	return applied, nil
}

func (c *Controller) replayFile(ctx context.Context, path string, skip uint64) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1<<20), maxLine)

	var (
		applied int
		line    uint64
		batch   = make([]*rpc.Block, 0, c.opts.ChunkSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.Blocks.ProcessMulti(ctx, batch); err != nil {
			return err
		}
		applied += len(batch)
		num, _ := batch[len(batch)-1].Num()
		c.record(metrics.PhaseInitial, len(batch), num)
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		line++
		if line <= skip {
			continue
		}
		var block rpc.Block
		if err := json.Unmarshal(scanner.Bytes(), &block); err != nil {
			return applied, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		batch = append(batch, &block)
		if len(batch) == c.opts.ChunkSize {
			if err := flush(); err != nil {
				return applied, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return applied, fmt.Errorf("read %s: %w", path, err)
	}
	return applied, flush()
}
