package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"tinylm/internal/logger"
	"tinylm/pkg/corpus"
	"tinylm/pkg/model"
	"tinylm/pkg/tensor"
)

func forwardCmd() *cli.Command {
	var (
		corpusPath string
		ids        string
		batch      int
		seqLen     int
		steps      int
		positional string
		vocabSize  int
		seed       int64
	)

	return &cli.Command{
		Name:  "forward",
		Usage: "Build a model from the config and run forward passes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "corpus",
				Usage:       "token corpus to read batches from",
				Destination: &corpusPath,
			},
			&cli.StringFlag{
				Name:        "ids",
				Usage:       "token IDs, comma separated, rows separated by ';' (e.g. 5,17,42;1,2,3)",
				Destination: &ids,
			},
			&cli.IntFlag{Name: "batch", Usage: "rows per corpus batch", Value: 4, Destination: &batch},
			&cli.IntFlag{Name: "seq-len", Usage: "tokens per row", Value: 64, Destination: &seqLen},
			&cli.IntFlag{Name: "steps", Usage: "corpus batches to run (0 = all)", Value: 1, Destination: &steps},
			&cli.StringFlag{
				Name:        "positional",
				Usage:       "positional strategy (learned, sinusoidal)",
				Destination: &positional,
			},
			&cli.IntFlag{Name: "vocab-size", Usage: "override the model vocabulary size", Destination: &vocabSize},
			&cli.Int64Flag{Name: "seed", Usage: "weight initialization seed", Destination: &seed},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			cfg := appConfig.Model
			if cmd.IsSet("positional") {
				kind, err := model.ParsePositionalKind(positional)
				if err != nil {
					return err
				}
				cfg.Positional = kind
			}
			if cmd.IsSet("vocab-size") {
				cfg.VocabSize = vocabSize
			}
			if cmd.IsSet("seed") {
				cfg.Seed = seed
			}

			m, err := model.New(cfg)
			if err != nil {
				return err
			}
			log.Info("model ready",
				"positional", m.Positional.Kind(),
				"d_model", cfg.DModel,
				"heads", cfg.NumHeads,
				"decoders", cfg.DecoderCount,
				"params", m.NumParams())

			if ids != "" {
				rows, err := parseIDs(ids)
				if err != nil {
					return err
				}
				return runForward(log, m, rows, 0)
			}
			if corpusPath == "" {
				return cli.Exit("error: one of --corpus or --ids is required", 1)
			}

			r, err := corpus.Open(corpusPath)
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			it := r.Batches(batch, seqLen)
			n := 0
			for steps == 0 || n < steps {
				if err := ctx.Err(); err != nil {
					return err
				}
				b, ok := it.Next()
				if !ok {
					break
				}
				if err := runForward(log, m, b, n); err != nil {
					return err
				}
				n++
			}
			if n == 0 {
				return fmt.Errorf("corpus has %d tokens, fewer than one %dx%d batch", r.Len(), batch, seqLen)
			}
			return nil
		},
	}
}

func runForward(log logger.Logger, m *model.Model, ids [][]uint32, step int) error {
	logits, err := m.Forward(ids)
	if err != nil {
		return fmt.Errorf("forward step %d: %w", step, err)
	}
	log.Info("forward",
		"step", step,
		"logits", logits.ShapeString(),
		"finite", !logits.HasNonFinite(),
		"next_token", lastArgmax(logits))
	return nil
}

// lastArgmax returns the highest-scoring token at the last position of each row.
func lastArgmax(logits *tensor.Tensor) []int {
	batch, seqLen, vocab := logits.Shape[0], logits.Shape[1], logits.Shape[2]
	out := make([]int, batch)
	for b := range out {
		row := logits.Data[(b*seqLen+seqLen-1)*vocab : (b*seqLen+seqLen)*vocab]
		best := 0
		for v := 1; v < vocab; v++ {
			if row[v] > row[best] {
				best = v
			}
		}
		out[b] = best
	}
	return out
}

func parseIDs(s string) ([][]uint32, error) {
	var out [][]uint32
	for _, row := range strings.Split(s, ";") {
		var ids []uint32
		for _, field := range strings.Split(row, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			v, err := strconv.ParseUint(field, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid token ID %q: %w", field, err)
			}
			ids = append(ids, uint32(v))
		}
		out = append(out, ids)
	}
	return out, nil
}
