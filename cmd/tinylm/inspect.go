package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"tinylm/pkg/corpus"
)

func inspectCmd() *cli.Command {
	var (
		corpusPath string
		records    int
		head       int
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Show statistics of a token corpus and decode samples",
		Flags: append(tokenizerFlags(),
			&cli.StringFlag{
				Name:        "corpus",
				Usage:       "path to the token corpus",
				Required:    true,
				Destination: &corpusPath,
			},
			&cli.IntFlag{Name: "records", Usage: "decode the first N indexed records", Destination: &records},
			&cli.IntFlag{Name: "head", Usage: "decode the first N tokens", Destination: &head},
		),
		Action: func(_ context.Context, _ *cli.Command) error {
			stat, err := os.Stat(corpusPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: stat corpus %q: %v", corpusPath, err), 1)
			}

			r, err := corpus.Open(corpusPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open corpus: %v", err), 1)
			}
			defer func() { _ = r.Close() }()

			dec, err := loadTokenizer()
			if err != nil {
				return err
			}

			fmt.Printf("Corpus: %s\n", filepath.Base(corpusPath))
			fmt.Printf("  Size:    %s\n", formatBytes(uint64(stat.Size())))
			fmt.Printf("  Tokens:  %d\n", r.Len())
			if n, ok := r.NumRecords(); ok {
				fmt.Printf("  Records: %d\n", n)
			} else {
				fmt.Printf("  Records: unknown (no %s)\n", filepath.Base(corpus.IndexPath(corpusPath)))
			}

			if head > 0 {
				ids, err := r.Slice(0, min(head, r.Len()))
				if err != nil {
					return err
				}
				fmt.Printf("\nFirst %d tokens: %v\n", len(ids), ids)
				fmt.Printf("%q\n", dec.Decode(toInts(ids)))
			}

			if records > 0 {
				n, ok := r.NumRecords()
				if !ok {
					return cli.Exit("error: --records needs an index; re-run tokenize with --index", 1)
				}
				fmt.Println()
				for i := 0; i < min(records, n); i++ {
					ids, err := r.Record(i)
					if err != nil {
						return err
					}
					fmt.Printf("[%d] %d tokens: %q\n", i, len(ids), dec.Decode(toInts(ids)))
				}
			}
			return nil
		},
	}
}

func toInts(ids []uint32) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
