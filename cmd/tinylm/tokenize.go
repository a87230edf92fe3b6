package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"tinylm/internal/logger"
	"tinylm/internal/status"
	"tinylm/pkg/corpus"
)

func tokenizeCmd() *cli.Command {
	var (
		input          string
		format         string
		output         string
		batchSize      int
		batchLogAmount int
		index          bool
		statusAddr     string
	)

	return &cli.Command{
		Name:  "tokenize",
		Usage: "Tokenize a text or JSONL dataset into a binary token corpus",
		Flags: append(tokenizerFlags(),
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "input dataset (- for stdin)",
				Value:       "-",
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "input format (jsonl, text); inferred from the extension when empty",
				Destination: &format,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output corpus path",
				Required:    true,
				Destination: &output,
			},
			&cli.IntFlag{
				Name:        "batch-size",
				Usage:       "records per encoded batch",
				Destination: &batchSize,
			},
			&cli.IntFlag{
				Name:        "batch-log-amount",
				Usage:       "full batches between progress reports",
				Destination: &batchLogAmount,
			},
			&cli.BoolFlag{
				Name:        "index",
				Usage:       "also write <output>.idx with record boundaries",
				Destination: &index,
			},
			&cli.StringFlag{
				Name:        "status-addr",
				Usage:       "serve progress on this address (e.g. 127.0.0.1:8081)",
				Destination: &statusAddr,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			opts := appConfig.Pipeline
			if cmd.IsSet("batch-size") {
				opts.BatchSize = batchSize
			}
			if cmd.IsSet("batch-log-amount") {
				opts.BatchLogAmount = batchLogAmount
			}
			if cmd.IsSet("index") {
				opts.Index = index
			}
			if !cmd.IsSet("status-addr") {
				statusAddr = appConfig.StatusAddr
			}

			enc, err := loadTokenizer()
			if err != nil {
				return err
			}

			src, closer, err := corpus.OpenSource(input, format)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			pipelineOpts := []corpus.Option{corpus.WithLogger(log)}
			if statusAddr != "" {
				tracker := status.NewTracker()
				pipelineOpts = append(pipelineOpts, corpus.WithObserver(tracker))

				srvCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				go func() {
					log.Info("serving status", "address", statusAddr)
					err := status.NewServer(tracker).Start(srvCtx, statusAddr)
					if err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Warn("status server stopped", "error", err)
					}
				}()
			}

			p, err := corpus.New(enc, opts, pipelineOpts...)
			if err != nil {
				return err
			}

			log.Info("tokenizing",
				"input", input,
				"output", output,
				"vocab_size", enc.VocabSize(),
				"batch_size", opts.BatchSize,
				"batch_log_amount", opts.BatchLogAmount)

			_, err = p.RunFile(ctx, src, output)
			return err
		},
	}
}
