package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"tinylm/internal/config"
	"tinylm/internal/logger"
	"tinylm/pkg/tokenizer"
)

var (
	configPath    string
	logLevel      string
	logFormat     string
	debug         bool
	tokenizerPath string

	appConfig = config.Default()
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to a .yaml or .json config file",
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func tokenizerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "tokenizer",
			Aliases:     []string{"t"},
			Usage:       "tokenizer.json (HuggingFace) or tokenizer.model (BPE ranks); byte-level encoding when empty",
			Destination: &tokenizerPath,
		},
	}
}

// setup loads the config file and installs the logger. Explicit flags win
// over the file.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return ctx, err
		}
		appConfig = cfg
	}

	level, format := appConfig.Log.Level, appConfig.Log.Format
	if cmd.IsSet("log-level") || level == "" {
		level = logLevel
	}
	if cmd.IsSet("log-format") || format == "" {
		format = logFormat
	}
	if debug {
		level = "debug"
	}

	log, err := logger.NewWithFormat(format, os.Stderr, logger.ParseLevel(level))
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}

func loadTokenizer() (tokenizer.Tokenizer, error) {
	if tokenizerPath == "" {
		return tokenizer.Bytes{}, nil
	}
	tok, err := tokenizer.Load(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return tok, nil
}
