// Command score grades submissions from the command line, either one
// submission against a ground truth or every job of a YAML manifest.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/scorer/internal/adapters/source"
	"github.com/okian/scorer/internal/batch"
	"github.com/okian/scorer/internal/config"
	"github.com/okian/scorer/internal/domain/model"
	"github.com/okian/scorer/internal/domain/scoring"
	"github.com/okian/scorer/internal/gateway"
	"github.com/okian/scorer/pkg/logger"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1 // at least one submission errored
	exitUsage  = 2
)

const usage = `Usage:
  score -submission FILE -truth FILE -metric NAME [options]
  score -jobs manifest.yaml [options]

Refs are local paths or http(s) URLs; .gz files are decompressed.
Metrics: accuracy, f1, roc_auc (auc), cross_entropy (log_loss), mae, mse, rmse.

Options:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// Defaults come from the same layered configuration as the service.
	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	var (
		submission = fs.String("submission", "", "Submission file ref")
		truth      = fs.String("truth", "", "Ground truth file ref")
		metricName = fs.String("metric", "", "Metric name")
		jobs       = fs.String("jobs", "", "YAML manifest of jobs")
		workers    = fs.Int("workers", cfg.MaxInFlight, "Concurrent jobs")
		format     = fs.String("format", batch.FormatText, "Report format: text or json")
		root       = fs.String("root", "", "Directory local refs resolve under (empty: as given)")
		join       = fs.String("join", cfg.JoinPolicy, "Join policy: inner or strict")
		precision  = fs.Int("precision", cfg.ScorePrecision, "Decimals kept on scores; -1 keeps all")
		timeout    = fs.Duration("timeout", cfg.FetchTimeout(), "Timeout of one remote fetch")
		maxBytes   = fs.Int64("max-bytes", cfg.MaxFileBytes, "Size limit of each file")
		logLevel   = fs.String("log-level", "warn", "Log level: debug, info, warn, error")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if err := logger.InitWithWriter(stderr, logger.Format(cfg.LogFormat)); err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if err := logger.SetLevelString(*logLevel); err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	entries, err := entriesFromFlags(*jobs, *submission, *truth, *metricName)
	if err != nil {
		fmt.Fprintln(stderr, err)
		fs.Usage()
		return exitUsage
	}

	policy, err := scoring.ParseJoinPolicy(*join)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	gw := gateway.New(
		source.New(
			source.WithLocalRoot(*root),
			source.WithTimeout(*timeout),
			source.WithMaxBytes(*maxBytes),
		),
		scoring.NewEngine(
			scoring.WithJoinPolicy(policy),
			scoring.WithPrecision(*precision),
			scoring.WithMaxBytes(*maxBytes),
		),
		gateway.WithMaxInFlight(*workers),
	)

	results, stats := batch.Run(ctx, gw, entries, *workers)
	if err := batch.WriteReport(stdout, results, *format); err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if stats.Errored > 0 {
		return exitFailed
	}
	return exitOK
}

func entriesFromFlags(jobs, submission, truth, metricName string) ([]batch.Entry, error) {
	if jobs != "" {
		if submission != "" || truth != "" {
			return nil, errors.New("-jobs cannot be combined with -submission or -truth")
		}
		m, err := batch.LoadManifest(jobs)
		if err != nil {
			return nil, err
		}
		return m.Jobs, nil
	}
	if submission == "" || metricName == "" {
		return nil, errors.New("either -jobs or -submission and -metric are required")
	}
	return []batch.Entry{{
		Name: "submission",
		Request: model.Request{
			SubmissionRef:  submission,
			GroundTruthRef: truth,
			Metric:         metricName,
		},
	}}, nil
}
