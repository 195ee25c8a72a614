package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"lottochain/audit"
	"lottochain/config"
	"lottochain/core/selection"
	"lottochain/history"
	"lottochain/observability/logging"
)

func main() {
	configPath := flag.String("config", "./lottod.toml", "Path to node configuration file")
	indexerURL := flag.String("indexer", "", "Indexer base URL (overrides audit.IndexerURL)")
	local := flag.Bool("local", false, "Read the node's history store directly instead of the indexer")
	cyclesFlag := flag.String("cycles", "", "Comma-separated cycle ids to verify (default: every revealed cycle)")
	workers := flag.Int("workers", 0, "Concurrent cycle verifications (overrides audit.Workers)")
	flag.Parse()

	code, err := run(*configPath, *indexerURL, *local, *cyclesFlag, *workers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit failed: %v\n", err)
	}
	os.Exit(code)
}

func run(configPath, indexerURL string, local bool, cyclesFlag string, workers int) (int, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return 2, fmt.Errorf("load config: %w", err)
	}
	level, err := logging.ParseLevel(cfg.Telemetry.LogLevel)
	if err != nil {
		return 2, err
	}
	logger := logging.SetupWithOptions("lotto-audit", cfg.Telemetry.Environment, logging.Options{Writer: os.Stderr, Level: level})

	cycles, err := parseCycles(cyclesFlag)
	if err != nil {
		return 2, err
	}

	var source audit.Source
	if local {
		store, err := history.Open(cfg.History.Driver, cfg.HistoryDSN())
		if err != nil {
			return 2, err
		}
		defer store.Close()
		source = audit.StoreSource{Store: store}
	} else {
		if indexerURL == "" {
			indexerURL = cfg.Audit.IndexerURL
		}
		client, err := audit.NewIndexerClient(audit.ClientConfig{
			BaseURL:           indexerURL,
			RequestsPerSecond: cfg.Audit.RequestsPerSecond,
			PageLimit:         cfg.Audit.PageLimit,
		})
		if err != nil {
			return 2, err
		}
		source = client
	}

	verifier, err := audit.NewVerifier(source, cfg.Lottery.AppID, selection.Counts{
		Tier1: cfg.Lottery.Tier1Winners,
		Tier2: cfg.Lottery.Tier2Winners,
		Tier3: cfg.Lottery.Tier3Winners,
	})
	if err != nil {
		return 2, err
	}

	opts := audit.RunnerOptions{Workers: cfg.Audit.Workers, Logger: logger}
	if workers > 0 {
		opts.Workers = workers
	}
	if path := strings.TrimSpace(cfg.Audit.CachePath); path != "" {
		cache, err := audit.OpenCache(cfg.ResolvePath(path))
		if err != nil {
			return 2, fmt.Errorf("open cache: %w", err)
		}
		defer cache.Close()
		opts.Cache = cache
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := audit.NewRunner(verifier, opts).Run(ctx, cycles)
	if err != nil {
		return 2, err
	}
	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return 2, fmt.Errorf("encode report: %w", err)
	}
	fmt.Println(string(output))
	if !report.Pass() {
		logger.Warn("audit found discrepancies", slog.String("run_id", report.RunID))
		return 1, nil
	}
	return 0, nil
}

func parseCycles(raw string) ([]uint64, error) {
	var out []uint64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cycle %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}
