package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"lottochain/config"
	"lottochain/core"
	"lottochain/crypto"
	"lottochain/history"
	"lottochain/observability/logging"
	telemetry "lottochain/observability/otel"
	"lottochain/rpc"
	"lottochain/storage"
)

const (
	serviceName   = "lottod"
	envName       = "LOTTO_ENV"
	adminPassEnv  = "LOTTO_ADMIN_PASS"
	autoDrawEnv   = "LOTTO_AUTO_DRAW"
	shutdownGrace = 10 * time.Second
)

func main() {
	configFile := flag.String("config", "./lottod.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis spec JSON file (overrides GenesisFile)")
	autoDrawFlag := flag.Bool("auto-draw", false, "Run the draw keeper with the administrator key (overrides LOTTO_AUTO_DRAW and config)")
	flag.Parse()

	provided := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { provided[f.Name] = true })

	if err := run(*configFile, *genesisFlag, provided["auto-draw"], *autoDrawFlag); err != nil {
		slog.Error("lottod exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath, genesisPath string, autoDrawSet, autoDrawValue bool) error {
	env := strings.TrimSpace(os.Getenv(envName))
	cfg, err := config.Load(configPath, config.WithKeystorePassphrase(os.Getenv(adminPassEnv)))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if env == "" {
		env = cfg.Telemetry.Environment
	}
	level, err := logging.ParseLevel(cfg.Telemetry.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.SetupWithOptions(serviceName, env, logging.Options{Level: level})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.OTLPHeaders),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	passphrase := cfg.AdminPassphrase()
	if passphrase == "" {
		passphrase = os.Getenv(adminPassEnv)
	}
	adminKey, err := crypto.LoadFromKeystore(cfg.AdminKeystorePath, passphrase)
	if err != nil {
		return fmt.Errorf("load admin key: %w", err)
	}

	if genesisPath == "" {
		genesisPath = cfg.GenesisFile
	}
	spec, err := resolveGenesis(genesisPath, cfg, adminKey.Address(), time.Now())
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.ResolvePath("state"))
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	store, err := history.Open(cfg.History.Driver, cfg.HistoryDSN())
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("history store opened", slog.String("driver", cfg.History.Driver), logging.MaskDSN("dsn", cfg.History.DSN))

	node, err := core.NewNode(db, core.Options{
		AppID:         cfg.Lottery.AppID,
		Params:        lotteryParams(cfg.Lottery),
		RoundInterval: cfg.RoundInterval(),
		Genesis:       spec,
		History:       store,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	defer node.Close()

	source, oracle, err := randomness(cfg, node)
	if err != nil {
		return err
	}
	node.SetRandomness(source)

	autoDraw, err := resolveAutoDraw(cfg.Lottery.AutoDraw, autoDrawSet, autoDrawValue, os.LookupEnv)
	if err != nil {
		return err
	}

	server := rpc.NewServer(node, rpc.Config{
		AuthToken:   cfg.RPCAuthToken(),
		InvokeRate:  cfg.RPC.InvokeRate,
		InvokeBurst: cfg.RPC.InvokeBurst,
		Beacon:      oracle,
		Logger:      logger,
	})

	logger.Info("node starting",
		slog.Uint64("app_id", node.AppID()),
		slog.String("app_address", node.ApplicationAddress().String()),
		slog.String("admin", adminKey.Address().String()),
		slog.String("beacon", cfg.Beacon.Mode),
		slog.Bool("auto_draw", autoDraw),
		slog.Uint64("round", node.Round()))

	var keeper *core.Keeper
	if autoDraw {
		if keeper, err = core.NewKeeper(node, adminKey, nil, logger); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return node.Run(gctx) })
	g.Go(func() error { return server.Serve(gctx, cfg.RPCAddress) })
	if keeper != nil {
		g.Go(func() error { return keeper.Run(gctx) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("node stopped", slog.Uint64("round", node.Round()))
	return nil
}
