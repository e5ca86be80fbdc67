package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ponder-go/ponder/internal/config"
	"github.com/ponder-go/ponder/internal/db"
	"github.com/ponder-go/ponder/internal/dbservice"
	"github.com/ponder-go/ponder/internal/eventstream"
	"github.com/ponder-go/ponder/internal/historicalsync"
	"github.com/ponder-go/ponder/internal/indexstore"
	"github.com/ponder-go/ponder/internal/logger"
	"github.com/ponder-go/ponder/internal/metrics"
	"github.com/ponder-go/ponder/internal/namespacelock"
	nlmigrations "github.com/ponder-go/ponder/internal/namespacelock/migrations"
	"github.com/ponder-go/ponder/internal/realtimesync"
	internalrpc "github.com/ponder-go/ponder/internal/rpc"
	schemapkg "github.com/ponder-go/ponder/internal/schema"
	"github.com/ponder-go/ponder/internal/scheduler"
	"github.com/ponder-go/ponder/internal/syncstore"
	slmigrations "github.com/ponder-go/ponder/internal/syncstore/migrations"
	"github.com/ponder-go/ponder/pkg/buildid"
	"github.com/ponder-go/ponder/pkg/checkpoint"
	"github.com/ponder-go/ponder/pkg/handlers/erc20"
	pkgsyncstore "github.com/ponder-go/ponder/pkg/syncstore"
)

const version = "0.1.0"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ponder",
	Short:   "Ponder - a blockchain event indexing engine",
	Version: version,
	RunE:    runEngine,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in handlers available to configured contracts",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Built-in handlers:")
		fmt.Println("  - erc20.Transfer")
		fmt.Println("  - erc20.Approval")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "ponder.yaml", "path to configuration file")
	rootCmd.AddCommand(listCmd)
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	logger.SetDefaultLogger(log)
	defer log.Close()

	metricsServer := metrics.NewServer(cfg.Metrics)
	if err := metricsServer.Start(ctx); err != nil {
		return fmt.Errorf("starting metrics server: %w", err)
	}
	defer metricsServer.Stop(ctx)

	schema, err := schemapkg.LoadFile(cfg.SchemaPath)
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}

	if cfg.Database.Kind != "sqlite" {
		return fmt.Errorf("database kind %q is not yet implemented: internal/syncstore.Dialect exposes the seam, but only sqlite is wired end to end", cfg.Database.Kind)
	}

	liveDB, err := db.NewSQLiteDBFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening live database: %w", err)
	}
	defer liveDB.Close()

	cacheDB, err := db.NewSQLiteCacheDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening cache database: %w", err)
	}
	defer cacheDB.Close()

	if err := slmigrations.RunMigrationsDB(liveDB); err != nil {
		return fmt.Errorf("running sync store migrations: %w", err)
	}
	if err := nlmigrations.RunMigrationsDB(liveDB); err != nil {
		return fmt.Errorf("running namespace lock migrations: %w", err)
	}

	syncStore := syncstore.New(liveDB, log)
	lockStore := namespacelock.New(liveDB, log)

	regs, handlerSpecs, err := buildRegistrations(cfg)
	if err != nil {
		return err
	}
	graph, err := schemapkg.Build(handlerSpecs)
	if err != nil {
		return fmt.Errorf("building handler dependency graph: %w", err)
	}

	schemaJSONBytes, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encoding schema: %w", err)
	}
	schemaJSON := string(schemaJSONBytes)

	handlerSources := make([]buildid.HandlerSource, len(regs))
	for i, reg := range regs {
		handlerSources[i] = buildid.HandlerSource{
			Name:        reg.Name,
			Source:      fmt.Sprintf("reads=%v writes=%v", reg.Reads, reg.Writes),
			UpstreamIDs: reg.Reads,
		}
	}

	id, err := buildid.Compute(buildid.Input{
		ConfigSubset:  cfg.Contracts,
		SchemaColumns: schema,
		Handlers:      handlerSources,
	})
	if err != nil {
		return fmt.Errorf("computing build id: %w", err)
	}

	svcCfg := dbservice.Config{}
	if cfg.Options.LeaseTTL != "" {
		if d, err := time.ParseDuration(cfg.Options.LeaseTTL); err == nil {
			svcCfg.LeaseTTL = d
		}
	}
	if cfg.Options.HeartbeatInterval != "" {
		if d, err := time.ParseDuration(cfg.Options.HeartbeatInterval); err == nil {
			svcCfg.HeartbeatInterval = d
		}
	}

	svc := dbservice.New(liveDB, cacheDB, lockStore, cfg.Database.UserNamespace, svcCfg, log)
	setupResult, err := svc.Setup(ctx, schema, schemaJSON, id)
	if err != nil {
		return fmt.Errorf("database service setup: %w", err)
	}
	svc.Start(ctx)

	store := indexstore.New(liveDB, cfg.Database.UserNamespace, id, schema, log)
	defer store.Close()

	queueCfg := internalrpc.QueueConfig{}
	cursors := make([]eventstream.NetworkCursor, 0, len(cfg.Networks))
	pollers := make(map[uint64]*realtimesync.Poller, len(cfg.Networks))

	for _, net := range cfg.Networks {
		rpcClient, err := internalrpc.NewClient(ctx, net.Transport)
		if err != nil {
			return fmt.Errorf("connecting to network %q: %w", net.Name, err)
		}
		queueCfg.MaxConcurrentRequests = net.MaxConcurrentRequests
		queueCfg.MaxRequestsPerSecond = net.MaxRequestsPerSecond
		queueCfg.Retry = parseRetryConfig(net.Retry)
		queue := internalrpc.NewQueue(rpcClient, queueCfg, log)

		sources, err := buildSources(ctx, net.ChainID, cfg.Contracts, syncStore)
		if err != nil {
			return fmt.Errorf("building sources for network %q: %w", net.Name, err)
		}

		syncer := historicalsync.New(historicalsync.Config{
			MaxBlockRange:  cfg.Options.MaxBlockRange,
			MaxConcurrency: cfg.Options.MaxConcurrency,
		}, queue, syncStore, log, nil)

		latest, err := queue.GetLatestBlockHeader(ctx)
		if err != nil {
			return fmt.Errorf("fetching chain tip for network %q: %w", net.Name, err)
		}
		tipBlock := latest.Number.Uint64()

		for _, src := range sources {
			if err := syncer.SyncSource(ctx, src, tipBlock); err != nil {
				return fmt.Errorf("historical sync for network %q: %w", net.Name, err)
			}
		}

		poller := realtimesync.New(realtimesync.Config{
			FinalityBlockCount: cfg.Options.FinalityBlockCount,
		}, net.ChainID, queue, syncStore, store, func(ctx context.Context, fromBlock, toBlock uint64) error {
			for _, src := range sources {
				rangeSrc := src
				rangeSrc.StartBlock = fromBlock
				rangeSrc.EndBlock = &toBlock
				if err := syncer.SyncSource(ctx, rangeSrc, toBlock); err != nil {
					return err
				}
			}
			return nil
		}, log)
		poller.MarkCaughtUp()
		pollers[net.ChainID] = poller

		go func(chainID uint64, p *realtimesync.Poller) {
			if err := p.Run(ctx); err != nil && ctx.Err() == nil {
				log.Errorf("realtime sync for chain %d stopped: %v", chainID, err)
			}
		}(net.ChainID, poller)

		chainID := net.ChainID
		p := poller
		cursors = append(cursors, eventstream.NetworkCursor{
			ChainID: chainID,
			Store:   syncStore,
			SafeCheckpoint: func(ctx context.Context) (checkpoint.Checkpoint, error) {
				if p.State() == realtimesync.Syncing {
					return checkpoint.Zero, nil
				}
				return checkpoint.Max, nil
			},
		})
	}

	networks := make([]scheduler.Network, 0, len(cfg.Networks))
	for _, net := range cfg.Networks {
		networks = append(networks, scheduler.Network{ChainID: net.ChainID, Name: net.Name})
	}

	sched, err := scheduler.New(scheduler.Config{MaxConcurrency: cfg.Options.MaxConcurrency}, graph, regs, store, networks, log)
	if err != nil {
		return fmt.Errorf("building scheduler: %w", err)
	}

	stream := eventstream.New(eventstream.Config{}, cursors, log)

	from, err := checkpoint.Decode(setupResult.FinalizedCheckpoint)
	if err != nil {
		from = checkpoint.Zero
	}

	log.Info("ponder engine started")
	for ctx.Err() == nil {
		batch, err := stream.Next(ctx, from)
		if err != nil {
			log.Errorf("merging event stream: %v", err)
			break
		}
		if len(batch.Events) > 0 {
			if err := sched.ProcessBatch(ctx, batch); err != nil {
				log.Errorf("processing batch: %v", err)
				break
			}
			from = batch.High
		}

		select {
		case <-ctx.Done():
		case <-time.After(500 * time.Millisecond):
		}
	}

	log.Info("shutting down")
	return svc.Kill(context.Background(), schema, checkpoint.Encode(from))
}

// buildRegistrations derives scheduler registrations from every contract's
// declared event filter, by matching event names against the engine's
// built-in handlers. Dynamic ABI-driven handler resolution is out of scope
// (spec.md §1): only the standard ERC20 Transfer/Approval names are wired.
func buildRegistrations(cfg *config.Config) ([]*scheduler.Registration, []schemapkg.HandlerSpec, error) {
	var regs []*scheduler.Registration
	var specs []schemapkg.HandlerSpec

	for _, contract := range cfg.Contracts {
		if contract.Address == "" {
			continue // factory contracts get no built-in handler registration
		}
		address := common.HexToAddress(contract.Address)

		for _, event := range contract.Filter {
			var reg scheduler.Registration
			switch event {
			case "Transfer":
				reg = erc20.NewTransferHandler(address)
			case "Approval":
				reg = erc20.NewApprovalHandler(address)
			default:
				return nil, nil, fmt.Errorf("contract %q: no built-in handler for event %q", contract.Name, event)
			}
			regs = append(regs, &reg)
			specs = append(specs, schemapkg.HandlerSpec{Name: reg.Name, Reads: reg.Reads, Writes: reg.Writes})
		}
	}

	return regs, specs, nil
}

// buildSources registers one LogFilter per non-factory contract on chainID
// and returns the historical-sync Sources for them.
func buildSources(ctx context.Context, chainID uint64, contracts []config.ContractConfig, store pkgsyncstore.Store) ([]historicalsync.Source, error) {
	var sources []historicalsync.Source

	for _, contract := range contracts {
		if contract.Address == "" {
			continue
		}

		address := common.HexToAddress(contract.Address)
		logFilterID, err := store.InsertLogFilter(ctx, pkgsyncstore.LogFilter{
			ChainID:                    chainID,
			Address:                    address,
			IncludeTransactionReceipts: contract.IncludeTransactionReceipts,
		})
		if err != nil {
			return nil, fmt.Errorf("registering log filter for %q: %w", contract.Name, err)
		}

		sources = append(sources, historicalsync.Source{
			ChainID:                    chainID,
			LogFilterID:                &logFilterID,
			StartBlock:                 contract.StartBlock,
			EndBlock:                   contract.EndBlock,
			IncludeTransactionReceipts: contract.IncludeTransactionReceipts,
			Address:                    address,
		})
	}

	return sources, nil
}

func parseRetryConfig(r config.RetryConfig) internalrpc.RetryConfig {
	cfg := internalrpc.DefaultRetryConfig
	if r.MaxAttempts > 0 {
		cfg.MaxAttempts = r.MaxAttempts
	}
	if d, err := time.ParseDuration(r.InitialDelay); err == nil && d > 0 {
		cfg.InitialDelay = d
	}
	if d, err := time.ParseDuration(r.MaxDelay); err == nil && d > 0 {
		cfg.MaxDelay = d
	}
	return cfg
}
