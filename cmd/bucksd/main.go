// Package main provides the bucks ledger daemon serving
// bucks.v1.BuckService over gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/crypdoebucks/internal/config"
	"github.com/cory-johannsen/crypdoebucks/internal/game/combat"
	"github.com/cory-johannsen/crypdoebucks/internal/game/dice"
	"github.com/cory-johannsen/crypdoebucks/internal/game/ruleset"
	"github.com/cory-johannsen/crypdoebucks/internal/ledger"
	"github.com/cory-johannsen/crypdoebucks/internal/observability"
	"github.com/cory-johannsen/crypdoebucks/internal/scripting"
	"github.com/cory-johannsen/crypdoebucks/internal/server"
	"github.com/cory-johannsen/crypdoebucks/internal/service"
	"github.com/cory-johannsen/crypdoebucks/internal/storage/postgres"
	"github.com/cory-johannsen/crypdoebucks/internal/storage/sqlite"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger("bucksd", cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting bucks ledger",
		zap.String("grpc_addr", cfg.GRPC.Addr()),
		zap.String("storage", cfg.Ledger.Storage),
		zap.String("mint_policy", cfg.Mint.Policy),
	)

	shutdownTracing, err := observability.SetupTracing(ctx, "bucksd", cfg.Tracing)
	if err != nil {
		logger.Fatal("initializing tracing", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flushing traces", zap.Error(err))
		}
	}()

	lifecycle := server.NewLifecycle(logger)

	styles, err := loadStyles(cfg.Ledger.StylesDir)
	if err != nil {
		logger.Fatal("loading fighting styles", zap.Error(err))
	}
	logger.Info("fighting styles loaded", zap.Int("count", len(styles.IDs())))

	store, err := openStore(ctx, cfg, logger, lifecycle)
	if err != nil {
		logger.Fatal("opening ledger store", zap.Error(err))
	}

	policy, closePolicy, err := newMintPolicy(cfg.Mint, logger)
	if err != nil {
		logger.Fatal("creating mint policy", zap.Error(err))
	}
	defer closePolicy()

	roll, err := dice.Parse(cfg.Combat.Roll)
	if err != nil {
		logger.Fatal("parsing combat roll", zap.Error(err))
	}

	clock := ledger.SystemClock{}
	bus := ledger.NewBus(logger)
	minter := ledger.NewMinter(store, policy, styles, bus, clock, logger)
	resolver := combat.NewResolver(dice.NewLoggedRoller(roll, logger), styles, cfg.Combat.DrawMargin)
	engine := combat.NewEngine(store, resolver, cfg.Combat.Cooldown, clock, dice.NewSeed, bus, logger)
	reader := ledger.NewReader(store, cfg.Ledger.MetadataURI)

	grpcServer := service.NewGRPCServer(service.NewServer(minter, engine, reader, bus, logger), logger)

	lifecycle.Add("grpc", &server.FuncService{
		StartFn: func(context.Context) error {
			lis, err := net.Listen("tcp", cfg.GRPC.Addr())
			if err != nil {
				return fmt.Errorf("listening on %s: %w", cfg.GRPC.Addr(), err)
			}
			logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
			return grpcServer.Serve(lis)
		},
		StopFn: func(ctx context.Context) {
			// Watch streams only end once the bus closes.
			bus.Close()
			stopped := make(chan struct{})
			go func() {
				grpcServer.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-ctx.Done():
				logger.Warn("graceful stop timed out, forcing")
				grpcServer.Stop()
			}
		},
	})

	logger.Info("bucks ledger initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func loadStyles(dir string) (*ruleset.Styles, error) {
	if dir == "" {
		return ruleset.DefaultStyles(), nil
	}
	return ruleset.LoadStyles(dir)
}

// openStore builds the configured ledger backend. Database handles are
// registered with the lifecycle so they close after the gRPC server stops.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger, lifecycle *server.Lifecycle) (ledger.Store, error) {
	switch cfg.Ledger.Storage {
	case config.StoragePostgres:
		return openPostgres(ctx, cfg, logger, lifecycle)
	case config.StorageSQLite:
		store, err := sqlite.Open(ctx, cfg.Ledger.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite ledger opened", zap.String("path", cfg.Ledger.SQLitePath))
		lifecycle.Add("sqlite", &server.FuncService{
			StopFn: func(context.Context) {
				if err := store.Close(); err != nil {
					logger.Warn("closing sqlite ledger", zap.Error(err))
				}
			},
		})
		return store, nil
	default:
		return ledger.NewMemoryStore(), nil
	}
}

func openPostgres(ctx context.Context, cfg config.Config, logger *zap.Logger, lifecycle *server.Lifecycle) (ledger.Store, error) {
	if cfg.Database.Migrate {
		m, err := postgres.NewMigrator(cfg.Database.DSN())
		if err != nil {
			return nil, err
		}
		err = m.Up(0)
		version, dirty, verErr := m.Version()
		_ = m.Close()
		if err != nil {
			return nil, fmt.Errorf("migrating schema: %w", err)
		}
		logSchemaVersion(logger, version, dirty, verErr)
	}

	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database, postgres.WithRetry(10, 2*time.Second, logger))
	if err != nil {
		return nil, err
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func(ctx context.Context) error {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := pool.Health(ctx, 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				}
			}
		},
		StopFn: func(context.Context) {
			pool.Close()
		},
	})
	return postgres.NewLedgerStore(pool.DB()), nil
}

// logSchemaVersion reports the schema state after a migration. A version that
// cannot be read is a warning; the schema itself was applied.
func logSchemaVersion(logger *zap.Logger, version uint, dirty bool, err error) {
	if err != nil {
		logger.Warn("reading schema version", zap.Error(err))
		return
	}
	logger.Info("schema migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
}

func newMintPolicy(cfg config.MintConfig, logger *zap.Logger) (ledger.MintPolicy, func(), error) {
	noop := func() {}
	switch cfg.Policy {
	case ledger.PolicyOpen:
		return ledger.OpenPolicy{}, noop, nil
	case ledger.PolicyScript:
		p, err := scripting.LoadMintPolicy(cfg.Script, cfg.InstructionLimit, logger)
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	default:
		p, err := ledger.NewAllowListPolicy(cfg.Admins)
		if err != nil {
			return nil, noop, err
		}
		return p, noop, nil
	}
}
