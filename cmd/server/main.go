package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"apiforge/internal/analyzer"
	"apiforge/internal/api"
	"apiforge/internal/audit"
	"apiforge/internal/config"
	"apiforge/internal/factory"
	"apiforge/internal/pg"
	"apiforge/internal/reference"
	"apiforge/internal/registry"
	"apiforge/internal/router"
	"apiforge/internal/schema"
	"apiforge/internal/sqlstore"

	"github.com/spf13/cobra"
)

var (
	configPath string
	flags      *config.Flags
)

var rootCmd = &cobra.Command{
	Use:   "apiforge",
	Short: "Generate tenant-isolated REST APIs on PostgreSQL from a prompt",
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "apiforge.yaml", "path to YAML or JSON config file")
	flags = config.RegisterFlags(rootCmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. type catalog
	cat, err := reference.LoadCatalog(cfg.ReferenceDir)
	if err != nil {
		return fmt.Errorf("reference catalog: %w", err)
	}
	normalizer := schema.NewNormalizer(cat)
	log.Printf("catalog: %d types, %d polymorphic stems", len(cat.Types), len(cat.Polymorphic))

	// 2. database executor
	var (
		exec    pg.Executor
		querier pg.Querier
		pgDB    *sql.DB
	)
	if cfg.DBURL != "" {
		pgDB, err = pg.Open(ctx, cfg.DBURL)
		if err != nil {
			return err
		}
		defer pgDB.Close()
		client := pg.NewClient(pgDB)
		exec, querier = client, client
	} else {
		log.Printf("no dbUrl: generated tables live in memory")
		mem := pg.NewMemoryDB()
		exec, querier = mem, mem
	}

	// 3. registry and audit stores
	regStore, auditStore, closeStores, err := openStores(ctx, cfg, pgDB)
	if err != nil {
		return err
	}
	defer closeStores()

	// 4. AI provider
	var provider analyzer.Provider
	if cfg.OpenAIAPIKey != "" {
		provider = analyzer.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	} else {
		log.Printf("no OpenAI key: prompt endpoints will fail, create-api-from-schema still works")
	}

	reg := registry.New(regStore, router.NewBuilder(querier))
	f := factory.New(analyzer.New(provider, normalizer, cfg.AITimeout), normalizer, pg.NewMaterializer(exec), reg, querier)

	n, err := reg.LoadAll(ctx)
	if err != nil {
		log.Printf("registry: warm-up failed: %v", err)
	} else {
		log.Printf("registry: %d APIs loaded", n)
	}

	auditLog := audit.NewLogger(auditStore, cfg.AuditBuffer)
	defer auditLog.Close()
	defer reg.Flush()

	engine := api.NewEngine(api.Options{
		Factory:      f,
		Registry:     reg,
		Normalizer:   normalizer,
		Audit:        auditLog,
		ReferenceDir: cfg.ReferenceDir,
	})
	log.Printf("apiforge: store=%s port=%s", cfg.StoreDriver, cfg.Port)
	return api.RunServer(ctx, cfg.Addr(), engine)
}

func openStores(ctx context.Context, cfg config.Config, pgDB *sql.DB) (registry.Store, audit.Store, func(), error) {
	noop := func() {}
	var (
		db      *sql.DB
		dialect sqlstore.Dialect
		closer  = noop
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Printf("store: memory; APIs will not survive a restart")
		return registry.NewMemoryStore(), audit.NewMemoryStore(), noop, nil
	case config.DriverPostgres:
		db, dialect = pgDB, sqlstore.Postgres
	case config.DriverSQLite:
		sdb, err := sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		db, dialect = sdb, sqlstore.SQLite
		closer = func() { _ = sdb.Close() }
	default:
		return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	regStore, err := registry.NewSQLStore(ctx, db, dialect, cfg.RegistryTable)
	if err != nil {
		closer()
		return nil, nil, nil, err
	}
	auditStore, err := audit.NewSQLStore(ctx, db, dialect, cfg.AuditTable)
	if err != nil {
		closer()
		return nil, nil, nil, err
	}
	return regStore, auditStore, closer, nil
}
