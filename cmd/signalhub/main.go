// signalhub aggregates live signals from home automation platforms.
//
// Adapters for openHAB, Home Assistant and MQTT feed a single in-memory
// signal store. Consumers read it over REST, Server-Sent Events and
// WebSocket; optional sinks record history to SQLite, write numeric
// samples to InfluxDB and republish retained state to an MQTT broker.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nerrad567/signalhub/internal/adapter"
	"github.com/nerrad567/signalhub/internal/adapter/builtin"
	"github.com/nerrad567/signalhub/internal/api"
	"github.com/nerrad567/signalhub/internal/history"
	"github.com/nerrad567/signalhub/internal/infrastructure/config"
	"github.com/nerrad567/signalhub/internal/infrastructure/database"
	"github.com/nerrad567/signalhub/internal/infrastructure/influxdb"
	"github.com/nerrad567/signalhub/internal/infrastructure/logging"
	"github.com/nerrad567/signalhub/internal/infrastructure/metrics"
	"github.com/nerrad567/signalhub/internal/infrastructure/mqtt"
	"github.com/nerrad567/signalhub/internal/lifecycle"
	"github.com/nerrad567/signalhub/internal/sink"
	"github.com/nerrad567/signalhub/internal/store"
	"github.com/nerrad567/signalhub/internal/supervisor"
	"github.com/nerrad567/signalhub/migrations"
	"github.com/spf13/pflag"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath    string
	migrateStatus bool
	migrateDown   bool
}

// parseFlags parses the command line. --config overrides SIGNALHUB_CONFIG.
func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("signalhub", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", getConfigPath(), "path to the YAML configuration file")
	flagSet.BoolVar(&opts.migrateStatus, "migrate-status", false, "print history schema migration status and exit")
	flagSet.BoolVar(&opts.migrateDown, "migrate-down", false, "roll back the latest history schema migration and exit")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if opts.migrateStatus && opts.migrateDown {
		return opts, fmt.Errorf("--migrate-status and --migrate-down are mutually exclusive")
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command line arguments without the program name
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	log := logging.Default()
	log.Info("starting signalhub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := opts.configPath
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	if opts.migrateStatus || opts.migrateDown {
		return runMigrations(ctx, cfg, log, opts.migrateDown)
	}

	collector := metrics.New()

	signals := store.New(store.Config{BufferSize: cfg.Store.SubscriberBuffer})
	signals.SetLogger(log.Component("store"))
	signals.SetObserver(collector)

	registry, err := builtin.DefaultRegistry(adapter.Deps{
		Logger:           log.Component("adapters"),
		OperationTimeout: cfg.Lifecycle.OperationTimeout,
	})
	if err != nil {
		return fmt.Errorf("building adapter registry: %w", err)
	}

	sup, err := supervisor.New(supervisor.Options{
		Registry:  registry,
		Adapters:  cfg.Adapters,
		Lifecycle: cfg.Lifecycle,
		Store:     signals,
		Observer:  collector,
		Logger:    log.Component("supervisor"),
		LoggerFor: func(name, adapterType string) lifecycle.Logger {
			return log.ForAdapter(name, adapterType)
		},
	})
	if err != nil {
		return fmt.Errorf("creating supervisor: %w", err)
	}
	stopAdapters := sync.OnceFunc(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Lifecycle.ShutdownTimeout)
		defer cancel()
		if stopErr := sup.Stop(shutdownCtx); stopErr != nil {
			log.Error("adapters did not stop cleanly", "error", stopErr)
		}
	})
	defer stopAdapters()

	// Sinks consume store notifications on their own context so they drain
	// after the adapters have stopped.
	sinkCtx, stopSinks := context.WithCancel(context.Background())
	defer stopSinks()
	var sinks sync.WaitGroup

	var (
		historyReader api.HistoryReader
		historyDB     *database.DB
	)
	if cfg.History.Enabled {
		db, repo, openErr := openHistory(ctx, cfg, log)
		if openErr != nil {
			return openErr
		}
		historyDB = db
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		historyReader = repo

		recorder := history.NewRecorder(repo, history.RecorderConfig{
			Retention:     cfg.History.Retention,
			PruneInterval: cfg.History.PruneInterval,
		})
		recorder.SetLogger(log.Component("history"))
		recorder.SetObserver(collector)
		sub := signals.Subscribe(sinkCtx)
		sinks.Go(func() { recorder.Run(sinkCtx, sub.C) })
	} else {
		log.Info("history disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		fwd := sink.NewForwarder("influxdb", sink.NewTelemetry(influxClient))
		fwd.SetLogger(log.Component("sink"))
		fwd.SetObserver(collector)
		sub := signals.Subscribe(sinkCtx)
		sinks.Go(func() { fwd.Run(sinkCtx, sub.C) })
	} else {
		log.Info("InfluxDB disabled")
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
		mqttClient, err = mqtt.Connect(cfg.MQTT.MQTTConfig, topics.SystemStatus())
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", mqtt.BrokerURL(cfg.MQTT.MQTTConfig),
			"client_id", cfg.MQTT.Broker.ClientID,
			"topic_prefix", topics.Prefix,
		)

		fwd := sink.NewForwarder("mqtt", sink.NewRepublisher(mqttClient, cfg.MQTT.TopicPrefix))
		fwd.SetLogger(log.Component("sink"))
		fwd.SetObserver(collector)
		sub := signals.Subscribe(sinkCtx)
		sinks.Go(func() { fwd.Run(sinkCtx, sub.C) })
	} else {
		log.Info("MQTT republisher disabled")
	}

	// Sinks stop after the supervisor so the final adapter writes reach them.
	defer func() {
		stopSinks()
		sinks.Wait()
		log.Info("sinks stopped")
	}()

	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log.Component("api"),
		Signals:  signals,
		Adapters: sup,
		History:  historyReader,
		Metrics:  collector.Handler(),
		Version:  version,
	}
	// Assigned only when set so the interfaces stay nil.
	if historyDB != nil {
		deps.Database = historyDB
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	closeServer := sync.OnceFunc(func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	})
	defer closeServer()

	if err := healthCheck(ctx, healthTargets{
		server: server,
		db:     historyDB,
		mqtt:   mqttClient,
		influx: influxClient,
	}); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	sup.Start(ctx)
	log.Info("initialisation complete, waiting for shutdown signal",
		"adapters", sup.Names(),
		"addr", server.Addr(),
	)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	closeServer()
	stopAdapters()

	// Deferred calls run in reverse order:
	// 1. Sinks
	// 2. MQTT (if enabled)
	// 3. InfluxDB (if enabled)
	// 4. Database (if history enabled)

	log.Info("signalhub stopped")
	return nil
}

// openHistory opens the history database and applies pending migrations.
// On migration failure the database is closed before returning.
func openHistory(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, *history.Repository, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Migration error takes precedence
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	return db, history.NewRepository(db.DB), nil
}

// runMigrations reports or rolls back the history schema without starting
// the hub. With down set it rolls back the latest applied migration first.
func runMigrations(ctx context.Context, cfg *config.Config, log *logging.Logger, down bool) error {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Read-mostly command

	if down {
		if err := db.MigrateDown(ctx, migrations.FS); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
		log.Info("rolled back latest migration", "path", cfg.Database.Path)
	}

	applied, pending, err := db.GetMigrationStatus(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	for _, rec := range applied {
		log.Info("migration applied", "version", rec.Version, "applied_at", rec.AppliedAt)
	}
	for _, m := range pending {
		log.Info("migration pending", "version", m.Version, "name", m.Name)
	}
	log.Info("migration status", "applied", len(applied), "pending", len(pending))
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SIGNALHUB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SIGNALHUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthTargets lists what healthCheck verifies. Nil fields are skipped.
type healthTargets struct {
	server *api.Server
	db     *database.DB
	mqtt   *mqtt.Client
	influx *influxdb.Client
}

// healthCheck verifies the API server and every enabled outbound connection.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - t: Components to check; nil fields belong to disabled features
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, t healthTargets) error {
	if t.server != nil {
		if err := t.server.HealthCheck(ctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}
	if t.db != nil {
		if err := t.db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if t.mqtt != nil {
		if err := t.mqtt.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if t.influx != nil {
		if err := t.influx.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
