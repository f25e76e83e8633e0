// litemodel daemon.
//
// It opens the SQLite storage engine, builds the session pool, transaction
// manager and model registry, creates the tables declared in the config,
// and serves a read-only status API until interrupted. Committed changes are
// published over MQTT and runtime metrics recorded in InfluxDB when those
// integrations are enabled.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/litemodel/internal/api"
	"github.com/nerrad567/litemodel/internal/infrastructure/config"
	"github.com/nerrad567/litemodel/internal/infrastructure/database"
	"github.com/nerrad567/litemodel/internal/infrastructure/influxdb"
	"github.com/nerrad567/litemodel/internal/infrastructure/logging"
	"github.com/nerrad567/litemodel/internal/infrastructure/mqtt"
	"github.com/nerrad567/litemodel/internal/model"
	"github.com/nerrad567/litemodel/internal/pool"
	"github.com/nerrad567/litemodel/internal/txn"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/litemodel.yaml"
	configEnvVar      = "LITEMODEL_CONFIG"

	// poolStatsInterval is how often pool occupancy is written to InfluxDB.
	poolStatsInterval = 15 * time.Second

	// shutdownSlack is added to the pool's grace period for the final close.
	shutdownSlack = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the daemon, separated from main for testability. It returns nil
// on a clean shutdown once ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting litemodel",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	engine, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := engine.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database opened", "path", engine.Path())

	sessions := pool.New(func(ctx context.Context) (database.Session, error) {
		return engine.Connect(ctx)
	}, pool.Options{
		Size:           cfg.Pool.Size,
		AcquireTimeout: cfg.GetAcquireTimeout(),
		ShutdownGrace:  cfg.GetShutdownGrace(),
	})
	sessions.SetLogger(log.Component("pool"))

	txManager := txn.NewManager(sessions)
	txManager.SetLogger(log.Component("txn"))

	registry := model.NewRegistry()
	registry.SetLogger(log.Component("registry"))

	deps := model.Deps{
		Tx:       txManager,
		Logger:   log.Component("model"),
		Registry: registry,
	}
	checks := map[string]api.HealthChecker{"database": sessions}

	if cfg.MQTT.Enabled {
		mqttClient, feed, mqttErr := startChangeFeed(cfg.MQTT, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			feed.Close()
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		deps.Changes = feed
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT change feed disabled")
	}

	if cfg.InfluxDB.Enabled {
		metrics, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := metrics.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		metrics.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		sessions.SetObserver(metrics)
		txManager.SetObserver(metrics)
		deps.Metrics = metrics
		checks["influxdb"] = metrics
		go metrics.ReportPoolStats(ctx, sessions.Stats, poolStatsInterval)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Registered after the integrations so sessions are returned before the
	// change feed and metrics sink close.
	defer func() {
		log.Info("shutting down session pool")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownGrace()+shutdownSlack)
		defer cancel()
		if shutdownErr := sessions.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error("error shutting down pool", "error", shutdownErr)
		}
	}()

	models, err := createTables(ctx, cfg.Tables, deps)
	if err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	log.Info("tables ready", "count", len(models), "names", registry.Names())

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log.Component("api"),
			Pool:     sessions,
			Registry: registry,
			Checks:   checks,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("status API disabled")
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// startChangeFeed connects to the broker and starts the change feed on it.
func startChangeFeed(cfg config.MQTTConfig, log *logging.Logger) (*mqtt.Client, *mqtt.ChangeFeed, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
		"topic", client.Topics().AllChanges(),
	)

	feed := mqtt.NewChangeFeed(client, client.Topics(), client.QoS(), 0)
	feed.SetLogger(log.Component("changefeed"))
	return client, feed, nil
}

func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck runs every component check once, failing on the first error.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
