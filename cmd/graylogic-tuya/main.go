// Gray Logic Tuya - Tuya cloud pairing service
//
// This is the main entry point for the Gray Logic Tuya service. It links a
// Tuya Smart Life account through a QR code login, lists the devices of the
// account that can be paired, and registers the chosen ones in the local
// device registry.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/graylogic-tuya/migrations"

	"github.com/nerrad567/graylogic-tuya/internal/api"
	"github.com/nerrad567/graylogic-tuya/internal/audit"
	"github.com/nerrad567/graylogic-tuya/internal/bridges/tuya"
	"github.com/nerrad567/graylogic-tuya/internal/credential"
	"github.com/nerrad567/graylogic-tuya/internal/device"
	"github.com/nerrad567/graylogic-tuya/internal/infrastructure/config"
	"github.com/nerrad567/graylogic-tuya/internal/infrastructure/database"
	"github.com/nerrad567/graylogic-tuya/internal/infrastructure/influxdb"
	"github.com/nerrad567/graylogic-tuya/internal/infrastructure/logging"
	"github.com/nerrad567/graylogic-tuya/internal/infrastructure/metrics"
	"github.com/nerrad567/graylogic-tuya/internal/infrastructure/mqtt"
	"github.com/nerrad567/graylogic-tuya/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Tuya",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
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

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	deviceRegistry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	deviceRegistry.SetLogger(log.With("component", "device.registry"))
	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.GetDeviceCount())

	checks := map[string]api.HealthChecker{"database": db}
	sinks := telemetry.Config{Logger: log.With("component", "telemetry")}

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		mqttClient.SetLogger(log.With("component", "mqtt"))
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		checks["mqtt"] = mqttClient
		sinks.Publisher = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		checks["influxdb"] = influxClient
		sinks.Writer = influxClient
	}

	promMetrics := metrics.New()
	sinks.Metrics = promMetrics
	observer := telemetry.New(sinks)

	exchanger, provider, err := newTuyaClients(cfg, db)
	if err != nil {
		return err
	}

	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Tuya:      cfg.Tuya,
		Logger:    log,
		Registry:  deviceRegistry,
		Exchanger: exchanger,
		Provider:  provider,
		Observer:  observer,
		Metrics:   promMetrics,
		Audit:     audit.NewSQLiteRepository(db.DB),
		Checks:    checks,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"drivers", len(cfg.Tuya.Drivers),
	)

	log.Info("Gray Logic Tuya started successfully")

	<-ctx.Done()

	log.Info("shutdown signal received, stopping services")
	return nil
}

// newTuyaClients builds the QR login client and the saved client provider
// shared by every pairing session.
func newTuyaClients(cfg *config.Config, db *database.DB) (*tuya.AuthClient, *tuya.StoreProvider, error) {
	httpClient := &http.Client{Timeout: cfg.Tuya.GetRequestTimeout()}

	exchanger, err := tuya.NewAuthClient(tuya.AuthConfig{
		AuthURL:    cfg.Tuya.AuthURL,
		ClientID:   cfg.Tuya.ClientID,
		Schema:     cfg.Tuya.Schema,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating Tuya auth client: %w", err)
	}

	provider, err := tuya.NewStoreProvider(tuya.StoreProviderConfig{
		Store:      credential.NewSQLiteStore(db.DB),
		ConfigID:   cfg.Tuya.ConfigID,
		Driver:     tuya.ProviderName,
		APIURL:     cfg.Tuya.APIURL,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating Tuya client provider: %w", err)
	}
	return exchanger, provider, nil
}

// getConfigPath returns the configuration file path.
// GRAYLOGIC_CONFIG overrides the default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
