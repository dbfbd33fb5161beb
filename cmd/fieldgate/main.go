// fieldgate - radio sensor to Modbus gateway
//
// fieldgate collects advertising reports from radio scanners (over MQTT)
// and GSM modems (over HTTP), binds every sensor to a Modbus unit and serves
// the sensors' latest readings to bus masters. Registry events are pushed
// to websocket subscribers and optionally mirrored to MQTT and InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/fieldgate/migrations"

	"github.com/nerrad567/fieldgate/internal/api"
	"github.com/nerrad567/fieldgate/internal/bus"
	"github.com/nerrad567/fieldgate/internal/device"
	"github.com/nerrad567/fieldgate/internal/infrastructure/config"
	"github.com/nerrad567/fieldgate/internal/infrastructure/database"
	"github.com/nerrad567/fieldgate/internal/infrastructure/influxdb"
	"github.com/nerrad567/fieldgate/internal/infrastructure/logging"
	"github.com/nerrad567/fieldgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/fieldgate/internal/ingest"
	"github.com/nerrad567/fieldgate/internal/reportcache"
	"github.com/nerrad567/fieldgate/internal/sinks"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM).
	// Later signals are absorbed while cleanup runs.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting fieldgate",
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
	log.Info("configuration loaded", "path", configPath)

	cleanups := newCleanupList()
	g := &gateway{cfg: cfg, configPath: configPath, log: log, cleanups: cleanups}

	if err := g.start(ctx); err != nil {
		cleanups.run(log, cfg.Shutdown.Grace)
		return err
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Warn("forcing shutdown")
	if !cleanups.run(log, cfg.Shutdown.Grace) {
		log.Warn("cleanup did not finish within grace period", "grace", cfg.Shutdown.Grace)
	}
	log.Info("fieldgate stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FIELDGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FIELDGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// gateway holds the running components while they are wired together.
type gateway struct {
	cfg        *config.Config
	configPath string
	log        *logging.Logger
	cleanups   *cleanupList

	db       *database.DB
	registry *device.Registry
	hub      *api.Hub
	mqtt     *mqtt.Client
	influx   *influxdb.Client
	ingester *ingest.GSMIngester
}

// start brings components up in dependency order. Each started component
// registers its cleanup immediately so a failure part way through still
// releases what was started.
func (g *gateway) start(ctx context.Context) error {
	records, store, err := g.openRecordStore(ctx)
	if err != nil {
		return err
	}

	g.registry = device.NewRegistry(device.Options{
		AutoDiscovery: g.cfg.Discovery.Enabled,
		Remember:      g.cfg.Discovery.Remember,
		Store:         store,
		SaveDelay:     g.cfg.Discovery.SaveDelay,
		DeviceTimeout: g.cfg.Discovery.DeviceTimeout,
	})
	g.registry.SetLogger(g.log.Component("registry"))
	g.cleanups.add("registry", func() error {
		return g.registry.Close(context.Background())
	})

	// Subscribers attach before records load so each sees the initial adds.
	g.hub = api.NewHub(g.cfg.WebSocket, g.registry, g.log.Component("websocket"))
	g.cleanups.add("websocket hub", func() error {
		g.hub.Close()
		return nil
	})
	g.registry.Subscribe(g.hub.HandleEvent)
	go g.hub.Run(ctx)

	if err := g.startMQTT(); err != nil {
		return err
	}
	if err := g.startInflux(); err != nil {
		return err
	}

	g.registry.LoadRecords(records)
	g.log.Info("device registry initialised", "devices", g.registry.Count())

	if err := g.startGSM(ctx); err != nil {
		return err
	}
	if err := g.startScanner(); err != nil {
		return err
	}
	if err := g.startBus(); err != nil {
		return err
	}
	if err := g.startAPI(ctx); err != nil {
		return err
	}

	if err := healthCheck(ctx, g.db, g.mqtt, g.influx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	g.log.Info("all health checks passed")
	return nil
}

// openRecordStore returns the static records and the store admitted
// devices are saved to.
func (g *gateway) openRecordStore(ctx context.Context) ([]device.Record, device.RecordStore, error) {
	records := device.RecordsFromConfig(g.cfg.Devices)

	switch g.cfg.Discovery.Store {
	case "sqlite":
		db, err := database.Open(database.Config{
			Path:        g.cfg.Database.Path,
			WALMode:     g.cfg.Database.WALMode,
			BusyTimeout: g.cfg.Database.BusyTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		g.db = db
		g.cleanups.add("database", db.Close)
		g.log.Info("database connected", "path", g.cfg.Database.Path)

		if err := db.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}

		store := device.NewSQLiteStore(db)
		stored, err := store.LoadRecords(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("loading device records: %w", err)
		}
		return device.MergeRecords(records, stored), store, nil

	default:
		return records, device.NewYAMLStore(g.configPath), nil
	}
}

func (g *gateway) startMQTT() error {
	if !g.cfg.MQTT.Enabled {
		g.log.Info("MQTT disabled")
		return nil
	}

	client, err := mqtt.Connect(g.cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	g.mqtt = client
	g.cleanups.add("mqtt", client.Close)
	client.SetLogger(g.log.Component("mqtt"))
	client.SetOnConnect(func() {
		g.log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		g.log.Warn("MQTT disconnected", "error", err)
	})
	g.log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", g.cfg.MQTT.Broker.Host, g.cfg.MQTT.Broker.Port),
		"client_id", g.cfg.MQTT.Broker.ClientID,
	)

	relay := sinks.NewMQTTRelay(client, g.log.Component("mqtt-relay"))
	if err := relay.Start(); err != nil {
		return fmt.Errorf("starting device state relay: %w", err)
	}
	g.cleanups.add("device state relay", relay.Close)
	g.registry.Subscribe(relay.HandleEvent)
	return nil
}

func (g *gateway) startInflux() error {
	if !g.cfg.InfluxDB.Enabled {
		g.log.Info("InfluxDB disabled")
		return nil
	}

	client, err := influxdb.Connect(g.cfg.InfluxDB)
	if err != nil {
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	g.influx = client
	g.cleanups.add("influxdb", client.Close)
	client.SetLogger(g.log.Component("influxdb"))
	g.log.Info("InfluxDB connected",
		"url", g.cfg.InfluxDB.URL,
		"org", g.cfg.InfluxDB.Org,
		"bucket", g.cfg.InfluxDB.Bucket,
	)

	g.registry.Subscribe(sinks.NewTelemetry(client).HandleEvent)
	return nil
}

// startGSM creates the GSM ingester and replays cached reports inside the
// retention window.
func (g *gateway) startGSM(ctx context.Context) error {
	log := g.log.Component("gsm")

	var store reportcache.Store
	switch g.cfg.GSM.Cache.Store {
	case "file":
		store = reportcache.NewFileStore(g.cfg.GSM.Cache.Path)
	case "redis":
		client, err := reportcache.DialRedis(ctx, g.cfg.GSM.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		g.cleanups.add("redis", client.Close)
		store = reportcache.NewRedisStore(client, g.cfg.GSM.Redis.Key, g.cfg.RestoreWindow())
	}

	if store == nil {
		g.ingester = ingest.NewGSMIngester(nil, nil, g.registry, log)
		return nil
	}

	cache := reportcache.New(store, g.cfg.RestoreWindow(), log)
	g.cleanups.add("gsm report cache", func() error {
		return cache.Close(context.Background())
	})
	g.ingester = ingest.NewGSMIngester(nil, cache, g.registry, log)

	restored := cache.Restore(ctx, g.ingester.Replay)
	log.Info("gsm report cache restored", "store", g.cfg.GSM.Cache.Store, "reports", restored)
	return nil
}

func (g *gateway) startScanner() error {
	if !g.cfg.Scanner.Enabled {
		return nil
	}
	if g.mqtt == nil {
		return errors.New("scanner requires MQTT")
	}

	scanner := ingest.NewScanner(g.mqtt, g.cfg.Scanner.Topic, nil, g.registry, g.log.Component("scanner"))
	if err := scanner.Start(); err != nil {
		return fmt.Errorf("starting scanner: %w", err)
	}
	g.cleanups.add("scanner", scanner.Stop)
	return nil
}

func (g *gateway) startBus() error {
	log := g.log.Component("bus")
	mux := bus.NewMux(log)
	g.cleanups.add("bus", mux.Close)

	for _, lc := range g.cfg.Links {
		if !lc.IsEnabled() {
			log.Info("bus link disabled", "link", lc.ID)
			continue
		}
		if err := mux.AddLink(bus.NewLink(lc, g.registry, log)); err != nil {
			return fmt.Errorf("starting bus link %s: %w", lc.ID, err)
		}
	}
	for _, sc := range g.cfg.Slaves {
		if !sc.IsEnabled() {
			log.Info("bus listener disabled", "listener", sc.ID)
			continue
		}
		if err := mux.AddListener(bus.NewListener(sc, g.registry, log)); err != nil {
			return fmt.Errorf("starting bus listener %s: %w", sc.ID, err)
		}
	}

	log.Info("bus multiplexer started", "links", len(mux.Links()), "listeners", len(mux.Listeners()))
	return nil
}

func (g *gateway) startAPI(ctx context.Context) error {
	server, err := api.New(api.Deps{
		Config:   g.cfg.API,
		WS:       g.cfg.WebSocket,
		Metrics:  g.cfg.Metrics,
		GSM:      g.cfg.GSM,
		Logger:   g.log.Component("api"),
		Registry: g.registry,
		Ingester: g.ingester,
		Hub:      g.hub,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	g.cleanups.add("api", server.Close)
	return nil
}

// healthCheck verifies the infrastructure connections that were opened.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
