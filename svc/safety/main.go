package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/txsvc/apikit"
	"github.com/txsvc/apikit/api"
	"github.com/txsvc/stdlib/v2"

	"github.com/safetrack-gps/safetrack/api/traccar"
	"github.com/safetrack-gps/safetrack/internal"
	"github.com/safetrack-gps/safetrack/internal/command"
	"github.com/safetrack-gps/safetrack/internal/notify"
	"github.com/safetrack-gps/safetrack/internal/safety"
	"github.com/safetrack-gps/safetrack/internal/store"
)

const (
	// expected ENV variables
	RegistryBackend = "registry_backend" // file, redis
	RegistryFile    = "registry_file"
	RedisAddr       = "redis_addr"
	RedisPassword   = "redis_password"

	CommandBackend = "command_backend" // traccar, mqtt
	MqttHost       = "mqtt_host"
	MqttPort       = "mqtt_port"
	MqttProtocol   = "mqtt_protocol"
	MqttUser       = "mqtt_user"
	MqttPassword   = "mqtt_password"
	MqttTopic      = "mqtt_command_topic"

	NotifyBackend = "notify_backend" // webhook, kafka, none
	KafkaService  = "kafka_service"
	KafkaPort     = "kafka_service_port"
	KafkaTopic    = "kafka_breach_topic"

	AuditPostgresDSN = "audit_postgres_dsn"

	SweepIntervalSeconds = "sweep_interval"
	SweepParallel        = "sweep_parallel"
	LocalTimezone        = "local_timezone"
)

var (
	registry  safety.Registry
	manager   *safety.Manager
	scheduler *safety.Scheduler
	audit     *store.PostgresAuditStore
)

func init() {
	godotenv.Load()

	// setup logging
	internal.SetLogLevel()

	ctx := context.Background()

	// telemetry provider client, always needed for positions
	tc, err := traccar.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg(err.Error())
	}

	// registry store
	switch stdlib.GetString(RegistryBackend, "file") {
	case "redis":
		r, err := store.NewRedisRegistry(ctx, store.RedisConfig{
			Addr:     stdlib.GetString(RedisAddr, "localhost:6379"),
			Password: stdlib.GetString(RedisPassword, ""),
		})
		if err != nil {
			log.Fatal().Err(err).Msg(err.Error())
		}
		registry = r
	default:
		r, err := store.NewFileRegistry(stdlib.GetString(RegistryFile, "vehicles.json"))
		if err != nil {
			log.Fatal().Err(err).Msg(err.Error())
		}
		registry = r
	}

	// command dispatcher
	var dispatcher safety.CommandDispatcher = tc
	if stdlib.GetString(CommandBackend, "traccar") == "mqtt" {
		cl := internal.CreateMqttClient(
			stdlib.GetString(MqttProtocol, "tcp"),
			stdlib.GetString(MqttHost, "localhost"),
			stdlib.GetString(MqttPort, "1883"),
			"safetrack-commands",
			stdlib.GetString(MqttUser, ""),
			stdlib.GetString(MqttPassword, ""),
		)
		d, err := command.NewMqttDispatcher(cl, stdlib.GetString(MqttTopic, "commands/%s"))
		if err != nil {
			log.Fatal().Err(err).Msg(err.Error())
		}
		dispatcher = d
	}

	// manager options
	opts := []safety.ManagerOption{}
	if tz := stdlib.GetString(LocalTimezone, ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			log.Fatal().Err(err).Msg(err.Error())
		}
		opts = append(opts, safety.WithLocation(loc))
	}
	if dsn := stdlib.GetString(AuditPostgresDSN, ""); dsn != "" {
		audit, err = store.NewPostgresAuditStore(ctx, dsn)
		if err != nil {
			log.Fatal().Err(err).Msg(err.Error())
		}
		if err := audit.InitSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg(err.Error())
		}
		opts = append(opts, safety.WithIncidentAuditor(audit))
	}

	manager = safety.NewManager(registry, tc, dispatcher, opts...)

	// breach notification sink
	var sink safety.BreachSink
	switch stdlib.GetString(NotifyBackend, "webhook") {
	case "kafka":
		server := stdlib.GetString(KafkaService, "") + ":" + stdlib.GetString(KafkaPort, "9092")
		s, err := notify.NewKafkaSink(server, stdlib.GetString(KafkaTopic, "geofence-breach"))
		if err != nil {
			log.Fatal().Err(err).Msg(err.Error())
		}
		sink = s
	case "none":
		// breaches are still applied and logged, just not delivered anywhere
	default:
		s, err := notify.NewWebhookSink()
		if err != nil {
			log.Fatal().Err(err).Msg(err.Error())
		}
		sink = s
	}

	interval := time.Duration(stdlib.GetInt(SweepIntervalSeconds, 60)) * time.Second
	scheduler = safety.NewScheduler(manager, registry, tc, sink, interval, int(stdlib.GetInt(SweepParallel, 4)))

	internal.StartPrometheusListener()
}

func main() {
	// start the periodic geofence sweeps
	scheduler.Start()

	// start the http listener
	svc, err := apikit.New(setup, shutdown)
	if err != nil {
		log.Fatal().Err(err).Msg(err.Error())
	}
	svc.Listen("")
}

// http endpoint setup

func setup() *echo.Echo {
	// create a new router instance
	e := echo.New()

	// add and configure any middlewares
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))

	e.GET("/", api.DefaultEndpoint)

	e.POST("/api/vehicles", registerVehicleEndpoint)
	e.GET("/api/vehicles/:vehicleid", getStateEndpoint)
	e.PUT("/api/vehicles/:vehicleid/reactivate", reactivateEndpoint)
	e.PUT("/api/vehicles/:vehicleid/deactivate", deactivateEndpoint)
	e.PUT("/api/vehicles/:vehicleid/release", releaseDeviceEndpoint)

	e.POST("/api/vehicles/:vehicleid/zone", configureZoneEndpoint)
	e.PUT("/api/vehicles/:vehicleid/zone/activate", activateZoneEndpoint)
	e.PUT("/api/vehicles/:vehicleid/zone/deactivate", deactivateZoneEndpoint)
	e.GET("/api/vehicles/:vehicleid/zone/check", checkZoneEndpoint)

	e.POST("/api/vehicles/:vehicleid/cutoff", cutoffEndpoint)
	e.POST("/api/vehicles/:vehicleid/resume", resumeEndpoint)

	e.POST("/api/vehicles/:vehicleid/incident", openIncidentEndpoint)
	e.PUT("/api/vehicles/:vehicleid/incident/close", closeIncidentEndpoint)

	// done
	return e
}

func shutdown(ctx context.Context, a *apikit.App) error {
	scheduler.Stop()
	if audit != nil {
		audit.Close()
	}
	return nil
}
