package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/twmb/franz-go/pkg/kgo"

	compliancehandler "fintrail/internal/compliance/handler"
	complianceservice "fintrail/internal/compliance/service"
	consenthandler "fintrail/internal/consent/handler"
	consentservice "fintrail/internal/consent/service"
	datasubjecthandler "fintrail/internal/datasubject/handler"
	datasubjectservice "fintrail/internal/datasubject/service"
	identityhandler "fintrail/internal/identity/handler"
	"fintrail/internal/identity/revocation"
	identityservice "fintrail/internal/identity/service"
	"fintrail/internal/identity/totp"
	jwttoken "fintrail/internal/jwt_token"
	ledgerhandler "fintrail/internal/ledger/handler"
	ledgerservice "fintrail/internal/ledger/service"
	"fintrail/internal/platform/config"
	"fintrail/internal/platform/database"
	"fintrail/internal/platform/httpserver"
	"fintrail/internal/platform/logger"
	"fintrail/internal/platform/metrics"
	"fintrail/internal/platform/redis"
	"fintrail/internal/retention"
	httptransport "fintrail/internal/transport/http"
	audit "fintrail/pkg/platform/audit"
	"fintrail/pkg/platform/audit/interceptor"
	"fintrail/pkg/platform/audit/publishers/mirror"
	"fintrail/pkg/platform/circuit"
)

const version = "1.0.0"

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(reg)
	checks := map[string]httptransport.HealthCheck{}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		checks["database"] = db.PingContext
		log.Info("using postgres stores", "driver", cfg.Database.Driver)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}
	st := newStores(db)

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	var trl identityservice.TokenRevoker
	if redisClient != nil {
		defer redisClient.Close()
		trl = revocation.NewRedisTRL(redisClient.Client, revocation.WithLatencyObserver(appMetrics.RevocationLatency))
		checks["redis"] = redisClient.Health
	} else {
		log.Warn("REDIS_URL not set, using in-memory token revocation list")
		trl = revocation.NewInMemoryTRL()
	}

	sinkOpts := []audit.Option{
		audit.WithLogger(log.With("channel", "audit_ops")),
		audit.WithMetrics(audit.NewMetrics(reg)),
		audit.WithLimits(audit.Limits{
			UserAgent:   cfg.Audit.UserAgentLimit,
			Description: audit.DefaultLimits.Description,
			MetadataStr: cfg.Audit.BodyPreviewLimit,
		}),
		audit.WithBreaker(circuit.New("audit-store",
			circuit.WithFailureThreshold(cfg.Audit.BreakerThreshold),
			circuit.WithCooldown(cfg.Audit.BreakerCooldown),
		)),
	}
	var publisher *mirror.Publisher
	if cfg.Kafka.Enabled() {
		client, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.DefaultProduceTopic(cfg.Kafka.AuditTopic),
			kgo.ProducerLinger(50*time.Millisecond),
		)
		if err != nil {
			return err
		}
		defer client.Close()
		if err := mirror.EnsureTopic(ctx, client, cfg.Kafka.AuditTopic, cfg.Kafka.Partitions, cfg.Kafka.Replicas); err != nil {
			log.Warn("could not ensure audit mirror topic", "topic", cfg.Kafka.AuditTopic, "error", err)
		}
		checks["kafka"] = client.Ping
		publisher = mirror.New(client, cfg.Kafka.AuditTopic, mirror.WithLogger(log))
		sinkOpts = append(sinkOpts, audit.WithMirror(publisher))
		go func() {
			if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit mirror stopped", "error", err)
			}
		}()
	}

	residency := audit.Residency{
		CloudProvider:    cfg.Residency.CloudProvider,
		Region:           cfg.Residency.Region,
		AvailabilityZone: cfg.Residency.AvailabilityZone,
	}
	sink := audit.NewSink(st.audits, residency, sinkOpts...)
	emitter := audit.NewEmitter(sink, st.users, log)

	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, "fintrail")
	identity := identityservice.New(st.users, tokens, trl, totp.NewVerifier(), emitter,
		identityservice.Config{AccessTokenTTL: cfg.AccessTokenTTL, RefreshTokenTTL: cfg.RefreshTokenTTL},
		identityservice.WithLogger(log),
		identityservice.WithMetrics(appMetrics),
	)

	eraser := retention.NewEraser(st.tx, st.audits, st.consents, st.txns, st.users)
	var sweeper *retention.Sweeper
	var runner complianceservice.RetentionRunner
	if cfg.Retention.Enabled {
		sweeper = retention.NewSweeper(st.users, eraser, st.audits, emitter, cfg.Retention, retention.WithLogger(log))
		runner = sweeper
	}

	if err := complianceservice.Seed(ctx, st.inventory, complianceservice.DefaultInventory(cfg), time.Now()); err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Dependencies{
		Logger:   log,
		Metrics:  appMetrics,
		Gatherer: reg,
		Emitter:  emitter,
		Interceptor: interceptor.New(sink, interceptor.Config{
			Enabled:          cfg.Audit.Enabled,
			ExcludedPaths:    cfg.Audit.ExcludedPaths,
			BodyPreviewLimit: cfg.Audit.BodyPreviewLimit,
		}, interceptor.WithRouteTable(httptransport.Routes()), interceptor.WithLogger(log)),
		Validator:  jwttoken.NewJWTServiceAdapter(tokens),
		Revocation: trl,
		Identity:   identityhandler.New(identity, log),
		Ledger:     ledgerhandler.New(ledgerservice.New(st.txns, emitter, log), log),
		Consent:    consenthandler.New(consentservice.New(st.consents, st.users, st.tx, emitter, log), log),
		DataSubject: datasubjecthandler.New(
			datasubjectservice.New(st.users, st.txns, st.consents, eraser, trl, emitter, cfg.Retention.UserData, log), log),
		Compliance: compliancehandler.New(
			complianceservice.New(st.users, st.audits, st.inventory, runner, cfg, log), log),
		Checks:  checks,
		Version: version,
	})

	if sweeper != nil {
		scheduler, err := retention.NewScheduler(ctx, cfg.Retention.Schedule, sweeper, log)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			<-scheduler.Stop().Done()
		}()
	}

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting fintrail",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"audit_enabled", cfg.Audit.Enabled,
		"region", cfg.Residency.Region,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if publisher != nil {
		publisher.Wait()
	}
	return nil
}
