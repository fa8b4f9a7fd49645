// Server runs the accessguard gRPC API: authentication, sessions, CSRF, RBAC, the audit trail
// and the security monitor. Configure via environment or .env (see internal/config).
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"accessguard/internal/audit"
	"accessguard/internal/config"
	"accessguard/internal/csrf"
	"accessguard/internal/identity/service"
	"accessguard/internal/monitor"
	"accessguard/internal/platform/rbac"
	"accessguard/internal/security"
	"accessguard/internal/server"
	"accessguard/internal/server/interceptors"
	"accessguard/internal/session"
	"accessguard/internal/telemetry"
	"accessguard/internal/telemetry/metrics"
	telemetryotel "accessguard/internal/telemetry/otel"
	"accessguard/internal/telemetry/producer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "accessguard",
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	events := telemetry.MultiEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	var kafkaProducer *producer.KafkaProducer
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		kafkaProducer = producer.NewKafkaProducer(brokers, cfg.SecurityKafkaTopic)
		events = append(events, kafkaProducer)
		log.Printf("server: publishing security events to kafka topic %s", cfg.SecurityKafkaTopic)
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("stores: %v", err)
	}
	defer st.Close()

	keys, err := signingKeys(cfg)
	if err != nil {
		log.Fatalf("signing keys: %v", err)
	}
	tokens, err := security.NewTokenProvider(keys, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	if err != nil {
		log.Fatalf("token provider: %v", err)
	}

	defs, err := rbac.Load(cfg.RolesFile)
	if err != nil {
		log.Fatalf("roles: %v", err)
	}
	roles, err := rbac.NewRegistry(defs)
	if err != nil {
		log.Fatalf("roles: %v", err)
	}

	if err := interceptors.SetTrustedProxies(cfg.TrustedProxiesList()); err != nil {
		log.Fatalf("trusted proxies: %v", err)
	}
	trail := audit.NewTrail(st.audit, interceptors.ClientIP)
	sessions := session.NewRegistry(st.sessions, trail, session.Options{
		MaxSessions:   cfg.MaxSessions,
		TTL:           cfg.RefreshTTL(),
		SweepInterval: cfg.SessionSweep(),
	})
	guard := csrf.NewGuard(sessions, cfg.CSRFTokenTTL(), cfg.CSRFSweep())

	policy, err := monitor.LoadBlockPolicy(ctx, cfg.BlockPolicyFile, cfg.BlockCeiling)
	if err != nil {
		log.Fatalf("block policy: %v", err)
	}
	mon := monitor.New(monitor.Deps{
		Audit:     trail,
		Repo:      st.threats,
		Policy:    policy,
		Escalator: monitor.Escalators{monitor.LogEscalator{}, monitor.EventEscalator{Emitter: events}},
		Events:    events,
	}, monitor.Options{
		BlockCeiling:      cfg.BlockCeiling,
		ResolvedRetention: cfg.ResolvedThreatRetention(),
		SweepInterval:     cfg.MonitorSweep(),
	})
	if n, err := mon.Restore(ctx); err != nil {
		log.Printf("server: restore threats: %v", err)
	} else if n > 0 {
		log.Printf("server: restored %d threats", n)
	}

	auth := service.NewAuthService(service.Deps{
		Identities:  st.identities,
		Passwords:   security.NewPasswordEngine(cfg.Argon2Params(), cfg.PasswordPolicy()),
		Tokens:      service.NewTokenIssuer(tokens, st.refresh),
		Sessions:    sessions,
		CSRF:        guard,
		Permissions: roles,
		Audit:       trail,
		Monitor:     mon,
		Events:      events,
	}, service.Options{
		MaxFailedLogins:    cfg.MaxFailedLogins,
		LockoutDuration:    cfg.Lockout(),
		LoginRatePerMinute: cfg.LoginRatePerMinute,
	})

	sessions.Start(ctx)
	guard.Start(ctx)
	mon.Start(ctx)

	healthSrv := health.NewServer()
	s := server.NewServer(server.Deps{
		Auth:       auth,
		Monitor:    mon,
		Trail:      trail,
		Roles:      roles,
		RolesFile:  cfg.RolesFile,
		Identities: st.identities,
		Events:     events,
		Health:     healthSrv,
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metrics.Init()
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Printf("metrics listening on %s", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics: %v", err)
			}
		}()
	}

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	for waiting := true; waiting; {
		select {
		case <-hup:
			if err := server.ReloadRoles(ctx, roles, cfg.RolesFile, trail, "system"); err != nil {
				log.Printf("rbac: reload failed, keeping current roles: %v", err)
			}
		case <-quit:
			waiting = false
		}
	}

	log.Println("shutting down gRPC server...")
	healthSrv.Shutdown()
	s.GracefulStop()

	mon.Stop()
	guard.Stop()
	sessions.Stop()
	cancel()

	trail.Wait()
	if !telemetry.Drain(telemetry.ShutdownDrainDuration) {
		log.Println("telemetry: shutdown with events still in flight")
	}
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Printf("kafka: close: %v", err)
		}
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel: shutdown: %v", err)
	}
	log.Println("gRPC server stopped")
}
