package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"pollworker/internal/application/export"
	apphandler "pollworker/internal/application/handler"
	appmetrics "pollworker/internal/application/metrics"
	appservice "pollworker/internal/application/service"
	"pollworker/internal/audit"
	jwttoken "pollworker/internal/jwt_token"
	"pollworker/internal/mail"
	"pollworker/internal/platform/config"
	"pollworker/internal/platform/httpserver"
	"pollworker/internal/platform/logger"
	"pollworker/internal/platform/metrics"
	settingsservice "pollworker/internal/settings/service"
	userhandler "pollworker/internal/user/handler"
	userservice "pollworker/internal/user/service"
	"pollworker/pkg/platform/circuit"
	"pollworker/pkg/platform/httputil"
	"pollworker/pkg/platform/middleware/admin"
	"pollworker/pkg/platform/middleware/metadata"
	"pollworker/pkg/platform/middleware/ratelimit"
	"pollworker/pkg/platform/middleware/request"
	"pollworker/pkg/platform/middleware/requesttime"
	"pollworker/pkg/platform/secrets"
)

const auditQueueSize = 1024

// main wires dependencies and runs the server and its background workers
// until SIGINT or SIGTERM. Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	stores, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	auditPublisher := audit.NewQueuePublisher(stores.audit, auditQueueSize)
	auditWorker := audit.NewWorker(stores.audit, auditPublisher.Inbox(), log)

	sender, closeSender, err := newSender(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSender()
	mailQueue := mail.NewQueue(mail.NewRenderer(cfg.BaseURL), sender, cfg.Mail.QueueSize,
		mail.WithLogger(log),
		mail.WithMetrics(mail.NewMetrics(reg)),
	)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "pollworker", cfg.JWTTTL)
	users := userservice.New(stores.users, secrets.DefaultHasher,
		userservice.WithLogger(log),
		userservice.WithAuditPublisher(auditPublisher),
		userservice.WithTokenIssuer(jwtService),
	)
	if err := seedAdmin(ctx, cfg.Admin, users, log); err != nil {
		return err
	}

	settings := settingsservice.New(stores.settings,
		settingsservice.WithLogger(log),
		settingsservice.WithAuditPublisher(auditPublisher),
	)
	applications := appservice.New(stores.applications, stores.users, users, mailQueue, settings, secrets.DefaultHasher,
		appservice.WithLogger(log),
		appservice.WithMetrics(appmetrics.New(reg)),
		appservice.WithAuditPublisher(auditPublisher),
		appservice.WithTxRunner(stores.tx),
	)

	var handlerOpts []apphandler.Option
	if cfg.S3.Bucket != "" {
		client, err := export.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return fmt.Errorf("configure s3: %w", err)
		}
		handlerOpts = append(handlerOpts, apphandler.WithArchiver(export.NewS3Archiver(client, cfg.S3.Bucket)))
		log.Info("export archiving enabled", "bucket", cfg.S3.Bucket)
	}
	appHandler := apphandler.New(applications, export.NewProjection(stores.applications, users), log, handlerOpts...)
	limiter := ratelimit.New(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, log)

	router := newRouter(routerDeps{
		log:          log,
		registry:     reg,
		httpMetrics:  metrics.New(reg),
		limiter:      limiter,
		tokens:       jwttoken.NewJWTServiceAdapter(jwtService),
		applications: appHandler,
		users:        userhandler.New(users, log),
		checks:       stores.checks,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting pollworker", "addr", cfg.Addr)
		return httpserver.Run(gctx, srv)
	})
	g.Go(func() error { return mailQueue.Run(gctx) })
	g.Go(func() error { return auditWorker.Run(gctx) })
	g.Go(func() error { return limiter.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

type routerDeps struct {
	log          *slog.Logger
	registry     *prometheus.Registry
	httpMetrics  *metrics.Metrics
	limiter      *ratelimit.Limiter
	tokens       admin.TokenValidator
	applications *apphandler.Handler
	users        *userhandler.Handler
	checks       map[string]func(context.Context) error
}

func newRouter(d routerDeps) chi.Router {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recoverer(d.log))
	r.Use(request.Logger(d.log))
	r.Use(request.SecurityHeaders)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(d.httpMetrics.LatencyMiddleware)
	r.Use(chimw.CleanPath)

	r.Get("/health", healthHandler(d.checks, d.log))
	r.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))

	// Public writes are rate limited per client IP; reads are not.
	r.Group(func(r chi.Router) {
		r.Use(postOnly(d.limiter.Middleware))
		d.applications.Register(r)
		d.users.Register(r)
	})
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.RequireAdmin(d.tokens, d.log))
		d.applications.RegisterAdmin(r)
	})
	return r
}

// healthHandler answers 503 naming the first failing dependency.
func healthHandler(checks map[string]func(context.Context) error, log *slog.Logger) http.HandlerFunc {
	names := slices.Sorted(maps.Keys(checks))
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				log.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":     "unavailable",
					"dependency": name,
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// postOnly applies mw to POST requests and passes every other method through.
func postOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// newSender picks Kafka, then SMTP, then the log sender.
func newSender(ctx context.Context, cfg config.Server, log *slog.Logger) (mail.Sender, func(), error) {
	switch {
	case len(cfg.Kafka.Brokers) > 0:
		client, err := mail.NewKafkaClient(cfg.Kafka.Brokers)
		if err != nil {
			return nil, nil, fmt.Errorf("connect kafka: %w", err)
		}
		if err := mail.EnsureTopic(ctx, client, cfg.Kafka.MailTopic); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ensure mail topic: %w", err)
		}
		log.Info("verification emails handed to kafka", "topic", cfg.Kafka.MailTopic)
		return guarded("kafka", mail.NewKafkaSender(client, cfg.Kafka.MailTopic), log), client.Close, nil
	case cfg.Mail.SMTPAddr != "":
		log.Info("verification emails sent over smtp", "addr", cfg.Mail.SMTPAddr)
		smtpSender := mail.NewSMTPSender(cfg.Mail.SMTPAddr, cfg.Mail.From, cfg.Mail.SMTPUsername, cfg.Mail.SMTPPassword)
		return guarded("smtp", smtpSender, log), func() {}, nil
	default:
		log.Warn("no mail transport configured, verification emails are only logged")
		return mail.NewLogSender(log), func() {}, nil
	}
}

// guarded falls back to logging the message while the transport is failing.
func guarded(name string, primary mail.Sender, log *slog.Logger) mail.Sender {
	breaker := circuit.New(name, circuit.WithFailureThreshold(5), circuit.WithCooldown(time.Minute))
	return mail.NewGuardedSender(primary, mail.NewLogSender(log), breaker, log)
}

func seedAdmin(ctx context.Context, cfg config.AdminConfig, users *userservice.Service, log *slog.Logger) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}
	user, created, err := users.EnsureAdmin(ctx, cfg.Name, cfg.Email, cfg.Password)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		log.Info("admin account created", "user_id", user.ID.String(), "email", user.Email)
	}
	return nil
}
