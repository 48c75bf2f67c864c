package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/bibek-sh/backend-pasal/internal/analytics"
	"github.com/bibek-sh/backend-pasal/internal/audit"
	"github.com/bibek-sh/backend-pasal/internal/auth"
	"github.com/bibek-sh/backend-pasal/internal/common"
	"github.com/bibek-sh/backend-pasal/internal/config"
	"github.com/bibek-sh/backend-pasal/internal/credit"
	"github.com/bibek-sh/backend-pasal/internal/db"
	"github.com/bibek-sh/backend-pasal/internal/events"
	"github.com/bibek-sh/backend-pasal/internal/health"
	"github.com/bibek-sh/backend-pasal/internal/lock"
	"github.com/bibek-sh/backend-pasal/internal/multiplier"
	"github.com/bibek-sh/backend-pasal/internal/notify"
	"github.com/bibek-sh/backend-pasal/internal/obs"
	"github.com/bibek-sh/backend-pasal/internal/order"
	"github.com/bibek-sh/backend-pasal/internal/pricing"
	"github.com/bibek-sh/backend-pasal/internal/promo"
	"github.com/bibek-sh/backend-pasal/internal/ratelimit"
	"github.com/bibek-sh/backend-pasal/internal/referral"
	"github.com/bibek-sh/backend-pasal/internal/reward"
	"github.com/bibek-sh/backend-pasal/internal/security"
	"github.com/bibek-sh/backend-pasal/internal/settings"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "pasal")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "pasal-api",
			Endpoint:      cfg.OTLPEndpoint,
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if envBool("DB_AUTO_MIGRATE", true) {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "pasal-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if tracingEnabled {
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	taskClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisOpts.Addr,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	})
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()
	emailQueue := notify.AsynqEnqueuer{
		Client:    taskClient,
		MaxRetry:  envInt("NOTIFY_EMAIL_MAX_RETRY", 5),
		Retention: envDurationMillis("NOTIFY_EMAIL_RETENTION_MS", int((24 * time.Hour).Milliseconds())),
		QueueName: envOrDefault("NOTIFY_EMAIL_QUEUE", "default"),
	}

	settingsStore := &settings.Store{DB: pool}
	creditStore := &credit.Store{DB: pool}
	orderStore := &order.Store{DB: pool}
	promoSvc := &promo.Service{Q: &promo.Store{DB: pool}}

	emailNotifier := notify.EmailNotifier{
		Queue:        emailQueue,
		Recipients:   notify.CustomerEmails{DB: pool},
		Enabled:      envBool("NOTIFY_EMAIL_ENABLED", true),
		TopicToggles: topicToggles(envOrDefault("NOTIFY_EMAIL_TOPICS", "")),
	}

	multiplierResolver := &multiplier.Resolver{
		Store: &multiplier.Store{DB: pool},
		R:     redisClient,
		TTL:   envDurationMillis("MULTIPLIER_CACHE_TTL_MS", int((time.Minute).Milliseconds())),
	}

	creditSvc := &credit.Service{L: creditStore, Settings: settingsStore, Multiplier: multiplierResolver, Log: logger}

	referralSvc := &referral.Service{
		Store:      &referral.Store{DB: pool},
		Ledger:     creditStore,
		Settings:   settingsStore,
		Multiplier: multiplierResolver,
		Log:        logger,
	}

	bus := &events.Bus{
		Store: &events.PGStore{DB: pool},
		Notifiers: []events.Notifier{
			emailNotifier,
			referral.ReleaseNotifier{Svc: referralSvc},
		},
	}
	creditSvc.Bus = bus
	referralSvc.Bus = bus

	inTx := func(ctx context.Context, fn func(order.Deps) error) error {
		return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			return fn(order.Deps{
				Orders:  orderStore.WithTx(tx),
				Promo:   promoSvc.WithQuerier(&promo.Store{DB: tx}),
				Credits: creditStore.WithTx(tx),
			})
		})
	}
	orderSvc := &order.Service{
		InTx:     inTx,
		Orders:   orderStore,
		Credits:  creditSvc,
		Settings: settingsStore,
		Bus:      bus,
		Log:      logger,
	}

	rewardSvc := &reward.Service{
		Store:      &reward.Store{DB: pool},
		Ledger:     creditStore,
		Settings:   settingsStore,
		Multiplier: multiplierResolver,
		Locker:     lock.Locker{R: redisClient},
		LockTTL:    cfg.ClaimLockTTL,
		Bus:        bus,
		Log:        logger,
	}

	quoter := &pricing.Quoter{Promo: promoSvc, Credits: creditSvc, Settings: settingsStore}

	authService, err := auth.NewService(auth.Config{
		Store:          &auth.Store{DB: pool},
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	cookieSecure := cfg.AppEnv == "production"
	authHandler := &auth.Handler{
		Service:           authService,
		Sender:            notify.QueueSender{Queue: emailQueue},
		ResetBaseURL:      envOrDefault("PUBLIC_BASE_URL", "http://localhost:"+strings.TrimPrefix(cfg.HTTPAddr(), ":")),
		AccessCookieName:  "access_token",
		RefreshCookieName: "refresh_token",
		CookieDomain:      envOrDefault("COOKIE_DOMAIN", ""),
		CookieSecure:      cookieSecure,
		CookieSameSite:    http.SameSiteLaxMode,
	}
	authMW := auth.Middleware{Service: authService, AccessCookie: "access_token"}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	auditSvc := audit.Service{
		Store:        &audit.PGStore{DB: pool},
		Enabled:      envBool("AUDIT_ENABLED", true),
		SamplingRate: envFloat("AUDIT_SAMPLING_RATIO", 1.0),
	}
	auditRec := audit.HTTPRecorder{
		Service: &auditSvc,
		OnError: func(err error) { logger.Error().Err(err).Msg("record audit entry") },
	}

	promoHandler := &promo.Handler{Svc: promoSvc, Store: &promo.Store{DB: pool}}
	pricingHandler := &pricing.Handler{Quoter: quoter}
	creditHandler := &credit.Handler{Svc: creditSvc}
	orderHandler := &order.Handler{Svc: orderSvc}
	orderAdmin := &order.AdminHandler{Svc: orderSvc, Store: orderStore}
	rewardHandler := &reward.Handler{Svc: rewardSvc}
	referralHandler := &referral.Handler{Svc: referralSvc}
	multiplierHandler := &multiplier.Handler{Store: &multiplier.Store{DB: pool}, Resolver: multiplierResolver}
	settingsHandler := &settings.Handler{Store: settingsStore}
	analyticsHandler := &analytics.Handler{Svc: &analytics.Service{
		Q:            &analytics.Store{DB: pool},
		R:            redisClient,
		TTL:          envDurationMillis("ANALYTICS_CACHE_TTL_MS", int((5 * time.Minute).Milliseconds())),
		DefaultRange: envInt("ANALYTICS_DEFAULT_RANGE_DAYS", 30),
	}}
	auditHandler := audit.Handler{Store: &audit.PGStore{DB: pool}}

	globalLimiter, err := ratelimit.NewGlobalLimiter(redisClient, cfg.RateLimitPerMinute)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	claimLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "ratelimit:claim:"},
		Config: ratelimit.Config{
			Key:    claimLimitKey,
			Window: time.Minute,
			Max:    envInt("REWARD_CLAIM_RATE_PER_MINUTE", 5),
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("claim rate limit") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:     true,
		EnableHSTS: cookieSecure,
		HSTSMaxAge: 31536000,
	}.Middleware)
	r.Use(security.BodyLimit{Max: envInt64("SECURE_MAX_BODY_BYTES", 1<<20)}.Middleware)
	if envBool("SECURE_CSRF_ENABLED", false) {
		r.Use(security.CSRF{}.Middleware)
	}
	r.Use(ratelimit.Global{
		Limiter: globalLimiter,
		OnError: func(err error) { logger.Error().Err(err).Msg("global rate limit") },
	}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/auth", func(a chi.Router) {
			a.Post("/register", authHandler.Register)
			a.Post("/login", authHandler.Login)
			a.Post("/admin/login", authHandler.AdminLogin)
			a.Post("/refresh", authHandler.Refresh)
			a.Post("/logout", authHandler.Logout)
			a.Post("/password/forgot", authHandler.ForgotPassword)
			a.Post("/password/reset", authHandler.ResetPassword)

			a.Group(func(protected chi.Router) {
				protected.Use(authMW.RequireAuth)
				protected.Get("/me", authHandler.Me)
			})
		})

		v.Get("/multipliers/active", multiplierHandler.Active)

		v.Group(func(authR chi.Router) {
			authR.Use(authMW.RequireAuth)

			authR.Post("/pricing/quote", pricingHandler.Quote)
			authR.Post("/promos/validate", promoHandler.Validate)
			authR.Post("/promos/auto-apply", promoHandler.AutoApply)

			authR.With(idem.Middleware).Post("/orders", orderHandler.Create)
			authR.Get("/orders", orderHandler.List)
			authR.Get("/orders/{id}", orderHandler.Get)
			authR.Get("/orders/{id}/history", orderHandler.History)

			authR.Get("/credits/balance", creditHandler.Balance)
			authR.Get("/credits/history", creditHandler.History)

			authR.Get("/rewards/status", rewardHandler.Status)
			authR.With(claimLimit.Middleware).Post("/rewards/claim", rewardHandler.Claim)

			authR.Get("/referrals/code", referralHandler.MyCode)
			authR.Get("/referrals/stats", referralHandler.Stats)
			authR.Get("/referrals/history", referralHandler.History)
			authR.Post("/referrals/apply", referralHandler.Apply)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(authMW.RequireAdmin)
			admin.Use(auditRec.Middleware(audit.HTTPConfig{}))

			admin.Post("/promos", promoHandler.Create)
			admin.Get("/promos", promoHandler.List)
			admin.Patch("/promos/{id}/active", promoHandler.SetActive)
			admin.Delete("/promos/{id}", promoHandler.Delete)

			admin.Get("/multipliers", multiplierHandler.List)
			admin.Post("/multipliers", multiplierHandler.Create)
			admin.Patch("/multipliers/{id}/active", multiplierHandler.SetActive)
			admin.Delete("/multipliers/{id}", multiplierHandler.Delete)

			admin.Get("/settings", settingsHandler.Get)
			admin.Put("/settings/pricing", settingsHandler.UpdatePricing)
			admin.Put("/settings/cashback", settingsHandler.UpdateCashback)
			admin.Put("/settings/reward", settingsHandler.UpdateReward)
			admin.Put("/settings/referral", settingsHandler.UpdateReferral)

			admin.Get("/orders", orderAdmin.List)
			admin.Get("/orders/{id}", orderAdmin.Get)
			admin.Patch("/orders/{id}/status", orderAdmin.UpdateStatus)
			admin.Post("/orders/{id}/complete", orderAdmin.Complete)
			admin.Delete("/orders/{id}", orderAdmin.Cancel)
			admin.Post("/credits/{id}/adjust", creditHandler.Adjust)
			admin.Get("/credits/{id}/history", creditHandler.AdminHistory)

			admin.Get("/analytics/revenue", analyticsHandler.Revenue)
			admin.Get("/analytics/promos", analyticsHandler.Promos)
			admin.Get("/analytics/credits", analyticsHandler.Credits)

			admin.Get("/audit-logs", auditHandler.List)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		health.SetReady(false)
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func claimLimitKey(r *http.Request) string {
	if id, ok := common.CustomerID(r.Context()); ok && id != "" {
		return "customer:" + id
	}
	return "ip:" + common.ClientIP(r)
}

func topicToggles(csv string) map[string]bool {
	trimmed := strings.TrimSpace(csv)
	if trimmed == "" {
		return nil
	}
	toggles := make(map[string]bool)
	for _, topic := range strings.Split(trimmed, ",") {
		topic = strings.TrimSpace(topic)
		if topic != "" {
			toggles[topic] = true
		}
	}
	return toggles
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
