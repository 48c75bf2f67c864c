package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/bibek-sh/backend-pasal/internal/common"
	"github.com/bibek-sh/backend-pasal/internal/config"
	"github.com/bibek-sh/backend-pasal/internal/notify"
	"github.com/bibek-sh/backend-pasal/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	queueName := envOrDefault("NOTIFY_EMAIL_QUEUE", "default")
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: envInt("WORKER_CONCURRENCY", 10),
		Queues:      map[string]int{queueName: 1},
		Logger:      asynqLogger{logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})

	mux := asynq.NewServeMux()
	mux.Handle(notify.TypeEmailDelivery, notify.NewEmailTaskHandler(newSender(cfg, logger)))

	logger.Info().Str("queue", queueName).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}

	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func newSender(cfg *config.Config, logger zerolog.Logger) common.EmailSender {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		logger.Warn().Msg("SMTP_HOST not set, emails will be dropped")
		return common.NopEmailSender{}
	}
	return notify.SMTPSender{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		From:     cfg.SMTPFrom,
		Username: envOrDefault("SMTP_USERNAME", ""),
		Password: envOrDefault("SMTP_PASSWORD", ""),
	}
}

// asynqLogger adapts zerolog to the asynq logging interface.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug().Msg(joinArgs(args)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info().Msg(joinArgs(args)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn().Msg(joinArgs(args)) }
func (a asynqLogger) Error(args ...any) { a.l.Error().Msg(joinArgs(args)) }
func (a asynqLogger) Fatal(args ...any) { a.l.Fatal().Msg(joinArgs(args)) }

func joinArgs(args []any) string {
	return strings.TrimSpace(fmt.Sprintln(args...))
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

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
