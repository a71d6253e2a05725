package main

import (
	"context"
	"log"
	"os"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"scalper/internal/decision"
	"scalper/internal/exchange/bitvavo"
	"scalper/internal/execution"
	"scalper/internal/ledger"
	"scalper/internal/modules/config"
	"scalper/internal/modules/health"
	"scalper/internal/modules/postgres"
	"scalper/internal/notify"
	"scalper/internal/scheduler"
	"scalper/pkg/logger"
	"scalper/pkg/tracing"
)

const serviceName = "scalper"

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger.SetServiceName(serviceName)
	return logger.New(logger.Config{Level: cfg.Env.LogLevel})
}

func newTracer(lc fx.Lifecycle, cfg *config.Config) (opentracing.Tracer, error) {
	tracing.SetServiceName(serviceName)
	tracer, closer, err := tracing.InitTracer(tracing.Config{
		Host: cfg.Env.JaegerHost,
		Port: cfg.Env.JaegerPort,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closer()
			return nil
		},
	})
	return tracer, nil
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal(err)
	}

	app := fx.New(
		fx.StopTimeout(scheduler.StopTimeout(cfg)),
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
			newLogger,
			newTracer,
		),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		config.Module(cfg),
		postgres.Module(),
		ledger.Module(),
		bitvavo.Module(),
		execution.Module(),
		notify.Module(),
		decision.Module(),
		health.Module(),
		scheduler.Module(),
	)
	if err := app.Start(context.Background()); err != nil {
		log.Fatal(err)
	}

	sig := <-app.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		log.Printf("stop: %v", err)
	}
	os.Exit(sig.ExitCode)
}
