package health

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"scalper/internal/ledger"
	"scalper/internal/metrics"
	"scalper/internal/models"
	"scalper/internal/modules/config"
	"scalper/internal/modules/health/service"
)

type Config struct {
	Addr string // e.g. ":8080"; empty disables the server
}

func NewConfig(cfg *config.Config) Config {
	return Config{Addr: cfg.Env.HealthAddr}
}

// Positions reads the durable portfolio.
type Positions interface {
	All(ctx context.Context) (models.Portfolio, error)
}

func NewRouter(state *service.State, positions Positions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !state.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		var lastTick int64
		if t := state.LastTick(); !t.IsZero() {
			lastTick = t.Unix()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ready":        state.Ready(),
			"halted":       state.Halted(),
			"wsConnected":  state.WSConnected(),
			"uptimeSec":    int64(state.Uptime().Seconds()),
			"lastTickUnix": lastTick,
			"cycles":       state.Cycles(),
		})
	})

	r.Get("/positions", func(w http.ResponseWriter, r *http.Request) {
		p, err := positions.All(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, p)
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func RunHTTP(lc fx.Lifecycle, cfg Config, h http.Handler, log *zap.Logger) {
	if cfg.Addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			log.Info("health server listening", zap.String("addr", ln.Addr().String()))
			go func() { _ = srv.Serve(ln) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			NewConfig,
			func(l *ledger.Ledger) Positions { return l },
			NewRouter,
		),
		fx.Invoke(RunHTTP),
	)
}
