package decision

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"scalper/internal/exchange/bitvavo"
	"scalper/internal/execution"
	"scalper/internal/indicator"
	"scalper/internal/ledger"
	"scalper/internal/modules/config"
	"scalper/internal/notify"
)

func Module() fx.Option {
	return fx.Module("decision",
		fx.Provide(
			func(cfg *config.Config) *indicator.Engine {
				return indicator.NewEngine(cfg.RSIPoints, cfg.EMAPeriod())
			},
			NewFromConfig,
		),
	)
}

func NewFromConfig(
	cfg *config.Config,
	ind *indicator.Engine,
	l *ledger.Ledger,
	g *execution.Gateway,
	market *bitvavo.Client,
	hub *notify.Hub,
	log *zap.Logger,
) *Engine {
	budgets := make(map[string]float64, len(cfg.Pairs))
	for _, pair := range cfg.Pairs {
		budgets[pair] = cfg.PairBudget(pair)
	}

	return NewEngine(Params{
		Profile:            cfg.Profile,
		BuySignal:          cfg.RSIBuyThreshold,
		SellSignal:         cfg.RSISellThreshold,
		ATRPeriod:          cfg.ATRPeriod,
		ATRMultiplier:      cfg.ATRMultiplier,
		CandleInterval:     cfg.RSIInterval,
		StopLossPct:        cfg.StopLossPercentage,
		StopLossMaxRetries: cfg.StopLossMaxRetries,
		StopLossWait:       cfg.StopLossWait(),
		TotalBudget:        cfg.TotalBudget,
		RiskPct:            cfg.RiskPercentage,
		PairBudgets:        budgets,
		MaxTradesPerPair:   cfg.MaxTradesPerPair,
		FeePct:             cfg.TradeFeePercentage,
		MinProfitPct:       cfg.MinimumProfitPercentage,
		Explain:            cfg.Explain,
	}, ind, l, g, market, hub, log.Named("decision"))
}
