package config

import "go.uber.org/fx"

// Module supplies the *Config loaded in main.
func Module(cfg *Config) fx.Option {
	return fx.Module("config",
		fx.Supply(cfg),
	)
}
