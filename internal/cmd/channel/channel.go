// Package channel parses channel service flags and launches the service.
package channel

import (
	"context"
	"flag"

	"github.com/osetale/poslive/internal/platform/cmd"
	"github.com/osetale/poslive/internal/realtime/channelserver"
)

// Config holds channel command configuration.
type Config struct {
	Port   int    `env:"POSLIVE_CHANNEL_PORT" envDefault:"8091"`
	DBPath string `env:"POSLIVE_CHANNEL_DB_PATH" envDefault:"channel.db"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := cmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The channel websocket server port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the channel bbolt database")
	if err := cmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the realtime channel service.
func Run(ctx context.Context, cfg Config) error {
	return cmd.RunWithTelemetry(ctx, cmd.ServiceChannel, func(context.Context) error {
		return channelserver.Run(ctx, cfg.Port, cfg.DBPath)
	})
}
