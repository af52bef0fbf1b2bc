// Package pos parses POS service flags and launches the service.
package pos

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/osetale/poslive/internal/platform/cmd"
	"github.com/osetale/poslive/internal/pos/app"
	"github.com/osetale/poslive/internal/pos/storage"
	"github.com/osetale/poslive/internal/pos/storage/sqlite"
	"github.com/osetale/poslive/internal/realtime"
	"github.com/osetale/poslive/internal/realtime/registry"
	"github.com/osetale/poslive/internal/realtime/wsclient"
)

// Config holds POS command configuration.
type Config struct {
	Port   int    `env:"POSLIVE_POS_PORT" envDefault:"8080"`
	DBPath string `env:"POSLIVE_POS_DB_PATH" envDefault:"pos.db"`

	// Seed provisions a demo terminal on startup when true.
	Seed            bool   `env:"POSLIVE_POS_SEED" envDefault:"false"`
	SeedTerminalID  string `env:"POSLIVE_POS_SEED_TERMINAL_ID" envDefault:"pos-demo"`
	SeedChannelURL  string `env:"POSLIVE_POS_SEED_CHANNEL_URL" envDefault:"ws://localhost:8091/ws"`
	SeedAccountName string `env:"POSLIVE_POS_SEED_ACCOUNT_NAME" envDefault:"Demo Stores"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := cmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The POS HTTP API port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the POS SQLite database")
	fs.BoolVar(&cfg.Seed, "seed", cfg.Seed, "Provision the demo terminal on startup")
	if err := cmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the POS HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return cmd.RunWithTelemetry(ctx, cmd.ServicePOS, func(context.Context) error {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open pos store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close pos store: %v", err)
			}
		}()

		if cfg.Seed {
			if err := seed(ctx, store, cfg); err != nil {
				return fmt.Errorf("seed demo terminal: %w", err)
			}
			log.Printf("seeded demo terminal %s", cfg.SeedTerminalID)
		}

		channels := registry.New(
			func(ctx context.Context, instanceID string) (string, error) {
				record, err := store.GetChannelInstance(ctx, instanceID)
				if err != nil {
					return "", err
				}
				return record.URL, nil
			},
			func(endpoint string) (realtime.Channel, error) {
				return wsclient.Dial(endpoint)
			},
		)
		defer channels.Close()

		return app.Run(ctx, app.NewService(store, channels), cfg.Port)
	})
}

// seed provisions one channel instance and terminal for local development.
func seed(ctx context.Context, store *sqlite.Store, cfg Config) error {
	instanceID := "local"
	if err := store.PutChannelInstance(ctx, storage.ChannelInstanceRecord{
		ID:  instanceID,
		URL: cfg.SeedChannelURL,
	}); err != nil {
		return err
	}
	return store.PutTerminal(ctx, storage.TerminalRecord{
		ID:                cfg.SeedTerminalID,
		AccountName:       cfg.SeedAccountName,
		AccountNumber:     "0123456789",
		ChannelInstanceID: instanceID,
	})
}
