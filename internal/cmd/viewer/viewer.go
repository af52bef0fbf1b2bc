// Package viewer parses viewer flags and runs the terminal feed consumer.
package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/osetale/poslive/internal/platform/cmd"
	"github.com/osetale/poslive/internal/pos/domain"
	"github.com/osetale/poslive/internal/realtime"
	"github.com/osetale/poslive/internal/realtime/wsclient"
	"github.com/osetale/poslive/internal/subscriber"
)

// Config holds viewer command configuration.
type Config struct {
	TerminalID string `env:"POSLIVE_VIEWER_TERMINAL_ID" envDefault:"pos-demo"`
	POSURL     string `env:"POSLIVE_VIEWER_POS_URL" envDefault:"http://localhost:8080"`
	// ChannelURL overrides the endpoint from the terminal detail when set.
	ChannelURL    string        `env:"POSLIVE_VIEWER_CHANNEL_URL"`
	RetryInterval time.Duration `env:"POSLIVE_VIEWER_RETRY_INTERVAL" envDefault:"5s"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := cmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.TerminalID, "terminal", cfg.TerminalID, "The terminal whose transactions to follow")
	fs.StringVar(&cfg.POSURL, "pos", cfg.POSURL, "The POS API base URL")
	fs.StringVar(&cfg.ChannelURL, "channel", cfg.ChannelURL, "Channel websocket endpoint override")
	if err := cmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type terminalDetail struct {
	TerminalID string `json:"terminal_id"`
	ChannelURL string `json:"channel_url"`
}

// Run loads the terminal's history from the POS API, then consumes the live
// feed until interrupted.
func Run(ctx context.Context, cfg Config) error {
	return cmd.RunWithTelemetry(ctx, cmd.ServiceViewer, func(context.Context) error {
		endpoint := cfg.ChannelURL
		if endpoint == "" {
			detail, err := fetchTerminal(ctx, cfg.POSURL, cfg.TerminalID)
			if err != nil {
				return fmt.Errorf("load terminal %s: %w", cfg.TerminalID, err)
			}
			endpoint = detail.ChannelURL
		}

		initial, err := fetchTransactions(ctx, cfg.POSURL, cfg.TerminalID)
		if err != nil {
			log.Printf("initial transaction load: %v", err)
		}

		sub, err := subscriber.New(subscriber.Config{
			TerminalID:    cfg.TerminalID,
			Namespace:     realtime.TransactionsNamespace,
			RetryInterval: cfg.RetryInterval,
			Initial:       initial,
			Connect: func(context.Context) (realtime.Channel, error) {
				return wsclient.Dial(endpoint)
			},
			OnTransaction: func(record domain.ProjectedTransaction) {
				log.Printf("%s: %d received from %s (%s)",
					record.CreatedAt, record.Amount, record.Beneficiary, record.BankName)
			},
		})
		if err != nil {
			return err
		}

		for _, record := range initial {
			log.Printf("%s: %d from %s (%s)",
				record.CreatedAt, record.Amount, record.Beneficiary, record.BankName)
		}
		log.Printf("following terminal %s on %s", cfg.TerminalID, endpoint)
		if err := sub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
}

func fetchTerminal(ctx context.Context, baseURL string, terminalID string) (terminalDetail, error) {
	var detail terminalDetail
	if err := fetchJSON(ctx, baseURL, "/api/v1/pos/"+url.PathEscape(terminalID), &detail); err != nil {
		return terminalDetail{}, err
	}
	return detail, nil
}

func fetchTransactions(ctx context.Context, baseURL string, terminalID string) ([]domain.ProjectedTransaction, error) {
	var records []domain.ProjectedTransaction
	path := "/api/v1/pos/" + url.PathEscape(terminalID) + "/transactions"
	if err := fetchJSON(ctx, baseURL, path, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func fetchJSON(ctx context.Context, baseURL string, path string, target any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", path, response.StatusCode)
	}
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
