// Package app builds the shared clients used by the serve and worker commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/loyalty-gateway/internal/breaker"
	"github.com/jmehdipour/loyalty-gateway/internal/config"
	"github.com/jmehdipour/loyalty-gateway/internal/kafka"
	"github.com/jmehdipour/loyalty-gateway/internal/logger"
	"github.com/jmehdipour/loyalty-gateway/internal/loyverse"
	"github.com/jmehdipour/loyalty-gateway/internal/service/pointsync"
	"github.com/jmehdipour/loyalty-gateway/internal/wallet"
)

// LoadConfig reads the root --config flag, loads the config and starts the logger.
func LoadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)
	return cfg, nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func newBreaker(c config.BreakerConfig) *breaker.MicroBreaker {
	return breaker.New(c.FailThreshold, ms(c.OpenForMs))
}

func Loyverse(cfg config.Config) *loyverse.Client {
	if cfg.Loyverse.Token == "" {
		logger.Log.Warn("loyverse.token is empty; backend calls will be rejected")
	}
	return loyverse.NewClient(loyverse.Options{
		BaseURL:   cfg.Loyverse.BaseURL,
		Token:     cfg.Loyverse.Token,
		Timeout:   ms(cfg.Loyverse.TimeoutMs),
		PageLimit: cfg.Loyverse.PageLimit,
		Breaker:   newBreaker(cfg.Loyverse.Breaker),
	})
}

// Wallet builds the Google Wallet client. Missing credentials are not fatal:
// the client still runs and every call reports the failure.
func Wallet(ctx context.Context, cfg config.Config) (*wallet.Client, error) {
	wc := cfg.Wallet
	opts := wallet.Options{
		BaseURL:     wc.BaseURL,
		SaveURLBase: wc.SaveURLBase,
		IssuerID:    wc.IssuerID,
		ClassID:     wc.ClassID(),
		Origins:     wc.Origins,
		Content: wallet.PassContent{
			PointsLabel:   wc.PointsLabel,
			WelcomeHeader: wc.WelcomeHeader,
			WelcomeBody:   wc.WelcomeBody,
		},
		Breaker: newBreaker(wc.Breaker),
	}

	creds, err := wallet.LoadCredentials(wc.CredentialsFile, wc.CredentialsJSON)
	switch {
	case errors.Is(err, wallet.ErrNoCredentials):
		logger.Log.Warn("google wallet credentials not configured; passes will not be issued")
	case err != nil:
		return nil, err
	default:
		hc, err := creds.HTTPClient(ctx, ms(wc.TimeoutMs))
		if err != nil {
			return nil, err
		}
		opts.Credentials = creds
		opts.HTTPClient = hc
		logger.Log.Info("google wallet ready", zap.String("issuer", wc.IssuerID), zap.String("account", creds.ClientEmail))
	}
	return wallet.NewClient(opts), nil
}

func Program(cfg config.Config) wallet.Program {
	p := cfg.Wallet.Program
	return wallet.Program{
		IssuerName:      p.IssuerName,
		Name:            p.Name,
		LogoURI:         p.LogoURI,
		HeroImageURI:    p.HeroImageURI,
		BackgroundColor: p.BackgroundColor,
	}
}

func SyncService(cfg config.Config, lv *loyverse.Client, wc *wallet.Client, n pointsync.Notifier) *pointsync.Service {
	return pointsync.NewService(lv, wc, n, pointsync.Options{
		Interval:      cfg.Sync.Interval,
		Workers:       cfg.Sync.Workers,
		CachedLookups: cfg.Sync.Mode != config.SyncModeKafka,
	})
}

// KafkaConfig maps the kafka section. Consumers get a per-host group so every
// replica sees every event.
func KafkaConfig(cfg config.Config, consumer bool) kafka.Config {
	group := cfg.Kafka.GroupID
	if consumer {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = fmt.Sprintf("pid%d", os.Getpid())
		}
		group = group + "-" + host
	}
	return kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topic,
		GroupID:        group,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: ms(cfg.Kafka.CommitInterval),
	}
}

// CheckLoyverse logs whether the backend answers. It never fails startup.
func CheckLoyverse(ctx context.Context, lv *loyverse.Client) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	n, err := lv.CheckConnection(ctx)
	if err != nil {
		logger.Log.Warn("loyverse connectivity check failed", zap.Error(err))
		return
	}
	logger.Log.Info("loyverse reachable", zap.Int("stores", n))
}
