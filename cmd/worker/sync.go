package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/loyalty-gateway/internal/app"
	"github.com/jmehdipour/loyalty-gateway/internal/config"
	"github.com/jmehdipour/loyalty-gateway/internal/kafka"
	"github.com/jmehdipour/loyalty-gateway/internal/logger"
	"github.com/jmehdipour/loyalty-gateway/internal/metrics"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Poll Loyverse balances, reconcile wallet passes and publish points events",
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := app.LoadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Sync.Mode != config.SyncModeKafka {
		return fmt.Errorf("worker sync needs sync.mode=%s; in %s mode serve runs the poller", config.SyncModeKafka, cfg.Sync.Mode)
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lv := app.Loyverse(cfg)
	app.CheckLoyverse(ctx, lv)

	wc, err := app.Wallet(ctx, cfg)
	if err != nil {
		return err
	}

	kc := app.KafkaConfig(cfg, false)
	producer := kafka.NewProducerFromConfig(kc)
	defer func() { _ = producer.Close() }()

	svc := app.SyncService(cfg, lv, wc, kafka.NewPointsPublisher(producer))
	if err := svc.Start(ctx); err != nil {
		return err
	}

	logger.Named("worker").Info("sync worker started",
		zap.String("topic", kc.Topic),
		zap.Duration("interval", cfg.Sync.Interval),
		zap.Int("workers", cfg.Sync.Workers))

	<-ctx.Done()
	svc.Stop()
	return nil
}
