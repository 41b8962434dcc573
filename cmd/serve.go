package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/loyalty-gateway/internal/app"
	"github.com/jmehdipour/loyalty-gateway/internal/config"
	"github.com/jmehdipour/loyalty-gateway/internal/counter"
	"github.com/jmehdipour/loyalty-gateway/internal/db"
	httpSrv "github.com/jmehdipour/loyalty-gateway/internal/http"
	"github.com/jmehdipour/loyalty-gateway/internal/kafka"
	"github.com/jmehdipour/loyalty-gateway/internal/logger"
	"github.com/jmehdipour/loyalty-gateway/internal/realtime"
	"github.com/jmehdipour/loyalty-gateway/internal/service/pointsync"
	"github.com/jmehdipour/loyalty-gateway/internal/service/registration"
	"github.com/jmehdipour/loyalty-gateway/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP + WebSocket server (and the balance poller in embedded mode)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(cmd)
		if err != nil {
			return err
		}
		log := logger.Named("serve")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		lv := app.Loyverse(cfg)
		go app.CheckLoyverse(ctx, lv)

		wc, err := app.Wallet(ctx, cfg)
		if err != nil {
			return err
		}

		var rdb *redis.Client
		switch c, err := db.NewRedisClient(ctx, db.RedisOptsFrom(cfg.Redis)); {
		case errors.Is(err, db.ErrRedisDisabled):
			log.Info("redis disabled; registration is not rate limited")
		case err != nil:
			log.Warn("redis unreachable; registration is not rate limited", zap.Error(err))
		default:
			rdb = c
			defer func() { _ = rdb.Close() }()
		}

		var syncSvc *pointsync.Service
		hub := realtime.NewHub(realtime.ConfigFrom(cfg.WebSocket), realtime.LookupFunc(
			func(ctx context.Context, code string) (int64, error) { return syncSvc.Lookup(ctx, code) },
		))
		defer hub.Shutdown()

		switch cfg.Sync.Mode {
		case config.SyncModeKafka:
			producer := kafka.NewProducerFromConfig(app.KafkaConfig(cfg, false))
			defer func() { _ = producer.Close() }()
			syncSvc = app.SyncService(cfg, lv, wc, kafka.NewPointsPublisher(producer))

			kc := app.KafkaConfig(cfg, true)
			consumer := kafka.NewConsumerFromConfig(kc)
			defer func() { _ = consumer.Close() }()
			go func() { _ = worker.NewPointsRelay(consumer, hub).Run(ctx) }()
			log.Info("sync mode kafka: relaying points events", zap.String("topic", kc.Topic), zap.String("group", kc.GroupID))

		default:
			syncSvc = app.SyncService(cfg, lv, wc, hub)
			if err := syncSvc.Start(ctx); err != nil {
				return err
			}
			defer syncSvc.Stop()
		}

		reg := registration.NewService(counter.NewFileAllocator(cfg.Counter.Path, cfg.Counter.Width), lv, wc, syncSvc)
		server := httpSrv.NewServer(cfg, httpSrv.Deps{
			Registration: reg,
			Points:       syncSvc,
			Customers:    lv,
			Live:         hub,
			Redis:        rdb,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		select {
		case <-ctx.Done():
			log.Info("signal received, shutting down...")
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server exited", zap.Error(err))
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hub.Shutdown()
		_ = server.Shutdown(shutdownCtx)

		return nil
	},
}
