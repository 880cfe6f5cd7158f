package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"checkout/pkg/checkout/domain/service"
	appamqp "checkout/pkg/checkout/infrastructure/amqp"
	"checkout/pkg/checkout/infrastructure/gateway"
	"checkout/pkg/checkout/infrastructure/mysql"
	"checkout/pkg/checkout/infrastructure/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "checkout",
		Usage: "food ordering checkout and payment orchestration service",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("checkout exited")
	}
}

func serve(_ *cli.Context) error {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := sqlx.Connect("mysql", cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := mysql.Migrate(db); err != nil {
		return err
	}

	dispatcher, err := appamqp.NewDispatcher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		return err
	}
	defer dispatcher.Close()

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL: cfg.GatewayBaseURL,
		APIKey:  cfg.GatewayAPIKey,
		Timeout: cfg.GatewayTimeout,
	})

	orders := service.NewOrderService(mysql.NewOrderRepository(db), dispatcher, cfg.DeliveryFeeCents)
	initiator := service.NewPaymentInitiator(gatewayClient, service.NewPhoneNormalizer(cfg.CountryCode), dispatcher)
	poller := service.NewStatusPoller(gatewayClient, cfg.PollMaxAttempts, cfg.PollInterval)
	checkoutSvc := service.NewCheckoutService(orders, initiator, poller, gatewayClient, dispatcher, cfg.FallbackAfter)

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Admin-Token"},
	}).Handler(transport.Router(transport.Deps{
		Orders:     orders,
		Checkout:   checkoutSvc,
		Gateway:    gatewayClient,
		AdminToken: cfg.AdminToken,
	}))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 3 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
