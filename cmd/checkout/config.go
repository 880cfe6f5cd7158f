package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

type config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	DatabaseDSN string `envconfig:"DATABASE_DSN" default:"checkout:checkout@tcp(localhost:3306)/checkout?parseTime=true"`

	GatewayBaseURL string        `envconfig:"GATEWAY_BASE_URL" default:"http://localhost:9090"`
	GatewayAPIKey  string        `envconfig:"GATEWAY_API_KEY"`
	GatewayTimeout time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"10s"`

	CountryCode      string `envconfig:"COUNTRY_CODE" default:"254"`
	DeliveryFeeCents int64  `envconfig:"DELIVERY_FEE_CENTS" default:"10000"`

	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	PollMaxAttempts int           `envconfig:"POLL_MAX_ATTEMPTS" default:"5"`
	FallbackAfter   time.Duration `envconfig:"FALLBACK_AFTER" default:"20s"`

	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"checkout.events"`

	AdminToken string `envconfig:"ADMIN_TOKEN"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := envconfig.Process("CHECKOUT", &cfg); err != nil {
		return cfg, errors.Wrap(err, "process env")
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c config) validate() error {
	if c.PollMaxAttempts <= 0 || c.PollInterval <= 0 {
		return errors.New("poll budget must be positive")
	}
	if c.FallbackAfter <= 0 {
		return errors.New("fallback window must be positive")
	}
	// The fallback prompt must appear while the poller is still working, so
	// the user is never stuck without an actionable next step.
	if c.FallbackAfter >= time.Duration(c.PollMaxAttempts)*c.PollInterval {
		return errors.New("fallback window must elapse before the poll budget")
	}
	return nil
}
