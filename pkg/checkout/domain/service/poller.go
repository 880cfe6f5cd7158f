package service

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"checkout/pkg/checkout/domain/model"
)

// StatusPoller repeatedly queries the gateway for the resolution of a
// transaction and classifies the response. The loop is bounded: at most
// maxAttempts queries, one interval apart, so it always terminates within
// maxAttempts * interval of wall-clock time.
type StatusPoller interface {
	PollUntilResolved(ctx context.Context, transactionID string) (model.PaymentStatus, error)
}

func NewStatusPoller(gateway model.PaymentGateway, maxAttempts int, interval time.Duration) StatusPoller {
	return &statusPoller{
		gateway:     gateway,
		maxAttempts: maxAttempts,
		interval:    interval,
	}
}

type statusPoller struct {
	gateway     model.PaymentGateway
	maxAttempts int
	interval    time.Duration
}

func (p *statusPoller) PollUntilResolved(ctx context.Context, transactionID string) (model.PaymentStatus, error) {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		payload, err := p.gateway.QueryStatus(ctx, transactionID)
		switch {
		case err == nil:
			status, cerr := ClassifyStatus(payload)
			if status.Terminal() {
				return status, nil
			}
			if errors.Is(cerr, model.ErrAmbiguousStatus) {
				log.WithFields(log.Fields{
					"transaction_id": transactionID,
					"attempt":        attempt,
					"response":       payload,
				}).Warn("unrecognized gateway status, treating as pending")
			}

		case errors.Is(err, model.ErrGatewayConfiguration):
			// Retrying cannot fix a broken credential.
			return model.PaymentConfigError, err

		case ctx.Err() != nil:
			return model.PaymentPending, ctx.Err()

		case errors.Is(err, model.ErrRateLimited):
			log.WithField("transaction_id", transactionID).Debug("gateway rate limited, continuing")

		default:
			// Transient transport failure: stays within the attempt budget.
			log.WithError(err).WithFields(log.Fields{
				"transaction_id": transactionID,
				"attempt":        attempt,
			}).Warn("gateway status query failed")
		}

		if attempt < p.maxAttempts {
			if err := sleepOrDone(ctx, p.interval); err != nil {
				return model.PaymentPending, err
			}
		}
	}
	return model.PaymentTimeout, nil
}

// sleepOrDone waits for the duration or returns early on context cancellation.
func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
