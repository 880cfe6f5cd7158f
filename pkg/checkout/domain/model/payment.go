package model

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrGatewayConfiguration = errors.New("gateway configuration or credential error")
	ErrRateLimited          = errors.New("gateway rate limited")
	ErrAmbiguousStatus      = errors.New("gateway status not recognized")
)

// PaymentStatus is the canonical classification of a gateway status response.
type PaymentStatus int

const (
	PaymentPending PaymentStatus = iota
	PaymentSuccess
	PaymentFailure
	PaymentTimeout
	PaymentConfigError
)

func (s PaymentStatus) String() string {
	switch s {
	case PaymentPending:
		return "pending"
	case PaymentSuccess:
		return "success"
	case PaymentFailure:
		return "failure"
	case PaymentTimeout:
		return "timeout"
	case PaymentConfigError:
		return "config_error"
	}
	return "unknown"
}

func (s PaymentStatus) Terminal() bool {
	return s == PaymentSuccess || s == PaymentFailure
}

// PaymentRequest is the payload sent to the push-payment gateway.
// Amount is in whole currency units, Phone is a normalized MSISDN and
// Reference is derived from the order id. Built fresh for every attempt.
type PaymentRequest struct {
	Phone     string
	Amount    int64
	Reference string
}

// MissingTransactionIDError means the initiation response carried no
// transaction reference under any recognized field name. It keeps the raw
// response so the unexpected shape can be diagnosed.
type MissingTransactionIDError struct {
	Raw map[string]any
}

func (e *MissingTransactionIDError) Error() string {
	return fmt.Sprintf("no transaction id in gateway response: %v", e.Raw)
}

// PaymentGateway is the external push-payment provider. Responses are
// loosely typed because the gateway does not commit to a stable schema.
type PaymentGateway interface {
	InitiatePush(ctx context.Context, req PaymentRequest) (map[string]any, error)
	QueryStatus(ctx context.Context, transactionID string) (map[string]any, error)
}
