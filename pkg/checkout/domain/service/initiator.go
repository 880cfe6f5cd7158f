package service

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"checkout/pkg/checkout/domain/model"
)

// PaymentInitiator asks the gateway to push a payment prompt to the payer's
// device and returns the transaction reference the gateway assigned.
type PaymentInitiator interface {
	Initiate(ctx context.Context, orderID int64, rawPhone string, amountCents int64) (string, error)
}

func NewPaymentInitiator(gateway model.PaymentGateway, phones *PhoneNormalizer, dispatcher EventDispatcher) PaymentInitiator {
	return &paymentInitiator{
		gateway:    gateway,
		phones:     phones,
		dispatcher: dispatcher,
	}
}

type paymentInitiator struct {
	gateway    model.PaymentGateway
	phones     *PhoneNormalizer
	dispatcher EventDispatcher
}

func (i *paymentInitiator) Initiate(ctx context.Context, orderID int64, rawPhone string, amountCents int64) (string, error) {
	phone, err := i.phones.Normalize(rawPhone)
	if err != nil {
		return "", err
	}

	reference := OrderReference(orderID)
	req := model.PaymentRequest{
		Phone:     phone,
		Amount:    wholeUnits(amountCents),
		Reference: reference,
	}

	payload, err := i.gateway.InitiatePush(ctx, req)
	if err != nil {
		return "", err
	}

	transactionID, err := ExtractTransactionID(payload)
	if err != nil {
		// Fatal for this attempt. Keep the whole response in the log so the
		// unrecognized shape can be diagnosed.
		log.WithFields(log.Fields{
			"order_id": orderID,
			"response": payload,
		}).Error("gateway initiation response carried no transaction id")
		return "", err
	}

	_ = i.dispatcher.Dispatch(model.PaymentInitiated{
		OrderID:       orderID,
		Reference:     reference,
		TransactionID: transactionID,
	})

	return transactionID, nil
}

// OrderReference derives the gateway account reference from an order id.
// Deterministic per order, re-derived for every initiation attempt.
func OrderReference(orderID int64) string {
	return fmt.Sprintf("ORDER-%d", orderID)
}

// wholeUnits rounds an amount in cents to whole currency units, which is
// what the gateway charges in.
func wholeUnits(cents int64) int64 {
	return (cents + 50) / 100
}
