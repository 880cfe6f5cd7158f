package service

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"checkout/pkg/checkout/domain/model"
)

var ErrSessionNotFound = errors.New("checkout session not found")

// CheckoutService owns the live payment sessions, one per checkout attempt.
type CheckoutService interface {
	Begin(cart model.Cart, contact model.ContactInfo, clearer CartClearer) (Snapshot, error)
	Session(id uuid.UUID) (Snapshot, error)
	Confirm(id uuid.UUID, phone string) error
	Cancel(id uuid.UUID) error
	Retry(id uuid.UUID) (Snapshot, error)
}

func NewCheckoutService(
	orders OrderService,
	initiator PaymentInitiator,
	poller StatusPoller,
	gateway model.PaymentGateway,
	dispatcher EventDispatcher,
	fallbackAfter time.Duration,
) CheckoutService {
	return &checkoutService{
		deps: sessionDeps{
			orders:        orders,
			initiator:     initiator,
			poller:        poller,
			gateway:       gateway,
			dispatcher:    dispatcher,
			fallbackAfter: fallbackAfter,
		},
		sessions: make(map[uuid.UUID]*paymentSession),
	}
}

type checkoutService struct {
	deps sessionDeps

	mu       sync.Mutex
	sessions map[uuid.UUID]*paymentSession
}

func (c *checkoutService) Begin(cart model.Cart, contact model.ContactInfo, clearer CartClearer) (Snapshot, error) {
	// Local validation gates the machine: nothing leaves Idle on bad input.
	if err := ValidateSubmission(cart, contact); err != nil {
		return Snapshot{}, err
	}

	session := &paymentSession{
		id:      uuid.New(),
		deps:    c.deps,
		state:   StateIdle,
		cart:    cart,
		contact: contact,
		clearer: clearer,
	}

	c.mu.Lock()
	c.sessions[session.id] = session
	c.mu.Unlock()

	if err := session.start(); err != nil {
		return Snapshot{}, err
	}
	return session.snapshot(), nil
}

func (c *checkoutService) Session(id uuid.UUID) (Snapshot, error) {
	session, err := c.find(id)
	if err != nil {
		return Snapshot{}, err
	}
	return session.snapshot(), nil
}

func (c *checkoutService) Confirm(id uuid.UUID, phone string) error {
	session, err := c.find(id)
	if err != nil {
		return err
	}
	return session.confirm(phone)
}

func (c *checkoutService) Cancel(id uuid.UUID) error {
	session, err := c.find(id)
	if err != nil {
		return err
	}
	return session.cancel()
}

func (c *checkoutService) Retry(id uuid.UUID) (Snapshot, error) {
	session, err := c.find(id)
	if err != nil {
		return Snapshot{}, err
	}
	if err := session.retry(); err != nil {
		return Snapshot{}, err
	}
	return session.snapshot(), nil
}

func (c *checkoutService) find(id uuid.UUID) (*paymentSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if session, ok := c.sessions[id]; ok {
		return session, nil
	}
	return nil, ErrSessionNotFound
}
