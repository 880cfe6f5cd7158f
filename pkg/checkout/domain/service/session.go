package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"checkout/pkg/checkout/domain/model"
)

var ErrInvalidTransition = errors.New("action not allowed in current session state")

// effectTimeout bounds the collaborator calls made while applying terminal
// effects (order status updates, re-verification queries).
const effectTimeout = 10 * time.Second

type SessionState int

const (
	StateIdle SessionState = iota
	StateCreatingOrder
	StateInitiatingPayment
	StateAwaitingPayment
	StateManualConfirmation
	StateSucceeded
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCreatingOrder:
		return "creating_order"
	case StateInitiatingPayment:
		return "initiating_payment"
	case StateAwaitingPayment:
		return "awaiting_payment"
	case StateManualConfirmation:
		return "manual_confirmation"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

func (s SessionState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// CartClearer is invoked exactly once when a session's payment succeeds.
type CartClearer interface {
	Clear()
}

// Snapshot is a read-only view of one checkout session.
type Snapshot struct {
	ID            uuid.UUID
	State         SessionState
	OrderID       int64
	TransactionID string
	Attempt       int
	CartItems     int
	FailureReason string
}

type sessionDeps struct {
	orders        OrderService
	initiator     PaymentInitiator
	poller        StatusPoller
	gateway       model.PaymentGateway
	dispatcher    EventDispatcher
	fallbackAfter time.Duration
}

// paymentSession drives one checkout attempt through
// Idle → CreatingOrder → InitiatingPayment → AwaitingPayment and on to a
// terminal state. Every asynchronous continuation (the poll loop, the
// fallback timer) carries a token captured at schedule time; a continuation
// whose token no longer matches the session is a no-op, so a superseded
// attempt can never corrupt a newer one.
type paymentSession struct {
	id   uuid.UUID
	deps sessionDeps

	mu            sync.Mutex
	state         SessionState
	gen           int
	attempt       int
	orderID       int64
	transactionID string
	failureReason string
	cart          model.Cart
	contact       model.ContactInfo
	clearer       CartClearer
	cartCleared   bool
	cancelPoll    context.CancelFunc
	fallback      *time.Timer
}

type timerToken struct {
	state SessionState
	gen   int
}

func (s *paymentSession) tokenLocked() timerToken {
	return timerToken{state: s.state, gen: s.gen}
}

func (s *paymentSession) staleLocked(tok timerToken) bool {
	return s.gen != tok.gen || s.state != tok.state
}

func (s *paymentSession) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrInvalidTransition
	}
	s.attempt++
	s.state = StateCreatingOrder

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelPoll = cancel

	go s.run(ctx, s.tokenLocked())
	return nil
}

func (s *paymentSession) run(ctx context.Context, tok timerToken) {
	order, err := s.deps.orders.Submit(ctx, s.cart, s.contact)
	if err != nil {
		s.fail(tok, fmt.Sprintf("order creation failed: %v", err))
		return
	}

	tok, ok := s.advance(tok, StateInitiatingPayment, func() {
		s.orderID = order.ID
	})
	if !ok {
		return
	}

	transactionID, err := s.deps.initiator.Initiate(ctx, order.ID, s.contact.Phone, order.TotalCents)
	if err != nil {
		s.fail(tok, fmt.Sprintf("payment initiation failed: %v", err))
		return
	}

	tok, ok = s.advance(tok, StateAwaitingPayment, func() {
		s.transactionID = transactionID
		s.scheduleFallbackLocked()
	})
	if !ok {
		return
	}

	status, err := s.deps.poller.PollUntilResolved(ctx, transactionID)
	if err != nil && ctx.Err() != nil {
		// Superseded or cancelled while polling; the canceller owns the state.
		return
	}
	s.resolvePoll(tok, status)
}

// advance moves the machine to the next transient state, provided the token
// that scheduled this continuation is still current.
func (s *paymentSession) advance(tok timerToken, next SessionState, apply func()) (timerToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.staleLocked(tok) {
		return timerToken{}, false
	}
	s.state = next
	if apply != nil {
		apply()
	}
	return s.tokenLocked(), true
}

// scheduleFallbackLocked arms the manual-confirmation timer. Its token is
// captured now: if the machine has moved on by the time it fires, it does
// nothing.
func (s *paymentSession) scheduleFallbackLocked() {
	tok := timerToken{state: StateAwaitingPayment, gen: s.gen}
	s.fallback = time.AfterFunc(s.deps.fallbackAfter, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.staleLocked(tok) {
			return
		}
		s.state = StateManualConfirmation
		log.WithFields(log.Fields{
			"session_id": s.id,
			"order_id":   s.orderID,
		}).Info("gateway silent past fallback window, offering manual confirmation")
	})
}

// resolvePoll applies the poller's terminal classification. The poll loop
// keeps running after the fallback timer moves the machine to
// ManualConfirmation, so a late gateway resolution still lands.
func (s *paymentSession) resolvePoll(tok timerToken, status model.PaymentStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != tok.gen {
		return
	}
	if s.state != StateAwaitingPayment && s.state != StateManualConfirmation {
		return
	}

	switch status {
	case model.PaymentSuccess:
		s.succeedLocked(true)
	case model.PaymentFailure:
		s.failLocked("gateway reported payment failure")
	case model.PaymentConfigError:
		s.failLocked("gateway configuration error")
	case model.PaymentTimeout:
		if s.state == StateAwaitingPayment {
			s.state = StateManualConfirmation
		}
	}
}

// confirm handles the user's self-report that payment completed. The
// self-report is weak evidence, so the gateway is queried once more before
// the machine resolves: a definitive answer wins over the user's claim, and
// only a silent gateway lets the claim through, flagged as unverified.
func (s *paymentSession) confirm(rawPhone string) error {
	if digitCount(rawPhone) < minPhoneDigits {
		return &ValidationError{Field: "phone", Reason: fmt.Sprintf("must be at least %d digits", minPhoneDigits)}
	}

	s.mu.Lock()
	if s.state != StateManualConfirmation {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	tok := s.tokenLocked()
	transactionID := s.transactionID
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
	defer cancel()

	status := model.PaymentPending
	if payload, err := s.deps.gateway.QueryStatus(ctx, transactionID); err == nil {
		status, _ = ClassifyStatus(payload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleLocked(tok) {
		return ErrInvalidTransition
	}

	switch status {
	case model.PaymentFailure:
		s.failLocked("gateway reported payment failure")
	case model.PaymentSuccess:
		s.succeedLocked(true)
	default:
		_ = s.deps.dispatcher.Dispatch(model.ManualConfirmationRecorded{
			OrderID:       s.orderID,
			Phone:         rawPhone,
			TransactionID: transactionID,
		})
		s.succeedLocked(false)
	}
	return nil
}

// cancel invalidates every outstanding timer and poll loop for this session.
// A non-terminal session resolves to Failed.
func (s *paymentSession) cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return nil
	}
	s.gen++
	s.failLocked("cancelled by user")
	return nil
}

// retry is the explicit new-attempt reset: allowed only from Failed, and it
// starts over with a fresh order, reference and transaction handle.
func (s *paymentSession) retry() error {
	s.mu.Lock()
	if s.state != StateFailed {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	s.gen++
	s.orderID = 0
	s.transactionID = ""
	s.failureReason = ""
	s.state = StateIdle
	s.mu.Unlock()

	return s.start()
}

func (s *paymentSession) succeedLocked(verified bool) {
	s.state = StateSucceeded
	s.stopTimersLocked()

	if !s.cartCleared {
		s.cartCleared = true
		s.cart.Items = nil
		if s.clearer != nil {
			s.clearer.Clear()
		}
	}

	status := model.OrderPaid
	if !verified {
		status = model.OrderPaidUnverified
	}
	s.updateOrderStatusLocked(status)

	_ = s.deps.dispatcher.Dispatch(model.PaymentSucceeded{
		OrderID:       s.orderID,
		TransactionID: s.transactionID,
		Verified:      verified,
	})
}

func (s *paymentSession) failLocked(reason string) {
	s.state = StateFailed
	s.failureReason = reason
	s.stopTimersLocked()

	if s.orderID != 0 {
		s.updateOrderStatusLocked(model.OrderPaymentFailed)
	}

	_ = s.deps.dispatcher.Dispatch(model.PaymentFailed{
		OrderID: s.orderID,
		Reason:  reason,
	})
}

func (s *paymentSession) fail(tok timerToken, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != tok.gen || s.state.Terminal() {
		return
	}
	s.failLocked(reason)
}

func (s *paymentSession) updateOrderStatusLocked(status model.OrderStatus) {
	if s.orderID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
	defer cancel()
	if err := s.deps.orders.UpdateStatus(ctx, s.orderID, status); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"session_id": s.id,
			"order_id":   s.orderID,
			"status":     status.String(),
		}).Error("order status update failed")
	}
}

func (s *paymentSession) stopTimersLocked() {
	if s.fallback != nil {
		s.fallback.Stop()
		s.fallback = nil
	}
	if s.cancelPoll != nil {
		s.cancelPoll()
		s.cancelPoll = nil
	}
}

func (s *paymentSession) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		ID:            s.id,
		State:         s.state,
		OrderID:       s.orderID,
		TransactionID: s.transactionID,
		Attempt:       s.attempt,
		CartItems:     len(s.cart.Items),
		FailureReason: s.failureReason,
	}
}
