package tests

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout/pkg/checkout/domain/model"
	"checkout/pkg/checkout/domain/service"
)

type machineEnv struct {
	checkout   service.CheckoutService
	repo       *mockOrderRepository
	dispatcher *mockEventDispatcher
	gw         *fakeGateway
	clearer    *mockCartClearer
}

func setupMachine(t *testing.T, gw *fakeGateway, fallbackAfter time.Duration, maxAttempts int, interval time.Duration) *machineEnv {
	t.Helper()
	repo := newMockOrderRepository()
	dispatcher := &mockEventDispatcher{}
	orders := service.NewOrderService(repo, dispatcher, testDeliveryFee)
	initiator := service.NewPaymentInitiator(gw, service.NewPhoneNormalizer("254"), dispatcher)
	poller := service.NewStatusPoller(gw, maxAttempts, interval)

	return &machineEnv{
		checkout:   service.NewCheckoutService(orders, initiator, poller, gw, dispatcher, fallbackAfter),
		repo:       repo,
		dispatcher: dispatcher,
		gw:         gw,
		clearer:    &mockCartClearer{},
	}
}

func (env *machineEnv) begin(t *testing.T) uuid.UUID {
	t.Helper()
	snap, err := env.checkout.Begin(testCart(), testContact(), env.clearer)
	require.NoError(t, err)
	return snap.ID
}

func (env *machineEnv) waitForState(t *testing.T, id uuid.UUID, state service.SessionState) service.Snapshot {
	t.Helper()
	var snap service.Snapshot
	require.Eventually(t, func() bool {
		var err error
		snap, err = env.checkout.Session(id)
		return err == nil && snap.State == state
	}, 2*time.Second, 5*time.Millisecond, "waiting for state %s, last seen %s", state, snap.State)
	return snap
}

func succeededEvent(events []service.Event) (model.PaymentSucceeded, bool) {
	for _, e := range events {
		if succeeded, ok := e.(model.PaymentSucceeded); ok {
			return succeeded, true
		}
	}
	return model.PaymentSucceeded{}, false
}

func TestCheckoutHappyPath(t *testing.T) {
	gw := &fakeGateway{statusFn: func(int) (map[string]any, error) {
		return map[string]any{"status": "completed"}, nil
	}}
	env := setupMachine(t, gw, time.Second, 5, 5*time.Millisecond)

	id := env.begin(t)
	snap := env.waitForState(t, id, service.StateSucceeded)

	assert.Equal(t, "ws_CO_1", snap.TransactionID)
	assert.Equal(t, 1, snap.Attempt)
	assert.Zero(t, snap.CartItems, "cart must be emptied on success")
	assert.Equal(t, 1, env.clearer.count())
	assert.Equal(t, model.OrderPaid, env.repo.status(snap.OrderID))

	req := env.gw.request()
	assert.Equal(t, "254712345678", req.Phone)
	assert.Equal(t, int64(1100), req.Amount)
	assert.Equal(t, fmt.Sprintf("ORDER-%d", snap.OrderID), req.Reference)

	succeeded, ok := succeededEvent(env.dispatcher.All())
	require.True(t, ok)
	assert.True(t, succeeded.Verified)
}

func TestCheckoutGatewayFailureThenRetry(t *testing.T) {
	gw := &fakeGateway{
		initiateFn: func(call int, _ model.PaymentRequest) (map[string]any, error) {
			return map[string]any{"CheckoutRequestID": fmt.Sprintf("ws_CO_%d", call)}, nil
		},
		statusFn: func(call int) (map[string]any, error) {
			if call == 1 {
				return map[string]any{"ResultCode": "1"}, nil
			}
			return map[string]any{"status": "completed"}, nil
		},
	}
	env := setupMachine(t, gw, time.Second, 5, 5*time.Millisecond)

	id := env.begin(t)
	snap := env.waitForState(t, id, service.StateFailed)

	assert.NotEmpty(t, snap.FailureReason)
	assert.Equal(t, "ws_CO_1", snap.TransactionID)
	assert.Equal(t, 2, snap.CartItems, "cart survives a failed payment")
	assert.Zero(t, env.clearer.count())
	assert.Equal(t, model.OrderPaymentFailed, env.repo.status(snap.OrderID))
	firstOrder := snap.OrderID

	retried, err := env.checkout.Retry(id)
	require.NoError(t, err)
	assert.Equal(t, 2, retried.Attempt)

	snap = env.waitForState(t, id, service.StateSucceeded)
	assert.Equal(t, "ws_CO_2", snap.TransactionID, "a fresh attempt must mint a fresh handle")
	assert.NotEqual(t, firstOrder, snap.OrderID)
	assert.Equal(t, model.OrderPaid, env.repo.status(snap.OrderID))
	assert.Equal(t, model.OrderPaymentFailed, env.repo.status(firstOrder))
	assert.Equal(t, 1, env.clearer.count())
}

func TestCheckoutOrderCreationFails(t *testing.T) {
	env := setupMachine(t, &fakeGateway{}, time.Second, 5, 5*time.Millisecond)
	env.repo.failed = true

	id := env.begin(t)
	snap := env.waitForState(t, id, service.StateFailed)

	assert.Contains(t, snap.FailureReason, "order creation failed")
	assert.Zero(t, snap.OrderID)
	assert.Zero(t, env.gw.initiateCalls)
}

func TestCheckoutInitiationFails(t *testing.T) {
	gw := &fakeGateway{initiateFn: func(int, model.PaymentRequest) (map[string]any, error) {
		return map[string]any{"ResponseDescription": "accepted"}, nil
	}}
	env := setupMachine(t, gw, time.Second, 5, 5*time.Millisecond)

	id := env.begin(t)
	snap := env.waitForState(t, id, service.StateFailed)

	assert.Contains(t, snap.FailureReason, "payment initiation failed")
	assert.Empty(t, snap.TransactionID)
	assert.Equal(t, model.OrderPaymentFailed, env.repo.status(snap.OrderID))
	assert.Zero(t, env.gw.queries(), "no polling without a handle")
}

func TestFallbackTimerOffersManualConfirmation(t *testing.T) {
	env := setupMachine(t, &fakeGateway{}, 30*time.Millisecond, 100, 10*time.Millisecond)

	id := env.begin(t)
	env.waitForState(t, id, service.StateManualConfirmation)

	t.Run("explicit cancel resolves to failed", func(t *testing.T) {
		require.NoError(t, env.checkout.Cancel(id))
		snap := env.waitForState(t, id, service.StateFailed)
		assert.Equal(t, "cancelled by user", snap.FailureReason)
		assert.Zero(t, env.clearer.count())
	})
}

func TestLateGatewayResolutionLandsDuringManualConfirmation(t *testing.T) {
	gw := &fakeGateway{statusFn: func(call int) (map[string]any, error) {
		if call < 8 {
			return pendingPayload()
		}
		return map[string]any{"status": "completed"}, nil
	}}
	env := setupMachine(t, gw, 20*time.Millisecond, 100, 10*time.Millisecond)

	id := env.begin(t)
	env.waitForState(t, id, service.StateManualConfirmation)
	snap := env.waitForState(t, id, service.StateSucceeded)

	assert.Equal(t, model.OrderPaid, env.repo.status(snap.OrderID))
	assert.Equal(t, 1, env.clearer.count())
}

func TestPollTimeoutRoutesToManualConfirmation(t *testing.T) {
	env := setupMachine(t, &fakeGateway{}, time.Second, 2, 5*time.Millisecond)

	id := env.begin(t)
	env.waitForState(t, id, service.StateManualConfirmation)
	assert.Equal(t, 2, env.gw.queries())
}

func TestManualConfirmation(t *testing.T) {
	t.Run("accepted as unverified when gateway stays silent", func(t *testing.T) {
		env := setupMachine(t, &fakeGateway{}, time.Second, 2, 5*time.Millisecond)

		id := env.begin(t)
		env.waitForState(t, id, service.StateManualConfirmation)

		require.NoError(t, env.checkout.Confirm(id, "0712345678"))
		snap := env.waitForState(t, id, service.StateSucceeded)

		assert.Equal(t, model.OrderPaidUnverified, env.repo.status(snap.OrderID))
		assert.Equal(t, 1, env.clearer.count())

		succeeded, ok := succeededEvent(env.dispatcher.All())
		require.True(t, ok)
		assert.False(t, succeeded.Verified)

		var recorded bool
		for _, e := range env.dispatcher.All() {
			if _, ok := e.(model.ManualConfirmationRecorded); ok {
				recorded = true
			}
		}
		assert.True(t, recorded)
	})

	t.Run("re-verification trusts the gateway over the user", func(t *testing.T) {
		var mu sync.Mutex
		verdict := map[string]any{"status": "pending"}
		gw := &fakeGateway{statusFn: func(int) (map[string]any, error) {
			mu.Lock()
			defer mu.Unlock()
			return verdict, nil
		}}
		env := setupMachine(t, gw, time.Second, 2, 5*time.Millisecond)

		id := env.begin(t)
		env.waitForState(t, id, service.StateManualConfirmation)

		mu.Lock()
		verdict = map[string]any{"ResultCode": "1"}
		mu.Unlock()

		require.NoError(t, env.checkout.Confirm(id, "0712345678"))
		snap := env.waitForState(t, id, service.StateFailed)

		assert.Equal(t, model.OrderPaymentFailed, env.repo.status(snap.OrderID))
		assert.Zero(t, env.clearer.count())
	})

	t.Run("rejects short phone numbers", func(t *testing.T) {
		env := setupMachine(t, &fakeGateway{}, time.Second, 2, 5*time.Millisecond)

		id := env.begin(t)
		env.waitForState(t, id, service.StateManualConfirmation)

		var verr *service.ValidationError
		assert.ErrorAs(t, env.checkout.Confirm(id, "07123"), &verr)
	})

	t.Run("rejected outside manual confirmation", func(t *testing.T) {
		gw := &fakeGateway{statusFn: func(int) (map[string]any, error) {
			return map[string]any{"status": "completed"}, nil
		}}
		env := setupMachine(t, gw, time.Second, 5, 5*time.Millisecond)

		id := env.begin(t)
		env.waitForState(t, id, service.StateSucceeded)

		assert.ErrorIs(t, env.checkout.Confirm(id, "0712345678"), service.ErrInvalidTransition)
	})
}

func TestTerminalStatesAreStable(t *testing.T) {
	gw := &fakeGateway{statusFn: func(int) (map[string]any, error) {
		return map[string]any{"status": "completed"}, nil
	}}
	env := setupMachine(t, gw, 30*time.Millisecond, 5, 5*time.Millisecond)

	id := env.begin(t)
	env.waitForState(t, id, service.StateSucceeded)

	// Outlive the fallback window: a stale timer must not move the machine.
	time.Sleep(60 * time.Millisecond)

	snap, err := env.checkout.Session(id)
	require.NoError(t, err)
	assert.Equal(t, service.StateSucceeded, snap.State)
	assert.Equal(t, 1, env.clearer.count(), "cart cleared exactly once")

	assert.NoError(t, env.checkout.Cancel(id), "cancel on a terminal session is a no-op")
	snap, _ = env.checkout.Session(id)
	assert.Equal(t, service.StateSucceeded, snap.State)

	_, err = env.checkout.Retry(id)
	assert.ErrorIs(t, err, service.ErrInvalidTransition, "retry is only an exit from Failed")
}

func TestCancelWhileAwaitingPayment(t *testing.T) {
	env := setupMachine(t, &fakeGateway{}, time.Second, 100, 10*time.Millisecond)

	id := env.begin(t)
	require.Eventually(t, func() bool {
		snap, err := env.checkout.Session(id)
		return err == nil && snap.State == service.StateAwaitingPayment
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, env.checkout.Cancel(id))
	snap := env.waitForState(t, id, service.StateFailed)
	assert.Equal(t, "cancelled by user", snap.FailureReason)

	queriesAtCancel := env.gw.queries()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, env.gw.queries(), queriesAtCancel+1, "poll loop must stop after cancel")
}

func TestBeginValidatesLocally(t *testing.T) {
	env := setupMachine(t, &fakeGateway{}, time.Second, 5, 5*time.Millisecond)

	_, err := env.checkout.Begin(model.Cart{}, testContact(), env.clearer)
	assert.ErrorIs(t, err, model.ErrEmptyCart)

	contact := testContact()
	contact.Email = "nope"
	_, err = env.checkout.Begin(testCart(), contact, env.clearer)
	var verr *service.ValidationError
	assert.ErrorAs(t, err, &verr)

	assert.Zero(t, env.repo.count(), "local validation never reaches collaborators")
}

func TestUnknownSession(t *testing.T) {
	env := setupMachine(t, &fakeGateway{}, time.Second, 5, 5*time.Millisecond)

	_, err := env.checkout.Session(uuid.New())
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
}
