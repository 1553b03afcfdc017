package app

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/movitel/lineops/internal/cache"
	"github.com/movitel/lineops/internal/lifecycle/domain"
)

// --- Mocks ---

type MockLineAPI struct {
	mock.Mock
}

func (m *MockLineAPI) ProcessSimReplacement(ctx context.Context, lineID string, reason domain.BlockReason) (*domain.Line, error) {
	args := m.Called(ctx, lineID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Line), args.Error(1)
}

func (m *MockLineAPI) ConfirmSimReplacementActions(ctx context.Context, req ConfirmActionsRequest) (*domain.Line, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Line), args.Error(1)
}

func (m *MockLineAPI) DeclareSimReplacementReceived(ctx context.Context, lineID, iccid string) (*domain.Line, error) {
	args := m.Called(ctx, lineID, iccid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Line), args.Error(1)
}

func (m *MockLineAPI) OrderReplacementSim(ctx context.Context, req OrderReplacementRequest) (*domain.Line, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Line), args.Error(1)
}

func (m *MockLineAPI) ActivateLine(ctx context.Context, lineID string) (*domain.Line, error) {
	args := m.Called(ctx, lineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Line), args.Error(1)
}

type MockPaymentAPI struct {
	mock.Mock
}

func (m *MockPaymentAPI) UnpaidInvoices(ctx context.Context, clientID string) ([]domain.Invoice, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Invoice), args.Error(1)
}

func (m *MockPaymentAPI) GenerateActivationInvoice(ctx context.Context, clientID string, amount float64, proratedDays, daysInMonth int) (*domain.Invoice, error) {
	args := m.Called(ctx, clientID, amount, proratedDays, daysInMonth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Invoice), args.Error(1)
}

func (m *MockPaymentAPI) MarkPaymentReceived(ctx context.Context, receipt PaymentReceipt) (*domain.Invoice, error) {
	args := m.Called(ctx, receipt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Invoice), args.Error(1)
}

// --- Fixtures ---

var testNow = time.Date(2024, time.April, 21, 12, 0, 0, 0, time.UTC)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *MockLineAPI, *MockPaymentAPI, *cache.Store) {
	t.Helper()
	lineAPI := new(MockLineAPI)
	paymentAPI := new(MockPaymentAPI)
	store := cache.NewStore(slog.Default())
	o := NewOrchestrator(lineAPI, paymentAPI, store, slog.Default())
	o.now = func() time.Time { return testNow }
	return o, lineAPI, paymentAPI, store
}

func primeLineCaches(t *testing.T, store *cache.Store) {
	t.Helper()
	for _, tag := range []cache.Tag{cache.TagLineReservations, cache.TagLinesToActivate} {
		_, err := store.Get(context.Background(), tag, func(context.Context) (any, error) { return "cached", nil })
		require.NoError(t, err)
	}
}

// --- ConfirmSimReplacementActions ---

func TestConfirmWithoutRedBlockingRejectsBeforeNetwork(t *testing.T) {
	o, lineAPI, _, _ := newTestOrchestrator(t)
	line := lineAwaitingBlock(domain.BlockReasonLostSim)

	_, err := o.ConfirmSimReplacementActions(context.Background(), line, ConfirmActionsRequest{
		LineID:            line.ID,
		ConfirmedSimOrder: true,
	})

	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, domain.LineStatusNeedsBlocking, line.Status)
	lineAPI.AssertNotCalled(t, "ConfirmSimReplacementActions", mock.Anything, mock.Anything)
}

func TestConfirmLostSimNoReplacementBlocksWithRedOnly(t *testing.T) {
	o, lineAPI, _, store := newTestOrchestrator(t)
	primeLineCaches(t, store)
	line := lineAwaitingBlock(domain.BlockReasonLostSimNoReplacement)

	blocked := &domain.Line{ID: line.ID, Status: domain.LineStatusBlocked}
	lineAPI.On("ConfirmSimReplacementActions", mock.Anything, mock.Anything).Return(blocked, nil)

	updated, err := o.ConfirmSimReplacementActions(context.Background(), line, ConfirmActionsRequest{
		LineID:               line.ID,
		ConfirmedRedBlocking: true,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.LineStatusBlocked, updated.Status)
	assert.True(t, store.IsStale(cache.TagLineReservations))
	assert.True(t, store.IsStale(cache.TagLinesToActivate))
}

func TestConfirmSurfacesServerDriftAsConflict(t *testing.T) {
	o, lineAPI, _, _ := newTestOrchestrator(t)
	line := lineAwaitingBlock(domain.BlockReasonPause)

	// Another supervisor already confirmed; the server reports a different
	// resulting state than planned.
	drifted := &domain.Line{ID: line.ID, Status: domain.LineStatusBlocked}
	lineAPI.On("ConfirmSimReplacementActions", mock.Anything, mock.Anything).Return(drifted, nil)

	_, err := o.ConfirmSimReplacementActions(context.Background(), line, ConfirmActionsRequest{
		LineID:               line.ID,
		ConfirmedRedBlocking: true,
	})

	assert.True(t, domain.IsConflict(err))
	lineAPI.AssertNumberOfCalls(t, "ConfirmSimReplacementActions", 1) // never retried
}

// --- ProcessSimReplacementRequest ---

func TestProcessRejectsSecondPendingBlockRequest(t *testing.T) {
	o, lineAPI, _, _ := newTestOrchestrator(t)
	line := lineAwaitingBlock(domain.BlockReasonLostSim) // already has a pending request

	_, err := o.ProcessSimReplacementRequest(context.Background(), line, domain.BlockReasonPause)

	assert.True(t, domain.IsConflict(err))
	lineAPI.AssertNotCalled(t, "ProcessSimReplacement", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessRejectsUnknownReason(t *testing.T) {
	o, lineAPI, _, _ := newTestOrchestrator(t)
	line := &domain.Line{ID: "line-1", Status: domain.LineStatusActive}

	_, err := o.ProcessSimReplacementRequest(context.Background(), line, domain.BlockReason("vanished"))

	assert.True(t, domain.IsValidation(err))
	lineAPI.AssertNotCalled(t, "ProcessSimReplacement", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessOpensPendingBlockRequest(t *testing.T) {
	o, lineAPI, _, _ := newTestOrchestrator(t)
	line := &domain.Line{ID: "line-1", Status: domain.LineStatusActive, ClientID: "client-1"}

	reason := domain.BlockReasonLostSim
	pending := &domain.Line{ID: line.ID, Status: domain.LineStatusNeedsBlocking, PendingBlockReason: &reason}
	lineAPI.On("ProcessSimReplacement", mock.Anything, line.ID, reason).Return(pending, nil)

	updated, err := o.ProcessSimReplacementRequest(context.Background(), line, reason)

	require.NoError(t, err)
	assert.Equal(t, domain.LineStatusNeedsBlocking, updated.Status)
}

// --- DeclareSimReplacementReceived ---

func TestDeclareReceivedRequiresICCID(t *testing.T) {
	o, lineAPI, _, _ := newTestOrchestrator(t)
	line := &domain.Line{ID: "line-1", Status: domain.LineStatusPendingSimActivation, ReplacementSimOrdered: true}

	_, err := o.DeclareSimReplacementReceived(context.Background(), line, "   ")

	assert.True(t, domain.IsValidation(err))
	lineAPI.AssertNotCalled(t, "DeclareSimReplacementReceived", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeclareReceivedRequiresOrderedReplacement(t *testing.T) {
	o, lineAPI, _, _ := newTestOrchestrator(t)
	line := &domain.Line{ID: "line-1", Status: domain.LineStatusPendingSimActivation}

	_, err := o.DeclareSimReplacementReceived(context.Background(), line, "8933011234567890000")

	assert.True(t, domain.IsValidation(err))
	lineAPI.AssertNotCalled(t, "DeclareSimReplacementReceived", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeclareReceivedExitsReplacementWorkflow(t *testing.T) {
	o, lineAPI, _, _ := newTestOrchestrator(t)
	line := &domain.Line{ID: "line-1", Status: domain.LineStatusPendingSimActivation, ReplacementSimOrdered: true}

	received := &domain.Line{ID: line.ID, Status: domain.LineStatusPendingSimActivation, ReplacementSimOrdered: true, ReplacementSimReceived: true}
	lineAPI.On("DeclareSimReplacementReceived", mock.Anything, line.ID, "8933011234567890000").Return(received, nil)

	updated, err := o.DeclareSimReplacementReceived(context.Background(), line, "8933011234567890000")

	require.NoError(t, err)
	assert.True(t, updated.ReplacementSimReceived)
	require.NoError(t, updated.CheckInvariants())
}

// --- OrderReplacementSim ---

func TestOrderReplacementRejectsZeroAmountBeforeNetwork(t *testing.T) {
	o, lineAPI, _, _ := newTestOrchestrator(t)
	line := &domain.Line{ID: "line-1", Status: domain.LineStatusPaused, PausedForLostSim: true}

	_, err := o.OrderReplacementSim(context.Background(), line, OrderReplacementRequest{
		LineID:        line.ID,
		Amount:        0,
		PaymentMethod: "card",
	})

	assert.True(t, domain.IsValidation(err))
	lineAPI.AssertNotCalled(t, "OrderReplacementSim", mock.Anything, mock.Anything)
}

func TestOrderReplacementRejectsEmptyPaymentMethodBeforeNetwork(t *testing.T) {
	o, lineAPI, _, _ := newTestOrchestrator(t)
	line := &domain.Line{ID: "line-1", Status: domain.LineStatusPaused, PausedForLostSim: true}

	_, err := o.OrderReplacementSim(context.Background(), line, OrderReplacementRequest{
		LineID: line.ID,
		Amount: 10,
	})

	assert.True(t, domain.IsValidation(err))
	lineAPI.AssertNotCalled(t, "OrderReplacementSim", mock.Anything, mock.Anything)
}

func TestOrderReplacementRequiresPausedForLostSim(t *testing.T) {
	o, lineAPI, _, _ := newTestOrchestrator(t)
	line := &domain.Line{ID: "line-1", Status: domain.LineStatusPaused}

	_, err := o.OrderReplacementSim(context.Background(), line, OrderReplacementRequest{
		LineID:        line.ID,
		Amount:        10,
		PaymentMethod: "card",
	})

	assert.True(t, domain.IsValidation(err))
	lineAPI.AssertNotCalled(t, "OrderReplacementSim", mock.Anything, mock.Anything)
}

func TestOrderReplacementMovesLineToOrderQueue(t *testing.T) {
	o, lineAPI, _, _ := newTestOrchestrator(t)
	line := &domain.Line{ID: "line-1", Status: domain.LineStatusPaused, PausedForLostSim: true}

	ordered := &domain.Line{ID: line.ID, Status: domain.LineStatusNeedsSimOrder}
	lineAPI.On("OrderReplacementSim", mock.Anything, mock.Anything).Return(ordered, nil)

	updated, err := o.OrderReplacementSim(context.Background(), line, OrderReplacementRequest{
		LineID:        line.ID,
		Amount:        10,
		PaymentMethod: "card",
		Reference:     "ref-1",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.LineStatusNeedsSimOrder, updated.Status)
}

// --- Payment gate ---

func TestCheckPaymentThenSettleThenRecheck(t *testing.T) {
	o, _, paymentAPI, _ := newTestOrchestrator(t)
	ctx := context.Background()

	unpaid := domain.Invoice{
		ID:        "inv-1",
		ClientID:  "client-1",
		Amount:    19.00,
		Status:    domain.InvoiceStatusUnpaid,
		CreatedAt: testNow.AddDate(0, 0, -3),
	}
	paymentAPI.On("UnpaidInvoices", ctx, "client-1").Return([]domain.Invoice{unpaid}, nil).Once()

	check, err := o.CheckPayment(ctx, "client-1")
	require.NoError(t, err)
	assert.True(t, check.RequiresPayment)
	assert.Equal(t, 19.00, check.TotalAmount)
	require.NotNil(t, check.Invoice)
	assert.Equal(t, "inv-1", check.Invoice.ID)

	paid := unpaid
	paid.Status = domain.InvoiceStatusPaid
	paymentAPI.On("MarkPaymentReceived", ctx, mock.Anything).Return(&paid, nil)
	_, err = o.MarkPaymentReceived(ctx, PaymentReceipt{
		InvoiceID:     "inv-1",
		PaymentMethod: "transfer",
		Amount:        19.00,
	})
	require.NoError(t, err)

	paymentAPI.On("UnpaidInvoices", ctx, "client-1").Return([]domain.Invoice{}, nil).Once()
	check, err = o.CheckPayment(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, check.RequiresPayment)
}

func TestCheckPaymentIgnoresPastPeriodInvoices(t *testing.T) {
	o, _, paymentAPI, _ := newTestOrchestrator(t)
	ctx := context.Background()

	old := domain.Invoice{
		ID:        "inv-old",
		ClientID:  "client-1",
		Amount:    19.00,
		Status:    domain.InvoiceStatusUnpaid,
		CreatedAt: testNow.AddDate(0, -2, 0),
	}
	paymentAPI.On("UnpaidInvoices", ctx, "client-1").Return([]domain.Invoice{old}, nil)

	check, err := o.CheckPayment(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, check.RequiresPayment)
}

func TestMarkPaymentReceivedValidatesBeforeNetwork(t *testing.T) {
	o, _, paymentAPI, _ := newTestOrchestrator(t)

	_, err := o.MarkPaymentReceived(context.Background(), PaymentReceipt{
		InvoiceID: "inv-1",
		Amount:    19.00,
	})

	assert.True(t, domain.IsValidation(err))
	paymentAPI.AssertNotCalled(t, "MarkPaymentReceived", mock.Anything, mock.Anything)
}

func TestActivationChargeGeneratesProratedInvoice(t *testing.T) {
	o, _, paymentAPI, _ := newTestOrchestrator(t)
	ctx := context.Background()

	paymentAPI.On("UnpaidInvoices", ctx, "client-1").Return([]domain.Invoice{}, nil)
	// testNow is April 21st: 10 remaining days of 30, price 19 -> 6.33.
	generated := &domain.Invoice{ID: "inv-new", ClientID: "client-1", Amount: 6.33, Status: domain.InvoiceStatusUnpaid, CreatedAt: testNow}
	paymentAPI.On("GenerateActivationInvoice", ctx, "client-1", 6.33, 10, 30).Return(generated, nil)

	check, err := o.ActivationCharge(ctx, "client-1", 19)
	require.NoError(t, err)
	assert.True(t, check.RequiresPayment)
	assert.Equal(t, 6.33, check.TotalAmount)
}

func TestActivateLineBlockedByUnpaidInvoice(t *testing.T) {
	o, lineAPI, paymentAPI, _ := newTestOrchestrator(t)
	ctx := context.Background()
	line := &domain.Line{ID: "line-1", Status: domain.LineStatusPendingSimActivation, ClientID: "client-1"}

	unpaid := domain.Invoice{ID: "inv-1", ClientID: "client-1", Amount: 19, Status: domain.InvoiceStatusUnpaid, CreatedAt: testNow}
	paymentAPI.On("UnpaidInvoices", ctx, "client-1").Return([]domain.Invoice{unpaid}, nil)

	_, err := o.ActivateLine(ctx, line)

	assert.True(t, domain.IsValidation(err))
	lineAPI.AssertNotCalled(t, "ActivateLine", mock.Anything, mock.Anything)
}

func TestActivateLineProceedsWhenSettled(t *testing.T) {
	o, lineAPI, paymentAPI, _ := newTestOrchestrator(t)
	ctx := context.Background()
	line := &domain.Line{ID: "line-1", Status: domain.LineStatusPendingSimActivation, ClientID: "client-1"}

	paymentAPI.On("UnpaidInvoices", ctx, "client-1").Return([]domain.Invoice{}, nil)
	active := &domain.Line{ID: line.ID, Status: domain.LineStatusActive}
	lineAPI.On("ActivateLine", ctx, line.ID).Return(active, nil)

	updated, err := o.ActivateLine(ctx, line)
	require.NoError(t, err)
	assert.Equal(t, domain.LineStatusActive, updated.Status)
}
