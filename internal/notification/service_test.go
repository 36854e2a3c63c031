package notification_test

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/gateway/epdq"
	"github.com/punchamoorthee/payconnector/internal/notification"
	"github.com/punchamoorthee/payconnector/internal/signature"
)

const shaOut = "sha-out-passphrase"

type mockCharges struct{ mock.Mock }

func (m *mockCharges) FindByProviderAndTransactionID(ctx context.Context, gateway, transactionID string) (*domain.Charge, error) {
	args := m.Called(ctx, gateway, transactionID)
	c, _ := args.Get(0).(*domain.Charge)
	return c, args.Error(1)
}

type mockAccounts struct{ mock.Mock }

func (m *mockAccounts) FindAccount(ctx context.Context, id int64) (*domain.GatewayAccount, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*domain.GatewayAccount)
	return a, args.Error(1)
}

type mockChargeTx struct{ mock.Mock }

func (m *mockChargeTx) Transition(ctx context.Context, charge *domain.Charge, target domain.ChargeStatus, reason string) error {
	return m.Called(ctx, charge, target, reason).Error(0)
}

type mockRefundTx struct{ mock.Mock }

func (m *mockRefundTx) TransitionRefund(ctx context.Context, gateway string, target domain.RefundStatus, account *domain.GatewayAccount, reference, transactionID string, charge *domain.Charge) error {
	return m.Called(ctx, gateway, target, account, reference, transactionID, charge).Error(0)
}

// recordingTx applies transitions to the charge in memory and keeps a history,
// treating the current status as a no-op.
type recordingTx struct {
	history []domain.ChargeStatus
}

func (r *recordingTx) Transition(_ context.Context, charge *domain.Charge, target domain.ChargeStatus, _ string) error {
	if charge.Status == target {
		return nil
	}
	if err := charge.CanTransitionTo(target); err != nil {
		return err
	}
	charge.Status = target
	r.history = append(r.history, target)
	return nil
}

func testAccount() *domain.GatewayAccount {
	return &domain.GatewayAccount{
		ID:              7,
		PaymentProvider: epdq.Name,
		Credentials: []domain.GatewayAccountCredentials{{
			PaymentProvider: epdq.Name,
			State:           domain.CredentialsActive,
			Credentials:     domain.Credentials{SHAOutPassphrase: shaOut},
		}},
	}
}

func epdqPayload(t *testing.T, status, passphrase string) []byte {
	t.Helper()
	fields := []signature.Param{
		{Name: "orderID", Value: "order-1"},
		{Name: "amount", Value: "15"},
		{Name: "STATUS", Value: status},
		{Name: "PAYID", Value: "3014644340"},
		{Name: "PAYIDSUB", Value: "2"},
		{Name: "NCERROR", Value: "0"},
	}
	sig, err := signature.Sign(fields, passphrase)
	require.NoError(t, err)

	parts := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		parts = append(parts, url.QueryEscape(f.Name)+"="+url.QueryEscape(f.Value))
	}
	parts = append(parts, "SHASIGN="+sig)
	return []byte(strings.Join(parts, "&"))
}

type fixture struct {
	charges  *mockCharges
	accounts *mockAccounts
	chargeTx *mockChargeTx
	refundTx *mockRefundTx
	service  *notification.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	allow, err := notification.NewAllowList(map[string][]string{epdq.Name: {"203.0.113.0/24"}})
	require.NoError(t, err)

	f := &fixture{
		charges:  &mockCharges{},
		accounts: &mockAccounts{},
		chargeTx: &mockChargeTx{},
		refundTx: &mockRefundTx{},
	}
	f.service = notification.NewService(notification.Deps{
		Parsers:  map[string]notification.Parser{epdq.Name: epdq.NotificationParser{}},
		Allow:    allow,
		Charges:  f.charges,
		Accounts: f.accounts,
		ChargeTx: f.chargeTx,
		RefundTx: f.refundTx,
	}, zap.NewNop())
	return f
}

func (f *fixture) expectCharge(status domain.ChargeStatus) *domain.Charge {
	charge := &domain.Charge{ExternalID: "charge-1", Status: status, GatewayAccountID: 7, PaymentProvider: epdq.Name}
	f.charges.On("FindByProviderAndTransactionID", mock.Anything, epdq.Name, "3014644340").Return(charge, nil)
	f.accounts.On("FindAccount", mock.Anything, int64(7)).Return(testAccount(), nil)
	return charge
}

var allowedSource = []string{"203.0.113.10"}

func TestHandle_ForbiddenSource(t *testing.T) {
	f := newFixture(t)

	handled, err := f.service.Handle(context.Background(), epdq.Name, notification.Inbound{
		Payload:   epdqPayload(t, "9", shaOut),
		SourceIPs: []string{"198.51.100.1"},
	})

	assert.ErrorIs(t, err, notification.ErrForbidden)
	assert.False(t, handled)
	f.charges.AssertNotCalled(t, "FindByProviderAndTransactionID", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_ForwardedChainUsesLeftmostAddress(t *testing.T) {
	f := newFixture(t)
	charge := f.expectCharge(domain.StatusCaptureSubmitted)
	f.chargeTx.On("Transition", mock.Anything, charge, domain.StatusCaptured, mock.Anything).Return(nil)

	handled, err := f.service.Handle(context.Background(), epdq.Name, notification.Inbound{
		Payload:   epdqPayload(t, "9", shaOut),
		SourceIPs: []string{"unknown, 203.0.113.9, 10.0.0.1", "10.0.0.2"},
	})

	require.NoError(t, err)
	assert.True(t, handled)
	f.chargeTx.AssertExpectations(t)
}

func TestHandle_MalformedPayloadIgnored(t *testing.T) {
	f := newFixture(t)

	handled, err := f.service.Handle(context.Background(), epdq.Name, notification.Inbound{
		Payload:   []byte("STATUS=9"),
		SourceIPs: allowedSource,
	})

	require.NoError(t, err)
	assert.False(t, handled)
}

func TestHandle_SignatureMismatchNeverTransitions(t *testing.T) {
	f := newFixture(t)
	f.expectCharge(domain.StatusAuthorisationSubmitted)

	handled, err := f.service.Handle(context.Background(), epdq.Name, notification.Inbound{
		Payload:   epdqPayload(t, "2", "some-other-passphrase"),
		SourceIPs: allowedSource,
	})

	require.NoError(t, err)
	assert.False(t, handled)
	f.chargeTx.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.refundTx.AssertNotCalled(t, "TransitionRefund", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_ChargeOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		current domain.ChargeStatus
		want    domain.ChargeStatus
	}{
		{"rejected while submitted", "2", domain.StatusAuthorisationSubmitted, domain.StatusAuthorisationRejected},
		{"cancelled in user flow", "6", domain.StatusUserCancelSubmitted, domain.StatusUserCancelled},
		{"cancelled while created", "6", domain.StatusCreated, domain.StatusSystemCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			charge := f.expectCharge(tt.current)
			f.chargeTx.On("Transition", mock.Anything, charge, tt.want, "notification "+tt.code).Return(nil)

			handled, err := f.service.Handle(context.Background(), epdq.Name, notification.Inbound{
				Payload:   epdqPayload(t, tt.code, shaOut),
				SourceIPs: allowedSource,
			})

			require.NoError(t, err)
			assert.True(t, handled)
			f.chargeTx.AssertExpectations(t)
		})
	}
}

func TestHandle_RefundUsesCompositeReference(t *testing.T) {
	f := newFixture(t)
	charge := f.expectCharge(domain.StatusCaptured)
	f.refundTx.On("TransitionRefund", mock.Anything, epdq.Name, domain.RefundRefunded,
		mock.AnythingOfType("*domain.GatewayAccount"), "3014644340/2", "3014644340", charge).Return(nil)

	handled, err := f.service.Handle(context.Background(), epdq.Name, notification.Inbound{
		Payload:   epdqPayload(t, "8", shaOut),
		SourceIPs: allowedSource,
	})

	require.NoError(t, err)
	assert.True(t, handled)
	f.refundTx.AssertExpectations(t)
	f.chargeTx.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_UnknownStatusIgnored(t *testing.T) {
	f := newFixture(t)
	f.expectCharge(domain.StatusAuthorisationSubmitted)

	handled, err := f.service.Handle(context.Background(), epdq.Name, notification.Inbound{
		Payload:   epdqPayload(t, "41", shaOut),
		SourceIPs: allowedSource,
	})

	require.NoError(t, err)
	assert.False(t, handled)
	f.chargeTx.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_ChargeNotFound(t *testing.T) {
	f := newFixture(t)
	f.charges.On("FindByProviderAndTransactionID", mock.Anything, epdq.Name, "3014644340").Return(nil, nil)

	handled, err := f.service.Handle(context.Background(), epdq.Name, notification.Inbound{
		Payload:   epdqPayload(t, "9", shaOut),
		SourceIPs: allowedSource,
	})

	require.NoError(t, err)
	assert.False(t, handled)
	f.accounts.AssertNotCalled(t, "FindAccount", mock.Anything, mock.Anything)
}

func TestHandle_DuplicateIsIdempotent(t *testing.T) {
	allow, err := notification.NewAllowList(map[string][]string{epdq.Name: {"203.0.113.0/24"}})
	require.NoError(t, err)

	charge := &domain.Charge{ExternalID: "charge-1", Status: domain.StatusCaptureSubmitted, GatewayAccountID: 7}
	charges := &mockCharges{}
	charges.On("FindByProviderAndTransactionID", mock.Anything, epdq.Name, "3014644340").Return(charge, nil)
	accounts := &mockAccounts{}
	accounts.On("FindAccount", mock.Anything, int64(7)).Return(testAccount(), nil)
	tx := &recordingTx{}

	svc := notification.NewService(notification.Deps{
		Parsers:  map[string]notification.Parser{epdq.Name: epdq.NotificationParser{}},
		Allow:    allow,
		Charges:  charges,
		Accounts: accounts,
		ChargeTx: tx,
		RefundTx: &mockRefundTx{},
	}, zap.NewNop())

	in := notification.Inbound{Payload: epdqPayload(t, "9", shaOut), SourceIPs: allowedSource}
	for i := 0; i < 2; i++ {
		_, err := svc.Handle(context.Background(), epdq.Name, in)
		require.NoError(t, err)
	}

	assert.Equal(t, domain.StatusCaptured, charge.Status)
	assert.Equal(t, []domain.ChargeStatus{domain.StatusCaptured}, tx.history)
}
