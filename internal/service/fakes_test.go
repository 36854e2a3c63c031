package service

import (
	"context"
	"sync"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/gateway"
	"github.com/punchamoorthee/payconnector/internal/notification"
	"github.com/punchamoorthee/payconnector/internal/store"
)

const fakeGateway = "sandbox"

type chargeEvent struct {
	status   domain.ChargeStatus
	historic bool
}

// memStore is an in-memory Store with version checks.
type memStore struct {
	mu        sync.Mutex
	charges   map[string]domain.Charge
	accounts  map[int64]*domain.GatewayAccount
	refunds   map[string]*domain.Refund
	events    []chargeEvent
	conflicts int
}

func newMemStore() *memStore {
	return &memStore{
		charges:  map[string]domain.Charge{},
		accounts: map[int64]*domain.GatewayAccount{},
		refunds:  map[string]*domain.Refund{},
	}
}

func (m *memStore) put(c domain.Charge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charges[c.ExternalID] = c
}

func (m *memStore) get(id string) domain.Charge {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.charges[id]
}

func (m *memStore) FindCharge(_ context.Context, id string) (*domain.Charge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.charges[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (m *memStore) UpdateCharge(_ context.Context, c *domain.Charge, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		stored := m.charges[c.ExternalID]
		stored.Version++
		m.charges[c.ExternalID] = stored
		return store.ErrConflict
	}
	stored, ok := m.charges[c.ExternalID]
	if !ok {
		return store.ErrNotFound
	}
	if stored.Version != c.Version {
		return store.ErrConflict
	}
	c.Version++
	m.charges[c.ExternalID] = *c
	if stored.Status != c.Status {
		m.events = append(m.events, chargeEvent{status: c.Status})
	}
	return nil
}

func (m *memStore) RecordHistoricTransition(_ context.Context, _ *domain.Charge, target domain.ChargeStatus, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, chargeEvent{status: target, historic: true})
	return nil
}

func (m *memStore) FindAccount(_ context.Context, id int64) (*domain.GatewayAccount, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (m *memStore) CreateRefund(_ context.Context, r *domain.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.refunds[r.ExternalID] = &cp
	return nil
}

func (m *memStore) RefundedAmount(_ context.Context, chargeID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, r := range m.refunds {
		if r.ChargeExternalID == chargeID && r.Status != domain.RefundError {
			total += r.Amount
		}
	}
	return total, nil
}

func (m *memStore) FindRefundByReference(_ context.Context, chargeID, reference string) (*domain.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.refunds {
		if r.ChargeExternalID == chargeID && r.GatewayTransactionID == reference {
			cp := *r
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) UpdateRefund(_ context.Context, r *domain.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.refunds[r.ExternalID]
	if !ok {
		return store.ErrNotFound
	}
	if stored.Version != r.Version {
		return store.ErrConflict
	}
	r.Version++
	cp := *r
	m.refunds[r.ExternalID] = &cp
	return nil
}

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []string
}

func (q *fakeQueue) Enqueue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, id)
	return nil
}

// fakeProvider answers every call from its fields.
type fakeProvider struct {
	mu           sync.Mutex
	synchronous  bool
	authorise    func(req gateway.AuthorisationRequest) (*gateway.AuthorisationResult, error)
	authRequests []gateway.AuthorisationRequest
	threeDS      *gateway.AuthorisationResult
	captureErr   error
	captures     int
	cancel       *gateway.CancelResult
	cancelErr    error
	refund       *gateway.RefundResult
	refundErr    error
}

func (p *fakeProvider) Name() string             { return fakeGateway }
func (p *fakeProvider) SynchronousCapture() bool { return p.synchronous }

func (p *fakeProvider) Authorise(_ context.Context, _ domain.Credentials, req gateway.AuthorisationRequest) (*gateway.AuthorisationResult, error) {
	p.mu.Lock()
	p.authRequests = append(p.authRequests, req)
	p.mu.Unlock()
	return p.authorise(req)
}

func (p *fakeProvider) Authorise3DS(context.Context, gateway.ThreeDSCompletion) (*gateway.AuthorisationResult, error) {
	return p.threeDS, nil
}

func (p *fakeProvider) Capture(context.Context, gateway.OperationRequest) (*gateway.CaptureResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captures++
	if p.captureErr != nil {
		return nil, p.captureErr
	}
	return &gateway.CaptureResult{Reference: "cap-1"}, nil
}

func (p *fakeProvider) Cancel(context.Context, gateway.OperationRequest) (*gateway.CancelResult, error) {
	return p.cancel, p.cancelErr
}

func (p *fakeProvider) Refund(context.Context, gateway.RefundRequest) (*gateway.RefundResult, error) {
	return p.refund, p.refundErr
}

func (p *fakeProvider) NotificationParser() notification.Parser { return nil }

func testAccount() *domain.GatewayAccount {
	return &domain.GatewayAccount{
		ID:              1,
		PaymentProvider: fakeGateway,
		Credentials: []domain.GatewayAccountCredentials{{
			PaymentProvider: fakeGateway,
			State:           domain.CredentialsActive,
			Credentials:     domain.Credentials{MerchantID: "merchant"},
		}},
	}
}

func testCharge(status domain.ChargeStatus) domain.Charge {
	return domain.Charge{
		ExternalID:           "charge-1",
		Amount:               1500,
		Currency:             "GBP",
		Status:               status,
		GatewayAccountID:     1,
		PaymentProvider:      fakeGateway,
		GatewayTransactionID: "order-1",
		AuthorisationMode:    domain.AuthorisationModeWeb,
	}
}

func testCard() *gateway.CardData {
	return &gateway.CardData{Number: "4444333322221111", CVC: "123", ExpiryMonth: "12", ExpiryYear: "30", CardholderName: "J Doe"}
}
