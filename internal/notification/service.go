package notification

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/status"
)

var notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "connector_notifications_total",
	Help: "Inbound gateway notifications, labeled by processing outcome",
}, []string{"gateway", "outcome"})

const (
	outcomeForbidden        = "forbidden"
	outcomeUnknownGateway   = "unknown_gateway"
	outcomeMalformed        = "malformed"
	outcomeChargeNotFound   = "charge_not_found"
	outcomeAccountNotFound  = "account_not_found"
	outcomeNoCredentials    = "credentials_not_found"
	outcomeInvalidSignature = "invalid_signature"
	outcomeUnknownStatus    = "unknown_status"
	outcomeTransitionFailed = "transition_failed"
	outcomeChargeTransition = "charge_transition"
	outcomeRefundTransition = "refund_transition"
)

// ChargeFinder looks a charge up by the gateway's transaction id.
type ChargeFinder interface {
	FindByProviderAndTransactionID(ctx context.Context, gateway, transactionID string) (*domain.Charge, error)
}

// AccountFinder loads the gateway account a charge belongs to.
type AccountFinder interface {
	FindAccount(ctx context.Context, id int64) (*domain.GatewayAccount, error)
}

// ChargeTransitioner applies a charge status change. Re-applying the current
// status must be a no-op.
type ChargeTransitioner interface {
	Transition(ctx context.Context, charge *domain.Charge, target domain.ChargeStatus, reason string) error
}

// RefundTransitioner applies a refund status change identified by the gateway
// reference.
type RefundTransitioner interface {
	TransitionRefund(ctx context.Context, gateway string, target domain.RefundStatus, account *domain.GatewayAccount, reference, transactionID string, charge *domain.Charge) error
}

// Inbound is one notification request as received.
type Inbound struct {
	Payload []byte
	Header  http.Header
	// SourceIPs is the forwarded-for chain followed by the peer address.
	SourceIPs []string
}

// Service verifies inbound notifications and drives the resulting transitions.
type Service struct {
	parsers  map[string]Parser
	allow    *AllowList
	charges  ChargeFinder
	accounts AccountFinder
	chargeTx ChargeTransitioner
	refundTx RefundTransitioner
	logger   *zap.Logger
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Parsers  map[string]Parser
	Allow    *AllowList
	Charges  ChargeFinder
	Accounts AccountFinder
	ChargeTx ChargeTransitioner
	RefundTx RefundTransitioner
}

func NewService(d Deps, logger *zap.Logger) *Service {
	return &Service{
		parsers:  d.Parsers,
		allow:    d.Allow,
		charges:  d.Charges,
		accounts: d.Accounts,
		chargeTx: d.ChargeTx,
		refundTx: d.RefundTx,
		logger:   logger,
	}
}

// Handle processes one notification. The only error returned is ErrForbidden;
// anything else that stops processing is logged and reported as handled=false
// so the sender still gets its acknowledgement.
func (s *Service) Handle(ctx context.Context, gateway string, in Inbound) (bool, error) {
	log := s.logger.With(zap.String("gateway", gateway))

	if !s.allow.Allowed(gateway, in.SourceIPs) {
		s.record(gateway, outcomeForbidden)
		log.Warn("notification from disallowed address", zap.Strings("source_ips", in.SourceIPs))
		return false, ErrForbidden
	}

	parser, ok := s.parsers[gateway]
	if !ok {
		s.record(gateway, outcomeUnknownGateway)
		log.Warn("notification for unknown gateway")
		return false, nil
	}

	n, err := parser.Parse(in.Payload, in.Header)
	if err != nil {
		s.record(gateway, outcomeMalformed)
		log.Warn("ignoring unparseable notification", zap.Error(err))
		return false, nil
	}
	log = log.With(zap.String("transaction_id", n.TransactionID), zap.String("status_code", n.StatusCode))

	charge, err := s.charges.FindByProviderAndTransactionID(ctx, gateway, n.TransactionID)
	if err != nil || charge == nil {
		s.record(gateway, outcomeChargeNotFound)
		log.Info("no charge for notification", zap.Error(err))
		return false, nil
	}
	log = log.With(zap.String("charge_id", charge.ExternalID))

	account, err := s.accounts.FindAccount(ctx, charge.GatewayAccountID)
	if err != nil || account == nil {
		s.record(gateway, outcomeAccountNotFound)
		log.Error("no gateway account for charge", zap.Int64("gateway_account_id", charge.GatewayAccountID), zap.Error(err))
		return false, nil
	}
	creds, ok := account.ActiveCredentials(gateway)
	if !ok {
		s.record(gateway, outcomeNoCredentials)
		log.Error("no active credentials for notification", zap.Int64("gateway_account_id", account.ID))
		return false, nil
	}

	if !parser.Verify(n, creds.Credentials) {
		s.record(gateway, outcomeInvalidSignature)
		log.Warn("notification signature mismatch")
		return false, nil
	}

	outcome := status.Interpret(gateway, n.StatusCode, charge.Status)
	switch outcome.Kind {
	case status.KindCharge:
		err = s.chargeTx.Transition(ctx, charge, outcome.Charge, "notification "+n.StatusCode)
		if err != nil {
			return s.transitionFailed(log, gateway, err)
		}
		s.record(gateway, outcomeChargeTransition)
		log.Info("charge notification applied", zap.String("target", string(outcome.Charge)))
	case status.KindRefund:
		err = s.refundTx.TransitionRefund(ctx, gateway, outcome.Refund, account, n.Reference, n.TransactionID, charge)
		if err != nil {
			return s.transitionFailed(log, gateway, err)
		}
		s.record(gateway, outcomeRefundTransition)
		log.Info("refund notification applied", zap.String("reference", n.Reference), zap.String("target", string(outcome.Refund)))
	default:
		s.record(gateway, outcomeUnknownStatus)
		log.Info("ignoring notification with unrecognised status", zap.String("charge_status", string(charge.Status)))
		return false, nil
	}
	return true, nil
}

func (s *Service) transitionFailed(log *zap.Logger, gateway string, err error) (bool, error) {
	s.record(gateway, outcomeTransitionFailed)
	var illegal *domain.IllegalStateError
	if errors.As(err, &illegal) {
		log.Warn("notification does not fit charge state", zap.Error(err))
	} else {
		log.Error("failed to apply notification", zap.Error(err))
	}
	return false, nil
}

func (s *Service) record(gateway, outcome string) {
	notificationsTotal.WithLabelValues(gateway, outcome).Inc()
}
