// Package stripe adapts the Stripe payment intents API for connected accounts.
package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/gateway"
	"github.com/punchamoorthee/payconnector/internal/notification"
)

// Name is the gateway name used in accounts, charges and notification routes.
const Name = "stripe"

const formContentType = "application/x-www-form-urlencoded"

// Config configures the Stripe provider. SecretKey is the platform key; each
// account's StripeAccountID selects the connected account.
type Config struct {
	BaseURL       string
	SecretKey     string
	FrontendURL   string
	WebhookSecret string
	Timeout       time.Duration
}

// Provider implements gateway.PaymentProvider for Stripe.
type Provider struct {
	cfg    Config
	client *gateway.Client
	logger *zap.Logger
}

var _ gateway.PaymentProvider = (*Provider)(nil)

func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.stripe.com"
	}
	return &Provider{
		cfg:    cfg,
		client: gateway.NewClient(gateway.ClientConfig{Gateway: Name, Timeout: cfg.Timeout}, logger),
		logger: logger.With(zap.String("gateway", Name)),
	}
}

func (p *Provider) Name() string { return Name }

// SynchronousCapture is true: a captured payment intent has already succeeded.
func (p *Provider) SynchronousCapture() bool { return true }

func (p *Provider) NotificationParser() notification.Parser {
	return &NotificationParser{WebhookSecret: p.cfg.WebhookSecret}
}

func (p *Provider) Authorise(ctx context.Context, creds domain.Credentials, req gateway.AuthorisationRequest) (*gateway.AuthorisationResult, error) {
	const op = "authorise"
	paymentMethodID, err := p.paymentMethod(ctx, creds, req)
	if err != nil {
		return nil, err
	}

	returnURL := strings.TrimRight(p.cfg.FrontendURL, "/") + "/card_details/" + req.ChargeExternalID + "/3ds_required_in/stripe"
	var pi paymentIntent
	apiErr, err := p.call(ctx, op, http.MethodPost, "/v1/payment_intents", creds, paymentIntentForm(req, paymentMethodID, returnURL), &pi)
	if err != nil {
		return nil, err
	}
	if apiErr != nil {
		if apiErr.Type != errorTypeCard {
			return nil, gateway.ClientError(Name, op, apiErr.code(), apiErr.Message)
		}
		result := &gateway.AuthorisationResult{
			Status:       gateway.AuthorisationRejected,
			ErrorCode:    apiErr.code(),
			ErrorMessage: apiErr.Message,
		}
		if apiErr.PaymentIntent != nil {
			result.TransactionID = apiErr.PaymentIntent.ID
		}
		return result, nil
	}

	result := intentResult(&pi)
	p.logger.Info("authorisation response",
		zap.String("charge_id", req.ChargeExternalID),
		zap.String("payment_intent", pi.ID),
		zap.String("status", pi.Status),
	)
	return result, nil
}

func (p *Provider) paymentMethod(ctx context.Context, creds domain.Credentials, req gateway.AuthorisationRequest) (string, error) {
	if req.Token != nil && req.Token.PaymentMethodID != "" {
		return req.Token.PaymentMethodID, nil
	}
	if req.Card == nil {
		return "", &gateway.Error{Gateway: Name, Operation: "payment_method", Kind: gateway.KindClientError, Err: gateway.ErrMissingCard}
	}
	var pm paymentMethod
	apiErr, err := p.call(ctx, "payment_method", http.MethodPost, "/v1/payment_methods", creds, paymentMethodForm(req.Card, req), &pm)
	if err != nil {
		return "", err
	}
	if apiErr != nil {
		return "", gateway.ClientError(Name, "payment_method", apiErr.code(), apiErr.Message)
	}
	return pm.ID, nil
}

// Authorise3DS retrieves the payment intent after the payer returns from the
// issuer's challenge.
func (p *Provider) Authorise3DS(ctx context.Context, req gateway.ThreeDSCompletion) (*gateway.AuthorisationResult, error) {
	const op = "authorise_3ds"
	var pi paymentIntent
	apiErr, err := p.call(ctx, op, http.MethodGet, "/v1/payment_intents/"+req.Operation.TransactionID, req.Operation.Credentials, nil, &pi)
	if err != nil {
		return nil, err
	}
	if apiErr != nil {
		return nil, gateway.ClientError(Name, op, apiErr.code(), apiErr.Message)
	}
	return intentResult(&pi), nil
}

func (p *Provider) Capture(ctx context.Context, req gateway.OperationRequest) (*gateway.CaptureResult, error) {
	pi, err := p.intentOperation(ctx, "capture", "/capture", req, captureForm(req), intentSucceeded)
	if err != nil {
		return nil, err
	}
	return &gateway.CaptureResult{Reference: pi.ID, Complete: true}, nil
}

func (p *Provider) Cancel(ctx context.Context, req gateway.OperationRequest) (*gateway.CancelResult, error) {
	pi, err := p.intentOperation(ctx, "cancel", "/cancel", req, newForm(), intentCanceled)
	if err != nil {
		return nil, err
	}
	return &gateway.CancelResult{Reference: pi.ID, Complete: true}, nil
}

func (p *Provider) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	const op = "refund"
	var r refund
	apiErr, err := p.call(ctx, op, http.MethodPost, "/v1/refunds", req.Operation.Credentials, refundForm(req), &r)
	if err != nil {
		return nil, err
	}
	if apiErr != nil {
		return nil, gateway.ClientError(Name, op, apiErr.code(), apiErr.Message)
	}
	return &gateway.RefundResult{Reference: r.ID, Complete: r.Status == intentSucceeded}, nil
}

func (p *Provider) intentOperation(ctx context.Context, op, suffix string, req gateway.OperationRequest, body *form, want string) (*paymentIntent, error) {
	var pi paymentIntent
	apiErr, err := p.call(ctx, op, http.MethodPost, "/v1/payment_intents/"+req.TransactionID+suffix, req.Credentials, body, &pi)
	if err != nil {
		return nil, err
	}
	if apiErr != nil {
		return nil, gateway.ClientError(Name, op, apiErr.code(), apiErr.Message)
	}
	if pi.Status != want {
		return nil, gateway.ClientError(Name, op, pi.Status, "unexpected payment intent status")
	}
	p.logger.Info("payment intent updated",
		zap.String("operation", op),
		zap.String("charge_id", req.ChargeExternalID),
		zap.String("payment_intent", pi.ID),
	)
	return &pi, nil
}

// call performs one API request. A 4xx answer with a Stripe error body is
// returned as apiErr rather than err so callers can tell declines apart.
func (p *Provider) call(ctx context.Context, op, method, path string, creds domain.Credentials, body *form, out any) (*apiError, error) {
	header := http.Header{}
	if creds.StripeAccountID != "" {
		header.Set("Stripe-Account", creds.StripeAccountID)
	}
	req := gateway.Request{
		Operation: op,
		Method:    method,
		URL:       strings.TrimRight(p.cfg.BaseURL, "/") + path,
		Header:    header,
		Username:  p.cfg.SecretKey,
	}
	if body != nil {
		header.Set("Idempotency-Key", uuid.NewString())
		req.ContentType = formContentType
		req.Body = body.encode()
	}

	resp, err := p.client.Do(ctx, req,
		http.StatusOK, http.StatusBadRequest, http.StatusPaymentRequired, http.StatusNotFound)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var env errorEnvelope
		if err := decode(resp.Body, &env); err != nil {
			return nil, gateway.ParseError(Name, op, err)
		}
		if env.Error == nil {
			return nil, gateway.ParseError(Name, op, errors.New("error response without error object"))
		}
		return env.Error, nil
	}
	if err := decode(resp.Body, out); err != nil {
		return nil, gateway.ParseError(Name, op, err)
	}
	return nil, nil
}
