// Package epdq adapts the ePDQ direct link API: SHA-512 signed form posts
// answered with ncresponse XML documents.
package epdq

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/gateway"
	"github.com/punchamoorthee/payconnector/internal/notification"
)

// Name is the gateway name used in accounts, charges and notification routes.
const Name = "epdq"

const formContentType = "application/x-www-form-urlencoded; charset=UTF-8"

const (
	pathOrder       = "/orderdirect.asp"
	pathMaintenance = "/maintenancedirect.asp"
	pathQuery       = "/querydirect.asp"
)

// Config configures the ePDQ provider.
type Config struct {
	BaseURL     string
	FrontendURL string
	Timeout     time.Duration
}

// Provider implements gateway.PaymentProvider for ePDQ.
type Provider struct {
	cfg    Config
	client *gateway.Client
	logger *zap.Logger
}

var _ gateway.PaymentProvider = (*Provider)(nil)

func New(cfg Config, logger *zap.Logger) *Provider {
	return &Provider{
		cfg:    cfg,
		client: gateway.NewClient(gateway.ClientConfig{Gateway: Name, Timeout: cfg.Timeout}, logger),
		logger: logger.With(zap.String("gateway", Name)),
	}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) SynchronousCapture() bool { return false }

func (p *Provider) NotificationParser() notification.Parser { return NotificationParser{} }

func (p *Provider) Authorise(ctx context.Context, creds domain.Credentials, req gateway.AuthorisationRequest) (*gateway.AuthorisationResult, error) {
	const op = "authorise"
	fields, err := authorisationPayload(req, creds, returnURLs{frontendURL: p.cfg.FrontendURL})
	if err != nil {
		return nil, &gateway.Error{Gateway: Name, Operation: op, Kind: gateway.KindClientError, Message: "cannot build request", Err: err}
	}
	resp, err := p.post(ctx, op, pathOrder, fields, creds.SHAInPassphrase)
	if err != nil {
		return nil, err
	}

	result := &gateway.AuthorisationResult{
		TransactionID: resp.PayID,
		GatewayStatus: resp.Status,
		ErrorCode:     resp.NCError,
		ErrorMessage:  resp.NCErrorPlus,
	}
	switch resp.Status {
	case statusAuthorised, statusPaymentRequested:
		result.Status = gateway.AuthorisationSuccess
	case statusRefused:
		result.Status = gateway.AuthorisationRejected
	case statusWaitingIdentify:
		html, err := resp.htmlOut()
		if err != nil {
			return nil, gateway.ParseError(Name, op, err)
		}
		version := "1.0.2"
		if req.Variant.Flex() {
			version = "2.1.0"
		}
		result.Status = gateway.AuthorisationRequires3DS
		result.ThreeDS = &domain.ThreeDSRequiredDetails{HTMLOut: html, Version: version}
	case statusWaitingExternal, statusWaiting:
		result.Status = gateway.AuthorisationSubmitted
	case statusAuthorisedCancelled:
		result.Status = gateway.AuthorisationCancelled
	default:
		result.Status = gateway.AuthorisationError
	}

	p.logger.Info("authorisation response",
		zap.String("charge_id", req.ChargeExternalID),
		zap.String("order_id", req.OrderCode),
		zap.String("pay_id", resp.PayID),
		zap.String("status", resp.Status),
		zap.String("nc_error", resp.NCError),
	)
	return result, nil
}

// Authorise3DS queries the order once the payer has returned from the issuer.
func (p *Provider) Authorise3DS(ctx context.Context, req gateway.ThreeDSCompletion) (*gateway.AuthorisationResult, error) {
	const op = "query"
	creds := req.Operation.Credentials
	resp, err := p.post(ctx, op, pathQuery, queryPayload(req.Operation), creds.SHAInPassphrase)
	if err != nil {
		return nil, err
	}

	result := &gateway.AuthorisationResult{
		TransactionID: req.Operation.TransactionID,
		GatewayStatus: resp.Status,
		ErrorCode:     resp.NCError,
		ErrorMessage:  resp.NCErrorPlus,
	}
	switch resp.Status {
	case statusAuthorised, statusPaymentRequested:
		result.Status = gateway.AuthorisationSuccess
	case statusRefused:
		result.Status = gateway.AuthorisationRejected
	case statusWaitingIdentify, statusWaitingExternal, statusWaiting:
		result.Status = gateway.AuthorisationSubmitted
	case statusAuthorisedCancelled:
		result.Status = gateway.AuthorisationCancelled
	default:
		result.Status = gateway.AuthorisationError
	}
	return result, nil
}

func (p *Provider) Capture(ctx context.Context, req gateway.OperationRequest) (*gateway.CaptureResult, error) {
	resp, err := p.maintain(ctx, "capture", operationCapture, req, 0, statusPaymentProcessing, statusPaymentRequested)
	if err != nil {
		return nil, err
	}
	return &gateway.CaptureResult{Reference: resp.reference()}, nil
}

func (p *Provider) Cancel(ctx context.Context, req gateway.OperationRequest) (*gateway.CancelResult, error) {
	resp, err := p.maintain(ctx, "cancel", operationCancel, req, 0, statusDeletionWaiting, statusAuthorisedCancelled)
	if err != nil {
		return nil, err
	}
	return &gateway.CancelResult{Reference: resp.reference()}, nil
}

func (p *Provider) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	resp, err := p.maintain(ctx, "refund", operationRefund, req.Operation, req.Amount, statusRefundPending, statusRefund)
	if err != nil {
		return nil, err
	}
	return &gateway.RefundResult{Reference: resp.reference()}, nil
}

func (p *Provider) maintain(ctx context.Context, op, operation string, req gateway.OperationRequest, amount int64, accepted ...string) (*ncResponse, error) {
	resp, err := p.post(ctx, op, pathMaintenance, maintenancePayload(operation, req, amount), req.Credentials.SHAInPassphrase)
	if err != nil {
		return nil, err
	}
	if resp.hasError() {
		return nil, gateway.ClientError(Name, op, resp.NCError, resp.NCErrorPlus)
	}
	for _, s := range accepted {
		if resp.Status == s {
			p.logger.Info("maintenance accepted",
				zap.String("operation", op),
				zap.String("charge_id", req.ChargeExternalID),
				zap.String("reference", resp.reference()),
				zap.String("status", resp.Status),
			)
			return resp, nil
		}
	}
	return nil, gateway.ClientError(Name, op, resp.Status, "unexpected maintenance status")
}

func (p *Provider) post(ctx context.Context, op, path string, fields payload, passphrase string) (*ncResponse, error) {
	signed, err := fields.sign(passphrase)
	if err != nil {
		return nil, &gateway.Error{Gateway: Name, Operation: op, Kind: gateway.KindClientError, Message: "cannot sign request", Err: err}
	}
	httpResp, err := p.client.Do(ctx, gateway.Request{
		Operation:   op,
		URL:         strings.TrimRight(p.cfg.BaseURL, "/") + path,
		ContentType: formContentType,
		Body:        signed.encode(),
	})
	if err != nil {
		return nil, err
	}
	resp, err := parseResponse(httpResp.Body)
	if err != nil {
		return nil, gateway.ParseError(Name, op, err)
	}
	return resp, nil
}
