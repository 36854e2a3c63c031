package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	gatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_gateway_requests_total",
		Help: "Outbound gateway requests, labeled by outcome",
	}, []string{"gateway", "operation", "outcome"})

	gatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "connector_gateway_request_duration_seconds",
		Help:    "Latency distribution of outbound gateway requests",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"gateway", "operation"})
)

const maxResponseBytes = 1 << 20

// ClientConfig configures the transport for one gateway.
type ClientConfig struct {
	Gateway string
	Timeout time.Duration
}

// Client sends already-encoded payloads to a gateway and converts transport
// failures into *Error.
type Client struct {
	gateway    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a transport client. A zero timeout defaults to 50 seconds.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 50 * time.Second
	}
	return &Client{
		gateway:    cfg.Gateway,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With(zap.String("gateway", cfg.Gateway)),
	}
}

// Request is one outbound call.
type Request struct {
	Operation   string
	Method      string
	URL         string
	ContentType string
	Body        []byte
	Header      http.Header
	Username    string
	Password    string
	Cookies     []*http.Cookie
}

// Response is the buffered gateway reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Cookies    []*http.Cookie
	Body       []byte
}

// Do performs req. Statuses outside expected become KindUnexpectedStatus; with no
// expected statuses, only 200 is accepted.
func (c *Client) Do(ctx context.Context, req Request, expected ...int) (*Response, error) {
	if len(expected) == 0 {
		expected = []int{http.StatusOK}
	}
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	timer := prometheus.NewTimer(gatewayRequestDuration.WithLabelValues(c.gateway, req.Operation))
	defer timer.ObserveDuration()

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, c.fail(req.Operation, &Error{Gateway: c.gateway, Operation: req.Operation, Kind: KindConnection, Err: err})
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if req.Username != "" {
		httpReq.SetBasicAuth(req.Username, req.Password)
	}
	for _, ck := range req.Cookies {
		httpReq.AddCookie(ck)
	}

	c.logger.Debug("sending gateway request",
		zap.String("operation", req.Operation),
		zap.String("url", req.URL),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.fail(req.Operation, &Error{
			Gateway:   c.gateway,
			Operation: req.Operation,
			Kind:      KindConnection,
			Message:   transportMessage(err),
			Err:       err,
		})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.fail(req.Operation, &Error{Gateway: c.gateway, Operation: req.Operation, Kind: KindConnection, Err: err})
	}

	if !lo.Contains(expected, resp.StatusCode) {
		return nil, c.fail(req.Operation, &Error{
			Gateway:    c.gateway,
			Operation:  req.Operation,
			Kind:       KindUnexpectedStatus,
			StatusCode: resp.StatusCode,
		})
	}

	gatewayRequestsTotal.WithLabelValues(c.gateway, req.Operation, strconv.Itoa(resp.StatusCode)).Inc()
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Cookies:    resp.Cookies(),
		Body:       body,
	}, nil
}

func (c *Client) fail(operation string, gwErr *Error) error {
	gatewayRequestsTotal.WithLabelValues(c.gateway, operation, gwErr.Kind.String()).Inc()
	c.logger.Warn("gateway request failed",
		zap.String("operation", operation),
		zap.String("kind", gwErr.Kind.String()),
		zap.Int("status", gwErr.StatusCode),
		zap.Error(gwErr.Err),
	)
	return gwErr
}

func transportMessage(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "gateway timed out"
	}
	return "gateway connection failed"
}
