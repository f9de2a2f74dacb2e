// Package radius sends Access-Request packets to the FreeRADIUS server and
// classifies the answer for the login bridge.
package radius

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	rad "layeh.com/radius"
	"layeh.com/radius/rfc2865"

	"github.com/traidnet/wificore/platform/go/faults"
	"github.com/traidnet/wificore/platform/go/metrics"
)

const (
	DefaultPort    = 1812
	DefaultTimeout = 4 * time.Second
	// MaxTimeout caps any configured exchange timeout.
	MaxTimeout = 5 * time.Second
	// retryInterval is how often an unanswered request is resent within the timeout.
	retryInterval = time.Second
)

// Config describes the RADIUS server and the NAS attributes sent with each request.
type Config struct {
	Host          string
	Port          int
	Secret        string
	Timeout       time.Duration
	NASIP         string
	NASIdentifier string
}

// Request is one authentication attempt. NASIdentifier overrides Config.NASIdentifier.
type Request struct {
	Username      string
	Password      string
	NASIdentifier string
}

// Response carries the attributes of an Access-Accept.
type Response struct {
	Attributes map[string]string
}

type exchanger interface {
	Exchange(ctx context.Context, packet *rad.Packet, addr string) (*rad.Packet, error)
}

// Client performs Access-Request exchanges with a bounded timeout.
type Client struct {
	addr      string
	secret    []byte
	timeout   time.Duration
	nasIP     net.IP
	nasID     string
	exchanger exchanger
	logger    *zap.Logger
	metrics   *metrics.Collectors
}

func NewClient(cfg Config, logger *zap.Logger, m *metrics.Collectors) (*Client, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("radius host is required")
	}
	if cfg.Secret == "" {
		return nil, errors.New("radius secret is required")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Timeout > MaxTimeout {
		cfg.Timeout = MaxTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var nasIP net.IP
	if cfg.NASIP != "" {
		nasIP = net.ParseIP(cfg.NASIP)
		if nasIP == nil {
			return nil, fmt.Errorf("invalid nas ip %q", cfg.NASIP)
		}
	}

	return &Client{
		addr:      net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		secret:    []byte(cfg.Secret),
		timeout:   cfg.Timeout,
		nasIP:     nasIP,
		nasID:     cfg.NASIdentifier,
		exchanger: &rad.Client{Retry: retryInterval},
		logger:    logger.Named("radius"),
		metrics:   m,
	}, nil
}

// Authenticate sends an Access-Request and waits at most the configured timeout.
//
// Access-Accept returns the reply attributes. Any other answer returns
// faults.ErrInvalidCredentials. No answer in time, or a transport failure,
// returns faults.ErrAuthServerUnavailable. Cancellation of ctx by the caller is
// returned unchanged.
func (c *Client) Authenticate(ctx context.Context, req Request) (Response, error) {
	packet := rad.New(rad.CodeAccessRequest, c.secret)
	if err := rfc2865.UserName_SetString(packet, req.Username); err != nil {
		return Response{}, fmt.Errorf("set user-name: %w", err)
	}
	if err := rfc2865.UserPassword_SetString(packet, req.Password); err != nil {
		return Response{}, fmt.Errorf("set user-password: %w", err)
	}
	nasID := req.NASIdentifier
	if nasID == "" {
		nasID = c.nasID
	}
	if nasID != "" {
		if err := rfc2865.NASIdentifier_SetString(packet, nasID); err != nil {
			return Response{}, fmt.Errorf("set nas-identifier: %w", err)
		}
	}
	if c.nasIP != nil {
		if err := rfc2865.NASIPAddress_Set(packet, c.nasIP); err != nil {
			return Response{}, fmt.Errorf("set nas-ip-address: %w", err)
		}
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	reply, err := c.exchanger.Exchange(exchangeCtx, packet, c.addr)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			c.metrics.RadiusExchange("cancelled", elapsed)
			return Response{}, ctx.Err()
		}
		c.metrics.RadiusExchange("unavailable", elapsed)
		c.logger.Warn("radius exchange failed",
			zap.String("server", c.addr),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return Response{}, fmt.Errorf("%w: %v", faults.ErrAuthServerUnavailable, err)
	}

	if reply.Code != rad.CodeAccessAccept {
		c.metrics.RadiusExchange("reject", elapsed)
		c.logger.Info("radius access rejected",
			zap.String("username", req.Username),
			zap.String("code", reply.Code.String()),
		)
		return Response{}, faults.ErrInvalidCredentials
	}

	c.metrics.RadiusExchange("accept", elapsed)
	return Response{Attributes: replyAttributes(reply)}, nil
}
