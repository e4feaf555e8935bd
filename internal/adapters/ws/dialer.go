// Package ws is the transport socket: one gorilla/websocket client
// connection with a read pump and a write pump.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dkeye/watchsync/internal/core"
)

const tracerName = "github.com/dkeye/watchsync/adapters/ws"

type Options struct {
	ReadLimit        int64
	PingPeriod       time.Duration
	WriteWait        time.Duration
	HandshakeTimeout time.Duration
	SendBuffer       int
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:        8 << 20,
		PingPeriod:       54 * time.Second,
		WriteWait:        5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		SendBuffer:       32,
	}
}

// Dialer implements core.Dialer.
type Dialer struct {
	opts   Options
	dialer *websocket.Dialer
	tracer trace.Tracer
}

func NewDialer(opts Options) *Dialer {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 5 * time.Second
	}
	return &Dialer{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		tracer: otel.Tracer(tracerName),
	}
}

func (d *Dialer) Dial(ctx context.Context, rawURL string, gen uint64, sink core.Sink) error {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	spanCtx, span := d.tracer.Start(ctx, "ws.dial", trace.WithAttributes(
		attribute.Int64("gen", int64(gen)),
		attribute.String("endpoint.host", host),
	))
	defer span.End()

	ws, resp, err := d.dialer.DialContext(spanCtx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		err = handshakeError(resp, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Str("module", "adapters.ws").Str("host", host).Uint64("gen", gen).Err(err).Msg("dial failed")
		return err
	}

	c := newConn(ctx, ws, gen, sink, d.opts)
	log.Info().Str("module", "adapters.ws").Str("host", host).Uint64("gen", gen).Msg("connected")
	sink(core.Event{Kind: core.EventOpened, Gen: gen, Transport: c})
	go c.writePump()
	go c.readPump()
	return nil
}

// handshakeError maps an HTTP rejection of the upgrade to a close code so
// the link can tell an invalid session from a network failure.
func handshakeError(resp *http.Response, err error) error {
	if !errors.Is(err, websocket.ErrBadHandshake) || resp == nil {
		return fmt.Errorf("dial: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return &core.CloseError{Code: core.CloseUnauthorized, Reason: "token rejected"}
	case http.StatusForbidden:
		return &core.CloseError{Code: core.CloseForbidden, Reason: "forbidden"}
	case http.StatusNotFound, http.StatusGone:
		return &core.CloseError{Code: core.CloseSessionNotFound, Reason: "session not found"}
	default:
		return fmt.Errorf("dial: upgrade rejected with status %d: %w", resp.StatusCode, err)
	}
}
