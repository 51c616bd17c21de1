package adapter

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mpapenbr/sequential/log"
	"github.com/mpapenbr/sequential/pkg/telemetry/history"
)

type (
	// WebsocketSource reads telemetry messages from a websocket endpoint
	WebsocketSource struct {
		url            string
		sink           Sink
		reconnectDelay time.Duration
		dialer         *websocket.Dialer
		header         http.Header
		applierOpts    []ApplierOption
		l              *log.Logger
	}
	WebsocketOption func(*WebsocketSource)
)

// WithReconnectDelay enables reconnects after connection loss.
// 0 disables reconnects.
func WithReconnectDelay(d time.Duration) WebsocketOption {
	return func(w *WebsocketSource) {
		w.reconnectDelay = d
	}
}

func WithHeader(h http.Header) WebsocketOption {
	return func(w *WebsocketSource) {
		w.header = h
	}
}

func WithApplierOptions(opts ...ApplierOption) WebsocketOption {
	return func(w *WebsocketSource) {
		w.applierOpts = append(w.applierOpts, opts...)
	}
}

func WithWebsocketLogger(l *log.Logger) WebsocketOption {
	return func(w *WebsocketSource) {
		w.l = l
	}
}

func NewWebsocketSource(url string, sink Sink, opts ...WebsocketOption) *WebsocketSource {
	ret := &WebsocketSource{
		url:    url,
		sink:   sink,
		dialer: websocket.DefaultDialer,
		l:      log.Default().Named("adapter.ws"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Run reads messages until ctx is done. Without reconnect delay Run returns
// when the connection is lost.
func (w *WebsocketSource) Run(ctx context.Context) error {
	applier := NewApplier(w.sink, "websocket", w.l, w.applierOpts...)
	for {
		err := w.session(ctx, applier)
		w.sink.SetConnectionStatus(false)
		if ctx.Err() != nil {
			return nil
		}
		if w.reconnectDelay == 0 || errors.Is(err, history.ErrClosed) {
			return err
		}
		w.l.Info("reconnecting",
			log.String("url", w.url),
			log.Duration("delay", w.reconnectDelay),
			log.ErrorField(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.reconnectDelay):
		}
	}
}

// session handles a single connection
func (w *WebsocketSource) session(ctx context.Context, applier *Applier) error {
	conn, resp, err := w.dialer.DialContext(ctx, w.url, w.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return err
	}
	w.l.Info("connected", log.String("url", w.url))
	w.sink.SetConnectionStatus(true)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.l.Info("connection closed by peer", log.String("url", w.url))
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := applier.Apply(ctx, data); errors.Is(err, history.ErrClosed) {
			return err
		}
	}
}
