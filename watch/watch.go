// Package watch is a Go client for the onboarding notification socket.
//
// Usage:
//
//	w, err := watch.Dial(ctx, "ws://localhost:8080/ws/"+clientID.String(),
//	    watch.WithReconnect(pacing.DefaultReconnect(), 0),
//	)
//	defer w.Close()
//
//	for msg := range w.Messages() {
//	    fmt.Println(msg.Type)
//	}
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/xraph/aegis/notify"
	"github.com/xraph/aegis/pacing"
	"github.com/xraph/aegis/wire"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("watch: closed")

// Watcher streams the notifications of one client.
type Watcher struct {
	url         string
	format      string
	types       []notify.Type
	codec       wire.Codec
	logger      *slog.Logger
	buffer      int
	creditBatch int

	// Reconnection.
	strategy   pacing.Strategy
	maxRetries int

	// Connection state.
	conn   net.Conn
	mu     sync.Mutex
	closed atomic.Bool
	err    error

	msgs   chan notify.Message
	echoes chan string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial connects to rawURL and starts streaming. ctx bounds the initial dial
// only; the stream runs until Close or a terminal read error.
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		url:         rawURL,
		format:      wire.CodecNameJSON,
		logger:      slog.Default(),
		buffer:      64,
		creditBatch: 500,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.codec = wire.GetCodec(w.format)
	w.msgs = make(chan notify.Message, w.buffer)
	w.echoes = make(chan string, 8)
	w.ctx, w.cancel = context.WithCancel(context.Background())

	if err := w.connect(ctx); err != nil {
		w.cancel()
		return nil, fmt.Errorf("watch: dial: %w", err)
	}

	go w.readLoop()

	return w, nil
}

// Messages returns the notification channel. It is closed when the
// watcher stops; Err then reports why.
func (w *Watcher) Messages() <-chan notify.Message { return w.msgs }

// Echoes returns replies to text sent with Send.
func (w *Watcher) Echoes() <-chan string { return w.echoes }

// Done is closed when the watcher stops.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// Err returns the error that stopped the watcher, or nil after Close.
func (w *Watcher) Err() error {
	<-w.done
	return w.err
}

// Send writes a plain text message. The server echoes it on Echoes.
func (w *Watcher) Send(text string) error {
	if w.closed.Load() {
		return ErrClosed
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return wsutil.WriteClientText(w.conn, []byte(text))
}

// Close stops the watcher and closes the socket.
func (w *Watcher) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	w.cancel()

	w.mu.Lock()
	var err error
	if w.conn != nil {
		err = w.conn.Close()
	}
	w.mu.Unlock()

	<-w.done
	return err
}

// dialURL appends the format and type filter to the socket URL.
func (w *Watcher) dialURL() string {
	q := url.Values{}
	if w.format != wire.CodecNameJSON {
		q.Set("format", w.format)
	}
	if len(w.types) > 0 {
		names := make([]string, len(w.types))
		for i, t := range w.types {
			names[i] = string(t)
		}
		q.Set("types", strings.Join(names, ","))
	}
	if len(q) == 0 {
		return w.url
	}
	return w.url + "?" + q.Encode()
}

func (w *Watcher) connect(ctx context.Context) error {
	conn, _, _, err := ws.Dial(ctx, w.dialURL())
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	w.logger.Info("watch connected", slog.String("url", w.url), slog.String("format", w.format))
	return nil
}

// readLoop reads frames until Close or a read error it cannot recover
// from, then closes the output channels.
func (w *Watcher) readLoop() {
	defer func() {
		close(w.msgs)
		close(w.echoes)
		close(w.done)
	}()

	consumed := 0
	for {
		w.mu.Lock()
		conn := w.conn
		w.mu.Unlock()

		data, _, err := wsutil.ReadServerData(conn)
		if err != nil {
			if w.closed.Load() {
				return
			}
			w.logger.Warn("watch read error", slog.String("error", err.Error()))
			if w.strategy == nil {
				w.err = err
				return
			}
			if rerr := w.reconnect(); rerr != nil {
				if !w.closed.Load() {
					w.err = rerr
				}
				return
			}
			consumed = 0
			continue
		}

		frame, decErr := w.codec.Decode(data)
		if decErr != nil {
			w.logger.Warn("watch: invalid frame", slog.String("error", decErr.Error()))
			continue
		}

		switch frame.Type {
		case wire.FrameEvent:
			msg, msgErr := frame.Message()
			if msgErr != nil {
				w.logger.Warn("watch: invalid event", slog.String("error", msgErr.Error()))
				continue
			}
			select {
			case w.msgs <- msg:
			case <-w.ctx.Done():
				return
			}
			consumed++
			if w.creditBatch > 0 && consumed >= w.creditBatch {
				w.grant(consumed)
				consumed = 0
			}
		case wire.FrameEcho:
			var text string
			if json.Unmarshal(frame.Data, &text) != nil {
				text = string(frame.Data)
			}
			select {
			case w.echoes <- text:
			default:
			}
		case wire.FrameErr:
			if frame.Error != nil {
				w.logger.Warn("watch: server error",
					slog.Int("code", frame.Error.Code),
					slog.String("message", frame.Error.Message),
				)
			}
		case wire.FramePong:
		}
	}
}

// reconnect redials with the configured strategy.
func (w *Watcher) reconnect() error {
	var lastErr error
	for attempt := 1; w.maxRetries <= 0 || attempt <= w.maxRetries; attempt++ {
		delay := w.strategy.Delay(attempt)
		w.logger.Info("watch reconnecting",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		if err := pacing.Wait(w.ctx, delay); err != nil {
			return err
		}

		if err := w.connect(w.ctx); err != nil {
			lastErr = err
			w.logger.Warn("watch reconnect failed", slog.String("error", err.Error()))
			continue
		}
		if w.closed.Load() {
			w.mu.Lock()
			_ = w.conn.Close() //nolint:errcheck // closed while dialing
			w.mu.Unlock()
			return ErrClosed
		}
		return nil
	}
	return fmt.Errorf("watch: gave up after %d attempts: %w", w.maxRetries, lastErr)
}

// grant returns n credits to the server.
func (w *Watcher) grant(n int) {
	data, err := w.codec.Encode(wire.NewCreditsFrame(n))
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.codec.Binary() {
		err = wsutil.WriteClientBinary(w.conn, data)
	} else {
		err = wsutil.WriteClientText(w.conn, data)
	}
	if err != nil {
		w.logger.Debug("watch: grant credits failed", slog.String("error", err.Error()))
	}
}
