// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// GatewayOptions configures the WebSocket gateway transport
type GatewayOptions struct {
	Username      string
	Password      string
	SkipSSLVerify bool
}

// Gateway reaches an ECU through a remote ISO-TP gateway over WebSocket.
// Each binary message carries one complete UDS payload; the gateway performs
// ISO-TP segmentation on its CAN side. The iface passed to Open is the
// ws:// or wss:// URL; rx and tx identifiers are sent as query parameters.
type Gateway struct {
	opts GatewayOptions

	mu   sync.Mutex // serializes transactions
	conn *websocket.Conn
	url  string

	rx chan []byte

	stateMu sync.Mutex // guards done and err; never held while blocking
	done    chan struct{}
	err     error // terminal read error
}

// NewGateway creates an unconnected gateway transport
func NewGateway(opts GatewayOptions) *Gateway {
	return &Gateway{opts: opts}
}

// GatewayURL appends the ISO-TP address pair to a gateway URL
func GatewayURL(rawURL string, rxID, txID uint32) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %v", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return "", fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	q := u.Query()
	q.Set("rx", fmt.Sprintf("%X", CANID(rxID)&^ExtendedFlag))
	q.Set("tx", fmt.Sprintf("%X", CANID(txID)&^ExtendedFlag))
	if IsExtended(rxID) || IsExtended(txID) {
		q.Set("extended", "1")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open dials the gateway
func (g *Gateway) Open(iface string, rxID, txID uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn != nil {
		g.shutdown()
	}

	wsURL, err := GatewayURL(iface, rxID, txID)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u, _ := url.Parse(wsURL); u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: g.opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if g.opts.Username != "" && g.opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(g.opts.Username + ":" + g.opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return fmt.Errorf("WebSocket connection failed: %v", err)
	}

	g.conn = conn
	g.url = iface
	g.rx = make(chan []byte, 16)
	done := make(chan struct{})

	g.stateMu.Lock()
	g.done = done
	g.err = nil
	g.stateMu.Unlock()

	go g.readLoop(conn, g.rx, done)
	return nil
}

// readLoop owns all reads; gorilla connections are unusable after a read
// deadline expires, so timeouts are enforced by Request instead.
func (g *Gateway) readLoop(conn *websocket.Conn, rx chan<- []byte, done chan struct{}) {
	defer close(rx)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			g.setErr(err)
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case rx <- data:
		case <-done:
			return
		}
	}
}

func (g *Gateway) setErr(err error) {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	g.err = err
}

func (g *Gateway) readErr() error {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	return g.err
}

// doneChan returns the current connection's done channel, nil once closing
func (g *Gateway) doneChan() <-chan struct{} {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	return g.done
}

// signalClosing wakes an in-flight Request without waiting for mu
func (g *Gateway) signalClosing() {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	if g.done != nil {
		close(g.done)
		g.done = nil
	}
}

// Request sends req as one binary message and waits for the next reply
func (g *Gateway) Request(ctx context.Context, req []byte, timeout time.Duration) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	done := g.doneChan()
	if g.conn == nil || done == nil {
		return nil, ErrNotOpen
	}

	// Discard late replies to earlier, timed-out requests
drain:
	for {
		select {
		case _, ok := <-g.rx:
			if !ok {
				break drain
			}
		default:
			break drain
		}
	}

	if err := g.conn.WriteMessage(websocket.BinaryMessage, req); err != nil {
		return nil, &IOError{Op: "websocket write", Err: err}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
		return nil, ErrNotOpen
	case <-timer.C:
		return nil, nil
	case data, ok := <-g.rx:
		if !ok {
			return nil, &IOError{Op: "websocket read", Err: g.readErr()}
		}
		return data, nil
	}
}

// Close closes the WebSocket connection. An in-flight Request returns
// ErrNotOpen at once and Close completes after it.
func (g *Gateway) Close() error {
	g.signalClosing()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return nil
	}
	return g.shutdown()
}

// shutdown is called with mu held and conn non-nil
func (g *Gateway) shutdown() error {
	g.signalClosing()
	g.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := g.conn.Close()
	g.conn = nil
	return err
}

// String describes the gateway connection
func (g *Gateway) String() string {
	return "WebSocket: " + g.url
}
