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

// wsConn presents a WebSocket serial bridge as a byte stream.
// Each binary message carries raw sensor bytes; other message types are skipped.
type wsConn struct {
	conn *websocket.Conn
	buf  []byte

	writeMu sync.Mutex
}

func (w *wsConn) Read(p []byte) (int, error) {
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		n := copy(p, data)
		w.buf = data[n:]
		return n, nil
	}
}

func (w *wsConn) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsConn) Close() error {
	w.writeMu.Lock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.writeMu.Unlock()
	return w.conn.Close()
}

// dialWebSocket connects to a serial bridge with optional HTTP Basic auth
func dialWebSocket(ctx context.Context, ep Endpoint, opts Options) (Transport, error) {
	u, err := url.Parse(ep.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: ep.SkipVerify,
		}
	}

	headers := http.Header{}
	if ep.Username != "" && ep.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(ep.Username + ":" + ep.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, ep.Address, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	opts.Logger.Debug().Str("url", ep.Address).Bool("auth", headers.Get("Authorization") != "").Msg("websocket bridge open")
	return newStream(WebSocket, &wsConn{conn: conn}), nil
}
