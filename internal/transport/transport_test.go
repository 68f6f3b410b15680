// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"tcp", TCP},
		{"UDP", UDP},
		{" serial ", Serial},
		{"ws", WebSocket},
		{"websocket", WebSocket},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseKind(%q) = %v, %v", tt.in, got, err)
		}
	}

	for _, k := range []Kind{TCP, UDP, Serial, WebSocket} {
		if got, err := ParseKind(k.String()); err != nil || got != k {
			t.Errorf("ParseKind(%s) = %v, %v", k, got, err)
		}
	}

	if _, err := ParseKind("carrier-pigeon"); !errors.Is(err, ErrUnsupportedKind) {
		t.Errorf("err = %v, want ErrUnsupportedKind", err)
	}
}

func TestDial_Errors(t *testing.T) {
	ctx := context.Background()
	if _, err := Dial(ctx, TCP, Endpoint{}, Options{}); !errors.Is(err, ErrNoAddress) {
		t.Errorf("empty address: err = %v", err)
	}
	if _, err := Dial(ctx, Kind(9), Endpoint{Address: "x"}, Options{}); !errors.Is(err, ErrUnsupportedKind) {
		t.Errorf("bad kind: err = %v", err)
	}
	if _, err := Dial(ctx, WebSocket, Endpoint{Address: "http://example.invalid"}, Options{}); err == nil {
		t.Error("http scheme should be rejected")
	}
}

func TestStream_Pipe(t *testing.T) {
	host, sensor := net.Pipe()
	defer sensor.Close()

	s := newStream(TCP, host)
	defer s.Close()

	go func() {
		buf := make([]byte, 16)
		n, _ := sensor.Read(buf)
		sensor.Write(bytes.ToUpper(buf[:n]))
	}()

	if err := s.Send([]byte("ping")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	n, err := s.Wait(context.Background(), time.Second)
	if err != nil || n == 0 {
		t.Fatalf("Wait = %d, %v", n, err)
	}
	// net.Pipe may split the reply; collect until all four bytes arrive
	var got []byte
	for len(got) < 4 {
		if _, err := s.Wait(context.Background(), time.Second); err != nil {
			t.Fatal(err)
		}
		buf := make([]byte, s.Available())
		n, _ := s.Receive(buf)
		got = append(got, buf[:n]...)
	}
	if string(got) != "PING" {
		t.Errorf("received %q", got)
	}

	c := s.Counters()
	if c.Sent != 4 || c.Received != 4 {
		t.Errorf("Counters = %+v", c)
	}
}

func TestStream_WaitTimeout(t *testing.T) {
	host, sensor := net.Pipe()
	defer sensor.Close()
	s := newStream(TCP, host)
	defer s.Close()

	start := time.Now()
	n, err := s.Wait(context.Background(), 30*time.Millisecond)
	if n != 0 || err != nil {
		t.Errorf("Wait = %d, %v; want 0, nil", n, err)
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Error("Wait returned before the timeout")
	}
}

func TestStream_WaitContext(t *testing.T) {
	host, sensor := net.Pipe()
	defer sensor.Close()
	s := newStream(TCP, host)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestStream_PeerClose(t *testing.T) {
	host, sensor := net.Pipe()
	s := newStream(TCP, host)
	defer s.Close()

	sensor.Close()
	if _, err := s.Wait(context.Background(), time.Second); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("err = %v, want ErrDisconnected", err)
	}
	if s.Connected() {
		t.Error("stream still connected after peer close")
	}
	if err := s.Send([]byte{1}); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Send err = %v", err)
	}
}

func TestStream_CloseIdempotent(t *testing.T) {
	host, sensor := net.Pipe()
	defer sensor.Close()
	s := newStream(TCP, host)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if s.Connected() {
		t.Error("Connected after Close")
	}
	if err := s.Send([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v", err)
	}
	if _, err := s.Wait(context.Background(), time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("Wait after Close = %v", err)
	}
}

func TestDial_TCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 8)
		n, _ := conn.Read(buf)
		conn.Write(buf[:n])
		time.Sleep(100 * time.Millisecond)
	}()

	tr, err := Dial(context.Background(), TCP, Endpoint{Address: ln.Addr().String()}, DefaultOptions())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer tr.Close()

	if tr.Kind() != TCP || !tr.Connected() {
		t.Fatalf("kind=%s connected=%v", tr.Kind(), tr.Connected())
	}
	if err := tr.Send([]byte{0xFF, 0x01, 0x01, 0x07, 0x07}); err != nil {
		t.Fatal(err)
	}
	echoed := receiveN(t, tr, 5)
	if !bytes.Equal(echoed, []byte{0xFF, 0x01, 0x01, 0x07, 0x07}) {
		t.Errorf("echo = % X", echoed)
	}
}

func TestDial_UDP(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer pc.Close()

	go func() {
		buf := make([]byte, 64)
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}
		pc.WriteTo(buf[:n], addr)
	}()

	tr, err := Dial(context.Background(), UDP, Endpoint{Address: pc.LocalAddr().String()}, DefaultOptions())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer tr.Close()

	if err := tr.Send([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if got := receiveN(t, tr, 3); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("echo = % X", got)
	}
}

func TestDial_WebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("status text is ignored"))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.BinaryMessage, data)
		conn.ReadMessage()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	if _, err := Dial(context.Background(), WebSocket, Endpoint{Address: url}, DefaultOptions()); err == nil {
		t.Fatal("dial without credentials should fail")
	}

	ep := Endpoint{Address: url, Username: "admin", Password: "secret"}
	tr, err := Dial(context.Background(), WebSocket, ep, DefaultOptions())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer tr.Close()

	if err := tr.Send([]byte{0xFF, 0x02, 0x01, 0x55, 0x55}); err != nil {
		t.Fatal(err)
	}
	if got := receiveN(t, tr, 5); !bytes.Equal(got, []byte{0xFF, 0x02, 0x01, 0x55, 0x55}) {
		t.Errorf("echo = % X", got)
	}
}

func TestEndpointDescribe(t *testing.T) {
	ep := Endpoint{Address: "/dev/ttyUSB0", BaudRate: 9600}
	if got := ep.Describe(Serial); got != "Serial: /dev/ttyUSB0 @ 9600 baud" {
		t.Errorf("Describe = %q", got)
	}
	if got := (Endpoint{Address: "10.0.0.5:10001"}).Describe(TCP); got != "TCP: 10.0.0.5:10001" {
		t.Errorf("Describe = %q", got)
	}
}

func receiveN(t *testing.T, tr Transport, n int) []byte {
	t.Helper()
	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < n && time.Now().Before(deadline) {
		if _, err := tr.Wait(context.Background(), 100*time.Millisecond); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
		buf := make([]byte, 64)
		k, err := tr.Receive(buf)
		if err != nil {
			t.Fatalf("Receive failed: %v", err)
		}
		got = append(got, buf[:k]...)
	}
	return got
}
