package ticks

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var upgrader = websocket.Upgrader{}

// newEchoServer starts a WS server that upgrades each request and hands
// the connection to onConn, which drives the server side of the test.
func newEchoServer(t *testing.T, onConn func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		onConn(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestStreamDeliversDecodedTickToSubscriber(t *testing.T) {
	t.Parallel()
	var wg sync.WaitGroup
	wg.Add(1)
	srv := newEchoServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		// Drain the subscribe control message.
		conn.ReadMessage()
		conn.WriteMessage(websocket.BinaryMessage, ltpPacket(738561, 1500.25))
		wg.Wait()
	})

	s := NewStream(wsURL(srv.URL), 10, testLogger())
	s.AddTokens(map[uint32]string{738561: "RELIANCE"})
	ch := s.Subscribe(10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case tick := <-ch:
		if tick.InstrumentToken != 738561 {
			t.Errorf("InstrumentToken = %d, want 738561", tick.InstrumentToken)
		}
		if tick.Symbol != "RELIANCE" {
			t.Errorf("Symbol = %q, want RELIANCE", tick.Symbol)
		}
		wg.Done()
	case <-time.After(3 * time.Second):
		wg.Done()
		t.Fatal("timed out waiting for tick")
	}

	latest, ok := s.Latest(738561)
	if !ok {
		t.Fatal("Latest() ok = false, want true")
	}
	if latest.InstrumentToken != 738561 {
		t.Errorf("Latest().InstrumentToken = %d, want 738561", latest.InstrumentToken)
	}
}

func TestStreamDropsInvalidPacketWithoutCrashing(t *testing.T) {
	t.Parallel()
	done := make(chan struct{})
	srv := newEchoServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		conn.ReadMessage()
		conn.WriteMessage(websocket.BinaryMessage, ltpPacket(738561, 0)) // invalid: LTP=0
		conn.WriteMessage(websocket.BinaryMessage, ltpPacket(738561, 1500.25))
		close(done)
	})

	s := NewStream(wsURL(srv.URL), 10, testLogger())
	s.AddTokens(map[uint32]string{738561: "RELIANCE"})
	ch := s.Subscribe(10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case tick := <-ch:
		if tick.LTP <= 0 {
			t.Errorf("LTP = %v, want > 0 (invalid packet should have been dropped)", tick.LTP)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for valid tick after invalid one")
	}
	<-done
}

func TestStreamStateTransitionsToConnected(t *testing.T) {
	t.Parallel()
	connected := make(chan struct{})
	srv := newEchoServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		conn.ReadMessage()
		close(connected)
		time.Sleep(100 * time.Millisecond)
	})

	s := NewStream(wsURL(srv.URL), 10, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case <-connected:
	case <-time.After(3 * time.Second):
		t.Fatal("server never saw a connection")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.State() == Connected {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("State() = %v, want Connected", s.State())
}

func TestStreamReconnectsWhileDialFails(t *testing.T) {
	t.Parallel()
	// A stream pointed at a URL nothing listens on fails every dial and
	// goes through the reconnect cycle instead of reporting Connected.
	s := NewStream("ws://127.0.0.1:1/unreachable", 10, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Run will block through the real backoff schedule (up to 60s per
	// step), so instead assert the state reaches Reconnecting promptly
	// and never silently settles on Connected.
	go s.Run(ctx)

	time.Sleep(200 * time.Millisecond)
	switch s.State() {
	case Connected, Disconnected:
		t.Errorf("State() = %v, want Connecting or Reconnecting while dial fails", s.State())
	}
}
