package cdp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1/nope", ConnOptions{DialTimeout: time.Second})
	if !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("Dial error = %v, want ErrConnectFailed", err)
	}
	if !IsConnectionError(err) {
		t.Error("IsConnectionError should report true")
	}
}

func TestSendAfterClose(t *testing.T) {
	peer := newTestPeer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := Dial(ctx, peer.url(), ConnOptions{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	peer.accept()

	conn.Close()
	conn.Close() // idempotent

	if err := conn.send(request{ID: 1, Method: "M"}); !errors.Is(err, ErrClosed) {
		t.Errorf("send after close = %v, want ErrClosed", err)
	}
	if conn.Err() != nil {
		t.Errorf("Err() after local close = %v, want nil", conn.Err())
	}
}

func TestFramesChannelClosesOnPeerDisconnect(t *testing.T) {
	peer := newTestPeer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := Dial(ctx, peer.url(), ConnOptions{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	server := peer.accept()

	server.Close()

	select {
	case _, ok := <-conn.frames:
		if ok {
			t.Fatal("expected frames channel to be closed, got a frame")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frames channel never closed after peer disconnect")
	}
	if conn.Err() == nil {
		t.Error("Err() should report the read error that ended the connection")
	}
}

func TestMalformedFramesDropped(t *testing.T) {
	peer := newTestPeer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := Dial(ctx, peer.url(), ConnOptions{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	server := peer.accept()

	server.WriteMessage(websocket.TextMessage, []byte(`{not json`))
	server.WriteMessage(websocket.TextMessage, []byte(`{"neither":"id","nor":"method"}`))
	server.WriteJSON(map[string]any{"method": "still.alive"})

	select {
	case f := <-conn.frames:
		if f.Method != "still.alive" {
			t.Errorf("got frame %+v, want method still.alive", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame never arrived after malformed ones")
	}
}

func TestPingKeepsConnectionAlive(t *testing.T) {
	peer := newTestPeer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Pong timeout far shorter than the test: without working pings the
	// read deadline would expire and the frames channel would close.
	conn, err := Dial(ctx, peer.url(), ConnOptions{
		PingInterval: 50 * time.Millisecond,
		PongTimeout:  200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	server := peer.accept()

	// gorilla replies to pings automatically while a reader is running.
	go func() {
		for {
			if _, _, err := server.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case _, ok := <-conn.frames:
		if !ok {
			t.Fatal("connection died despite keepalive pings")
		}
	case <-time.After(600 * time.Millisecond):
		// Survived several pong windows.
	}
}
