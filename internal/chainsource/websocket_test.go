package chainsource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/R3E-Network/agentindexer/internal/event"
	"github.com/R3E-Network/agentindexer/internal/ingest"
	"github.com/R3E-Network/agentindexer/pkg/logger"
)

type lineDecoder struct{}

// DecodeFrame ignores the raw frame's content and emits one AtomEnabled
// event at slot 1 with no tx_index populated (live feed, §9).
func (lineDecoder) DecodeFrame(raw []byte) ([]ingest.Item, error) {
	return []ingest.Item{{
		Event:   event.Event{Kind: event.KindAtomEnabled, Payload: event.AtomEnabledPayload{}},
		Context: event.Context{Slot: 1},
	}}, nil
}

func TestWebSocketSourceForwardsDecodedFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"AtomEnabled"}`))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	out := make(chan ingest.Item, 4)
	src := NewWebSocketSource(DefaultWebSocketConfig(url), lineDecoder{}, out, logger.NewDefault("test"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		src.Run(ctx)
		close(done)
	}()

	select {
	case item := <-out:
		if item.Context.Source != event.SourceWebsocket {
			t.Fatalf("expected websocket source tag, got %v", item.Context.Source)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for decoded frame")
	}

	cancel()
	<-done
}

func TestWebSocketSourceStopIsClean(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "refuse", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	out := make(chan ingest.Item, 1)
	cfg := DefaultWebSocketConfig(url)
	cfg.ReconnectInterval = time.Millisecond
	src := NewWebSocketSource(cfg, lineDecoder{}, out, logger.NewDefault("test"))

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		src.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	src.Stop()
	<-done
}
