package chainsource

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/R3E-Network/agentindexer/internal/event"
	"github.com/R3E-Network/agentindexer/internal/ingest"
	"github.com/R3E-Network/agentindexer/pkg/logger"
)

// FrameDecoder turns one raw subscription frame into the events it
// describes. tx_index is frequently unavailable on the live feed (§9 open
// question on same-block ordering), so Context.TxIndex may be left nil.
type FrameDecoder interface {
	DecodeFrame(raw []byte) ([]ingest.Item, error)
}

// WebSocketConfig configures the subscription connection.
type WebSocketConfig struct {
	URL               string
	HandshakeTimeout  time.Duration
	ReconnectInterval time.Duration
}

func DefaultWebSocketConfig(url string) WebSocketConfig {
	return WebSocketConfig{URL: url, HandshakeTimeout: 10 * time.Second, ReconnectInterval: 3 * time.Second}
}

// WebSocketSource subscribes to a chain node's live notification feed and
// forwards decoded events to the ingestion loop as they arrive.
type WebSocketSource struct {
	cfg     WebSocketConfig
	decoder FrameDecoder
	out     chan<- ingest.Item
	log     *logger.Logger
	dialer  *websocket.Dialer

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewWebSocketSource(cfg WebSocketConfig, decoder FrameDecoder, out chan<- ingest.Item, log *logger.Logger) *WebSocketSource {
	return &WebSocketSource{
		cfg:     cfg,
		decoder: decoder,
		out:     out,
		log:     log,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Run blocks, reconnecting on any read/dial error until ctx is cancelled or
// Stop is called.
func (w *WebSocketSource) Run(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		if err := w.runOnce(ctx); err != nil {
			w.log.WithField("err", err).Warn("chainsource: websocket connection lost, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-time.After(w.cfg.ReconnectInterval):
		}
	}
}

func (w *WebSocketSource) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *WebSocketSource) runOnce(ctx context.Context) error {
	conn, _, err := w.dialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		items, err := w.decoder.DecodeFrame(raw)
		if err != nil {
			w.log.WithField("err", err).Error("chainsource: decode frame failed, skipping message")
			continue
		}
		for _, item := range items {
			item.Context.Source = event.SourceWebsocket
			select {
			case w.out <- item:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
