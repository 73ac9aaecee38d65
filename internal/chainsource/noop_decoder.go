package chainsource

import (
	"context"

	"github.com/R3E-Network/agentindexer/internal/ingest"
)

// NoopDecoder discards every slot/frame it is given. Raw-transaction fetch
// and decoding is program-specific and out of this repository's scope
// (spec.md §1); deployments wire their own Decoder/FrameDecoder here.
type NoopDecoder struct{}

func (NoopDecoder) DecodeSlot(ctx context.Context, slot uint64) ([]ingest.Item, error) {
	return nil, nil
}

func (NoopDecoder) DecodeFrame(raw []byte) ([]ingest.Item, error) {
	return nil, nil
}
