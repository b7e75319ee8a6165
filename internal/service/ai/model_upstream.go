package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/kaviyashree6/empathyconnect/pkg/sse"
)

// ModelUpstream adapts an eino chat model to the event-stream Upstream
// contract, re-encoding each chunk as a provider delta envelope.
type ModelUpstream struct {
	chain compose.Runnable[[]*schema.Message, *schema.Message]
	log   *slog.Logger
}

// NewModelUpstream compiles a single-node chain around m.
func NewModelUpstream(ctx context.Context, m model.ChatModel, log *slog.Logger) (*ModelUpstream, error) {
	chain := compose.NewChain[[]*schema.Message, *schema.Message]()
	chain.AppendChatModel(m)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	return &ModelUpstream{chain: runnable, log: log.With("component", "model_upstream")}, nil
}

func (u *ModelUpstream) Open(ctx context.Context, messages []*schema.Message) (io.ReadCloser, error) {
	stream, err := u.chain.Stream(ctx, messages)
	if err != nil {
		return nil, &UpstreamError{Status: http.StatusBadGateway, Message: fmt.Sprintf("model stream failed: %v", err)}
	}

	pr, pw := io.Pipe()
	go func() {
		defer stream.Close()

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				if werr := sse.WriteDone(pw); werr != nil {
					u.log.Debug("reader went away before done", "error", werr)
				}
				pw.Close()
				return
			}
			if err != nil {
				u.log.Error("model stream receive failed", "error", err)
				pw.CloseWithError(err)
				return
			}
			if chunk == nil || chunk.Content == "" {
				continue
			}
			if err := sse.WriteEvent(pw, sse.NewDelta(chunk.Content)); err != nil {
				// The consumer closed the pipe.
				return
			}
		}
	}()

	return pr, nil
}
