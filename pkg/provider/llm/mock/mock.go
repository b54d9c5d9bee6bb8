// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the story orchestrator sends
// correct CompletionRequests and to feed controlled responses without a live
// LLM backend. Fields are safe to set before calling any method; mutating them
// during a concurrent call is the caller's responsibility.
//
//	p := &mock.Provider{
//	    Streams: [][]llm.Chunk{
//	        {{FinishReason: llm.FinishToolCalls, ToolCalls: calls}},
//	        {{Text: "The die shows 4."}, {FinishReason: llm.FinishStop}},
//	    },
//	}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/talewind/pkg/provider/llm"
	"github.com/MrWong99/talewind/pkg/types"
)

// StreamCall records a single invocation of StreamCompletion.
type StreamCall struct {
	// Ctx is the context passed to StreamCompletion.
	Ctx context.Context
	// Req is a copy of the CompletionRequest passed to StreamCompletion.
	Req llm.CompletionRequest
}

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and nil errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Streams scripts successive StreamCompletion calls: call n emits
	// Streams[n]. Once the script is exhausted StreamChunks is used.
	Streams [][]llm.Chunk

	// StreamChunks is the default sequence of Chunk values emitted by
	// StreamCompletion.
	StreamChunks []llm.Chunk

	// StreamErrs scripts start-up failures: call n returns StreamErrs[n] when
	// it is non-nil. Calls past the end of the slice fall back to StreamErr.
	StreamErrs []error

	// StreamErr, if non-nil, is returned as the error from StreamCompletion
	// instead of starting a channel.
	StreamErr error

	// CompleteResponse is returned by Complete. May be nil (returns nil, nil).
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities types.ModelCapabilities

	// --- Call records (read after test) ---

	StreamCalls   []StreamCall
	CompleteCalls []CompleteCall
}

// StreamCompletion records the call and returns a channel emitting the
// scripted chunks for this call.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	n := len(p.StreamCalls)
	p.StreamCalls = append(p.StreamCalls, StreamCall{Ctx: ctx, Req: cloneRequest(req)})

	err := p.StreamErr
	if n < len(p.StreamErrs) {
		err = p.StreamErrs[n]
	}
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}

	src := p.StreamChunks
	if n < len(p.Streams) {
		src = p.Streams[n]
	}
	chunks := slices.Clone(src)
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// Complete records the call and returns CompleteResponse, CompleteErr.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: cloneRequest(req)})
	return p.CompleteResponse, p.CompleteErr
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// StreamCallCount returns the number of StreamCompletion invocations.
func (p *Provider) StreamCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StreamCalls)
}

// LastStreamRequest returns the request of the most recent StreamCompletion
// call. It panics if there were none.
func (p *Provider) LastStreamRequest() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.StreamCalls[len(p.StreamCalls)-1].Req
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StreamCalls = nil
	p.CompleteCalls = nil
}

// cloneRequest detaches the recorded request from caller-owned slices.
func cloneRequest(req llm.CompletionRequest) llm.CompletionRequest {
	req.Messages = slices.Clone(req.Messages)
	req.Tools = slices.Clone(req.Tools)
	return req
}

var _ llm.Provider = (*Provider)(nil)
