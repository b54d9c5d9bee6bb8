package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/talewind/internal/mcp"
	"github.com/MrWong99/talewind/internal/observe"
	"github.com/MrWong99/talewind/internal/resilience"
	"github.com/MrWong99/talewind/pkg/audio"
	"github.com/MrWong99/talewind/pkg/provider/llm"
	"github.com/MrWong99/talewind/pkg/types"
)

var errNoTools = errors.New("no tools are available")

// round is what one LLM stream produced.
type round struct {
	text  string
	calls []types.ToolCall
}

// narrate streams the model until it answers without tool calls. Text
// fragments are passed to emit as they arrive. Tool calls are resolved and
// fed back into a fresh stream; neither the calls nor their results enter
// the transcript.
func (o *Orchestrator) narrate(ctx context.Context, tools []types.ToolDefinition, emit func(string)) (string, []ToolCall, error) {
	msgs := o.transcript.Snapshot()
	var (
		full  strings.Builder
		calls []ToolCall
	)
	for n := 0; ; n++ {
		req := llm.CompletionRequest{
			Messages:    msgs,
			Tools:       tools,
			Temperature: o.cfg.Temperature,
			MaxTokens:   o.cfg.MaxTokens,
		}
		if n >= o.cfg.MaxToolRounds {
			req.Tools = nil
		}

		r, err := o.stream(ctx, req, func(s string) {
			full.WriteString(s)
			emit(s)
		})
		if err != nil {
			return "", calls, err
		}
		if len(r.calls) == 0 {
			return full.String(), calls, nil
		}
		if req.Tools == nil {
			return "", calls, &Error{Kind: KindTool, Op: "tools", Err: fmt.Errorf("%w after %d rounds", ErrToolRounds, n)}
		}

		msgs = append(msgs, types.Message{Role: types.RoleAssistant, Content: r.text, ToolCalls: r.calls})
		for _, tc := range r.calls {
			call := o.executeTool(ctx, tc)
			calls = append(calls, call)
			msgs = append(msgs, types.Message{Role: types.RoleTool, Content: call.Result, ToolCallID: tc.ID, Name: tc.Name})
		}
	}
}

// stream runs one LLM request with retries. A failure is retried only while
// nothing has been emitted; once narration has started, repeating the
// request would repeat the narration.
func (o *Orchestrator) stream(ctx context.Context, req llm.CompletionRequest, emit func(string)) (round, error) {
	ctx, span := observe.StartSpan(ctx, "story.llm",
		trace.WithAttributes(
			attribute.Int("llm.messages", len(req.Messages)),
			attribute.Int("llm.tools", len(req.Tools)),
		),
	)
	start := time.Now()
	emitted := false

	cfg := o.cfg.Retry
	cfg.OnRetry = func(attempt int, err error) {
		o.metrics.RecordRetry(ctx, "llm")
		observe.Logger(ctx).Warn("llm request failed, retrying", "attempt", attempt, "err", err)
	}
	r, err := resilience.RetryWithResult(ctx, cfg, func(ctx context.Context) (round, error) {
		r, err := o.streamOnce(ctx, req, func(s string) {
			emitted = true
			emit(s)
		})
		if err != nil {
			o.metrics.RecordProviderRequest(ctx, o.cfg.LLMName, "llm", "error")
			o.metrics.RecordProviderError(ctx, o.cfg.LLMName, "llm")
			if emitted {
				return r, resilience.Permanent(&Error{Kind: KindTransient, Op: "llm", Err: err})
			}
			return r, err
		}
		o.metrics.RecordProviderRequest(ctx, o.cfg.LLMName, "llm", "ok")
		return r, nil
	})
	o.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	observe.EndSpan(span, err)
	return r, err
}

func (o *Orchestrator) streamOnce(ctx context.Context, req llm.CompletionRequest, emit func(string)) (round, error) {
	var r round
	ch, err := o.cfg.LLM.StreamCompletion(ctx, req)
	if err != nil {
		return r, fmt.Errorf("open stream: %w", err)
	}
	var text strings.Builder
	for chunk := range ch {
		if chunk.FinishReason == llm.FinishError {
			go audio.Drain(ch)
			return r, &llm.StreamError{Message: chunk.Text}
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			emit(chunk.Text)
		}
		r.calls = append(r.calls, chunk.ToolCalls...)
	}
	if err := ctx.Err(); err != nil {
		return r, err
	}
	r.text = text.String()
	return r, nil
}

// executeTool runs one tool call. Every failure becomes text for the model.
func (o *Orchestrator) executeTool(ctx context.Context, tc types.ToolCall) ToolCall {
	ctx, span := observe.StartSpan(ctx, "story.tool",
		trace.WithAttributes(attribute.String("tool.name", tc.Name)),
	)
	start := time.Now()
	call := ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}

	var err error
	if o.cfg.Tools == nil {
		err = errNoTools
	} else {
		var res *mcp.ToolResult
		res, err = o.cfg.Tools.ExecuteTool(ctx, tc.Name, tc.Arguments)
		if err == nil && res != nil {
			call.Result = res.Content
			call.IsError = res.IsError
		}
	}
	if err != nil {
		call.Result = fmt.Sprintf("Tool %s failed: %v", tc.Name, err)
		call.IsError = true
	}
	call.Duration = time.Since(start)

	status := "ok"
	if call.IsError {
		status = "error"
		observe.Logger(ctx).Warn("tool call failed", "tool", tc.Name, "result", call.Result)
	} else {
		observe.Logger(ctx).Debug("tool call", "tool", tc.Name, "args", tc.Arguments, "duration", call.Duration)
	}
	o.metrics.RecordToolCall(ctx, tc.Name, status, call.Duration)
	observe.EndSpan(span, err)
	return call
}
