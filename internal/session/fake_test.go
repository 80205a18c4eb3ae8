package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ashureev/diagnose-ai/internal/domain"
	"github.com/ashureev/diagnose-ai/internal/gateway"
)

type scriptedReply struct {
	resp *gateway.StepResponse
	err  error
}

// scriptedGateway replays replies in order and records every prompt.
type scriptedGateway struct {
	mu      sync.Mutex
	replies []scriptedReply
	prompts []string
	ctxErrs []error
}

func (g *scriptedGateway) GenerateStep(ctx context.Context, prompt string) (*gateway.StepResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	g.ctxErrs = append(g.ctxErrs, ctx.Err())
	if len(g.replies) == 0 {
		return nil, &gateway.Error{Reason: gateway.ReasonTransport, Err: errors.New("no scripted reply")}
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r.resp, r.err
}

func (g *scriptedGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *scriptedGateway) prompt(i int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompts[i]
}

func step(title string) scriptedReply {
	return scriptedReply{resp: &gateway.StepResponse{
		Thought: "thinking about " + title,
		Step:    domain.RepairStep{Title: title, Details: title + " details"},
	}}
}

func summary(text string) scriptedReply {
	return scriptedReply{resp: &gateway.StepResponse{
		Thought:         "done",
		Step:            domain.RepairStep{Title: "Done", Details: "All fixed"},
		SessionComplete: true,
		Summary:         text,
	}}
}

func failure() scriptedReply {
	return scriptedReply{err: &gateway.Error{Reason: gateway.ReasonSchema, Err: errors.New("missing step.title")}}
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("msg-%d", n)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
