package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/ashureev/diagnose-ai/internal/domain"
	"github.com/ashureev/diagnose-ai/internal/gateway"
)

// fakeGateway answers from a queue; an empty queue yields a transport failure.
type fakeGateway struct {
	mu      sync.Mutex
	replies []*gateway.StepResponse
	errs    []error
	calls   int
}

func (f *fakeGateway) push(resp *gateway.StepResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, resp)
	f.errs = append(f.errs, err)
}

func (f *fakeGateway) GenerateStep(context.Context, string) (*gateway.StepResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.replies) == 0 {
		return nil, &gateway.Error{Reason: gateway.ReasonTransport, Err: errors.New("upstream 503: overloaded")}
	}
	resp, err := f.replies[0], f.errs[0]
	f.replies, f.errs = f.replies[1:], f.errs[1:]
	return resp, err
}

func stepReply(title string) *gateway.StepResponse {
	return &gateway.StepResponse{
		Thought: "t",
		Step:    domain.RepairStep{Title: title, Details: title + " details", Command: "sfc /scannow"},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
