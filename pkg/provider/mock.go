package provider

import (
	"context"
	"sync/atomic"
)

// MockProvider is a scripted reasoning model for tests. It replays canned
// responses in order and counts calls, which the single-flight and
// no-model-call tests depend on.
type MockProvider struct {
	Responses []Response
	Err       error
	calls     atomic.Int64
	Delay     func()
}

func NewMockProvider(responses ...string) *MockProvider {
	mock := &MockProvider{}
	for _, text := range responses {
		mock.Responses = append(mock.Responses, Response{Text: text})
	}
	return mock
}

func (mock *MockProvider) Complete(ctx context.Context, req Request) (Response, error) {
	n := mock.calls.Add(1)

	if mock.Delay != nil {
		mock.Delay()
	}

	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	if mock.Err != nil {
		return Response{}, mock.Err
	}

	if len(mock.Responses) == 0 {
		return Response{Text: ""}, nil
	}

	idx := int(n-1) % len(mock.Responses)
	return mock.Responses[idx], nil
}

// Calls reports how many times Complete has been invoked.
func (mock *MockProvider) Calls() int {
	return int(mock.calls.Load())
}
