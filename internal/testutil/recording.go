package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/sumhouse/sumhouse/pkg/clickhouse"
)

// RecordingClient is an in-memory clickhouse.ClientInterface capturing
// every statement it is asked to execute, so tests can assert on exact
// SQL sequences without a live store.
type RecordingClient struct {
	mu sync.Mutex

	executed []string

	// FailOn aborts Execute with the mapped error when the statement
	// contains the key. Matching statements are still recorded.
	FailOn map[string]error

	// QueryRowFn serves reads. Nil leaves dest untouched.
	QueryRowFn func(query string, dest ...any) error

	started bool
	stopped bool
}

var _ clickhouse.ClientInterface = (*RecordingClient)(nil)

// NewRecordingClient returns an empty recording fake.
func NewRecordingClient() *RecordingClient {
	return &RecordingClient{}
}

func (r *RecordingClient) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true

	return nil
}

func (r *RecordingClient) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true

	return nil
}

func (r *RecordingClient) Execute(_ context.Context, query string, _ map[string]any) error {
	r.mu.Lock()
	r.executed = append(r.executed, query)
	failOn := r.FailOn
	r.mu.Unlock()

	for needle, err := range failOn {
		if strings.Contains(query, needle) {
			return err
		}
	}

	return nil
}

func (r *RecordingClient) QueryRow(_ context.Context, query string, dest ...any) error {
	if r.QueryRowFn == nil {
		return nil
	}

	return r.QueryRowFn(query, dest...)
}

// Executed returns the captured statements in execution order.
func (r *RecordingClient) Executed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.executed))
	copy(out, r.executed)

	return out
}

// ExecutedMatching returns captured statements containing the substring.
func (r *RecordingClient) ExecutedMatching(substr string) []string {
	var out []string

	for _, q := range r.Executed() {
		if strings.Contains(q, substr) {
			out = append(out, q)
		}
	}

	return out
}

// Reset clears the capture without touching FailOn or QueryRowFn.
func (r *RecordingClient) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executed = nil
}
