package collab

import (
	"context"
	"sync"
)

// Noop is a collaborator set that succeeds without doing anything and
// records the calls it received. It backs dry runs and tests.
type Noop struct {
	mu    sync.Mutex
	calls []string
}

// NewNoopSet returns a Set in which every collaborator is the same Noop.
func NewNoopSet() (*Noop, Set) {
	n := &Noop{}
	return n, Set{
		Publisher: n,
		Generator: n,
		Animator:  n,
		Display:   n,
		Device:    n,
		Reasoner:  n,
	}
}

// Calls returns the names of the collaborator calls received so far.
func (n *Noop) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.calls))
	copy(out, n.calls)
	return out
}

func (n *Noop) record(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, name)
}

func (n *Noop) Publish(_ context.Context, _ PublishRequest) (PublishResult, error) {
	n.record("publish")
	return PublishResult{Success: true}, nil
}

func (n *Noop) Purge(_ context.Context, _ string, _ string) error {
	n.record("purge")
	return nil
}

func (n *Noop) Generate(_ context.Context, _ GenerateRequest) ([]GenerateResult, error) {
	n.record("generate")
	return []GenerateResult{{Message: "ok"}}, nil
}

func (n *Noop) Animate(_ context.Context, _ AnimateRequest) error {
	n.record("animate")
	return nil
}

func (n *Noop) Show(_ context.Context, _ DisplayRequest) error {
	n.record("display")
	return nil
}

func (n *Noop) Wake(_ context.Context, _ string) error {
	n.record("device_wake")
	return nil
}

func (n *Noop) Sleep(_ context.Context, _ string) error {
	n.record("device_sleep")
	return nil
}

func (n *Noop) Standby(_ context.Context, _ string) error {
	n.record("device_standby")
	return nil
}

func (n *Noop) MediaSync(_ context.Context, _ string) error {
	n.record("device_media_sync")
	return nil
}

func (n *Noop) Reason(_ context.Context, req ReasonRequest) (ReasonResult, error) {
	n.record("reason")
	return ReasonResult{Outputs: []string{""}}, nil
}
