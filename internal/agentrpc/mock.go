package agentrpc

import (
	"context"
	"sync"
	"time"
)

// MockClient is an in-process Client used by tests. It records every
// idempotency key it has already seen per operation and replays the
// original result instead of re-executing, proving the round-trip law
// spec.md §8 requires: re-issuing a command after a timeout must never
// produce a duplicate side effect.
type MockClient struct {
	mu sync.Mutex

	createCalls  int
	destroyCalls int
	createByKey  map[string]CreateKernelsResult
	destroyByKey map[string]struct{}
	statuses     map[string]KernelStatus
}

// NewMockClient returns a MockClient with no recorded calls.
func NewMockClient() *MockClient {
	return &MockClient{
		createByKey:  map[string]CreateKernelsResult{},
		destroyByKey: map[string]struct{}{},
		statuses:     map[string]KernelStatus{},
	}
}

// CreateCalls returns how many times CreateKernels actually ran its
// side-effecting path (excluding idempotent replays), for test assertions.
func (m *MockClient) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

// DestroyCalls returns how many times DestroyKernel actually ran its
// side-effecting path (excluding idempotent replays), for test assertions.
func (m *MockClient) DestroyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyCalls
}

// SetStatus seeds the status GetKernelStatus returns for a kernel.
func (m *MockClient) SetStatus(status KernelStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[status.KernelID] = status
}

func (m *MockClient) CreateKernels(ctx context.Context, agentAddr string, req CreateKernelsRequest) (CreateKernelsResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cached, ok := m.createByKey[req.IdempotencyKey]; ok {
		return cached, nil
	}

	m.createCalls++
	var outcomes []KernelOutcome
	for _, k := range req.Kernels {
		outcomes = append(outcomes, KernelOutcome{KernelID: k.KernelID, Addr: agentAddr})
	}
	result := CreateKernelsResult{Kernels: outcomes}
	m.createByKey[req.IdempotencyKey] = result
	return result, nil
}

func (m *MockClient) DestroyKernel(ctx context.Context, agentAddr string, req DestroyKernelRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.destroyByKey[req.IdempotencyKey]; ok {
		return nil
	}
	m.destroyCalls++
	m.destroyByKey[req.IdempotencyKey] = struct{}{}
	return nil
}

func (m *MockClient) GetKernelStatus(ctx context.Context, agentAddr, kernelID string) (KernelStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, ok := m.statuses[kernelID]
	if !ok {
		return KernelStatus{}, &KernelNotFoundError{KernelID: kernelID}
	}
	status.ObservedAt = time.Now()
	return status, nil
}

// KernelNotFoundError is returned by GetKernelStatus for a kernel the mock
// has no recorded status for.
type KernelNotFoundError struct{ KernelID string }

func (e *KernelNotFoundError) Error() string {
	return "agentrpc: no status recorded for kernel " + e.KernelID
}

var _ Client = (*MockClient)(nil)
