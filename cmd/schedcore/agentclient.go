package main

import (
	"context"
	"errors"

	"github.com/lablup/baimgr-core/internal/agentrpc"
)

// errNoAgentTransport is returned by every unreachableAgentClient call.
// dispatchOnePreparation/advanceOne/terminateOne all log it as a retryable
// failure and try again next tick rather than treating it as fatal.
var errNoAgentTransport = errors.New("agentrpc: no transport configured for this build")

// unreachableAgentClient is a placeholder agentrpc.Client: it lets
// schedcore start and run its scheduling/lifecycle loops against a real
// store without requiring the (out-of-scope) agent wire protocol to exist.
type unreachableAgentClient struct{}

func (unreachableAgentClient) CreateKernels(ctx context.Context, agentAddr string, req agentrpc.CreateKernelsRequest) (agentrpc.CreateKernelsResult, error) {
	return agentrpc.CreateKernelsResult{}, errNoAgentTransport
}

func (unreachableAgentClient) DestroyKernel(ctx context.Context, agentAddr string, req agentrpc.DestroyKernelRequest) error {
	return errNoAgentTransport
}

func (unreachableAgentClient) GetKernelStatus(ctx context.Context, agentAddr, kernelID string) (agentrpc.KernelStatus, error) {
	return agentrpc.KernelStatus{}, errNoAgentTransport
}

var _ agentrpc.Client = unreachableAgentClient{}
