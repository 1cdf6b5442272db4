package embedding

import (
	"context"

	"github.com/lumenpipe/lumen/engine/pipelineerr"
	"github.com/lumenpipe/lumen/pkg/resilience"
)

// Router implements §4.1's "prefer local, fall back to remote" policy. A
// flapping local provider trips the circuit breaker into permanent remote
// use until its timeout elapses.
type Router struct {
	local   Provider
	remote  Provider
	breaker *resilience.Breaker
}

// NewRouter wires a local (may be nil) and remote (may be nil) provider
// behind one breaker-guarded policy.
func NewRouter(local, remote Provider, breaker *resilience.Breaker) *Router {
	if breaker == nil {
		breaker = resilience.NewBreaker(resilience.DefaultBreakerOpts)
	}
	return &Router{local: local, remote: remote, breaker: breaker}
}

func (r *Router) Name() string { return "router" }

func (r *Router) Healthy(ctx context.Context) bool {
	if r.local != nil && r.local.Healthy(ctx) {
		return true
	}
	return r.remote != nil && r.remote.Healthy(ctx)
}

// Embed tries the local provider first (through the breaker); on failure, or
// if no local provider is configured, it falls back to remote.
func (r *Router) Embed(ctx context.Context, texts []string) (Result, error) {
	if r.local != nil {
		res, err := r.callLocal(ctx, texts)
		if err == nil {
			return res, nil
		}
		if r.remote == nil {
			return Result{}, err
		}
	} else if r.remote == nil {
		return Result{}, pipelineerr.New(pipelineerr.KindEmbeddingFailure, "no provider available")
	}

	return r.remote.Embed(ctx, texts)
}

func (r *Router) callLocal(ctx context.Context, texts []string) (Result, error) {
	var result Result
	err := r.breaker.Call(ctx, func(ctx context.Context) error {
		if !r.local.Healthy(ctx) {
			return pipelineerr.New(pipelineerr.KindProviderTransport, "local embedding provider unhealthy")
		}
		res, err := r.local.Embed(ctx, texts)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}
