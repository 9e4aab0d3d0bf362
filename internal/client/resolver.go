package client

import (
	"context"
	"log"
	"net/url"
	"time"
)

// fallbackHost is the local development backend host substituted when a
// configured endpoint does not answer its health probe.
const fallbackHost = "localhost:5002"

const (
	probeTimeout         = 3 * time.Second
	fallbackProbeTimeout = 5 * time.Second
)

// prober is the health-probe subset of the gateway, injectable for tests.
type prober interface {
	Health(ctx context.Context) error
}

// Resolver determines which configured backend endpoints are usable.
// Resolution runs once per process lifetime; there are no probes after
// startup.
type Resolver struct {
	newProber func(baseURL string) prober
}

// NewResolver creates a resolver probing with throwaway backend clients.
func NewResolver(apiToken string) *Resolver {
	return &Resolver{
		newProber: func(baseURL string) prober {
			return NewBackendClient(baseURL, apiToken)
		},
	}
}

// Resolve probes each configured address and returns the resolved list,
// same order and cardinality as the input. A failing address is replaced
// by its derived fallback; if the fallback also fails it is still
// substituted so disconnected local development keeps a usable default.
func (r *Resolver) Resolve(ctx context.Context, configured []string) []string {
	resolved := make([]string, 0, len(configured))
	for _, addr := range configured {
		resolved = append(resolved, r.resolveOne(ctx, addr))
	}
	return resolved
}

func (r *Resolver) resolveOne(ctx context.Context, addr string) string {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	err := r.newProber(addr).Health(probeCtx)
	cancel()
	if err == nil {
		return addr
	}

	fallback := DeriveFallback(addr)
	if fallback == addr {
		log.Printf("Warning: backend %s unreachable and has no distinct fallback: %v", addr, err)
		return addr
	}

	probeCtx, cancel = context.WithTimeout(ctx, fallbackProbeTimeout)
	fbErr := r.newProber(fallback).Health(probeCtx)
	cancel()
	if fbErr == nil {
		log.Printf("Info: backend %s unreachable, using fallback %s", addr, fallback)
		return fallback
	}

	// Optimistic default for disconnected local development.
	log.Printf("Warning: backend %s and fallback %s both unreachable, assuming %s", addr, fallback, fallback)
	return fallback
}

// DeriveFallback rewrites an endpoint address onto the fixed local-dev
// host, keeping scheme and path.
func DeriveFallback(addr string) string {
	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		return addr
	}
	u.Host = fallbackHost
	return u.String()
}
