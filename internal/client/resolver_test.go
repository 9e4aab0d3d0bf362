package client

import (
	"context"
	"errors"
	"testing"
)

type fakeProber struct {
	healthy map[string]bool
	probes  *[]string
}

func (p fakeProber) probe(baseURL string) prober {
	return proberFunc(func(ctx context.Context) error {
		*p.probes = append(*p.probes, baseURL)
		if p.healthy[baseURL] {
			return nil
		}
		return errors.New("connection refused")
	})
}

type proberFunc func(ctx context.Context) error

func (f proberFunc) Health(ctx context.Context) error { return f(ctx) }

func newFakeResolver(healthy map[string]bool) (*Resolver, *[]string) {
	probes := &[]string{}
	p := fakeProber{healthy: healthy, probes: probes}
	return &Resolver{newProber: p.probe}, probes
}

func TestResolveKeepsHealthyEndpoint(t *testing.T) {
	r, probes := newFakeResolver(map[string]bool{"http://backend:5002/api": true})

	got := r.Resolve(context.Background(), []string{"http://backend:5002/api"})
	if len(got) != 1 || got[0] != "http://backend:5002/api" {
		t.Fatalf("resolved = %v, want unchanged address", got)
	}
	if len(*probes) != 1 {
		t.Errorf("probes = %v, want single health probe", *probes)
	}
}

func TestResolveIsIdempotentForHealthyEndpoint(t *testing.T) {
	r, _ := newFakeResolver(map[string]bool{"http://backend:5002/api": true})

	first := r.Resolve(context.Background(), []string{"http://backend:5002/api"})
	second := r.Resolve(context.Background(), []string{"http://backend:5002/api"})
	if first[0] != second[0] {
		t.Errorf("resolution flapped: %q then %q", first[0], second[0])
	}
}

func TestResolveSubstitutesReachableFallback(t *testing.T) {
	r, probes := newFakeResolver(map[string]bool{"http://localhost:5002/api": true})

	got := r.Resolve(context.Background(), []string{"http://backend:5002/api"})
	if got[0] != "http://localhost:5002/api" {
		t.Fatalf("resolved = %v, want fallback substitution", got)
	}
	if len(*probes) != 2 {
		t.Errorf("probes = %v, want primary then fallback", *probes)
	}
}

func TestResolveOptimisticFallbackWhenBothFail(t *testing.T) {
	r, _ := newFakeResolver(map[string]bool{})

	got := r.Resolve(context.Background(), []string{"http://backend:5002/api"})
	if got[0] != "http://localhost:5002/api" {
		t.Fatalf("resolved = %v, want optimistic fallback substitution", got)
	}
}

func TestResolvePreservesOrderAndCardinality(t *testing.T) {
	r, _ := newFakeResolver(map[string]bool{
		"http://a:5002/api":         true,
		"http://localhost:5002/api": true,
	})

	got := r.Resolve(context.Background(), []string{"http://a:5002/api", "http://b:5002/api"})
	if len(got) != 2 {
		t.Fatalf("resolved = %v, want two entries", got)
	}
	if got[0] != "http://a:5002/api" || got[1] != "http://localhost:5002/api" {
		t.Errorf("resolved = %v, want [http://a:5002/api http://localhost:5002/api]", got)
	}
}

func TestDeriveFallback(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"http://backend:5002/api", "http://localhost:5002/api"},
		{"https://api.example.com/api", "https://localhost:5002/api"},
		{"http://localhost:5002/api", "http://localhost:5002/api"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := DeriveFallback(tt.addr); got != tt.want {
			t.Errorf("DeriveFallback(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}
