package adapters

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/askcos/prediction-gateway/external"
)

// catalog lists the backends in registration order.
var catalog = []struct {
	name  string
	build func(BackendConfig, Deps) Adapter
}{
	{NameAugmentedTransformer, NewAugmentedTransformer},
	{NameGraph2Smiles, NewGraph2Smiles},
	{NameTemplateRelevance, NewTemplateRelevance},
	{NameQMGNN, NewQMGNN},
	{NameContextRecommender, NewContextRecommender},
}

// KnownBackends returns the names of all backends this build supports.
func KnownBackends() []string {
	names := make([]string, 0, len(catalog))
	for _, entry := range catalog {
		names = append(names, entry.name)
	}
	return names
}

// ValidateBackends checks every configured backend.
func ValidateBackends(backends map[string]BackendConfig) error {
	known := make(map[string]bool, len(catalog))
	for _, entry := range catalog {
		known[entry.name] = true
	}
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !known[name] {
			return fmt.Errorf("backends.%s: unknown backend", name)
		}
		cfg := backends[name]
		if err := cfg.Validate(name); err != nil {
			return err
		}
	}
	return nil
}

// Queues returns the dispatch queues needed by the enabled backends.
func Queues(backends map[string]BackendConfig) []string {
	seen := make(map[string]bool)
	var queues []string
	for _, entry := range catalog {
		cfg, ok := backends[entry.name]
		if !ok || !cfg.Enabled {
			continue
		}
		q := cfg.Queue
		if q == "" {
			q = entry.name
		}
		if !seen[q] {
			seen[q] = true
			queues = append(queues, q)
		}
	}
	return queues
}

// TransportFunc builds the HTTP transport for one backend.
type TransportFunc func(ctx context.Context, name string, cfg BackendConfig) (http.RoundTripper, error)

// DefaultTransport returns a SigV4 signing transport when the backend asks
// for signing and nil (plain transport) otherwise.
func DefaultTransport(ctx context.Context, _ string, cfg BackendConfig) (http.RoundTripper, error) {
	if cfg.Signing.Type != SigningSigV4 {
		return nil, nil
	}
	return external.NewSigV4Transport(ctx, cfg.Signing.Region, cfg.Signing.Service, nil)
}

// Bootstrap registers every enabled backend followed by the retro
// controller and returns the immutable registry. deps.Client, when set,
// is shared by all backends; otherwise each gets a client over transport.
func Bootstrap(ctx context.Context, backends map[string]BackendConfig, deps Deps, transport TransportFunc) (*Registry, error) {
	if err := ValidateBackends(backends); err != nil {
		return nil, err
	}
	if transport == nil {
		transport = DefaultTransport
	}
	shared := deps.Client
	deps = deps.withDefaults()
	logger := deps.Logger.Component("adapters")

	b := NewBuilder()
	for _, entry := range catalog {
		cfg, ok := backends[entry.name]
		if !ok || !cfg.Enabled {
			logger.Debug().Str("adapter", entry.name).Msg("backend disabled")
			continue
		}

		backendDeps := deps
		if shared == nil {
			rt, err := transport(ctx, entry.name, cfg)
			if err != nil {
				return nil, fmt.Errorf("backends.%s: %w", entry.name, err)
			}
			backendDeps.Client = external.NewClient(rt)
		}

		if err := b.Register(entry.build(cfg, backendDeps)); err != nil {
			return nil, err
		}
		logger.Info().
			Str("adapter", entry.name).
			Str("url", cfg.PredictionURL).
			Dur("timeout", cfg.Timeout).
			Msg("backend registered")
	}

	if err := b.Register(NewRetroController(b.Resolver(), deps)); err != nil {
		return nil, err
	}
	return b.Build(), nil
}
