package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/config"
	"github.com/wippyai/objmodel/engine"
	"github.com/wippyai/objmodel/internal/guest"
	"github.com/wippyai/objmodel/malloc"
	"github.com/wippyai/objmodel/metrics"
	"github.com/wippyai/objmodel/object"
)

// allocators creates allocators of the configured kind, instrumented when
// metrics are enabled.
type allocators struct {
	cfg        config.AllocatorConfig
	eng        *engine.Engine
	guest      []byte
	collectors *metrics.Collectors
	registry   *prometheus.Registry
}

func newAllocators(ctx context.Context, cfg *config.Config) (*allocators, error) {
	s := &allocators{cfg: cfg.Allocator}

	if cfg.Allocator.Kind == config.AllocatorLinear {
		s.guest = guest.Bump
		if cfg.Allocator.Guest != "" {
			wasm, err := os.ReadFile(cfg.Allocator.Guest)
			if err != nil {
				return nil, fmt.Errorf("read guest: %w", err)
			}
			s.guest = wasm
		}
		eng, err := engine.NewEngineWithConfig(ctx, &engine.Config{
			MemoryLimitPages: cfg.Engine.MemoryLimitPages,
		})
		if err != nil {
			return nil, err
		}
		s.eng = eng
	}

	if cfg.Metrics.Enabled {
		s.collectors = metrics.NewCollectors(cfg.Metrics.Namespace)
		s.registry = prometheus.NewRegistry()
		if err := s.registry.Register(s.collectors); err != nil {
			s.Close(ctx)
			return nil, err
		}
	}
	return s, nil
}

// create returns a new allocator nobody holds a stake in yet.
func (s *allocators) create(ctx context.Context, name string) (objmodel.Allocator, error) {
	var a objmodel.Allocator
	switch s.cfg.Kind {
	case config.AllocatorHeap:
		a = malloc.NewHeapWithConfig(&malloc.HeapConfig{MaxBytes: s.cfg.MaxBytes})
	case config.AllocatorMmap:
		m, err := malloc.NewMmap(&malloc.MmapConfig{SlabSize: s.cfg.SlabSize, MaxSlabs: s.cfg.MaxSlabs})
		if err != nil {
			return nil, err
		}
		a = m
	case config.AllocatorLinear:
		l, err := s.eng.LoadAllocator(ctx, s.guest)
		if err != nil {
			return nil, err
		}
		a = l
	default:
		return nil, fmt.Errorf("unknown allocator kind %q", s.cfg.Kind)
	}

	if s.collectors != nil {
		return metrics.Wrap(a, s.collectors, name), nil
	}
	return a, nil
}

// factory adapts create to the registry's default allocator factory.
func (s *allocators) factory(ctx context.Context) malloc.Factory {
	return func() (objmodel.Unknown, error) {
		a, err := s.create(ctx, "default")
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

// statsOf reads the counters of a, looking through a metrics wrapper.
func statsOf(a objmodel.Allocator) (malloc.Stats, bool) {
	if m, ok := a.(*metrics.Allocator); ok {
		a = m.Inner()
	}
	r, err := object.Query[malloc.Reporter](a)
	if err != nil {
		return malloc.Stats{}, false
	}
	defer r.Release()
	return r.Stats(), true
}

// Close shuts the engine down. Guests still referenced are closed with it.
func (s *allocators) Close(ctx context.Context) {
	if s.eng != nil {
		_ = s.eng.Close(ctx)
	}
}
