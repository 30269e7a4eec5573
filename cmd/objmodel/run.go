package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/objmodel/blob"
	"github.com/wippyai/objmodel/config"
	"github.com/wippyai/objmodel/handle"
	"github.com/wippyai/objmodel/malloc"
	"github.com/wippyai/objmodel/object"
	"github.com/wippyai/objmodel/ref"
)

// suffix is appended to every blob through its stream capability.
var suffix = []byte("/stream")

// Report summarises one workload run.
type Report struct {
	Allocator   string        `json:"allocator"`
	Workers     int           `json:"workers"`
	Iterations  int           `json:"iterations"`
	Blobs       int           `json:"blobs"`
	Bytes       uint64        `json:"bytes"`
	Duration    time.Duration `json:"duration_ns"`
	Default     malloc.Stats  `json:"default"`
	Scoped      malloc.Stats  `json:"scoped"`
	Handles     HandleCounts  `json:"handles"`
	LiveObjects int64         `json:"live_objects"`
	Metrics     string        `json:"metrics,omitempty"`
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the concurrent blob workload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := runWorkload(cmd.Context(), a.cfg, a.log)
			if err != nil {
				return err
			}
			if a.flags.json {
				return writeJSON(a.out, rep)
			}
			return renderReport(a.out, rep)
		},
	}
}

// HandleCounts tallies lifecycle events seen on the shared handle table.
type HandleCounts struct {
	Published uint64 `json:"published"`
	Borrowed  uint64 `json:"borrowed"`
	Dropped   uint64 `json:"dropped"`
}

type handleCounter struct {
	mu sync.Mutex
	c  HandleCounts
}

func (h *handleCounter) OnHandleEvent(e handle.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch e.Type {
	case handle.EventPublished:
		h.c.Published++
	case handle.EventBorrowed:
		h.c.Borrowed++
	case handle.EventDropped:
		h.c.Dropped++
	}
}

func (h *handleCounter) counts() HandleCounts {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.c
}

type workerTotals struct {
	blobs int
	bytes uint64
	stats malloc.Stats
}

// runWorkload initialises the process registry, runs the workers, tears the
// registry down, and reports what the allocators saw.
func runWorkload(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	allocs, err := newAllocators(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer allocs.Close(ctx)

	reg := malloc.Process()
	if err := reg.SetFactory(allocs.factory(ctx)); err != nil {
		return nil, err
	}
	if err := reg.Init(); err != nil {
		return nil, err
	}
	table := handle.NewTable()
	counter := &handleCounter{}
	table.Subscribe(counter)
	torn := false
	defer func() {
		if !torn {
			_ = table.Close()
			reg.Teardown()
		}
	}()

	rep := &Report{
		Allocator:  cfg.Allocator.Kind,
		Workers:    cfg.Workload.Workers,
		Iterations: cfg.Workload.Iterations,
	}
	start := time.Now()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i := range cfg.Workload.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t, err := runWorker(ctx, reg, table, allocs, i, cfg.Workload)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("worker failed", zap.Int("worker", i), zap.Error(err))
				if firstErr == nil {
					firstErr = fmt.Errorf("worker %d: %w", i, err)
				}
				return
			}
			rep.Blobs += t.blobs
			rep.Bytes += t.bytes
			rep.Scoped = addStats(rep.Scoped, t.stats)
		}()
	}
	wg.Wait()
	rep.Duration = time.Since(start)
	if firstErr != nil {
		return nil, firstErr
	}

	if n := table.Len(); n != 0 {
		log.Warn("handles left published", zap.Int("handles", n))
	}
	_ = table.Close()
	rep.Handles = counter.counts()

	def := reg.Default()
	// Keep the default alive past teardown to read its final counters.
	keep := ref.New(def)
	reg.Teardown()
	torn = true
	rep.Default, _ = statsOf(keep.Get())
	keep.Release()

	rep.LiveObjects = object.Live()
	if allocs.registry != nil {
		text, err := exposition(allocs)
		if err != nil {
			return nil, err
		}
		rep.Metrics = text
	}

	log.Info("workload finished",
		zap.String("allocator", rep.Allocator),
		zap.Int("blobs", rep.Blobs),
		zap.Duration("duration", rep.Duration),
		zap.Int64("live_objects", rep.LiveObjects))
	return rep, nil
}

// runWorker binds a scope, installs a private allocator, and churns blobs
// through it. Every fourth iteration nests a region on the default
// allocator.
func runWorker(ctx context.Context, reg *malloc.Registry, table *handle.Table, allocs *allocators, id int, w config.WorkloadConfig) (workerTotals, error) {
	var t workerTotals

	own, err := allocs.create(ctx, fmt.Sprintf("worker-%d", id))
	if err != nil {
		return t, err
	}
	r := ref.New(own)
	defer r.Release()

	scope := reg.Bind(ctx)
	if err := reg.SetCurrent(scope, r.Get()); err != nil {
		return t, err
	}
	defer reg.ClearCurrent(scope)

	payload := make([]byte, w.BlobSize)
	for it := range w.Iterations {
		for j := range payload {
			payload[j] = byte(id + it + j)
		}
		if err := churn(scope, table, payload); err != nil {
			return t, err
		}
		t.blobs++
		t.bytes += uint64(len(payload) + len(suffix))

		if it%4 == 3 {
			restore := reg.Use(scope, nil)
			err := churn(scope, table, payload[:len(payload)/2])
			restore()
			if err != nil {
				return t, fmt.Errorf("default region: %w", err)
			}
			t.blobs++
			t.bytes += uint64(len(payload)/2 + len(suffix))
		}
	}

	t.stats, _ = statsOf(r.Get())
	return t, nil
}

// churn creates a blob from data on the scope's current allocator and
// publishes it in table, which then holds the only stake. The stream
// capability is resolved through the handle and used under a borrow before
// the handle is dropped.
func churn(scope context.Context, table *handle.Table, data []byte) error {
	b, err := blob.New(scope, data)
	if err != nil {
		return err
	}
	br := ref.New[blob.Blob](b)
	h, err := table.Publish(b, blob.IIDBlob)
	br.Release()
	if err != nil {
		return err
	}

	s, err := handle.Resolve[blob.SequentialStream](table, h)
	if err != nil {
		_ = table.Drop(h)
		return err
	}
	table.Borrow(h)
	err = appendAndCheck(s, data)
	table.ReturnBorrow(h)
	s.Release()
	if dropErr := table.Drop(h); err == nil {
		err = dropErr
	}
	if err != nil {
		return fmt.Errorf("blob handle %d: %w", h, err)
	}
	return nil
}

// appendAndCheck appends suffix through s and reads the whole blob back.
func appendAndCheck(s blob.SequentialStream, data []byte) error {
	if _, err := s.Write(suffix); err != nil {
		return err
	}
	got, err := io.ReadAll(s)
	if err != nil {
		return err
	}
	if len(got) != len(data)+len(suffix) || !bytes.Equal(got[:len(data)], data) || !bytes.Equal(got[len(data):], suffix) {
		return fmt.Errorf("unexpected contents %q", got)
	}
	return nil
}

func addStats(a, b malloc.Stats) malloc.Stats {
	return malloc.Stats{
		Allocs:     a.Allocs + b.Allocs,
		Reallocs:   a.Reallocs + b.Reallocs,
		Frees:      a.Frees + b.Frees,
		Failures:   a.Failures + b.Failures,
		LiveBytes:  a.LiveBytes + b.LiveBytes,
		PeakBytes:  a.PeakBytes + b.PeakBytes,
		LiveBlocks: a.LiveBlocks + b.LiveBlocks,
	}
}

// exposition renders the gathered allocator metrics in the Prometheus text
// format.
func exposition(allocs *allocators) (string, error) {
	families, err := allocs.registry.Gather()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
