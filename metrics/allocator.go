package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/errors"
	"github.com/wippyai/objmodel/iid"
	"github.com/wippyai/objmodel/object"
	"github.com/wippyai/objmodel/ref"
)

// Collectors holds the allocator metric vectors. One set serves any number
// of instrumented allocators, told apart by the "allocator" label. It
// implements prometheus.Collector.
type Collectors struct {
	ops        *prometheus.CounterVec
	liveBytes  *prometheus.GaugeVec
	liveBlocks *prometheus.GaugeVec
	sizes      *prometheus.HistogramVec
}

// NewCollectors creates the metric vectors under namespace.
func NewCollectors(namespace string) *Collectors {
	return &Collectors{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocator",
			Name:      "operations_total",
			Help:      "Allocator operations by kind: alloc, realloc, free, failure.",
		}, []string{"allocator", "op"}),
		liveBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "allocator",
			Name:      "live_bytes",
			Help:      "Bytes currently allocated.",
		}, []string{"allocator"}),
		liveBlocks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "allocator",
			Name:      "live_blocks",
			Help:      "Blocks currently allocated.",
		}, []string{"allocator"}),
		sizes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "allocator",
			Name:      "request_bytes",
			Help:      "Requested allocation sizes.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 10),
		}, []string{"allocator"}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collectors) Describe(ch chan<- *prometheus.Desc) {
	c.ops.Describe(ch)
	c.liveBytes.Describe(ch)
	c.liveBlocks.Describe(ch)
	c.sizes.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collectors) Collect(ch chan<- prometheus.Metric) {
	c.ops.Collect(ch)
	c.liveBytes.Collect(ch)
	c.liveBlocks.Collect(ch)
	c.sizes.Collect(ch)
}

// Allocator decorates another allocator with metrics. It answers Allocator,
// and Memory when the wrapped allocator does, forwarding byte access to the
// address space it shares with the wrapped allocator.
type Allocator struct {
	object.Base
	inner ref.Ref[objmodel.Allocator]
	mem   ref.Ref[objmodel.Memory]

	allocs     prometheus.Counter
	reallocs   prometheus.Counter
	frees      prometheus.Counter
	failures   prometheus.Counter
	liveBytes  prometheus.Gauge
	liveBlocks prometheus.Gauge
	sizes      prometheus.Observer

	mu     sync.Mutex
	blocks map[objmodel.Ptr]uint32
}

// Wrap returns an instrumented allocator over inner, reporting under name.
// It holds its stakes in inner until destroyed.
func Wrap(inner objmodel.Allocator, c *Collectors, name string) *Allocator {
	a := &Allocator{
		inner:      ref.New(inner),
		allocs:     c.ops.WithLabelValues(name, "alloc"),
		reallocs:   c.ops.WithLabelValues(name, "realloc"),
		frees:      c.ops.WithLabelValues(name, "free"),
		failures:   c.ops.WithLabelValues(name, "failure"),
		liveBytes:  c.liveBytes.WithLabelValues(name),
		liveBlocks: c.liveBlocks.WithLabelValues(name),
		sizes:      c.sizes.WithLabelValues(name),
		blocks:     make(map[objmodel.Ptr]uint32),
	}
	caps := []iid.IID{objmodel.IIDAllocator}
	if m, err := object.Query[objmodel.Memory](inner); err == nil {
		a.mem = ref.Adopt(m)
		caps = append(caps, objmodel.IIDMemory)
	}
	a.Init(a, a.destroy, caps...)
	a.SetLabel("metrics.Allocator/" + name)
	return a
}

// Inner returns the wrapped allocator without a stake.
func (a *Allocator) Inner() objmodel.Allocator {
	return a.inner.Get()
}

func (a *Allocator) Alloc(size uint32) (objmodel.Ptr, error) {
	p, err := a.inner.Get().Alloc(size)
	if err != nil {
		a.failures.Inc()
		return p, err
	}
	a.track(p, size)
	return p, nil
}

func (a *Allocator) track(p objmodel.Ptr, size uint32) {
	a.mu.Lock()
	a.blocks[p] = size
	a.mu.Unlock()

	a.allocs.Inc()
	a.liveBlocks.Inc()
	a.liveBytes.Add(float64(size))
	a.sizes.Observe(float64(size))
}

func (a *Allocator) untrack(p objmodel.Ptr) {
	a.mu.Lock()
	size, ok := a.blocks[p]
	delete(a.blocks, p)
	a.mu.Unlock()

	if ok {
		a.frees.Inc()
		a.liveBlocks.Dec()
		a.liveBytes.Sub(float64(size))
	}
}

func (a *Allocator) Realloc(ptr objmodel.Ptr, size uint32) (objmodel.Ptr, error) {
	if ptr == objmodel.Null {
		return a.Alloc(size)
	}
	p, err := a.inner.Get().Realloc(ptr, size)
	if err != nil {
		a.failures.Inc()
		return p, err
	}
	if size == 0 {
		a.untrack(ptr)
		return p, nil
	}

	a.mu.Lock()
	old := a.blocks[ptr]
	delete(a.blocks, ptr)
	a.blocks[p] = size
	a.mu.Unlock()

	a.reallocs.Inc()
	a.liveBytes.Add(float64(size) - float64(old))
	a.sizes.Observe(float64(size))
	return p, nil
}

func (a *Allocator) Free(ptr objmodel.Ptr) {
	if ptr == objmodel.Null {
		return
	}
	a.inner.Get().Free(ptr)
	a.untrack(ptr)
}

func (a *Allocator) memory() (objmodel.Memory, error) {
	if a.mem.IsNil() {
		return nil, errors.NoInterface(iid.Name(objmodel.IIDMemory))
	}
	return a.mem.Get(), nil
}

func (a *Allocator) Read(ptr objmodel.Ptr, length uint32) ([]byte, error) {
	m, err := a.memory()
	if err != nil {
		return nil, err
	}
	return m.Read(ptr, length)
}

func (a *Allocator) Write(ptr objmodel.Ptr, data []byte) error {
	m, err := a.memory()
	if err != nil {
		return err
	}
	return m.Write(ptr, data)
}

func (a *Allocator) ReadU32(ptr objmodel.Ptr) (uint32, error) {
	m, err := a.memory()
	if err != nil {
		return 0, err
	}
	return m.ReadU32(ptr)
}

func (a *Allocator) WriteU32(ptr objmodel.Ptr, value uint32) error {
	m, err := a.memory()
	if err != nil {
		return err
	}
	return m.WriteU32(ptr, value)
}

func (a *Allocator) destroy() {
	a.mem.Release()
	a.inner.Release()
}
