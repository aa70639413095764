package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/synapticgarden/vm/internal/circuitbreaker"
	"github.com/synapticgarden/vm/internal/config"
	"github.com/synapticgarden/vm/internal/telemetry"
	"github.com/synapticgarden/vm/internal/workerproto"
)

// ResultCode is the Synaptic Bridge's ABI-facing result: failures
// surface as a status code plus a retrievable last-error string rather
// than panicking across the FFI boundary.
type ResultCode int

const (
	ResultSuccess ResultCode = iota
	ResultTimeout
	ResultCircuitOpen
	ResultProxyNotFound
	ResultTransportError
	ResultInternalError
	ResultNotInitialized
	ResultBadPayload
	ResultReplyTooLarge
)

func (r ResultCode) String() string {
	switch r {
	case ResultSuccess:
		return "BRIDGE_SUCCESS"
	case ResultTimeout:
		return "BRIDGE_TIMEOUT"
	case ResultCircuitOpen:
		return "BRIDGE_CIRCUIT_OPEN"
	case ResultProxyNotFound:
		return "BRIDGE_PROXY_NOT_FOUND"
	case ResultTransportError:
		return "BRIDGE_TRANSPORT_ERROR"
	case ResultNotInitialized:
		return "BRIDGE_NOT_INITIALIZED"
	case ResultBadPayload:
		return "BRIDGE_BAD_PAYLOAD"
	case ResultReplyTooLarge:
		return "BRIDGE_REPLY_TOO_LARGE"
	default:
		return "BRIDGE_INTERNAL_ERROR"
	}
}

// proxy bundles one named worker proxy's pool and circuit breaker.
type proxy struct {
	pool    *WorkerPool
	breaker *circuitbreaker.CircuitBreaker
	image   string
}

// Bridge is the Synaptic Bridge FFI gateway: it owns a worker pool and
// circuit breaker per registered proxy, a shared-memory pool, and a
// telemetry store, and exposes its external interfaces as plain Go
// methods, ready for a future cgo //export layer to wrap.
type Bridge struct {
	mu      sync.RWMutex
	proxies map[string]*proxy

	shm       *SharedMemoryPool
	telemetry *telemetry.Store
	metrics   *telemetry.Metrics
	responses *workerproto.ResponseMap
	tap       *KernelTap
	breakers  *circuitbreaker.Manager

	cfg config.BridgeConfig

	lastErrMu sync.Mutex
	lastErr   string

	started bool
	workers int
}

// New constructs a Bridge from cfg. It does not start any background
// goroutines until Start is called.
func New(cfg config.BridgeConfig) *Bridge {
	metrics := telemetry.NewMetrics()
	return &Bridge{
		proxies:   make(map[string]*proxy),
		shm:       NewSharedMemoryPool(cfg.SharedMemory.PoolSizeBytes),
		telemetry: telemetry.NewStore(cfg.Telemetry.EventBufferSize, cfg.Telemetry.SummaryHistoryWindow, metrics, cfg.Telemetry.LatencyBucketBoundsMS...),
		metrics:   metrics,
		responses: workerproto.NewResponseMap(),
		breakers:  circuitbreaker.NewManager(circuitbreaker.DefaultConfig("")),
		cfg:       cfg,
	}
}

// RegisterProxy adds a named proxy backed by a worker pool running
// image, with its own circuit breaker registered under the same name
// in the bridge's shared breaker Manager (so bridge_status can report
// every proxy's breaker state in one Manager.Stats call).
func (b *Bridge) RegisterProxy(name, image string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	breakerCfg := circuitbreaker.DefaultConfig(name)
	breakerCfg.MaxRequests = uint32(b.cfg.CircuitBreak.HalfOpenMax)
	breakerCfg.Timeout = time.Duration(b.cfg.CircuitBreak.ResetTimeoutSec) * time.Second
	threshold := b.cfg.CircuitBreak.FailureThreshold
	breakerCfg.ReadyToTrip = func(counts circuitbreaker.Counts) bool {
		return int(counts.ConsecutiveFailures) >= threshold
	}

	b.proxies[name] = &proxy{
		pool:    NewWorkerPool(name, image, 1, b.cfg.WorkerPool.WorkerCount),
		breaker: b.breakers.GetOrCreate(name, breakerCfg),
		image:   image,
	}
	b.metrics.WorkerPoolSize.WithLabelValues(name).Set(float64(b.cfg.WorkerPool.WorkerCount))
}

// Start brings up the optional kernel tap and marks the bridge ready
// to accept tasks. workers records the bridge-wide worker count the
// caller is committing to (individual proxies still size their own
// pools at RegisterProxy time); it must be positive. Start fails if
// the bridge is already running.
func (b *Bridge) Start(workers int) error {
	if workers <= 0 {
		return fmt.Errorf("bridge: start: workers must be positive, got %d", workers)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return fmt.Errorf("bridge: already started")
	}
	if b.cfg.KernelTap.Enabled {
		tap, err := NewKernelTap(b.cfg.KernelTap.PinnedPath, b.telemetry)
		if err != nil {
			return fmt.Errorf("bridge: start kernel tap: %w", err)
		}
		tap.Start()
		b.tap = tap
	}
	b.workers = workers
	b.started = true
	return nil
}

// Stop marks the bridge stopped. Worker pool containers are left
// running for reuse by a subsequent Start; the Bridge exposes no call
// that tears them down.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = false
}

// Status reports whether the bridge is running, each proxy's
// worker-pool occupancy and circuit state, and an overall breaker
// health verdict derived from every registered proxy's breaker.
type Status struct {
	Running       bool
	Workers       int
	BreakerHealth string
	Proxies       map[string]ProxyStatus
}

// ProxyStatus is one proxy's point-in-time operational snapshot.
type ProxyStatus struct {
	Active, Idle, Capacity int
	CircuitState           string
	Health                 telemetry.ProxyStats
}

func (b *Bridge) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	health, _ := b.breakers.HealthStatus()
	out := Status{Running: b.started, Workers: b.workers, BreakerHealth: health, Proxies: make(map[string]ProxyStatus, len(b.proxies))}
	for name, p := range b.proxies {
		active, idle, capacity := p.pool.Stats()
		out.Proxies[name] = ProxyStatus{
			Active: active, Idle: idle, Capacity: capacity,
			CircuitState: p.breaker.State().String(),
			Health:       b.telemetry.Stats(name),
		}
	}
	return out
}

// SubmitTask dispatches a task to proxyName's worker pool, gated by
// that proxy's circuit breaker, and blocks until the worker replies or
// ctx is canceled. replyCapacity is the size in bytes of the
// SharedMemoryHandle reserved for the worker's reply; 0 falls back to
// config.SharedMemoryConfig.DefaultReplyCapacityBytes. It records a
// telemetry event for every task that reaches the breaker; requests
// rejected before that (not started, unknown proxy, oversized payload,
// reply capacity unavailable) record none.
func (b *Bridge) SubmitTask(ctx context.Context, proxyName, operation string, payload json.RawMessage, replyCapacity int) (workerproto.TaskResult, ResultCode) {
	b.mu.RLock()
	started := b.started
	p, ok := b.proxies[proxyName]
	b.mu.RUnlock()

	if !started {
		b.setLastErr(ErrNotInitialized.Error())
		return workerproto.TaskResult{}, ResultNotInitialized
	}
	if !ok {
		b.setLastErr(fmt.Sprintf("proxy %q not registered", proxyName))
		return workerproto.TaskResult{}, ResultProxyNotFound
	}

	if maxPayload := b.cfg.SharedMemory.MaxPayloadBytes; maxPayload > 0 && len(payload) > maxPayload {
		b.setLastErr(fmt.Sprintf("%s: payload is %d bytes, limit %d", ErrBadPayload, len(payload), maxPayload))
		return workerproto.TaskResult{}, ResultBadPayload
	}

	if replyCapacity <= 0 {
		replyCapacity = b.cfg.SharedMemory.DefaultReplyCapacityBytes
	}
	if int64(replyCapacity) > b.shm.Capacity() {
		b.setLastErr(fmt.Sprintf("%s: requested %d bytes, pool capacity %d", ErrReplyTooLarge, replyCapacity, b.shm.Capacity()))
		return workerproto.TaskResult{}, ResultReplyTooLarge
	}

	handle, err := b.shm.Acquire(replyCapacity)
	if err != nil {
		b.setLastErr(fmt.Sprintf("%s: %v", ErrReplyTooLarge, err))
		return workerproto.TaskResult{}, ResultReplyTooLarge
	}
	defer func() {
		if relErr := b.shm.Release(handle); relErr != nil {
			b.setLastErr(relErr.Error())
		}
		b.metrics.SharedMemoryUsed.Set(float64(b.shm.Used()))
	}()
	b.metrics.SharedMemoryUsed.Set(float64(b.shm.Used()))

	td, err := workerproto.NewTaskDescriptor(proxyName, operation, payload, workerproto.TraceContext{})
	if err != nil {
		b.setLastErr(err.Error())
		return workerproto.TaskResult{}, ResultInternalError
	}
	td.SharedMemory = handle.Name

	dispatchStarted := time.Now()
	raw, execErr := p.breaker.Execute(func() (interface{}, error) {
		return b.dispatch(ctx, p, td, handle)
	})
	latencyMS := float64(time.Since(dispatchStarted).Microseconds()) / 1000

	if execErr != nil {
		code := ResultTransportError
		state := telemetry.EventTransportError
		if execErr == circuitbreaker.ErrCircuitOpen || execErr == circuitbreaker.ErrTooManyRequests {
			code = ResultCircuitOpen
		}
		if ctx.Err() != nil {
			code = ResultTimeout
		}
		b.telemetry.Record(telemetry.Event{TaskID: td.TaskID, Proxy: proxyName, State: state, LatencyMS: latencyMS, At: time.Now()})
		b.setLastErr(fmt.Sprintf("%s: %v", ErrTransport, execErr))
		return workerproto.TaskResult{}, code
	}

	result := raw.(workerproto.TaskResult)
	state := telemetry.EventCompletedOK
	if !result.OK {
		state = telemetry.EventCompletedError
		b.setLastErr(fmt.Sprintf("%s: %s", ErrWorkerError, result.Error))
	}
	b.telemetry.Record(telemetry.Event{TaskID: td.TaskID, Proxy: proxyName, State: state, LatencyMS: latencyMS, At: time.Now()})
	return result, ResultSuccess
}

// dispatch acquires a worker, maps td's reply handle for the
// duration of the call, registers td.TaskID in the response map, and
// waits until DeliverResult resolves it or ctx is done. It does not
// itself transmit td to the acquired worker or read the reply from the
// mapped segment: the result is whatever a caller passes to
// DeliverResult for that task id.
func (b *Bridge) dispatch(ctx context.Context, p *proxy, td workerproto.TaskDescriptor, handle SharedMemoryHandle) (workerproto.TaskResult, error) {
	worker, err := p.pool.Acquire(ctx)
	if err != nil {
		return workerproto.TaskResult{}, fmt.Errorf("%w: acquire worker: %v", ErrTransport, err)
	}
	defer p.pool.Release(worker)

	if _, err := b.shm.Map(handle.Name); err != nil {
		return workerproto.TaskResult{}, fmt.Errorf("%w: map reply handle: %v", ErrTransport, err)
	}
	defer b.shm.Unmap(handle.Name)

	ch := b.responses.Register(td.TaskID)
	defer b.responses.Cancel(td.TaskID)

	select {
	case result := <-ch:
		return result, nil
	case <-ctx.Done():
		return workerproto.TaskResult{}, ctx.Err()
	}
}

// DeliverResult is called by the worker-side transport when a reply
// arrives, waking whichever SubmitTask call is waiting on it.
func (b *Bridge) DeliverResult(result workerproto.TaskResult) {
	b.responses.Resolve(result)
}

// MetricsSnapshot records and returns the current stats for every
// known proxy into the bounded summary history.
func (b *Bridge) MetricsSnapshot() []telemetry.ProxyStats {
	return b.telemetry.Snapshot()
}

// MetricsSummary returns the current point-in-time stats for the named
// proxies (every registered proxy if none are named), without
// touching the summary history.
func (b *Bridge) MetricsSummary(proxies ...string) []telemetry.ProxyStats {
	if len(proxies) == 0 {
		b.mu.RLock()
		for name := range b.proxies {
			proxies = append(proxies, name)
		}
		b.mu.RUnlock()
	}
	out := make([]telemetry.ProxyStats, len(proxies))
	for i, p := range proxies {
		out[i] = b.telemetry.Stats(p)
	}
	return out
}

// MetricsReset clears the rolling window for the named proxies (every
// known proxy if none are named).
func (b *Bridge) MetricsReset(proxies ...string) {
	b.telemetry.Reset(proxies...)
}

// MetricsSnapshotAndReset captures proxy's current stats and resets its
// window in the same atomic step.
func (b *Bridge) MetricsSnapshotAndReset(proxy string) telemetry.ProxyStats {
	return b.telemetry.SnapshotAndReset(proxy)
}

// MetricsSummaryHistory returns up to the last limit entries of the
// bounded summary-history ring (the entire ring if limit <= 0).
func (b *Bridge) MetricsSummaryHistory(limit int) []telemetry.ProxyStats {
	return b.telemetry.SummaryHistory(limit)
}

// ConfigureSummaryHistory changes the bounded summary-history window
// size.
func (b *Bridge) ConfigureSummaryHistory(limit int) {
	b.telemetry.ConfigureSummaryHistory(limit)
}

// CreateSharedMemory allocates a named shared-memory segment.
func (b *Bridge) CreateSharedMemory(handle string, size int) ResultCode {
	if err := b.shm.Create(handle, size); err != nil {
		b.setLastErr(err.Error())
		return ResultInternalError
	}
	b.metrics.SharedMemoryUsed.Set(float64(b.shm.Used()))
	return ResultSuccess
}

// MapSharedMemory returns the backing buffer for handle.
func (b *Bridge) MapSharedMemory(handle string) ([]byte, ResultCode) {
	buf, err := b.shm.Map(handle)
	if err != nil {
		b.setLastErr(err.Error())
		return nil, ResultInternalError
	}
	return buf, ResultSuccess
}

// UnmapSharedMemory is the symmetric counterpart to MapSharedMemory.
func (b *Bridge) UnmapSharedMemory(handle string) ResultCode {
	if err := b.shm.Unmap(handle); err != nil {
		b.setLastErr(err.Error())
		return ResultInternalError
	}
	return ResultSuccess
}

// DestroySharedMemory releases handle's segment.
func (b *Bridge) DestroySharedMemory(handle string) ResultCode {
	if err := b.shm.Destroy(handle); err != nil {
		b.setLastErr(err.Error())
		return ResultInternalError
	}
	b.metrics.SharedMemoryUsed.Set(float64(b.shm.Used()))
	return ResultSuccess
}

func (b *Bridge) setLastErr(msg string) {
	b.lastErrMu.Lock()
	b.lastErr = msg
	b.lastErrMu.Unlock()
}

// GetLastError returns the most recently recorded error message.
func (b *Bridge) GetLastError() string {
	b.lastErrMu.Lock()
	defer b.lastErrMu.Unlock()
	return b.lastErr
}

// ClearError resets the last-error string.
func (b *Bridge) ClearError() {
	b.setLastErr("")
}
