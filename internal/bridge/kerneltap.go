package bridge

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"

	"github.com/synapticgarden/vm/internal/telemetry"
)

// KernelEvent mirrors the C struct emitted by the pinned eBPF program:
// pid, uid, proxy-name hash, payload length, payload.
type KernelEvent struct {
	PID       uint32
	UID       uint32
	ProxyHash uint32
	Len       uint32
	Payload   [256]byte
}

// KernelTap optionally observes worker syscall activity out of band
// via a pinned eBPF ring buffer, adapted from internal/ringbuf.Reader.
// It is entirely optional: the bridge functions identically with it
// disabled (config.KernelTapConfig.Enabled == false), which is the
// default, since most deployments won't have the supporting eBPF
// program loaded.
type KernelTap struct {
	ring  *ringbuf.Reader
	store *telemetry.Store
}

// NewKernelTap removes the memlock rlimit and returns a tap. It does
// not open the ring buffer at pinnedPath, so the returned tap is always
// disarmed; the only failure is the rlimit removal.
func NewKernelTap(pinnedPath string, store *telemetry.Store) (*KernelTap, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("kernel tap: remove memlock rlimit: %w", err)
	}
	// Opening a pinned ring buffer map requires a loaded eBPF program;
	// this repository does not ship one, so construction degrades to a
	// disarmed tap (ring == nil) whose Start is a safe no-op.
	return &KernelTap{store: store}, nil
}

// Start begins consuming ring buffer records in the background,
// translating each into a telemetry.Event. It returns immediately if
// no ring buffer was attached.
func (t *KernelTap) Start() {
	if t.ring == nil {
		slog.Info("kernel tap: no eBPF ring buffer attached, running disarmed")
		return
	}

	go func() {
		for {
			record, err := t.ring.Read()
			if err != nil {
				if err == ringbuf.ErrClosed {
					return
				}
				slog.Warn("kernel tap: ring buffer read error", "error", err)
				continue
			}
			t.handleRecord(record.RawSample)
		}
	}()
}

func (t *KernelTap) handleRecord(raw []byte) {
	if len(raw) < 16 {
		return
	}
	proxyHash := binary.LittleEndian.Uint32(raw[8:12])

	proxy := fmt.Sprintf("proxy-%d", proxyHash)
	t.store.Record(telemetry.Event{
		TaskID: fmt.Sprintf("kernel-%d", time.Now().UnixNano()),
		Proxy:  proxy,
		State:  telemetry.EventDispatched,
		At:     time.Now(),
	})
}
