// Package bridge implements the Synaptic Bridge: the FFI gateway that
// dispatches VM-originated tasks to a bounded pool of out-of-process
// workers over shared memory.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Worker is a recyclable out-of-process task executor: a Docker
// container running the proxy's runtime, pooled and scrubbed between
// tasks through a Pre-warm -> Acquire -> Scrub -> Release lifecycle.
type Worker struct {
	ContainerID string
	ProxyName   string
	LastUsed    time.Time
}

// WorkerPool manages a bounded set of Workers for one proxy name,
// adapted from internal/ghostpool.PoolManager: acquire blocks until a
// warm worker is available (or ctx expires), release scrubs the
// container's working state before returning it to the pool.
type WorkerPool struct {
	mu          sync.Mutex
	proxyName   string
	image       string
	available   chan *Worker
	active      map[string]*Worker
	minIdle     int
	maxCapacity int
}

// NewWorkerPool creates a pool for proxyName backed by image, and
// starts its background pre-warming loop.
func NewWorkerPool(proxyName, image string, minIdle, maxCapacity int) *WorkerPool {
	p := &WorkerPool{
		proxyName:   proxyName,
		image:       image,
		available:   make(chan *Worker, maxCapacity),
		active:      make(map[string]*Worker),
		minIdle:     minIdle,
		maxCapacity: maxCapacity,
	}
	go p.maintain()
	return p
}

// Acquire blocks until a warm Worker is available or ctx is canceled.
func (p *WorkerPool) Acquire(ctx context.Context) (*Worker, error) {
	select {
	case w := <-p.available:
		p.mu.Lock()
		p.active[w.ContainerID] = w
		p.mu.Unlock()
		w.LastUsed = time.Now()
		return w, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release scrubs w's container state in the background and returns it
// to the pool, or destroys it if scrubbing fails.
func (p *WorkerPool) Release(w *Worker) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := p.scrub(ctx, w); err != nil {
			slog.Warn("bridge: failed to scrub worker, destroying", "container_id", w.ContainerID, "error", err)
			p.destroy(ctx, w)
			return
		}

		p.mu.Lock()
		delete(p.active, w.ContainerID)
		p.mu.Unlock()
		p.available <- w
	}()
}

func (p *WorkerPool) scrub(ctx context.Context, w *Worker) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	defer cli.Close()

	execConfig := types.ExecConfig{
		User:         "root",
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          []string{"/bin/sh", "-c", "rm -rf /tmp/task-* && pkill -u workeruser"},
	}
	execID, err := cli.ContainerExecCreate(ctx, w.ContainerID, execConfig)
	if err != nil {
		return fmt.Errorf("scrub exec create: %w", err)
	}
	if err := cli.ContainerExecStart(ctx, execID.ID, types.ExecStartCheck{}); err != nil {
		return fmt.Errorf("scrub exec start: %w", err)
	}
	return nil
}

func (p *WorkerPool) maintain() {
	for {
		time.Sleep(2 * time.Second)

		p.mu.Lock()
		activeCount := len(p.active)
		p.mu.Unlock()
		availableCount := len(p.available)
		total := activeCount + availableCount

		if availableCount < p.minIdle && total < p.maxCapacity {
			deficit := p.minIdle - availableCount
			for i := 0; i < deficit; i++ {
				if total+i >= p.maxCapacity {
					break
				}
				go p.createWorker()
			}
		}
	}
}

func (p *WorkerPool) createWorker() {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		slog.Warn("bridge: error creating docker client", "error", err)
		return
	}
	defer cli.Close()

	hostConfig := &container.HostConfig{
		Runtime:        "runsc",
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		Resources: container.Resources{
			NanoCPUs: 1000000000,
			Memory:   512 * 1024 * 1024,
		},
		Tmpfs: map[string]string{"/tmp": "rw,noexec,nosuid,size=64m"},
	}

	resp, err := cli.ContainerCreate(context.Background(), &container.Config{
		Image: p.image,
		Tty:   false,
		Cmd:   []string{"sleep", "infinity"},
	}, hostConfig, nil, nil, "")
	if err != nil {
		slog.Warn("bridge: failed to create worker container", "error", err)
		return
	}
	if err := cli.ContainerStart(context.Background(), resp.ID, types.ContainerStartOptions{}); err != nil {
		slog.Warn("bridge: failed to start worker container", "error", err)
		return
	}

	p.available <- &Worker{ContainerID: resp.ID, ProxyName: p.proxyName, LastUsed: time.Now()}
}

func (p *WorkerPool) destroy(ctx context.Context, w *Worker) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		slog.Warn("bridge: failed to create client for destroy", "error", err)
		return
	}
	defer cli.Close()
	if err := cli.ContainerRemove(ctx, w.ContainerID, types.ContainerRemoveOptions{Force: true}); err != nil {
		slog.Warn("bridge: failed to force remove container", "container_id", w.ContainerID, "error", err)
	}
}

// Stats reports the pool's current occupancy.
func (p *WorkerPool) Stats() (active, idle, capacity int) {
	p.mu.Lock()
	active = len(p.active)
	p.mu.Unlock()
	return active, len(p.available), p.maxCapacity
}
