package scheduler

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
)

// Task is one unit of per-market work. Execute must not be called
// concurrently with another Task for the same MarketID; routing guarantees
// this by always sending a market's tasks to the same shard.
type Task struct {
	MarketID string
	Execute  func()
}

// PoolConfig sizes the sharded pool.
type PoolConfig struct {
	Shards    int
	QueueSize int
}

// DefaultPoolConfig returns a conservative shard count for a single-process
// deployment.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Shards: 8, QueueSize: 256}
}

// pool is the per-market-serial worker pool named in §5: "per-market steps
// never interleave across workers". Adapted from the teacher's
// workerpool.Pool (Config/Start/Stop/Submit naming), replacing its single
// shared task queue with one queue per shard, routed by a stable hash of
// MarketID so that one market's tasks always land on the same worker.
type pool struct {
	shards  []chan Task
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	cfg     PoolConfig
}

func newPool(cfg PoolConfig) *pool {
	if cfg.Shards <= 0 {
		cfg.Shards = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	shards := make([]chan Task, cfg.Shards)
	for i := range shards {
		shards[i] = make(chan Task, cfg.QueueSize)
	}
	return &pool{shards: shards, cfg: cfg}
}

func (p *pool) start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("pool already running")
	}
	p.running = true
	p.mu.Unlock()

	for i, shard := range p.shards {
		p.wg.Add(1)
		go p.worker(ctx, i, shard)
	}
	return nil
}

func (p *pool) worker(ctx context.Context, id int, tasks chan Task) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-tasks:
			if !ok {
				return
			}
			task.Execute()
		}
	}
}

func (p *pool) stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	for _, shard := range p.shards {
		close(shard)
	}
	p.wg.Wait()
}

// submit routes task to the shard owning task.MarketID.
func (p *pool) submit(task Task) error {
	p.mu.RLock()
	running := p.running
	p.mu.RUnlock()
	if !running {
		return fmt.Errorf("pool not running")
	}

	shard := p.shards[shardFor(task.MarketID, len(p.shards))]
	select {
	case shard <- task:
		return nil
	default:
		return fmt.Errorf("shard queue full for market %s", task.MarketID)
	}
}

func shardFor(marketID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(marketID))
	return int(h.Sum32()) % n
}
