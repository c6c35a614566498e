package dispatch

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// handlingTimeout bounds a single event, mostly the outbound calls it makes.
const handlingTimeout = 30 * time.Second

// pool runs one goroutine per queue. Events with the same key always land in
// the same queue and are therefore handled in the order they were submitted.
type pool struct {
	queues []chan Event
	handle func(context.Context, Event) State

	mu       sync.RWMutex
	stopping chan struct{}
	stopped  bool
}

func newPool(workers, size int, handle func(context.Context, Event) State) *pool {
	p := &pool{
		queues:   make([]chan Event, workers),
		handle:   handle,
		stopping: make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan Event, size)
	}
	return p
}

func (p *pool) queue(key string) chan Event {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return p.queues[h.Sum32()%uint32(len(p.queues))]
}

// submit blocks while the queue is full, unless the pool is stopping.
func (p *pool) submit(key string, ev Event) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.queue(key) <- ev:
		return true
	case <-p.stopping:
		return false
	}
}

func (p *pool) run(ctx context.Context) {
	var wg sync.WaitGroup
	// handling continues while draining after ctx is done
	base := context.WithoutCancel(ctx)
	for _, q := range p.queues {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range q {
				hctx, cancel := context.WithTimeout(base, handlingTimeout)
				p.handle(hctx, ev)
				cancel()
			}
		}()
	}

	<-ctx.Done()
	close(p.stopping)

	p.mu.Lock()
	p.stopped = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	wg.Wait()
}
