package pipeline

import (
	"context"
	"log"
	"sync"
)

// Pool is the long-lived worker pool executing document jobs. Documents run
// in parallel up to the pool size; chunks within one document stay
// sequential inside the Orchestrator.
type Pool struct {
	orchestrator *Orchestrator
	workers      int
	jobs         chan string
	wg           sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPool sizes the job queue at twice the worker count so enqueues from a
// burst of uploads rarely block.
func NewPool(o *Orchestrator, workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		orchestrator: o,
		workers:      workers,
		jobs:         make(chan string, workers*2),
	}
}

// Enqueue submits a document for processing. Blocks when the queue is full;
// returns false when the context is cancelled first.
func (p *Pool) Enqueue(ctx context.Context, documentID string) bool {
	select {
	case p.jobs <- documentID:
		return true
	case <-ctx.Done():
		return false
	}
}

// Start launches the workers. They run until Stop is called or ctx is
// cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx, i)
		}
		log.Printf("[pool] started %d workers", p.workers)
	})
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case docID, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := p.orchestrator.Process(ctx, docID); err != nil {
				log.Printf("[pool] worker %d: document %s failed: %v", id, docID, err)
			}
		}
	}
}
