package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"leeai-backend/internal/models"
)

type exchangeStore interface {
	Create(ctx context.Context, ex *models.Exchange) error
}

// Pool writes chat exchanges to the store in the background so the request
// path never waits on the database.
type Pool struct {
	store       exchangeStore
	jobs        chan models.Exchange
	workerCount int
	timeout     time.Duration

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func NewPool(store exchangeStore, workerCount, queueSize int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{
		store:       store,
		jobs:        make(chan models.Exchange, queueSize),
		workerCount: workerCount,
		timeout:     5 * time.Second,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	log.Printf("Started %d exchange log workers", p.workerCount)
}

// Submit queues an exchange. It returns false when the queue is full or the
// pool has been stopped; the exchange is then dropped.
func (p *Pool) Submit(ex models.Exchange) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return false
	}
	select {
	case p.jobs <- ex:
		return true
	default:
		return false
	}
}

// Stop refuses new exchanges and waits until the queued ones are written.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for ex := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.store.Create(ctx, &ex); err != nil {
			log.Printf("Worker %d: failed to store exchange %s: %v", id, ex.ID, err)
		}
		cancel()
	}

	log.Printf("Worker %d shutting down", id)
}
