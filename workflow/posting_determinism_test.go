package workflow

import (
	"sync"
	"testing"
)

// NOTE: These tests are intentionally DB-free. They validate the posting
// engine's concurrency contract:
// - retried submissions are safe via durable idempotency keys
// - per-business serialization prevents racey interleavings inside a posting
//
// Full DB integration tests need MySQL (GET_LOCK, unique indexes) and belong
// in an environment that can run one.

type fakePoster struct {
	muByBiz map[string]*sync.Mutex
	mu      sync.Mutex
	seen    map[string]bool
	posts   int
}

func newFakePoster() *fakePoster {
	return &fakePoster{
		muByBiz: map[string]*sync.Mutex{},
		seen:    map[string]bool{},
	}
}

func (p *fakePoster) post(businessId, idempotencyKey string, fn func()) {
	// Serialize per business (models AcquireBusinessPostingLock).
	p.mu.Lock()
	bm := p.muByBiz[businessId]
	if bm == nil {
		bm = &sync.Mutex{}
		p.muByBiz[businessId] = bm
	}
	p.mu.Unlock()

	bm.Lock()
	defer bm.Unlock()

	// Deduplicate (models the IdempotencyKey unique index).
	key := businessId + "|" + idempotencyKey
	p.mu.Lock()
	if p.seen[key] {
		p.mu.Unlock()
		return
	}
	p.seen[key] = true
	p.mu.Unlock()

	fn()

	p.mu.Lock()
	p.posts++
	p.mu.Unlock()
}

func TestPosting_RetriedSubmission_PostsOnce(t *testing.T) {
	p := newFakePoster()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.post("biz-1", "je-123", func() {})
		}()
	}
	wg.Wait()

	if p.posts != 1 {
		t.Fatalf("expected exactly 1 posted transaction, got %d", p.posts)
	}
}

func TestPosting_DeterministicUnderConcurrency(t *testing.T) {
	for run := 0; run < 100; run++ {
		p := newFakePoster()
		var wg sync.WaitGroup

		// same scenario, repeated concurrently
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.post("biz-1", "je-1", func() {})
				p.post("biz-1", "vb-2", func() {})
				p.post("biz-1", "je-1", func() {}) // duplicate
			}()
		}
		wg.Wait()

		if p.posts != 2 {
			t.Fatalf("run=%d expected 2 unique postings (je-1, vb-2), got %d", run, p.posts)
		}
	}
}
