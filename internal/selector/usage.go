package selector

import (
	"context"
	"sync"

	"github.com/conorfennell/knolcards/internal/storage"
)

// TagUsage caches how many cards each tag is linked to. It is invalidated by
// card-tag mutations and reloaded on the next lookup.
type TagUsage struct {
	mu     sync.Mutex
	counts map[int64]int
	valid  bool
}

// Invalidate drops the cached counts.
func (u *TagUsage) Invalidate() {
	u.mu.Lock()
	u.valid = false
	u.counts = nil
	u.mu.Unlock()
}

// LeastUsed returns the tag among ids linked to the fewest cards, breaking
// ties by the lower id. It returns 0 for an empty ids.
func (u *TagUsage) LeastUsed(ctx context.Context, q storage.Querier, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	counts, err := u.load(ctx, q)
	if err != nil {
		return 0, err
	}
	best := ids[0]
	for _, id := range ids[1:] {
		if counts[id] < counts[best] || (counts[id] == counts[best] && id < best) {
			best = id
		}
	}
	return best, nil
}

func (u *TagUsage) load(ctx context.Context, q storage.Querier) (map[int64]int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.valid {
		return u.counts, nil
	}
	counts, err := storage.TagUsage(ctx, q)
	if err != nil {
		return nil, err
	}
	u.counts, u.valid = counts, true
	return counts, nil
}
