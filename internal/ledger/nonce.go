package ledger

import (
	"context"
	"sync"
)

// nonceSource hands out strictly increasing nonces for a single sending
// account. The first reservation after construction (or after invalidate)
// syncs from the chain via fetch; later reservations increment locally so
// concurrent submissions never observe the same value.
type nonceSource struct {
	mu     sync.Mutex
	next   uint64
	synced bool
}

// reserve returns the next nonce for the account, syncing from fetch when
// the local counter is stale.
func (n *nonceSource) reserve(ctx context.Context, fetch func(ctx context.Context) (uint64, error)) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.synced {
		current, err := fetch(ctx)
		if err != nil {
			return 0, err
		}
		n.next = current
		n.synced = true
	}

	nonce := n.next
	n.next++
	return nonce, nil
}

// invalidate forces a resync on the next reservation. Called after a failed
// broadcast, where the chain may or may not have consumed the nonce.
func (n *nonceSource) invalidate() {
	n.mu.Lock()
	n.synced = false
	n.mu.Unlock()
}
