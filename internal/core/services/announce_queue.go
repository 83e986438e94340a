package services

import (
	"context"
	"sync"

	"github.com/koustubh-k/Synk-App/internal/core/contracts"
)

type queuedFrame struct {
	data         []byte
	exceptConnID string
}

// announceQueue keeps presence frames of one user in the order they were
// decided. Frames are enqueued under the user's lock and broadcast after it
// is released; whoever creates a user's queue drains it until empty, so a
// slow broadcast only delays later frames of the same user.
type announceQueue struct {
	broadcaster contracts.Broadcaster

	mu      sync.Mutex
	pending map[string][]queuedFrame
}

func newAnnounceQueue(b contracts.Broadcaster) *announceQueue {
	return &announceQueue{broadcaster: b, pending: make(map[string][]queuedFrame)}
}

// enqueue appends a frame for userID and reports whether the caller must
// drain.
func (q *announceQueue) enqueue(userID string, data []byte, exceptConnID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	frames, draining := q.pending[userID]
	q.pending[userID] = append(frames, queuedFrame{data: data, exceptConnID: exceptConnID})
	return !draining
}

func (q *announceQueue) next(userID string) (queuedFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	frames := q.pending[userID]
	if len(frames) == 0 {
		delete(q.pending, userID)
		return queuedFrame{}, false
	}
	q.pending[userID] = frames[1:]
	return frames[0], true
}

func (q *announceQueue) drain(ctx context.Context, userID string) {
	for f, ok := q.next(userID); ok; f, ok = q.next(userID) {
		q.broadcaster.BroadcastAll(ctx, f.data, f.exceptConnID)
	}
}
