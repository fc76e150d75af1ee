package playback

import (
	"sync"

	"github.com/osa030/tunesync/internal/domain/track"
)

// Snapshot is a read-only copy of the queue context.
type Snapshot struct {
	ContextID           string   `json:"activeQueueId"`
	UserActivated       bool     `json:"userActivated"`
	NativeActiveTrackID track.ID `json:"nativeActiveTrackId"`
	Phase               Phase    `json:"-"`
	RotationOffset      int      `json:"rotationOffset"`
	RotationLen         int      `json:"rotationLen"`
}

// queueContext holds the application view of what the engine mirrors.
// Only the Controller writes to it.
type queueContext struct {
	mu sync.RWMutex

	contextID     string
	userActivated bool
	nativeActive  track.ID
	phase         Phase

	// Rotation applied at the last rebuild
	rotationOffset int
	rotationLen    int

	// Bumped by clear so transitions started earlier cannot restore
	// a context the user dropped.
	epoch uint64
}

func (q *queueContext) snapshot() Snapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.snapshotLocked()
}

func (q *queueContext) snapshotLocked() Snapshot {
	return Snapshot{
		ContextID:           q.contextID,
		UserActivated:       q.userActivated,
		NativeActiveTrackID: q.nativeActive,
		Phase:               q.phase,
		RotationOffset:      q.rotationOffset,
		RotationLen:         q.rotationLen,
	}
}

func (q *queueContext) setPhase(p Phase) (Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.phase == p {
		return q.snapshotLocked(), false
	}
	q.phase = p
	return q.snapshotLocked(), true
}

func (q *queueContext) currentEpoch() uint64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.epoch
}

// setContext overwrites the mirrored list after a rebuild. It reports
// false, changing nothing, when the context was cleared after epoch.
func (q *queueContext) setContext(epoch uint64, id string, offset, n int) (Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.epoch != epoch {
		return q.snapshotLocked(), false
	}
	q.contextID = id
	q.rotationOffset = offset
	q.rotationLen = n
	return q.snapshotLocked(), true
}

func (q *queueContext) setUserActivated(epoch uint64, v bool) (Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.epoch != epoch || q.userActivated == v {
		return q.snapshotLocked(), false
	}
	q.userActivated = v
	return q.snapshotLocked(), true
}

func (q *queueContext) clear() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.contextID = ""
	q.userActivated = false
	q.rotationOffset = 0
	q.rotationLen = 0
	q.epoch++
	return q.snapshotLocked()
}

func (q *queueContext) setNativeActive(id track.ID) (Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.nativeActive == id {
		return q.snapshotLocked(), false
	}
	q.nativeActive = id
	return q.snapshotLocked(), true
}

// rotation returns the recorded rotation if ctxID is the active context.
func (q *queueContext) rotation(ctxID string) (offset, n int, ok bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if ctxID == "" || q.contextID != ctxID || q.rotationLen == 0 {
		return 0, 0, false
	}
	return q.rotationOffset, q.rotationLen, true
}
