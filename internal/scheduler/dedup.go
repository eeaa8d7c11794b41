package scheduler

import "sync"

type dedupKey struct {
	taskID int64
	kind   string
}

// Deduper remembers which (task, notification kind) pairs were already
// delivered so repeated sweeps over the same window stay quiet. State is in
// memory only; a restart re-notifies once.
type Deduper struct {
	mu   sync.Mutex
	sent map[dedupKey]bool
}

func NewDeduper() *Deduper {
	return &Deduper{sent: make(map[dedupKey]bool)}
}

func (d *Deduper) Seen(taskID int64, kind string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent[dedupKey{taskID, kind}]
}

func (d *Deduper) Mark(taskID int64, kind string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent[dedupKey{taskID, kind}] = true
}
