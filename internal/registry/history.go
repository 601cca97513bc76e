package registry

// statusHistory is a bounded jobID -> last-known-status map with FIFO
// eviction. It distinguishes "first time seen" from "status changed" so the
// registry notifies once per transition regardless of which transport
// delivered it.
type statusHistory struct {
	capacity int
	statuses map[string]Status
	order    []string
}

func newStatusHistory(capacity int) *statusHistory {
	if capacity <= 0 {
		capacity = 200
	}
	return &statusHistory{
		capacity: capacity,
		statuses: make(map[string]Status, capacity),
	}
}

func (h *statusHistory) get(id string) (Status, bool) {
	status, ok := h.statuses[id]
	return status, ok
}

// set records the status for an id. Updating an existing entry keeps its
// original insertion position.
func (h *statusHistory) set(id string, status Status) {
	if _, ok := h.statuses[id]; !ok {
		h.order = append(h.order, id)
	}
	h.statuses[id] = status
}

func (h *statusHistory) len() int {
	return len(h.statuses)
}

// compact removes ids absent from the live set, then enforces the capacity by
// evicting oldest-inserted entries. Live ids are spared by the cap pass while
// any dead entry remains; if the live set alone exceeds capacity the bound
// still wins and the oldest live entries go too.
func (h *statusHistory) compact(live map[string]struct{}) {
	if len(h.order) == 0 {
		return
	}

	kept := h.order[:0]
	for _, id := range h.order {
		if _, ok := live[id]; !ok {
			delete(h.statuses, id)
			continue
		}
		kept = append(kept, id)
	}
	h.order = kept

	for len(h.order) > h.capacity {
		oldest := h.order[0]
		h.order = h.order[1:]
		delete(h.statuses, oldest)
	}
}
