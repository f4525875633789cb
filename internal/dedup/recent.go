package dedup

import "time"

type recentEntry struct {
	hash        string
	link        string
	title       string
	foldedTitle string
	foldedDesc  string
	publishedAt time.Time
}

// recentSet is a FIFO-bounded view of articles accepted in the current run.
type recentSet struct {
	capacity int
	order    []recentEntry
	byHash   map[string]struct{}
	byLink   map[string]string
}

func newRecentSet(capacity int) *recentSet {
	if capacity <= 0 {
		capacity = 1000
	}
	return &recentSet{
		capacity: capacity,
		byHash:   map[string]struct{}{},
		byLink:   map[string]string{},
	}
}

func (r *recentSet) add(e recentEntry) {
	if _, ok := r.byHash[e.hash]; ok {
		return
	}
	if len(r.order) == r.capacity {
		evicted := r.order[0]
		r.order = r.order[1:]
		delete(r.byHash, evicted.hash)
		if r.byLink[evicted.link] == evicted.hash {
			delete(r.byLink, evicted.link)
		}
	}
	r.order = append(r.order, e)
	r.byHash[e.hash] = struct{}{}
	r.byLink[e.link] = e.hash
}

func (r *recentSet) hasHash(hash string) bool {
	_, ok := r.byHash[hash]
	return ok
}

func (r *recentSet) hashForLink(link string) (string, bool) {
	h, ok := r.byLink[link]
	return h, ok
}

func (r *recentSet) entries() []recentEntry {
	out := make([]recentEntry, len(r.order))
	copy(out, r.order)
	return out
}

func (r *recentSet) size() int { return len(r.order) }
