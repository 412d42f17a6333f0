package topk

// DefaultK is the number of colors reported per image.
const DefaultK = 3

// Entry is a color with the count it had when it was last placed in the list.
type Entry struct {
	Color ColorKey
	Count uint64
}

// Tracker keeps a full frequency map plus a bounded, descending top-K list
// that is updated once per observation instead of being re-sorted.
//
// A Tracker is owned by a single goroutine.
type Tracker struct {
	k      int
	counts map[ColorKey]uint64
	top    []Entry
}

// NewTracker returns a Tracker reporting up to k colors. k < 1 uses DefaultK.
func NewTracker(k int) *Tracker {
	if k < 1 {
		k = DefaultK
	}
	return &Tracker{
		k:      k,
		counts: make(map[ColorKey]uint64),
		top:    make([]Entry, 0, k),
	}
}

// Observe records one pixel of color c and updates the ranking.
func (t *Tracker) Observe(c ColorKey) {
	t.counts[c]++
	t.place(0, Entry{Color: c, Count: t.counts[c]})
}

// Top returns a copy of the current ranking, most frequent first.
func (t *Tracker) Top() []Entry {
	out := make([]Entry, len(t.top))
	copy(out, t.top)
	return out
}

// Count reports how many times c has been observed.
func (t *Tracker) Count(c ColorKey) uint64 {
	return t.counts[c]
}

// Distinct reports the number of distinct colors observed.
func (t *Tracker) Distinct() int {
	return len(t.counts)
}

// place walks the list from pos, inserting, refreshing, or swapping e in.
// A swapped-out entry continues the walk one position further down.
func (t *Tracker) place(pos int, e Entry) {
	for {
		if len(t.top) < pos+1 {
			if pos < t.k {
				t.top = append(t.top, e)
			}
			return
		}

		cur := t.top[pos]
		switch {
		case cur.Color == e.Color:
			t.top[pos] = e
			return
		case e.Count > cur.Count:
			t.top[pos] = e
			t.dropStale(pos, e)
			pos, e = pos+1, cur
		case pos+1 < t.k:
			pos++
		default:
			return
		}
	}
}

// dropStale removes the first entry other than keep that carries e's color
// with a strictly lower count.
func (t *Tracker) dropStale(keep int, e Entry) {
	for i := range t.top {
		if i == keep {
			continue
		}
		if t.top[i].Color == e.Color && t.top[i].Count < e.Count {
			t.top = append(t.top[:i], t.top[i+1:]...)
			return
		}
	}
}
