package weighted

import "sort"

// Source is the subset of *rand.Rand the draw needs.
type Source interface {
	Intn(n int) int
}

// Table is a cumulative weight array. Non-positive weights are never drawn.
type Table struct {
	cum   []int
	total int
}

func NewTable(weights []int) Table {
	cum := make([]int, len(weights))
	total := 0
	for i, w := range weights {
		if w > 0 {
			total += w
		}
		cum[i] = total
	}
	return Table{cum: cum, total: total}
}

func (t Table) Len() int   { return len(t.cum) }
func (t Table) Total() int { return t.total }

// Index returns the slot owning threshold in [0,total), or -1 when the
// threshold is out of range.
func (t Table) Index(threshold int) int {
	if threshold < 0 || threshold >= t.total {
		return -1
	}
	return sort.Search(len(t.cum), func(i int) bool { return t.cum[i] > threshold })
}

// Pick draws one slot with probability proportional to its weight. It
// returns -1 when the table carries no weight.
func (t Table) Pick(r Source) int {
	if t.total <= 0 {
		return -1
	}
	return t.Index(r.Intn(t.total))
}

// Uniform picks an index in [0,n) or -1 for n <= 0.
func Uniform(r Source, n int) int {
	if n <= 0 {
		return -1
	}
	return r.Intn(n)
}
