package eviction

import "github.com/unkn0wn-root/polycache/entry"

var (
	_ Strategy = LRU{}
	_ Strategy = LFU{}
	_ Strategy = FIFO{}
)

// LRU evicts the least recently used entry. AccessSeq stamps are unique,
// so there are no ties.
type LRU struct{}

func (LRU) Name() string { return string(KindLRU) }

func (LRU) OnInsert(_ string, e *entry.Entry) {
	// an entry adopted from another strategy may never have been touched
	if e.AccessSeq < e.InsertSeq {
		e.AccessSeq = e.InsertSeq
	}
}

func (LRU) OnAccess(string, *entry.Entry) {}

func (LRU) ChooseVictim(t entry.Table) (string, bool) {
	return minBy(t, func(a, b *entry.Entry) bool { return a.AccessSeq < b.AccessSeq })
}

// LFU evicts the entry with the lowest read count. Among equals, the one
// accessed longest ago goes first.
type LFU struct{}

func (LFU) Name() string { return string(KindLFU) }

func (LFU) OnInsert(_ string, e *entry.Entry) {
	if e.Frequency == 0 {
		e.Frequency = 1
	}
}

func (LFU) OnAccess(string, *entry.Entry) {}

func (LFU) ChooseVictim(t entry.Table) (string, bool) {
	return minBy(t, func(a, b *entry.Entry) bool {
		if a.Frequency != b.Frequency {
			return a.Frequency < b.Frequency
		}
		return a.AccessSeq < b.AccessSeq
	})
}

// FIFO evicts in creation order. Reads and overwrites do not move an entry.
type FIFO struct{}

func (FIFO) Name() string { return string(KindFIFO) }

func (FIFO) OnInsert(string, *entry.Entry) {}
func (FIFO) OnAccess(string, *entry.Entry) {}

func (FIFO) ChooseVictim(t entry.Table) (string, bool) {
	return minBy(t, func(a, b *entry.Entry) bool { return a.InsertSeq < b.InsertSeq })
}
