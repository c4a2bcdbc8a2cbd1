package state

import "github.com/ethereum/go-ethereum/common"

// DefaultRingCapacity is the default bounded block-ring size named in
// spec §3 ("Lifecycle"): "bounded rings (default 50 blocks,
// transactions capped by block membership)".
const DefaultRingCapacity = 50

// blockRing holds Block summaries newest-first, bounded to capacity
// and evicted LRU by block number (spec §3 "Invariants": "Block ring
// is strictly decreasing in number with no gaps when in steady
// state"). Transactions are not stored independently; they live only
// as long as the block that references them (spec §3: "eviction is
// synchronous with block eviction").
type blockRing struct {
	capacity int
	blocks   []Block          // newest first
	txs      map[uint64][]Transaction // keyed by block number
}

func newBlockRing(capacity int) *blockRing {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &blockRing{capacity: capacity, txs: make(map[uint64][]Transaction)}
}

// upsert inserts or replaces the block at its number, keeping the
// newest-first ordering, then evicts the oldest entries beyond
// capacity. It is used both for ordinary head advancement and for
// reorg reconciliation (replacing a stale block at the same number).
func (r *blockRing) upsert(b Block, txs []Transaction) {
	for i, existing := range r.blocks {
		if existing.Number == b.Number {
			r.blocks[i] = b
			r.txs[b.Number] = txs
			r.resort()
			return
		}
	}
	r.blocks = append(r.blocks, b)
	r.txs[b.Number] = txs
	r.resort()
	r.evict()
}

// dropFrom removes every block with number >= n (used by reorg
// handling to unwind a stale suffix before re-fetching it).
func (r *blockRing) dropFrom(n uint64) {
	kept := r.blocks[:0:0]
	for _, b := range r.blocks {
		if b.Number >= n {
			delete(r.txs, b.Number)
			continue
		}
		kept = append(kept, b)
	}
	r.blocks = kept
}

func (r *blockRing) resort() {
	// Simple insertion sort: ring capacity is small (tens of entries)
	// and inserts happen one block at a time, so this stays cheap.
	for i := len(r.blocks) - 1; i > 0; i-- {
		if r.blocks[i].Number > r.blocks[i-1].Number {
			r.blocks[i], r.blocks[i-1] = r.blocks[i-1], r.blocks[i]
		} else {
			break
		}
	}
}

func (r *blockRing) evict() {
	for len(r.blocks) > r.capacity {
		oldest := r.blocks[len(r.blocks)-1]
		delete(r.txs, oldest.Number)
		r.blocks = r.blocks[:len(r.blocks)-1]
	}
}

// allTxs flattens the ring's transactions newest-block-first, each
// block's transactions in mined order (spec §4.D "txs ... derived from
// blocks").
func (r *blockRing) allTxs() []Transaction {
	var out []Transaction
	for _, b := range r.blocks {
		out = append(out, r.txs[b.Number]...)
	}
	return out
}

func (r *blockRing) updateTxStatus(hash common.Hash, status TxStatus) {
	for num, txs := range r.txs {
		for i := range txs {
			if txs[i].Hash == hash {
				txs[i].Status = status
				r.txs[num] = txs
				return
			}
		}
	}
}
