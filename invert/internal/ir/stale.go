package ir

// StaleRead describes a cell read consumed by a store after another store
// already overwrote the cell.
type StaleRead struct {
	Read        Handle
	Invalidator Store
}

// StaleRead reports the first read reachable from s.Value whose cell is
// overwritten by an earlier store than s. Evaluating such a read against
// the model at s would see the overwritten value, not the one the host
// computed with.
func (g *Graph) StaleRead(s Store) (StaleRead, bool) {
	visited := make(map[Handle]bool)
	var found StaleRead
	var ok bool

	var walk func(h Handle)
	walk = func(h Handle) {
		if ok || !g.valid(h) || visited[h] {
			return
		}
		visited[h] = true
		n := &g.nodes[h]
		if n.Kind == NodeCellRead {
			if inv, stale := g.invalidator(n, s.Seq); stale {
				found, ok = StaleRead{Read: h, Invalidator: inv}, true
			}
			return
		}
		for _, op := range n.Operands {
			walk(op)
		}
	}
	walk(s.Value)
	return found, ok
}

// invalidator finds the first store to the read's global at or after the
// read's epoch. The read is stale when that store precedes seq.
func (g *Graph) invalidator(read *Node, seq int) (Store, bool) {
	for _, st := range g.stores[read.Epoch:] {
		if st.Seq >= seq {
			break
		}
		if st.Global == read.Global {
			return st, true
		}
	}
	return Store{}, false
}
