package registry

// tx remembers what one mutation replaced so it can be undone when the
// save that follows it fails.
type tx struct {
	s  *Store
	id string

	prev     ExtensionRecord
	existed  bool
	index    int // position in order, -1 if absent
	prevGen  uint64
	wasDirty bool

	gen uint64 // dirty sequence assigned by the mutation
}

func (s *Store) beginLocked(id string) *tx {
	t := &tx{s: s, id: id, index: -1}
	if rec, ok := s.records[id]; ok {
		t.prev = rec.Clone()
		t.existed = true
	}
	for i, o := range s.order {
		if o == id {
			t.index = i
			break
		}
	}
	t.prevGen, t.wasDirty = s.dirty[id]
	return t
}

// revertLocked undoes the mutation unless a later one has touched the same
// id, in which case that later mutation owns the record.
func (t *tx) revertLocked() {
	s := t.s
	if s.dirty[t.id] != t.gen {
		return
	}

	if t.wasDirty {
		s.dirty[t.id] = t.prevGen
	} else {
		delete(s.dirty, t.id)
	}

	if !t.existed {
		s.deleteLocked(t.id)
		return
	}

	if _, ok := s.records[t.id]; !ok {
		i := t.index
		if i < 0 || i > len(s.order) {
			i = len(s.order)
		}
		s.order = append(s.order, "")
		copy(s.order[i+1:], s.order[i:])
		s.order[i] = t.id
	}
	s.records[t.id] = t.prev
}
