package combiner

import (
	"sort"

	"github.com/estuary/flow-combine/go/doc"
	"github.com/estuary/flow-combine/go/reduce"
)

// memEntry is one MemTable row: the packed key it was filed under, the
// current reduced Doc, and the front/deleted bits carried through to
// Drain. deleted is always false in this implementation -- no operation
// in this module ever marks an entry deleted -- but the field is kept
// so the Drain response shape matches the external interface described
// by spec's Drain response (binding, key_packed, values_packed,
// doc_bytes, front, deleted).
type memEntry struct {
	key     []byte
	doc     *doc.Doc
	front   bool
	deleted bool
}

// memTable is a per-binding hash index keyed by packed-key bytes. Insert
// order is unconstrained; spill and drain both sort entries by key
// immediately before producing output, since the contract is sorted
// *output*, not sorted insertion (spec's MemTable state note).
type memTable struct {
	arena    *doc.Arena
	bindings []*bindingState
	entries  []map[string]*memEntry
}

func newMemTable(arena *doc.Arena, bindings []*bindingState) *memTable {
	var m = &memTable{arena: arena, bindings: bindings}
	m.entries = make([]map[string]*memEntry, len(bindings))
	for i := range m.entries {
		m.entries[i] = map[string]*memEntry{}
	}
	return m
}

// add extracts d's key under binding bi and either inserts it as a new
// entry (front as given) or reduces it against the existing entry using
// ix, the annotation Index for d. An error leaves the MemTable
// unchanged: the caller must not apply a failed reduction's partial
// result.
func (m *memTable) add(bi int, d *doc.Doc, front bool, ix reduce.Index) error {
	var bs = m.bindings[bi]
	var key = bs.extractor.Key(d)
	var ks = string(key)

	var existing, ok = m.entries[bi][ks]
	if !ok {
		m.entries[bi][ks] = &memEntry{key: key, doc: d, front: front}
		return nil
	}

	var reduced, err = reduce.Reduce(m.arena, existing.doc, d, ix, "")
	if err != nil {
		return err
	}
	existing.doc = reduced
	// front is set by the first Add for this key and never changes.
	return nil
}

// sortedKeys returns binding bi's current keys in ascending byte order.
func (m *memTable) sortedKeys(bi int) []string {
	var ents = m.entries[bi]
	var keys = make([]string, 0, len(ents))
	for k := range ents {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// drainedEntry pairs a memEntry with the binding index it belongs to,
// the unit the Combiner emits from a pure in-memory (never spilled)
// session.
type drainedEntry struct {
	binding int
	entry   *memEntry
}

// drainSorted yields every entry across all bindings, ordered first by
// binding index and then by packed key -- the same order Drain must
// emit in regardless of whether a spill ever occurred.
func (m *memTable) drainSorted() []drainedEntry {
	var out []drainedEntry
	for bi := range m.entries {
		for _, ks := range m.sortedKeys(bi) {
			out = append(out, drainedEntry{binding: bi, entry: m.entries[bi][ks]})
		}
	}
	return out
}

// clear empties every binding's entries, used after a spill has
// persisted them to a run.
func (m *memTable) clear() {
	for i := range m.entries {
		m.entries[i] = map[string]*memEntry{}
	}
}

// empty reports whether the MemTable currently holds no entries for any
// binding.
func (m *memTable) empty() bool {
	for _, ents := range m.entries {
		if len(ents) > 0 {
			return false
		}
	}
	return true
}
