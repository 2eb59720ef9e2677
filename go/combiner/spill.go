package combiner

import (
	"container/heap"
	"encoding/binary"
	"fmt"

	"github.com/estuary/flow-combine/go/doc"
	"github.com/estuary/flow-combine/go/reduce"
	"github.com/minio/highwayhash"
)

// Sink is the opaque byte sink a Combiner spills to: sequential writes
// while spilling, random-range reads while draining. *os.File satisfies
// this directly; NewMemSink below provides an in-memory implementation
// for tests and small sessions that don't warrant a temp file.
type Sink interface {
	Write(p []byte) (int, error)
	ReadAt(p []byte, off int64) (int, error)
}

// MemSink is a Sink backed by a growable in-memory buffer.
type MemSink struct {
	buf []byte
}

func NewMemSink() *MemSink { return &MemSink{} }

func (s *MemSink) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func (s *MemSink) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(s.buf)) {
		return 0, fmt.Errorf("MemSink: out-of-range read at %d", off)
	}
	var n = copy(p, s.buf[off:])
	if n < len(p) {
		return n, fmt.Errorf("MemSink: short read at %d", off)
	}
	return n, nil
}

func (s *MemSink) Size() int64 { return int64(len(s.buf)) }

const (
	trailerMagic   uint32 = 0x466C6F77 // "Flow"
	trailerVersion uint16 = 1
)

// checksumKey is a fixed key for the per-chunk highwayhash checksum.
// It exists only to detect accidental corruption of a spill chunk, not
// to authenticate it against tampering, so a constant key (rather than
// a per-session random one) is sufficient.
var checksumKey = [32]byte{
	0x66, 0x6c, 0x6f, 0x77, 0x2d, 0x63, 0x6f, 0x6d,
	0x62, 0x69, 0x6e, 0x65, 0x2d, 0x73, 0x70, 0x69,
	0x6c, 0x6c, 0x2d, 0x63, 0x68, 0x65, 0x63, 0x6b,
	0x73, 0x75, 0x6d, 0x2d, 0x6b, 0x65, 0x79, 0x00,
}

// runRange is the byte range of one run within the sink, as recorded by
// the trailer.
type runRange struct {
	start, end int64
}

// SpillWriter accumulates MemTable entries into runs of size-targeted
// chunks and writes them to a Sink, following spec's spill format: a
// sequence of runs, each a sequence of chunks, each chunk a header
// (binding_index, entry_count, byte_length) plus entries in sorted
// order, checksummed for corruption detection. A final trailer records
// each run's byte range.
type SpillWriter struct {
	sink        Sink
	offset      int64
	chunkTarget int
	runs        []runRange

	runStart  int64
	curBind   uint32
	curCount  uint32
	curBuf    []byte
	haveChunk bool
}

// NewSpillWriter returns a SpillWriter targeting chunkTargetBytes per
// chunk (approximate: a chunk is flushed once its buffered entry bytes
// reach this size, not before the current entry is fully appended).
func NewSpillWriter(sink Sink, chunkTargetBytes int) *SpillWriter {
	return &SpillWriter{sink: sink, chunkTarget: chunkTargetBytes}
}

// BeginRun starts a new run. Call once before the first WriteEntry of a
// spill; EndRun must follow once all of that spill's entries have been
// written.
func (w *SpillWriter) BeginRun() { w.runStart = w.offset }

// WriteEntry appends one MemTable entry to the run in progress, under
// bindingIndex. Entries must be supplied in ascending (bindingIndex, key)
// order within a run; WriteEntry does not itself sort.
func (w *SpillWriter) WriteEntry(bindingIndex uint32, e *memEntry) error {
	if w.haveChunk && bindingIndex != w.curBind {
		if err := w.flushChunk(); err != nil {
			return err
		}
	}
	if !w.haveChunk {
		w.curBind = bindingIndex
		w.haveChunk = true
	}

	w.curBuf = appendUvarint(w.curBuf, uint64(len(e.key)))
	w.curBuf = append(w.curBuf, e.key...)

	var meta byte
	if e.front {
		meta |= 0x1
	}
	if e.deleted {
		meta |= 0x2
	}
	w.curBuf = append(w.curBuf, meta)
	w.curBuf = doc.AppendTranscoded(w.curBuf, e.doc)
	w.curCount++

	if len(w.curBuf) >= w.chunkTarget {
		return w.flushChunk()
	}
	return nil
}

func (w *SpillWriter) flushChunk() error {
	if !w.haveChunk || w.curCount == 0 {
		w.haveChunk = false
		w.curBuf = w.curBuf[:0]
		w.curCount = 0
		return nil
	}

	var hdr [16]byte
	binary.BigEndian.PutUint32(hdr[0:4], w.curBind)
	binary.BigEndian.PutUint32(hdr[4:8], w.curCount)
	binary.BigEndian.PutUint64(hdr[8:16], uint64(len(w.curBuf)))

	var sum = highwayhash.Sum64(w.curBuf, checksumKey[:])
	var sumBuf [8]byte
	binary.BigEndian.PutUint64(sumBuf[:], sum)

	for _, b := range [][]byte{hdr[:], w.curBuf, sumBuf[:]} {
		var n, err = w.sink.Write(b)
		if err != nil {
			return &SpillIo{Detail: err.Error()}
		}
		w.offset += int64(n)
	}

	w.haveChunk = false
	w.curBuf = w.curBuf[:0]
	w.curCount = 0
	return nil
}

// EndRun flushes any buffered chunk and records the run's byte range.
func (w *SpillWriter) EndRun() error {
	if err := w.flushChunk(); err != nil {
		return err
	}
	w.runs = append(w.runs, runRange{start: w.runStart, end: w.offset})
	return nil
}

// Finish writes the trailer (run count, run ranges, magic, version) and
// returns the total number of bytes written to the sink, which the
// caller must retain to later construct a SpillDrainer.
func (w *SpillWriter) Finish() (int64, error) {
	var trailerStart = w.offset
	var buf []byte

	for _, r := range w.runs {
		var tmp [16]byte
		binary.BigEndian.PutUint64(tmp[0:8], uint64(r.start))
		binary.BigEndian.PutUint64(tmp[8:16], uint64(r.end))
		buf = append(buf, tmp[:]...)
	}
	var runCountBuf [4]byte
	binary.BigEndian.PutUint32(runCountBuf[:], uint32(len(w.runs)))
	buf = append(buf, runCountBuf[:]...)

	var trailerLen = int64(len(buf)) + 16 // + fixed footer below.

	var footer [16]byte
	binary.BigEndian.PutUint32(footer[0:4], trailerMagic)
	binary.BigEndian.PutUint16(footer[4:6], trailerVersion)
	binary.BigEndian.PutUint16(footer[6:8], 0) // reserved
	binary.BigEndian.PutUint64(footer[8:16], uint64(trailerLen))
	buf = append(buf, footer[:]...)

	var n, err = w.sink.Write(buf)
	if err != nil {
		return 0, &SpillIo{Detail: err.Error()}
	}
	w.offset += int64(n)
	_ = trailerStart
	return w.offset, nil
}

// chunkEntry is one decoded spill entry, tagged with the run it was read
// from (for deterministic tie-break ordering during the k-way merge).
type chunkEntry struct {
	run     int
	binding uint32
	key     []byte
	front   bool
	deleted bool
	doc     *doc.Doc
}

// runCursor streams chunkEntries out of a single run, one chunk at a
// time, tracking its current byte position for the next ReadAt.
type runCursor struct {
	sink      Sink
	run       int
	pos       int64
	end       int64
	pending   []chunkEntry
	pendingAt int
	arena     *doc.Arena
}

func newRunCursor(sink Sink, run int, r runRange, arena *doc.Arena) *runCursor {
	return &runCursor{sink: sink, run: run, pos: r.start, end: r.end, arena: arena}
}

// next returns the cursor's next entry, reading and validating a new
// chunk from the sink when the current one is exhausted. Returns
// (nil, nil) once the run is exhausted.
func (c *runCursor) next() (*chunkEntry, error) {
	for c.pendingAt >= len(c.pending) {
		if c.pos >= c.end {
			return nil, nil
		}
		if err := c.readChunk(); err != nil {
			return nil, err
		}
	}
	var e = &c.pending[c.pendingAt]
	c.pendingAt++
	return e, nil
}

func (c *runCursor) readChunk() error {
	if c.pos+16 > c.end {
		return &SpillCorrupt{Run: c.run, Offset: c.pos}
	}
	var hdr [16]byte
	if _, err := c.sink.ReadAt(hdr[:], c.pos); err != nil {
		return &SpillIo{Detail: err.Error()}
	}
	var bindingIndex = binary.BigEndian.Uint32(hdr[0:4])
	var entryCount = binary.BigEndian.Uint32(hdr[4:8])
	var byteLength = binary.BigEndian.Uint64(hdr[8:16])

	var payloadStart = c.pos + 16
	if payloadStart+int64(byteLength)+8 > c.end {
		return &SpillCorrupt{Run: c.run, Offset: c.pos}
	}

	var payload = make([]byte, byteLength)
	if _, err := c.sink.ReadAt(payload, payloadStart); err != nil {
		return &SpillIo{Detail: err.Error()}
	}

	var sumBuf [8]byte
	if _, err := c.sink.ReadAt(sumBuf[:], payloadStart+int64(byteLength)); err != nil {
		return &SpillIo{Detail: err.Error()}
	}
	var wantSum = binary.BigEndian.Uint64(sumBuf[:])
	if highwayhash.Sum64(payload, checksumKey[:]) != wantSum {
		return &SpillCorrupt{Run: c.run, Offset: c.pos}
	}

	var entries, err = decodeChunkEntries(payload, int(entryCount), c.run, bindingIndex, c.arena)
	if err != nil {
		return err
	}
	c.pending = entries
	c.pendingAt = 0
	c.pos = payloadStart + int64(byteLength) + 8
	return nil
}

func decodeChunkEntries(payload []byte, count int, run int, bindingIndex uint32, arena *doc.Arena) ([]chunkEntry, error) {
	var out = make([]chunkEntry, 0, count)
	var off int
	for i := 0; i < count; i++ {
		if off >= len(payload) {
			return nil, &SpillCorrupt{Run: run, Offset: int64(off)}
		}
		var keyLen, n = binary.Uvarint(payload[off:])
		if n <= 0 {
			return nil, &SpillCorrupt{Run: run, Offset: int64(off)}
		}
		off += n
		if off+int(keyLen) > len(payload) {
			return nil, &SpillCorrupt{Run: run, Offset: int64(off)}
		}
		var key = append([]byte(nil), payload[off:off+int(keyLen)]...)
		off += int(keyLen)

		if off >= len(payload) {
			return nil, &SpillCorrupt{Run: run, Offset: int64(off)}
		}
		var meta = payload[off]
		off++

		var d, consumed, err = doc.ReadTranscoded(payload[off:], arena)
		if err != nil {
			return nil, &SpillCorrupt{Run: run, Offset: int64(off)}
		}
		off += consumed

		out = append(out, chunkEntry{
			run:     run,
			binding: bindingIndex,
			key:     key,
			front:   meta&0x1 != 0,
			deleted: meta&0x2 != 0,
			doc:     d,
		})
	}
	return out, nil
}

// heapItem is one runCursor's current head entry, ordered for the
// k-way merge's min-heap.
type heapItem struct {
	entry  *chunkEntry
	cursor *runCursor
}

type entryHeap []*heapItem

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	var a, b = h[i].entry, h[j].entry
	if a.binding != b.binding {
		return a.binding < b.binding
	}
	if c := compareBytesAsc(a.key, b.key); c != 0 {
		return c < 0
	}
	// Deterministic tie-break on equal keys: run index, so that equal
	// keys drawn from multiple runs are reduced in run-insertion order
	// (spec's associativity note on `append`'s order-sensitivity).
	return a.run < b.run
}
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(*heapItem)) }
func (h *entryHeap) Pop() interface{} {
	var old = *h
	var n = len(old)
	var item = old[n-1]
	*h = old[:n-1]
	return item
}

func compareBytesAsc(a, b []byte) int {
	var n = len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

// SpillDrainer performs the k-way merge over every run a SpillWriter
// produced, reducing equal-keyed entries across runs with the owning
// binding's Reducer and yielding one fully-reduced drainedEntry per
// distinct (binding, key).
type SpillDrainer struct {
	sink     Sink
	bindings []*bindingState
	posOf    map[uint32]int
	arena    *doc.Arena
	cursors  []*runCursor
	h        entryHeap
}

// NewSpillDrainer opens every run recorded in the sink's trailer
// (located via totalSize, the byte count SpillWriter.Finish returned)
// and prepares to merge them. bindings is keyed by its own slice
// position, but spilled entries carry a binding's caller-supplied
// Binding.Index (spec allows sparse/non-contiguous indices), so this
// builds a reverse lookup the same way Combiner's byIndex does, and
// translates every chunkEntry.binding back to a slice position before
// returning a drainedEntry -- keeping its `binding` field meaning the
// same thing (a position into Combiner.bindings) whether it came from
// the MemTable drain path or this one.
func NewSpillDrainer(sink Sink, totalSize int64, bindings []*bindingState, arena *doc.Arena) (*SpillDrainer, error) {
	var runs, err = readTrailer(sink, totalSize)
	if err != nil {
		return nil, err
	}

	var posOf = make(map[uint32]int, len(bindings))
	for i, bs := range bindings {
		posOf[bs.spec.Index] = i
	}

	var d = &SpillDrainer{sink: sink, bindings: bindings, posOf: posOf, arena: arena}
	d.cursors = make([]*runCursor, len(runs))
	for i, r := range runs {
		d.cursors[i] = newRunCursor(sink, i, r, arena)
	}

	heap.Init(&d.h)
	for _, c := range d.cursors {
		if err := d.push(c); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *SpillDrainer) push(c *runCursor) error {
	var e, err = c.next()
	if err != nil {
		return err
	}
	if e == nil {
		return nil
	}
	heap.Push(&d.h, &heapItem{entry: e, cursor: c})
	return nil
}

func readTrailer(sink Sink, totalSize int64) ([]runRange, error) {
	if totalSize < 16 {
		return nil, &SpillCorrupt{Run: -1, Offset: 0}
	}
	var footer [16]byte
	if _, err := sink.ReadAt(footer[:], totalSize-16); err != nil {
		return nil, &SpillIo{Detail: err.Error()}
	}
	var magic = binary.BigEndian.Uint32(footer[0:4])
	var version = binary.BigEndian.Uint16(footer[4:6])
	var trailerLen = binary.BigEndian.Uint64(footer[8:16])
	if magic != trailerMagic {
		return nil, &SpillCorrupt{Run: -1, Offset: totalSize - 16}
	}
	if version != trailerVersion {
		return nil, fmt.Errorf("spill trailer version %d unsupported (writer/reader mismatch)", version)
	}

	var trailerStart = totalSize - int64(trailerLen)
	if trailerStart < 0 {
		return nil, &SpillCorrupt{Run: -1, Offset: totalSize - 16}
	}
	var buf = make([]byte, int64(trailerLen)-16)
	if len(buf) > 0 {
		if _, err := sink.ReadAt(buf, trailerStart); err != nil {
			return nil, &SpillIo{Detail: err.Error()}
		}
	}

	if len(buf) < 4 {
		return nil, &SpillCorrupt{Run: -1, Offset: trailerStart}
	}
	var runCount = binary.BigEndian.Uint32(buf[len(buf)-4:])
	var ranges = buf[:len(buf)-4]
	if int64(len(ranges)) != int64(runCount)*16 {
		return nil, &SpillCorrupt{Run: -1, Offset: trailerStart}
	}

	var runs = make([]runRange, runCount)
	for i := range runs {
		var off = i * 16
		runs[i] = runRange{
			start: int64(binary.BigEndian.Uint64(ranges[off : off+8])),
			end:   int64(binary.BigEndian.Uint64(ranges[off+8 : off+16])),
		}
	}
	return runs, nil
}

// Next pops the next distinct (binding, key) group from the merge,
// reducing every run's entry for that group together in run-index
// order, and returns it as a drainedEntry. Returns (nil, nil) once
// every run is exhausted.
func (d *SpillDrainer) Next() (*drainedEntry, error) {
	if d.h.Len() == 0 {
		return nil, nil
	}

	var top = heap.Pop(&d.h).(*heapItem)
	var binding = top.entry.binding
	var key = top.entry.key
	var acc *doc.Doc = top.entry.doc
	var front = top.entry.front
	var deleted = top.entry.deleted

	if err := d.push(top.cursor); err != nil {
		return nil, err
	}

	var pos, ok = d.posOf[binding]
	if !ok {
		return nil, fmt.Errorf("spill entry references unknown binding index %d", binding)
	}
	var bs = d.bindings[pos]

	for d.h.Len() > 0 && d.h[0].entry.binding == binding && compareBytesAsc(d.h[0].entry.key, key) == 0 {
		var next = heap.Pop(&d.h).(*heapItem)

		// Re-derive the annotation Index by validating the incoming
		// (rhs) side, exactly as Combiner.Add does for an in-memory
		// reduction: the transcoded spill format preserves Doc values
		// but not validation outcomes, so this is the only place left
		// that still knows which `reduce` strategy applies where.
		var outcomes, verr = bs.schema.Validate(next.entry.doc)
		if verr != nil {
			return nil, fmt.Errorf("re-validating spilled entry for binding %d: %w", binding, verr)
		}
		var ix = reduce.BuildIndex(outcomes)

		var reduced, err = reduce.Reduce(d.arena, acc, next.entry.doc, ix, "")
		if err != nil {
			return nil, err
		}
		acc = reduced
		// front was set by the first entry popped for this key and
		// never changes thereafter.
		deleted = next.entry.deleted

		if err := d.push(next.cursor); err != nil {
			return nil, err
		}
	}

	return &drainedEntry{
		binding: pos,
		entry:   &memEntry{key: key, doc: acc, front: front, deleted: deleted},
	}, nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	var n = binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}
