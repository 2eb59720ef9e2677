// Package combiner implements the top-level Combiner: a single-threaded
// state machine that accepts a sequence of document Adds per binding,
// reduces them by composite key, spills to a caller-supplied Sink under
// memory pressure, and emits a sorted, fully-reduced stream on Drain.
package combiner

import (
	"fmt"
	"strconv"

	"github.com/estuary/flow-combine/go/doc"
	"github.com/estuary/flow-combine/go/ops"
	"github.com/estuary/flow-combine/go/reduce"
	"github.com/sirupsen/logrus"
)

type sessionState int

const (
	stateOpen sessionState = iota
	stateDraining
	stateDone
)

// Config holds the Combiner's memory/spill tuning, set once at Open.
// Spec deliberately leaves these as caller-supplied configuration
// rather than dictating fixed thresholds.
type Config struct {
	// SpillThresholdBytes is the Arena occupancy, in bytes, past which
	// the Combiner spills its MemTable before the next Add returns.
	// Zero disables spilling: the whole session is then held in memory.
	SpillThresholdBytes int
	// ChunkTargetBytes bounds one spill chunk's approximate size.
	ChunkTargetBytes int
	Logger           ops.Logger
}

// DefaultConfig returns a 64MiB spill threshold, a 1MiB chunk target,
// and a Logger that forwards to the global logrus logger.
func DefaultConfig() Config {
	return Config{
		SpillThresholdBytes: 64 << 20,
		ChunkTargetBytes:    1 << 20,
		Logger:              ops.StdLogger(),
	}
}

// DrainedDoc is one surviving entry as emitted by Drain, matching
// spec's Drain response shape.
type DrainedDoc struct {
	Binding      uint32
	KeyPacked    []byte
	ValuesPacked []byte
	DocBytes     []byte
	Front        bool
	Deleted      bool
}

// Combiner is opened with a list of Binding specs and then driven
// through Open -> (Add)* [interleaved spill] -> Draining -> (emit)* ->
// Done. No transition leads back from Draining or Done.
type Combiner struct {
	cfg      Config
	arena    *doc.Arena
	bindings []*bindingState
	byIndex  map[uint32]int
	metrics  []bindingMetrics
	mem      *memTable
	sink     Sink
	writer   *SpillWriter
	spilled  bool
	spillLen int64

	st     sessionState
	drain  func() (*DrainedDoc, error)
}

// Open compiles every Binding (building its schema, extractor, and
// UUID pointer) and returns a ready Combiner. sink is only touched if
// the session ever crosses cfg.SpillThresholdBytes; a nil sink is fine
// for sessions known to fit in memory.
func Open(bindings []Binding, sink Sink, cfg Config) (*Combiner, error) {
	if cfg.Logger == nil {
		cfg.Logger = ops.StdLogger()
	}

	var states = make([]*bindingState, len(bindings))
	var metrics = make([]bindingMetrics, len(bindings))
	var byIndex = make(map[uint32]int, len(bindings))

	for i, b := range bindings {
		var bs, err = compileBinding(b)
		if err != nil {
			return nil, err
		}
		states[i] = bs
		metrics[i] = newBindingMetrics(strconv.FormatUint(uint64(b.Index), 10))
		if _, dup := byIndex[b.Index]; dup {
			return nil, fmt.Errorf("combiner: duplicate binding index %d", b.Index)
		}
		byIndex[b.Index] = i
	}

	var arena = doc.NewArena()
	return &Combiner{
		cfg:      cfg,
		arena:    arena,
		bindings: states,
		byIndex:  byIndex,
		metrics:  metrics,
		mem:      newMemTable(arena, states),
		sink:     sink,
		st:       stateOpen,
	}, nil
}

// Add ingests one document for bindingIndex. front marks the document
// as the previously-committed state for its key (the Reducer's lhs
// seed) rather than a newly arriving right-hand side. A validation,
// parse, or UUID failure leaves the MemTable unchanged and returns the
// error; the caller decides whether to continue with the next Add.
func (c *Combiner) Add(bindingIndex uint32, docBytes []byte, front bool) error {
	if c.st != stateOpen {
		return fmt.Errorf("combiner: Add called outside the Open state")
	}
	var bi, ok = c.byIndex[bindingIndex]
	if !ok {
		return fmt.Errorf("combiner: unknown binding index %d", bindingIndex)
	}
	var bs = c.bindings[bi]
	var m = &c.metrics[bi]

	if bs.uuidPtr != nil {
		var ack, err = inspectUUID(docBytes, bs.uuidPtr.Tokens, bs.spec.UUIDPointer)
		if err != nil {
			return err
		}
		if ack {
			m.ackDropped.Inc()
			return nil
		}
		if docBytes, err = substituteUUID(docBytes, bs.uuidPtr.Tokens); err != nil {
			return fmt.Errorf("substituting UUID placeholder: %w", err)
		}
	}

	var d, perr = doc.FromJSON(docBytes, c.arena)
	if perr != nil {
		return perr
	}

	var outcomes, verr = bs.schema.Validate(d)
	if verr != nil {
		return verr
	}
	var ix = reduce.BuildIndex(outcomes)

	if err := c.mem.add(bi, d, front, ix); err != nil {
		return err
	}

	m.addDocs.Inc()
	m.addBytes.Add(float64(len(docBytes)))

	if c.cfg.SpillThresholdBytes > 0 && c.arena.Occupied() >= c.cfg.SpillThresholdBytes {
		return c.spill()
	}
	return nil
}

// spill serializes the current MemTable as one run and clears it,
// transparent to the caller of Add. It requires a Sink: a Combiner
// opened with a nil sink and a nonzero SpillThresholdBytes will fail
// the Add that crosses the threshold.
func (c *Combiner) spill() error {
	if c.sink == nil {
		return fmt.Errorf("combiner: spill threshold crossed but no Sink was configured")
	}
	if c.writer == nil {
		c.writer = NewSpillWriter(c.sink, c.cfg.ChunkTargetBytes)
	}

	c.writer.BeginRun()
	for bi := range c.bindings {
		for _, ks := range c.mem.sortedKeys(bi) {
			var idx = c.bindings[bi].spec.Index
			if err := c.writer.WriteEntry(idx, c.mem.entries[bi][ks]); err != nil {
				return err
			}
		}
	}
	if err := c.writer.EndRun(); err != nil {
		return err
	}

	c.mem.clear()
	c.arena.Reset()
	c.spilled = true

	for bi := range c.bindings {
		c.metrics[bi].spillRuns.Inc()
	}
	c.cfg.Logger.Log(logrus.DebugLevel, logrus.Fields{"component": "combiner"}, "spilled MemTable to a new run")
	return nil
}

// Drain transitions the Combiner into Draining: no further Adds are
// accepted from this point on. It returns a function that yields one
// DrainedDoc per call, in ascending (binding, key) order, until it
// returns (nil, nil) once every entry has been emitted.
func (c *Combiner) Drain() (func() (*DrainedDoc, error), error) {
	if c.st != stateOpen {
		return nil, fmt.Errorf("combiner: Drain called more than once, or before Open completed")
	}
	c.st = stateDraining

	if !c.spilled {
		var entries = c.mem.drainSorted()
		var i int
		c.drain = func() (*DrainedDoc, error) {
			if i >= len(entries) {
				c.st = stateDone
				return nil, nil
			}
			var e = entries[i]
			i++
			return c.render(e)
		}
		return c.drain, nil
	}

	// Spill whatever remains in memory so the drainer only ever has to
	// merge finished runs, never runs plus a live MemTable.
	if !c.mem.empty() {
		if err := c.spill(); err != nil {
			return nil, err
		}
	}

	var total, ferr = c.writer.Finish()
	if ferr != nil {
		return nil, ferr
	}
	c.spillLen = total

	var drainer, derr = NewSpillDrainer(c.sink, c.spillLen, c.bindings, c.arena)
	if derr != nil {
		return nil, derr
	}

	c.drain = func() (*DrainedDoc, error) {
		var e, err = drainer.Next()
		if err != nil {
			return nil, err
		}
		if e == nil {
			c.st = stateDone
			return nil, nil
		}
		return c.render(*e)
	}
	return c.drain, nil
}

func (c *Combiner) render(e drainedEntry) (*DrainedDoc, error) {
	var bs = c.bindings[e.binding]
	var m = &c.metrics[e.binding]

	var keyPacked = bs.extractor.Key(e.entry.doc)
	var valuesPacked = bs.extractor.Values(e.entry.doc)

	var out = applySerialization(c.arena, e.entry.doc, bs.spec.Serialization)
	var docBytes = doc.ToJSON(out)

	m.drainDocs.Inc()
	m.drainBytes.Add(float64(len(docBytes)))

	return &DrainedDoc{
		Binding:      bs.spec.Index,
		KeyPacked:    keyPacked,
		ValuesPacked: valuesPacked,
		DocBytes:     docBytes,
		Front:        e.entry.front,
		Deleted:      e.entry.deleted,
	}, nil
}
