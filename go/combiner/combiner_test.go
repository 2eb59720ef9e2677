package combiner

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.gazette.dev/core/message"
)

func bindingSum() Binding {
	return Binding{
		Index:       0,
		KeyPointers: []string{"/key"},
		Schema: json.RawMessage(`{
			"type": "object",
			"reduce": "merge",
			"properties": {
				"key": {"type": "string"},
				"n": {"type": "integer", "reduce": "sum"}
			}
		}`),
	}
}

func drainAll(t *testing.T, c *Combiner) []*DrainedDoc {
	t.Helper()
	var next, err = c.Drain()
	require.NoError(t, err)

	var out []*DrainedDoc
	for {
		var d, err = next()
		require.NoError(t, err)
		if d == nil {
			break
		}
		out = append(out, d)
	}
	return out
}

func TestEmptySessionDrainsNothing(t *testing.T) {
	var c, err = Open([]Binding{bindingSum()}, nil, DefaultConfig())
	require.NoError(t, err)
	require.Empty(t, drainAll(t, c))
}

// Scenario A (abbreviated): minimize/maximize with composite key,
// driven through the full Combiner rather than the reduce package
// directly.
func TestScenarioA_MinimizeMaximizeWithCompositeKey(t *testing.T) {
	var b = Binding{
		Index:       0,
		KeyPointers: []string{"/key/1", "/key/0"},
		Schema: json.RawMessage(`{
			"type": "object",
			"reduce": "merge",
			"properties": {
				"key": {"type": "array"},
				"min": {"type": "integer", "reduce": "minimize"},
				"max": {"type": "number", "reduce": "maximize"}
			}
		}`),
	}
	var c, err = Open([]Binding{b}, nil, DefaultConfig())
	require.NoError(t, err)

	var adds = []string{
		`{"key":["a","one"],   "min":3, "max":3.3}`,
		`{"key":["a","two"],   "min":4, "max":4.4}`,
		`{"key":["a","two"],   "min":2, "max":2.2}`,
		`{"key":["a","one"],   "min":5, "max":5.5}`,
		`{"key":["a","three"], "min":6, "max":6.6}`,
	}
	for _, raw := range adds {
		require.NoError(t, c.Add(0, []byte(raw), false))
	}

	var out = drainAll(t, c)
	require.Len(t, out, 3)

	// Drain order is ascending packed key = (key[1], key[0]): "one" < "three" < "two".
	var one, three, two = out[0], out[1], out[2]
	require.Contains(t, string(one.DocBytes), `"min":3`)
	require.Contains(t, string(one.DocBytes), `"max":5.5`)
	require.Contains(t, string(three.DocBytes), `"min":6`)
	require.Contains(t, string(two.DocBytes), `"min":2`)
	require.Contains(t, string(two.DocBytes), `"max":4.4`)
}

// Scenario B: a document whose configured UUID pointer carries an ACK
// flag is silently dropped.
func TestScenarioB_ACKDrop(t *testing.T) {
	var b = bindingSum()
	b.UUIDPointer = "/uuid"
	var c, err = Open([]Binding{b}, nil, DefaultConfig())
	require.NoError(t, err)

	var ackID = message.BuildUUID(message.ProducerID{}, message.NewClock(time.Now()), message.Flag_ACK_TXN)
	var raw = fmt.Sprintf(`{"uuid":%q,"key":"k","n":1}`, ackID.String())
	require.NoError(t, c.Add(0, []byte(raw), false))

	require.Empty(t, drainAll(t, c))
}

// A non-ACK UUID is substituted with the placeholder in the drained
// output, rather than left as whatever value the producer supplied.
func TestUUIDPlaceholderSubstitution(t *testing.T) {
	var b = bindingSum()
	b.UUIDPointer = "/uuid"
	var c, err = Open([]Binding{b}, nil, DefaultConfig())
	require.NoError(t, err)

	var id = message.BuildUUID(message.ProducerID{}, message.NewClock(time.Now()), message.Flag_CONTINUE_TXN)
	var raw = fmt.Sprintf(`{"uuid":%q,"key":"k","n":1}`, id.String())
	require.NoError(t, c.Add(0, []byte(raw), false))

	var out = drainAll(t, c)
	require.Len(t, out, 1)
	require.Contains(t, string(out[0].DocBytes), string(uuidPlaceholder))
}

// Scenario C: spilling partway through a session is transparent to the
// final drained result -- it must match a run with spilling disabled.
func TestScenarioC_SpillRoundTrip(t *testing.T) {
	var keys = []string{"k0", "k1", "k2", "k3", "k4"}
	var want = map[string]int{}

	var build = func(cfg Config, sink Sink) *Combiner {
		var c, err = Open([]Binding{bindingSum()}, sink, cfg)
		require.NoError(t, err)
		return c
	}

	var spilled = build(Config{SpillThresholdBytes: 200, ChunkTargetBytes: 256, Logger: DefaultConfig().Logger}, NewMemSink())
	var unspilled = build(Config{Logger: DefaultConfig().Logger}, nil)

	for i := 0; i < 500; i++ {
		var k = keys[i%len(keys)]
		var n = i%7 + 1
		want[k] += n

		var raw = fmt.Sprintf(`{"key":%q,"n":%d}`, k, n)
		require.NoError(t, spilled.Add(0, []byte(raw), false))
		require.NoError(t, unspilled.Add(0, []byte(raw), false))
	}

	var spilledOut = drainAll(t, spilled)
	var unspilledOut = drainAll(t, unspilled)
	require.Len(t, spilledOut, len(keys))
	require.Len(t, unspilledOut, len(keys))

	var gotSpilled = map[string]int{}
	for _, d := range spilledOut {
		var v struct {
			Key string `json:"key"`
			N   int    `json:"n"`
		}
		require.NoError(t, json.Unmarshal(d.DocBytes, &v))
		gotSpilled[v.Key] = v.N
	}
	var gotUnspilled = map[string]int{}
	for _, d := range unspilledOut {
		var v struct {
			Key string `json:"key"`
			N   int    `json:"n"`
		}
		require.NoError(t, json.Unmarshal(d.DocBytes, &v))
		gotUnspilled[v.Key] = v.N
	}

	require.Equal(t, want, gotSpilled)
	require.Equal(t, want, gotUnspilled)
}

// Scenario D: a validation failure partway through a sequence of Adds
// for the same key leaves the MemTable untouched; later valid Adds
// continue folding into the state from before the failure.
func TestScenarioD_ValidationFailurePreservesState(t *testing.T) {
	var b = Binding{
		Index:       0,
		KeyPointers: []string{"/key"},
		Schema: json.RawMessage(`{
			"type": "object",
			"reduce": "merge",
			"required": ["n"],
			"properties": {
				"key": {"type": "string"},
				"n": {"type": "integer", "reduce": "sum"}
			}
		}`),
	}
	var c, err = Open([]Binding{b}, nil, DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, c.Add(0, []byte(`{"key":"k","n":1}`), false))
	require.Error(t, c.Add(0, []byte(`{"key":"k","n":"not-a-number"}`), false))
	require.NoError(t, c.Add(0, []byte(`{"key":"k","n":2}`), false))

	var out = drainAll(t, c)
	require.Len(t, out, 1)
	require.Contains(t, string(out[0].DocBytes), `"n":3`)
}

// Scenario E: a document with a literal NUL byte in a string value is
// rejected, and drain yields nothing beyond whatever else was
// successfully added.
func TestScenarioE_NullByteRejection(t *testing.T) {
	var c, err = Open([]Binding{bindingSum()}, nil, DefaultConfig())
	require.NoError(t, err)

	var err2 = c.Add(0, []byte("{\"key\":\"\x00\",\"n\":1}"), false)
	require.Error(t, err2)

	require.Empty(t, drainAll(t, c))
}

// Scenario F: a front-flagged document seeds the reduction as the
// Reducer's lhs, rather than being folded in as an ordinary rhs Add;
// the front flag is preserved on the drained entry.
func TestScenarioF_FrontDocumentSeedsReduction(t *testing.T) {
	var c, err = Open([]Binding{bindingSum()}, nil, DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, c.Add(0, []byte(`{"key":"k","n":10}`), true))
	require.NoError(t, c.Add(0, []byte(`{"key":"k","n":1}`), false))
	require.NoError(t, c.Add(0, []byte(`{"key":"k","n":2}`), false))

	var out = drainAll(t, c)
	require.Len(t, out, 1)
	require.True(t, out[0].Front)
	require.Contains(t, string(out[0].DocBytes), `"n":13`)
}

// A non-front Add followed later by a front-flagged Add for the same
// key must not flip the entry's front bit on: front is latched by
// whichever Add reaches the key first, never by a later one.
func TestScenarioF_NonFrontThenFrontNeverFlipsFrontBit(t *testing.T) {
	var c, err = Open([]Binding{bindingSum()}, nil, DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, c.Add(0, []byte(`{"key":"k","n":1}`), false))
	require.NoError(t, c.Add(0, []byte(`{"key":"k","n":10}`), true))

	var out = drainAll(t, c)
	require.Len(t, out, 1)
	require.False(t, out[0].Front)
	require.Contains(t, string(out[0].DocBytes), `"n":11`)
}

// The same front-bit latch must hold across a spill: a key's front bit
// is decided by whichever run first carries that key into the
// SpillDrainer's k-way merge, not by whatever a later run's entry says.
func TestScenarioC_SpillPreservesFrontLatchAcrossRuns(t *testing.T) {
	var c, err = Open([]Binding{bindingSum()}, NewMemSink(),
		Config{SpillThresholdBytes: 1, ChunkTargetBytes: 256, Logger: DefaultConfig().Logger})
	require.NoError(t, err)

	require.NoError(t, c.Add(0, []byte(`{"key":"k","n":1}`), false))
	require.NoError(t, c.Add(0, []byte(`{"key":"k","n":10}`), true))

	var out = drainAll(t, c)
	require.Len(t, out, 1)
	require.False(t, out[0].Front)
	require.Contains(t, string(out[0].DocBytes), `"n":11`)
}

func TestDrainCannotBeCalledTwice(t *testing.T) {
	var c, err = Open([]Binding{bindingSum()}, nil, DefaultConfig())
	require.NoError(t, err)

	_, err = c.Drain()
	require.NoError(t, err)
	_, err = c.Drain()
	require.Error(t, err)
}

func TestAddAfterDrainFails(t *testing.T) {
	var c, err = Open([]Binding{bindingSum()}, nil, DefaultConfig())
	require.NoError(t, err)

	_, err = c.Drain()
	require.NoError(t, err)

	require.Error(t, c.Add(0, []byte(`{"key":"k","n":1}`), false))
}

func TestUnknownBindingIndexErrors(t *testing.T) {
	var c, err = Open([]Binding{bindingSum()}, nil, DefaultConfig())
	require.NoError(t, err)

	require.Error(t, c.Add(99, []byte(`{"key":"k","n":1}`), false))
}
