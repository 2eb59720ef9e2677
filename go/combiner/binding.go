package combiner

import (
	"encoding/json"
	"fmt"

	"github.com/estuary/flow-combine/go/extract"
	"github.com/estuary/flow-combine/go/pointer"
	"github.com/estuary/flow-combine/go/schema"
)

// SerializationPolicy controls how an emitted Doc is rendered back to
// JSON bytes at Drain time. It's a caller-visible Open-time setting, not
// something the Reducer or Validator ever consult.
type SerializationPolicy int

const (
	// SerializeDefault renders full-fidelity JSON: exact integers where
	// the Doc is integral, no string truncation.
	SerializeDefault SerializationPolicy = iota
	// SerializeTruncateLongStrings caps emitted string values at
	// maxTruncatedStringLength runes, appending "..." to truncated
	// values. Intended for callers that forward drained documents into
	// a logging or preview sink where full string fidelity isn't needed
	// and could otherwise blow out message size limits.
	SerializeTruncateLongStrings
)

const maxTruncatedStringLength = 4096

// Binding describes one logical stream a Combiner combines documents
// for. Index must be unique within a single Open call and is carried
// through to every emitted entry so a caller with several bindings open
// at once can tell them apart.
type Binding struct {
	Index         uint32              `json:"index"`
	KeyPointers   []string            `json:"keyPointers"`
	FieldPointers []string            `json:"fieldPointers,omitempty"`
	Schema        json.RawMessage     `json:"schema"`
	UUIDPointer   string              `json:"uuidPointer,omitempty"`
	Serialization SerializationPolicy `json:"serialization,omitempty"`
}

// bindingState is a Binding compiled at Open time: its schema built, its
// key/field extractor constructed, and its UUID pointer (if any) parsed.
// A Combiner holds one of these per configured Binding for its whole
// session.
type bindingState struct {
	spec      Binding
	schema    *schema.Schema
	extractor *extract.Extractor
	uuidPtr   *pointer.Pointer
}

func compileBinding(b Binding) (*bindingState, error) {
	var s, err = schema.Build(b.Schema)
	if err != nil {
		return nil, fmt.Errorf("binding %d: %w", b.Index, err)
	}

	var ex *extract.Extractor
	if ex, err = extract.New(b.KeyPointers, b.FieldPointers); err != nil {
		return nil, fmt.Errorf("binding %d: %w", b.Index, err)
	}

	var bs = &bindingState{spec: b, schema: s, extractor: ex}

	if b.UUIDPointer != "" {
		var p, perr = pointer.New(b.UUIDPointer)
		if perr != nil {
			return nil, fmt.Errorf("binding %d: uuid pointer: %w", b.Index, perr)
		}
		bs.uuidPtr = &p
	}
	return bs, nil
}
