package reduce

import "fmt"

// ErrorKind enumerates the ways a reduction can fail, matching spec's
// ReduceError.kind vocabulary.
type ErrorKind string

const (
	SumWrongType            ErrorKind = "SumWrongType"
	MinMaxWrongType          ErrorKind = "MinMaxWrongType"
	AppendWrongType          ErrorKind = "AppendWrongType"
	MergeWrongType           ErrorKind = "MergeWrongType"
	SetWrongType             ErrorKind = "SetWrongType"
	JSONSchemaMergeWrongType ErrorKind = "JsonSchemaMergeWrongType"
	SumNumericOverflow       ErrorKind = "SumNumericOverflow"
)

// Error reports a reduction failure at a specific document location. The
// MemTable entry at that key is left untouched by the caller: Error
// carries enough to report the offending field without having mutated
// anything.
type Error struct {
	Kind     ErrorKind
	Location string
}

func (e *Error) Error() string {
	return fmt.Sprintf("reduce error %s at %s", e.Kind, e.Location)
}
