package reduce

import (
	"sort"
	"strconv"

	"github.com/estuary/flow-combine/go/pointer"
)

// mustParseAll parses a list of JSON pointer strings known to have been
// validated already (schema compilation rejects a malformed `reduce.key`
// pointer -- at Combiner Open time, or for a $ref target when it is first
// resolved during validation -- before any document reaches Reduce).
func mustParseAll(ptrs []string) []pointer.Pointer {
	var out = make([]pointer.Pointer, len(ptrs))
	for i, s := range ptrs {
		out[i] = pointer.MustNew(s)
	}
	return out
}

func sortStrings(s []string) { sort.Strings(s) }

func itoa(i int) string { return strconv.Itoa(i) }
