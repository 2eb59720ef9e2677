package reduce

import "github.com/estuary/flow-combine/go/schema"

// Index maps a Doc's JSON-pointer location to the annotation schema
// validation produced there, so Reduce can look up the `reduce` strategy
// that applies at each location it visits. This is a simpler substitute
// for a true lockstep iterator threading an index through the recursion:
// schema.Schema.Validate already walks the rhs document and every
// location it visits reappears, by construction, in the same shape when
// Reduce later walks lhs/rhs together, so a location-keyed map gives the
// same answer with far less bookkeeping.
type Index map[string]schema.Annotation

// BuildIndex flattens a schema.Validate outcome list into an Index.
func BuildIndex(outcomes []schema.Outcome) Index {
	var ix = make(Index, len(outcomes))
	for _, o := range outcomes {
		ix[o.Location] = o.Annotation
	}
	return ix
}

// Lookup returns the annotation recorded at loc, or a zero Annotation if
// the location wasn't visited during validation (this happens for
// locations under a permissive "additionalProperties" with no schema, or
// for a binding with no configured schema detail at all).
func (ix Index) Lookup(loc string) schema.Annotation {
	return ix[loc]
}
