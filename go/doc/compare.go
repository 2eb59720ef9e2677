package doc

import "bytes"

// Ordering is the result of comparing two Docs.
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

// typeRank returns a Doc's position in the total type order:
// Null < False < True < Numeric < String < Bytes < Array < Object.
func typeRank(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindFalse:
		return 1
	case KindTrue:
		return 2
	case KindPosInt, KindNegInt, KindFloat:
		return 3
	case KindString:
		return 4
	case KindBytes:
		return 5
	case KindArray:
		return 6
	case KindObject:
		return 7
	default:
		panic("unreachable")
	}
}

// Compare imposes a total order over Docs. Within Numeric, comparison is
// by mathematical value across PosInt/NegInt/Float -- `PosInt 3` and
// `Float 3.0` compare Equal, though each Doc keeps its own tag. NaN sorts greater than
// every other numeric value, and equal to itself, so that Compare remains
// a total order usable for sorting.
func Compare(a, b *Doc) Ordering {
	if ra, rb := typeRank(a.kind), typeRank(b.kind); ra != rb {
		return rankOrder(ra, rb)
	}

	switch a.kind {
	case KindNull, KindFalse, KindTrue:
		return Equal
	case KindPosInt, KindNegInt, KindFloat:
		return compareNumeric(a, b)
	case KindString:
		return compareBytes([]byte(a.str), []byte(b.str))
	case KindBytes:
		return compareBytes(a.bytes, b.bytes)
	case KindArray:
		return compareArrays(a.arr, b.arr)
	case KindObject:
		return compareObjects(a.obj, b.obj)
	default:
		panic("unreachable")
	}
}

func rankOrder(ra, rb int) Ordering {
	if ra < rb {
		return Less
	}
	return Greater
}

func compareBytes(a, b []byte) Ordering {
	switch bytes.Compare(a, b) {
	case -1:
		return Less
	case 1:
		return Greater
	default:
		return Equal
	}
}

func compareArrays(a, b []*Doc) Ordering {
	var n = len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if o := Compare(a[i], b[i]); o != Equal {
			return o
		}
	}
	return compareInts(len(a), len(b))
}

func compareObjects(a, b []Field) Ordering {
	var i, j int
	for i < len(a) && j < len(b) {
		if a[i].Name != b[j].Name {
			if a[i].Name < b[j].Name {
				return Less
			}
			return Greater
		}
		if o := Compare(a[i].Value, b[j].Value); o != Equal {
			return o
		}
		i++
		j++
	}
	return compareInts(len(a)-i, len(b)-j)
}

func compareInts(a, b int) Ordering {
	if a < b {
		return Less
	} else if a > b {
		return Greater
	}
	return Equal
}

// compareNumeric compares two Docs known to be PosInt, NegInt, or Float by
// mathematical value. NaN is treated as greater than every other value,
// including +Inf, and equal only to another NaN.
func compareNumeric(a, b *Doc) Ordering {
	var af, aIsNaN = numericFloat(a)
	var bf, bIsNaN = numericFloat(b)

	if aIsNaN && bIsNaN {
		return Equal
	} else if aIsNaN {
		return Greater
	} else if bIsNaN {
		return Less
	}

	// Prefer exact integer comparison when both sides are integral, to
	// avoid float64 precision loss for large magnitudes.
	if a.kind != KindFloat && b.kind != KindFloat {
		return compareIntegral(a, b)
	}

	if af < bf {
		return Less
	} else if af > bf {
		return Greater
	}
	return Equal
}

func numericFloat(d *Doc) (v float64, isNaN bool) {
	v = d.Number()
	return v, v != v
}

func compareIntegral(a, b *Doc) Ordering {
	// Both are PosInt or NegInt (never Float, by caller's contract).
	switch {
	case a.kind == KindPosInt && b.kind == KindPosInt:
		return compareUint64(a.posInt, b.posInt)
	case a.kind == KindNegInt && b.kind == KindNegInt:
		return compareInt64(a.negInt, b.negInt)
	case a.kind == KindPosInt && b.kind == KindNegInt:
		return Greater // any non-negative integer exceeds any negative one.
	default: // NegInt, PosInt
		return Less
	}
}

func compareUint64(a, b uint64) Ordering {
	if a < b {
		return Less
	} else if a > b {
		return Greater
	}
	return Equal
}

func compareInt64(a, b int64) Ordering {
	if a < b {
		return Less
	} else if a > b {
		return Greater
	}
	return Equal
}

// DeepEqual reports whether Compare(a, b) == Equal.
func DeepEqual(a, b *Doc) bool { return Compare(a, b) == Equal }
