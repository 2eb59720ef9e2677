package schema

import (
	"bytes"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/estuary/flow-combine/go/doc"
)

// Outcome is one (location, annotation) pair produced by validating a Doc
// against a Schema, in document traversal order. The reduce package
// flattens Outcomes into an Index keyed by Location, so each Doc node
// the Reducer visits can look up the `reduce` strategy (if any) that
// applies there.
type Outcome struct {
	Location   string
	Annotation Annotation
}

// ValidationError reports that a Doc failed to satisfy a Schema.
type ValidationError struct {
	Location string
	Detail   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error at %s: %s", e.Location, e.Detail)
}

// Validate checks d against s, returning the ordered Outcomes for every
// schema location visited. A validation failure returns a *ValidationError
// identifying the first offending location; Outcomes accumulated before
// the failure are discarded, since a caller that receives an error must
// not treat the document as combinable.
func (s *Schema) Validate(d *doc.Doc) ([]Outcome, error) {
	var outcomes []Outcome
	if err := s.walk(s.root, d, "", &outcomes); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (s *Schema) walk(n *Node, d *doc.Doc, loc string, outcomes *[]Outcome) error {
	if n == nil {
		return nil
	}
	*outcomes = append(*outcomes, Outcome{Location: loc, Annotation: n.Annotation})

	var effective = n
	if n.Ref != "" {
		var refNode, err = s.resolveRef(n.Ref)
		if err != nil {
			return err
		}
		effective = refNode
	}

	if err := checkType(effective, d, loc); err != nil {
		return err
	}
	if err := checkEnumConst(effective, d, loc); err != nil {
		return err
	}
	if err := checkBounds(effective, d, loc); err != nil {
		return err
	}

	switch d.Kind() {
	case doc.KindObject:
		return s.walkObject(effective, d, loc, outcomes)
	case doc.KindArray:
		return s.walkArray(effective, d, loc, outcomes)
	}
	return nil
}

func (s *Schema) walkObject(n *Node, d *doc.Doc, loc string, outcomes *[]Outcome) error {
	for _, req := range n.Required {
		if d.Get(req) == nil {
			return &ValidationError{Location: loc, Detail: fmt.Sprintf("missing required property %q", req)}
		}
	}

	for _, f := range d.Fields() {
		var childLoc = loc + "/" + doc.EscapePointerToken(f.Name)

		if child, ok := n.Properties[f.Name]; ok {
			if err := s.walk(child, f.Value, childLoc, outcomes); err != nil {
				return err
			}
			continue
		}

		var matched bool
		for pattern, child := range n.PatternProperties {
			var re, err = regexp.Compile(pattern)
			if err != nil {
				continue
			}
			if re.MatchString(f.Name) {
				matched = true
				if err := s.walk(child, f.Value, childLoc, outcomes); err != nil {
					return err
				}
			}
		}
		if matched {
			continue
		}

		if n.AdditionalProperties != nil {
			if err := s.walk(n.AdditionalProperties, f.Value, childLoc, outcomes); err != nil {
				return err
			}
			continue
		}
		if n.AdditionalPropFalse {
			return &ValidationError{Location: childLoc, Detail: fmt.Sprintf("property %q not allowed", f.Name)}
		}
	}
	return nil
}

func (s *Schema) walkArray(n *Node, d *doc.Doc, loc string, outcomes *[]Outcome) error {
	if n.Items == nil {
		return nil
	}
	for i, el := range d.Array() {
		var childLoc = fmt.Sprintf("%s/%d", loc, i)
		if err := s.walk(n.Items, el, childLoc, outcomes); err != nil {
			return err
		}
	}
	return nil
}

func checkType(n *Node, d *doc.Doc, loc string) error {
	if len(n.Types) == 0 {
		return nil
	}
	for _, t := range n.Types {
		if typeMatches(t, d) {
			return nil
		}
	}
	return &ValidationError{Location: loc, Detail: fmt.Sprintf("expected type %v, got %s", n.Types, d.Kind())}
}

func typeMatches(t string, d *doc.Doc) bool {
	switch t {
	case "null":
		return d.Kind() == doc.KindNull
	case "boolean":
		return d.Kind() == doc.KindTrue || d.Kind() == doc.KindFalse
	case "integer":
		if d.Kind() == doc.KindPosInt || d.Kind() == doc.KindNegInt {
			return true
		}
		if d.Kind() == doc.KindFloat {
			var f = d.Float()
			return f == float64(int64(f))
		}
		return false
	case "number":
		return d.IsNumeric()
	case "string":
		return d.Kind() == doc.KindString
	case "array":
		return d.Kind() == doc.KindArray
	case "object":
		return d.Kind() == doc.KindObject
	default:
		return true
	}
}

func checkEnumConst(n *Node, d *doc.Doc, loc string) error {
	var rendered = doc.ToJSON(d)

	if n.Const != nil {
		if !jsonEqual(rendered, n.Const) {
			return &ValidationError{Location: loc, Detail: "value does not match const"}
		}
	}
	if len(n.Enum) > 0 {
		for _, opt := range n.Enum {
			if jsonEqual(rendered, opt) {
				return nil
			}
		}
		return &ValidationError{Location: loc, Detail: "value does not match enum"}
	}
	return nil
}

func jsonEqual(a, b []byte) bool {
	return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
}

func checkBounds(n *Node, d *doc.Doc, loc string) error {
	if d.IsNumeric() {
		var v = d.Number()
		if n.Minimum != nil && v < *n.Minimum {
			return &ValidationError{Location: loc, Detail: fmt.Sprintf("%v is less than minimum %v", v, *n.Minimum)}
		}
		if n.Maximum != nil && v > *n.Maximum {
			return &ValidationError{Location: loc, Detail: fmt.Sprintf("%v is greater than maximum %v", v, *n.Maximum)}
		}
		if n.ExclusiveMinimum != nil && v <= *n.ExclusiveMinimum {
			return &ValidationError{Location: loc, Detail: fmt.Sprintf("%v is not greater than exclusiveMinimum %v", v, *n.ExclusiveMinimum)}
		}
		if n.ExclusiveMaximum != nil && v >= *n.ExclusiveMaximum {
			return &ValidationError{Location: loc, Detail: fmt.Sprintf("%v is not less than exclusiveMaximum %v", v, *n.ExclusiveMaximum)}
		}
	}
	if d.Kind() == doc.KindString {
		var n_ = utf8.RuneCountInString(d.Str())
		if n.MinLength != nil && n_ < *n.MinLength {
			return &ValidationError{Location: loc, Detail: "string shorter than minLength"}
		}
		if n.MaxLength != nil && n_ > *n.MaxLength {
			return &ValidationError{Location: loc, Detail: "string longer than maxLength"}
		}
		if n.Pattern != "" {
			if re, err := regexp.Compile(n.Pattern); err == nil && !re.MatchString(d.Str()) {
				return &ValidationError{Location: loc, Detail: "string does not match pattern"}
			}
		}
		if err := checkFormat(n.Format, d.Str()); err != nil {
			return &ValidationError{Location: loc, Detail: err.Error()}
		}
	}
	return nil
}
