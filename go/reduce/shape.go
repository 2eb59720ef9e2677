package reduce

import (
	"sort"

	"github.com/estuary/flow-combine/go/doc"
)

// maxShapeProperties bounds how many distinct properties a unioned Shape
// may accumulate, so that repeated jsonSchemaMerge reductions across a
// long-lived key can't grow the emitted schema without bound.
const maxShapeProperties = 500

// Shape is a static approximation of the set of Docs a JSON Schema
// document accepts: which top-level types it permits, which properties
// it may have (and whether each is required), and the shape of its array
// items, if any. jsonSchemaMerge infers a Shape for each side of a
// reduction, unions the two, and reserializes the union as a JSON Schema
// document.
type Shape struct {
	Types      map[string]bool
	Properties map[string]*Shape
	Required   map[string]bool
	Items      *Shape
}

// InferShape builds a Shape by reading d as a JSON Schema document (a
// Doc produced by parsing one): its "type", "properties", "required",
// and "items" keywords. Any other keyword is ignored -- Shape only
// models enough structure to support widening via Union.
func InferShape(d *doc.Doc) *Shape {
	var s = &Shape{Types: map[string]bool{}, Properties: map[string]*Shape{}, Required: map[string]bool{}}
	if d == nil || d.Kind() != doc.KindObject {
		return s
	}

	if t := d.Get("type"); t != nil {
		switch t.Kind() {
		case doc.KindString:
			s.Types[t.Str()] = true
		case doc.KindArray:
			for _, e := range t.Array() {
				if e.Kind() == doc.KindString {
					s.Types[e.Str()] = true
				}
			}
		}
	}
	if props := d.Get("properties"); props != nil && props.Kind() == doc.KindObject {
		for _, f := range props.Fields() {
			s.Properties[f.Name] = InferShape(f.Value)
		}
	}
	if req := d.Get("required"); req != nil && req.Kind() == doc.KindArray {
		for _, e := range req.Array() {
			if e.Kind() == doc.KindString {
				s.Required[e.Str()] = true
			}
		}
	}
	if items := d.Get("items"); items != nil {
		s.Items = InferShape(items)
	}
	return s
}

// UnionShapes widens a and b: the union accepts anything either side
// accepted. A property required by the union only if it was required by
// both sides (requiring it otherwise would reject documents the other
// side's schema allowed).
func UnionShapes(a, b *Shape) *Shape {
	var out = &Shape{Types: map[string]bool{}, Properties: map[string]*Shape{}, Required: map[string]bool{}}

	for t := range a.Types {
		out.Types[t] = true
	}
	for t := range b.Types {
		out.Types[t] = true
	}

	for name, sub := range a.Properties {
		out.Properties[name] = sub
	}
	for name, sub := range b.Properties {
		if existing, ok := out.Properties[name]; ok {
			out.Properties[name] = UnionShapes(existing, sub)
		} else {
			out.Properties[name] = sub
		}
	}
	if len(out.Properties) > maxShapeProperties {
		truncateProperties(out, maxShapeProperties)
	}

	for name := range a.Required {
		if b.Required[name] {
			out.Required[name] = true
		}
	}

	if a.Items != nil && b.Items != nil {
		out.Items = UnionShapes(a.Items, b.Items)
	} else if a.Items != nil {
		out.Items = a.Items
	} else {
		out.Items = b.Items
	}
	return out
}

// truncateProperties drops properties past limit, in sorted-name order,
// so the result is deterministic. Dropped properties simply stop being
// individually modeled; they still fall under whatever
// additionalProperties policy the consumer of the emitted schema applies.
func truncateProperties(s *Shape, limit int) {
	var names = make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names[limit:] {
		delete(s.Properties, name)
		delete(s.Required, name)
	}
}

// ToSchemaDoc serializes s back into a JSON Schema document Doc.
func (s *Shape) ToSchemaDoc(arena *doc.Arena) *doc.Doc {
	var fields []doc.Field

	if len(s.Types) == 1 {
		for t := range s.Types {
			fields = append(fields, doc.Field{Name: "type", Value: doc.NewString(arena, t)})
		}
	} else if len(s.Types) > 1 {
		var names = make([]string, 0, len(s.Types))
		for t := range s.Types {
			names = append(names, t)
		}
		sort.Strings(names)
		var elems = make([]*doc.Doc, len(names))
		for i, t := range names {
			elems[i] = doc.NewString(arena, t)
		}
		fields = append(fields, doc.Field{Name: "type", Value: doc.NewArray(arena, elems)})
	}

	if len(s.Properties) > 0 {
		var propFields = make([]doc.Field, 0, len(s.Properties))
		for name, sub := range s.Properties {
			propFields = append(propFields, doc.Field{Name: name, Value: sub.ToSchemaDoc(arena)})
		}
		fields = append(fields, doc.Field{Name: "properties", Value: doc.NewObject(arena, propFields)})
	}

	if len(s.Required) > 0 {
		var names = make([]string, 0, len(s.Required))
		for name := range s.Required {
			names = append(names, name)
		}
		sort.Strings(names)
		var elems = make([]*doc.Doc, len(names))
		for i, name := range names {
			elems[i] = doc.NewString(arena, name)
		}
		fields = append(fields, doc.Field{Name: "required", Value: doc.NewArray(arena, elems)})
	}

	if s.Items != nil {
		fields = append(fields, doc.Field{Name: "items", Value: s.Items.ToSchemaDoc(arena)})
	}

	return doc.NewObject(arena, fields)
}

func reduceJSONSchemaMerge(arena *doc.Arena, lhs, rhs *doc.Doc, loc string) (*doc.Doc, error) {
	if lhs.Kind() != doc.KindObject || rhs.Kind() != doc.KindObject {
		return nil, &Error{Kind: JSONSchemaMergeWrongType, Location: loc}
	}
	var union = UnionShapes(InferShape(lhs), InferShape(rhs))
	return union.ToSchemaDoc(arena), nil
}
