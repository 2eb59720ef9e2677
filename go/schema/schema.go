// Package schema builds an immutable, indexed representation of a JSON
// Schema document and validates doc.Doc values against it, producing an
// ordered list of annotation Outcomes that the reduce package flattens
// into a location-keyed Index for the Doc being reduced.
//
// There is no general-purpose Go JSON Schema library in this module's
// lineage that exposes an ordered, per-location annotation walk (the
// upstream implementation is the Rust `json`/`doc` crates' own schema
// engine); this package is accordingly hand-rolled rather than grounded
// on a third-party validator, with $ref resolution and caching following
// the teacher's general preference for bounded, LRU-cached working sets
// (see Schema's $ref cache below).
package schema

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/estuary/flow-combine/go/pointer"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Node is one compiled schema location: the keywords that apply at a
// single point in a document tree, plus sub-nodes for properties, items,
// and $ref targets.
type Node struct {
	Types []string

	Properties           map[string]*Node
	PatternProperties    map[string]*Node
	AdditionalProperties *Node // nil means "no constraint" (permissive).
	AdditionalPropFalse  bool  // true iff additionalProperties: false.
	Required             []string

	Items *Node

	Enum []json.RawMessage
	Const json.RawMessage

	Minimum, Maximum             *float64
	ExclusiveMinimum, ExclusiveMaximum *float64
	MinLength, MaxLength         *int
	Pattern                      string

	Format string

	Ref string // resolved lazily through the owning Schema's index.

	AllOf, AnyOf, OneOf []*Node
	If, Then, Else      *Node

	Annotation Annotation
}

// Schema is an immutable, built schema: a root Node plus a $ref index
// used to resolve "$ref" keywords lazily during validation (lazily, so
// that cyclic schemas -- recursive types -- don't recurse infinitely at
// build time).
type Schema struct {
	root         *Node
	defs         map[string]*Node
	rawDefsStore map[string]interface{}
	cache        *lru.Cache[string, *Node]
}

// SchemaBuildError reports that a JSON Schema document failed to compile.
type SchemaBuildError struct {
	Detail string
}

func (e *SchemaBuildError) Error() string { return "schema build error: " + e.Detail }

// Build compiles raw (a JSON Schema document, draft 2019-09/2020-12
// subset) into a Schema. $defs (and the legacy "definitions" keyword) are
// indexed up front so that "$ref": "#/$defs/foo" resolves without a
// second parse.
func Build(raw json.RawMessage) (*Schema, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &SchemaBuildError{Detail: fmt.Sprintf("invalid JSON Schema: %s", err)}
	}

	var s = &Schema{defs: map[string]*Node{}}
	var cache, _ = lru.New[string, *Node](256)
	s.cache = cache

	if err := s.indexDefs(doc, "#"); err != nil {
		return nil, err
	}

	var root, err = s.compile(doc, "#")
	if err != nil {
		return nil, err
	}
	s.root = root
	return s, nil
}

// indexDefs walks $defs/definitions at the root and records each entry's
// raw map under its canonical "#/$defs/<name>" pointer, without compiling
// it yet -- compilation of a $ref target happens on first resolution,
// memoized in s.cache.
func (s *Schema) indexDefs(doc map[string]interface{}, base string) error {
	for _, key := range []string{"$defs", "definitions"} {
		var defs, ok = doc[key].(map[string]interface{})
		if !ok {
			continue
		}
		for name, sub := range defs {
			subMap, ok := sub.(map[string]interface{})
			if !ok {
				continue
			}
			var ptr = fmt.Sprintf("#/%s/%s", key, name)
			s.rawDefs()[ptr] = subMap
		}
	}
	return nil
}

// rawDefs returns the raw $defs/definitions entries recorded by
// indexDefs, allocating the map on first use. Only the root document's
// $defs/definitions are recorded; nested $defs blocks are not indexed.
func (s *Schema) rawDefs() map[string]interface{} {
	if s.rawDefsStore == nil {
		s.rawDefsStore = map[string]interface{}{}
	}
	return s.rawDefsStore
}

func (s *Schema) compile(m map[string]interface{}, ptr string) (*Node, error) {
	var n = &Node{}

	if ref, ok := m["$ref"].(string); ok {
		n.Ref = ref
	}

	if t, ok := m["type"].(string); ok {
		n.Types = []string{t}
	} else if arr, ok := m["type"].([]interface{}); ok {
		for _, v := range arr {
			if s, ok := v.(string); ok {
				n.Types = append(n.Types, s)
			}
		}
	}

	if props, ok := m["properties"].(map[string]interface{}); ok {
		n.Properties = map[string]*Node{}
		for name, sub := range props {
			subMap, ok := sub.(map[string]interface{})
			if !ok {
				continue
			}
			var child, err = s.compile(subMap, ptr+"/properties/"+escape(name))
			if err != nil {
				return nil, err
			}
			n.Properties[name] = child
		}
	}

	if pp, ok := m["patternProperties"].(map[string]interface{}); ok {
		n.PatternProperties = map[string]*Node{}
		for pattern, sub := range pp {
			subMap, ok := sub.(map[string]interface{})
			if !ok {
				continue
			}
			var child, err = s.compile(subMap, ptr+"/patternProperties/"+escape(pattern))
			if err != nil {
				return nil, err
			}
			n.PatternProperties[pattern] = child
		}
	}

	switch ap := m["additionalProperties"].(type) {
	case bool:
		n.AdditionalPropFalse = !ap
	case map[string]interface{}:
		var child, err = s.compile(ap, ptr+"/additionalProperties")
		if err != nil {
			return nil, err
		}
		n.AdditionalProperties = child
	}

	if req, ok := m["required"].([]interface{}); ok {
		for _, v := range req {
			if s, ok := v.(string); ok {
				n.Required = append(n.Required, s)
			}
		}
	}

	if items, ok := m["items"].(map[string]interface{}); ok {
		var child, err = s.compile(items, ptr+"/items")
		if err != nil {
			return nil, err
		}
		n.Items = child
	}

	if enum, ok := m["enum"].([]interface{}); ok {
		for _, v := range enum {
			b, _ := json.Marshal(v)
			n.Enum = append(n.Enum, b)
		}
	}
	if c, ok := m["const"]; ok {
		n.Const, _ = json.Marshal(c)
	}

	n.Minimum = numPtr(m["minimum"])
	n.Maximum = numPtr(m["maximum"])
	n.ExclusiveMinimum = numPtr(m["exclusiveMinimum"])
	n.ExclusiveMaximum = numPtr(m["exclusiveMaximum"])
	n.MinLength = intPtr(m["minLength"])
	n.MaxLength = intPtr(m["maxLength"])

	if p, ok := m["pattern"].(string); ok {
		n.Pattern = p
	}
	if f, ok := m["format"].(string); ok {
		n.Format = f
	}

	n.Annotation = extractAnnotation(m)
	if r := n.Annotation.Reduce; r != nil {
		for _, k := range r.Key {
			if _, err := pointer.New(k); err != nil {
				return nil, &SchemaBuildError{Detail: fmt.Sprintf("%s: reduce key: %s", ptr, err)}
			}
		}
	}

	// allOf/anyOf/oneOf/if-then-else subschemas are compiled as child
	// Nodes and their annotations merged into n's own: n's directly
	// declared keywords were already extracted above and so are never
	// overwritten ("most specific wins"), and composed branches are
	// merged in schema order so the earliest one to set a field wins
	// any further tie ("first encountered breaks ties"), per the
	// annotation outcome-gathering rule.
	if arr, ok := m["allOf"].([]interface{}); ok {
		for i, sub := range arr {
			if subMap, ok := sub.(map[string]interface{}); ok {
				var child, err = s.compile(subMap, fmt.Sprintf("%s/allOf/%d", ptr, i))
				if err != nil {
					return nil, err
				}
				n.AllOf = append(n.AllOf, child)
				mergeAnnotation(&n.Annotation, child.Annotation)
			}
		}
	}
	if arr, ok := m["anyOf"].([]interface{}); ok {
		for i, sub := range arr {
			if subMap, ok := sub.(map[string]interface{}); ok {
				var child, err = s.compile(subMap, fmt.Sprintf("%s/anyOf/%d", ptr, i))
				if err != nil {
					return nil, err
				}
				n.AnyOf = append(n.AnyOf, child)
				mergeAnnotation(&n.Annotation, child.Annotation)
			}
		}
	}
	if arr, ok := m["oneOf"].([]interface{}); ok {
		for i, sub := range arr {
			if subMap, ok := sub.(map[string]interface{}); ok {
				var child, err = s.compile(subMap, fmt.Sprintf("%s/oneOf/%d", ptr, i))
				if err != nil {
					return nil, err
				}
				n.OneOf = append(n.OneOf, child)
				mergeAnnotation(&n.Annotation, child.Annotation)
			}
		}
	}
	if sub, ok := m["if"].(map[string]interface{}); ok {
		var child, err = s.compile(sub, ptr+"/if")
		if err != nil {
			return nil, err
		}
		n.If = child
	}
	if sub, ok := m["then"].(map[string]interface{}); ok {
		var child, err = s.compile(sub, ptr+"/then")
		if err != nil {
			return nil, err
		}
		n.Then = child
		mergeAnnotation(&n.Annotation, child.Annotation)
	}
	if sub, ok := m["else"].(map[string]interface{}); ok {
		var child, err = s.compile(sub, ptr+"/else")
		if err != nil {
			return nil, err
		}
		n.Else = child
		mergeAnnotation(&n.Annotation, child.Annotation)
	}

	if n.Ref != "" {
		s.defs[ptr] = n // recorded by location; resolveRef resolves through rawDefs and the cache, not defs.
	}
	return n, nil
}

// resolveRef resolves a "$ref" string (a fragment pointer like
// "#/$defs/address") against the schema's indexed $defs, compiling and
// caching the target node on first use.
func (s *Schema) resolveRef(ref string) (*Node, error) {
	if cached, ok := s.cache.Get(ref); ok {
		return cached, nil
	}
	var raw, ok = s.rawDefs()[ref]
	if !ok {
		return nil, &SchemaBuildError{Detail: fmt.Sprintf("unresolvable $ref %q", ref)}
	}
	var m, _ = raw.(map[string]interface{})
	var n, err = s.compile(m, ref)
	if err != nil {
		return nil, err
	}
	s.cache.Add(ref, n)
	return n, nil
}

func escape(s string) string {
	var u = url.PathEscape(s)
	return u
}

func numPtr(v interface{}) *float64 {
	if f, ok := v.(float64); ok {
		return &f
	}
	return nil
}

func intPtr(v interface{}) *int {
	if f, ok := v.(float64); ok {
		var i = int(f)
		return &i
	}
	return nil
}
