package schema

import "encoding/json"

// Annotation is the set of Estuary-understood annotation keywords found
// at one schema location, plus the core JSON Schema annotations. This
// mirrors the Rust implementation's Annotation enum (crates/doc/src/
// annotation.rs) flattened into a single struct, since Go favors a
// struct-of-optionals over a closed sum type here.
type Annotation struct {
	Reduce        *ReduceStrategy
	Redact        bool
	HasRedact     bool
	Secret        bool
	HasSecret     bool
	Multiline     bool
	HasMultiline  bool
	Advanced      bool
	HasAdvanced   bool
	Order         *int
	Discriminator json.RawMessage
	Extensions    map[string]json.RawMessage // "x-..." / "X-..." passthrough.

	Title, Description string
	Default             json.RawMessage
	Examples            []json.RawMessage
	ReadOnly, WriteOnly bool
	ContentEncoding     string
	ContentMediaType    string
	Format              string
}

// ReduceStrategy is the parsed "reduce" annotation at a schema location.
type ReduceStrategy struct {
	Kind ReduceKind
	Key  []string // JSON pointers, for minimize/maximize/merge/set.
}

type ReduceKind string

const (
	LastWriteWins  ReduceKind = "lastWriteWins"
	FirstWriteWins ReduceKind = "firstWriteWins"
	Minimize       ReduceKind = "minimize"
	Maximize       ReduceKind = "maximize"
	Sum            ReduceKind = "sum"
	Merge          ReduceKind = "merge"
	Append         ReduceKind = "append"
	Set            ReduceKind = "set"
	JSONSchemaMerge ReduceKind = "jsonSchemaMerge"
)

func extractAnnotation(m map[string]interface{}) Annotation {
	var a Annotation

	if raw, ok := m["reduce"]; ok {
		a.Reduce = parseReduceStrategy(raw)
	}
	if v, ok := m["redact"]; ok {
		a.HasRedact = true
		a.Redact, _ = v.(bool)
		if s, ok := v.(string); ok {
			a.Redact = s != "" && s != "none"
		}
	}
	if v, ok := m["secret"]; ok {
		a.HasSecret = true
		a.Secret, _ = v.(bool)
	} else if v, ok := m["airbyte_secret"]; ok {
		a.HasSecret = true
		a.Secret, _ = v.(bool)
	}
	if v, ok := m["multiline"]; ok {
		a.HasMultiline = true
		a.Multiline, _ = v.(bool)
	}
	if v, ok := m["advanced"]; ok {
		a.HasAdvanced = true
		a.Advanced, _ = v.(bool)
	}
	if v, ok := m["order"]; ok {
		if f, ok := v.(float64); ok {
			var i = int(f)
			a.Order = &i
		}
	}
	if v, ok := m["discriminator"]; ok {
		a.Discriminator, _ = json.Marshal(v)
	}

	for key, v := range m {
		if hasXPrefix(key) {
			if a.Extensions == nil {
				a.Extensions = map[string]json.RawMessage{}
			}
			a.Extensions[key], _ = json.Marshal(v)
		}
	}

	if s, ok := m["title"].(string); ok {
		a.Title = s
	}
	if s, ok := m["description"].(string); ok {
		a.Description = s
	}
	if v, ok := m["default"]; ok {
		a.Default, _ = json.Marshal(v)
	}
	if arr, ok := m["examples"].([]interface{}); ok {
		for _, v := range arr {
			b, _ := json.Marshal(v)
			a.Examples = append(a.Examples, b)
		}
	}
	a.ReadOnly, _ = m["readOnly"].(bool)
	a.WriteOnly, _ = m["writeOnly"].(bool)
	if s, ok := m["contentEncoding"].(string); ok {
		a.ContentEncoding = s
	}
	if s, ok := m["contentMediaType"].(string); ok {
		a.ContentMediaType = s
	}
	if s, ok := m["format"].(string); ok {
		a.Format = s
	}

	return a
}

// mergeAnnotation fills any field of dst that dst does not already set
// with src's value. Callers merge composed (allOf/anyOf/oneOf/if-then-
// else) branches into a node's own annotation in schema traversal
// order, so a field dst already carries -- whether from the node's own
// direct keywords or an earlier branch -- is never overwritten by a
// later one.
func mergeAnnotation(dst *Annotation, src Annotation) {
	if dst.Reduce == nil {
		dst.Reduce = src.Reduce
	}
	if !dst.HasRedact {
		dst.Redact, dst.HasRedact = src.Redact, src.HasRedact
	}
	if !dst.HasSecret {
		dst.Secret, dst.HasSecret = src.Secret, src.HasSecret
	}
	if !dst.HasMultiline {
		dst.Multiline, dst.HasMultiline = src.Multiline, src.HasMultiline
	}
	if !dst.HasAdvanced {
		dst.Advanced, dst.HasAdvanced = src.Advanced, src.HasAdvanced
	}
	if dst.Order == nil {
		dst.Order = src.Order
	}
	if dst.Discriminator == nil {
		dst.Discriminator = src.Discriminator
	}
	if len(src.Extensions) > 0 {
		if dst.Extensions == nil {
			dst.Extensions = map[string]json.RawMessage{}
		}
		for k, v := range src.Extensions {
			if _, ok := dst.Extensions[k]; !ok {
				dst.Extensions[k] = v
			}
		}
	}
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if dst.Description == "" {
		dst.Description = src.Description
	}
	if dst.Default == nil {
		dst.Default = src.Default
	}
	if dst.Examples == nil {
		dst.Examples = src.Examples
	}
	if !dst.ReadOnly {
		dst.ReadOnly = src.ReadOnly
	}
	if !dst.WriteOnly {
		dst.WriteOnly = src.WriteOnly
	}
	if dst.ContentEncoding == "" {
		dst.ContentEncoding = src.ContentEncoding
	}
	if dst.ContentMediaType == "" {
		dst.ContentMediaType = src.ContentMediaType
	}
	if dst.Format == "" {
		dst.Format = src.Format
	}
}

func hasXPrefix(key string) bool {
	return len(key) > 2 && (key[:2] == "x-" || key[:2] == "X-")
}

func parseReduceStrategy(raw interface{}) *ReduceStrategy {
	switch v := raw.(type) {
	case string:
		return &ReduceStrategy{Kind: ReduceKind(v)}
	case map[string]interface{}:
		var kind, _ = v["strategy"].(string)
		var s = &ReduceStrategy{Kind: ReduceKind(kind)}
		if keys, ok := v["key"].([]interface{}); ok {
			for _, k := range keys {
				if ks, ok := k.(string); ok {
					s.Key = append(s.Key, ks)
				}
			}
		}
		return s
	default:
		return nil
	}
}
