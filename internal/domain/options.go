package domain

import "maps"

// Options is the free-form option map carried by a message. Routing keys such as
// the downstream pipe target and group/pipeline linkage live here.
type Options map[string]any

// Clone returns a shallow copy; a nil receiver yields an empty, non-nil map.
func (o Options) Clone() Options {
	if o == nil {
		return Options{}
	}
	out := make(Options, len(o))
	maps.Copy(out, o)
	return out
}

// Merge returns a copy of o with every key of other written over it.
func (o Options) Merge(other Options) Options {
	out := o.Clone()
	maps.Copy(out, other)
	return out
}

// String returns the string stored under key, or "" when absent or not a string.
func (o Options) String(key string) string {
	if v, ok := o[key].(string); ok {
		return v
	}
	return ""
}

// Map returns the nested map stored under key.
func (o Options) Map(key string) (map[string]any, bool) {
	switch v := o[key].(type) {
	case map[string]any:
		return v, true
	case Options:
		return map[string]any(v), true
	default:
		return nil, false
	}
}
