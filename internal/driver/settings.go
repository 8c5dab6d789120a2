package driver

import (
	"sort"
	"strconv"
)

// Kind tags the type held by a Value.
type Kind int

// Value kinds. KindNull is the zero Kind, so an unset Value is null.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return "null"
	}
}

// Value is one engine option value: null, bool, int or string.
// The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int
	s    string
}

// Null returns the null Value, which is omitted from the command line.
func Null() Value { return Value{} }

// Bool returns a switch value. Only true is emitted, as a bare flag.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value. Zero and negatives are emitted as given.
func Int(i int) Value { return Value{kind: KindInt, i: i} }

// String returns a string value. The empty string is still emitted.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Kind reports which kind the value holds.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool  { return v.kind == KindNull }
func (v Value) IsTrue() bool  { return v.kind == KindBool && v.b }
func (v Value) IsFalse() bool { return v.kind == KindBool && !v.b }

// Omitted reports whether the option is left out of the command line:
// null and boolean false both mean "use the engine default".
func (v Value) Omitted() bool { return v.IsNull() || v.IsFalse() }

// Int returns the integer and whether the value holds one.
func (v Value) Int() (int, bool) { return v.i, v.kind == KindInt }

// Str returns the string and whether the value holds one.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// String renders the value the way it is passed to the engine.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.Itoa(v.i)
	case KindString:
		return v.s
	default:
		return ""
	}
}

// Entry is one named option.
type Entry struct {
	Key   string
	Value Value
}

// Settings is an insertion-ordered set of engine options. Setting an existing
// key replaces its value in place; new keys are appended.
// Settings is not safe for concurrent use; Driver guards its own copy.
type Settings struct {
	entries []Entry
	index   map[string]int
}

// NewSettings returns settings holding the given entries in order.
func NewSettings(entries ...Entry) *Settings {
	s := &Settings{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		s.Set(e.Key, e.Value)
	}
	return s
}

// Set assigns key, keeping its original position when it already exists.
func (s *Settings) Set(key string, v Value) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[key]; ok {
		s.entries[i].Value = v
		return
	}
	s.index[key] = len(s.entries)
	s.entries = append(s.entries, Entry{Key: key, Value: v})
}

// Get returns the value for key; a missing key reads as null.
func (s *Settings) Get(key string) (Value, bool) {
	i, ok := s.index[key]
	if !ok {
		return Null(), false
	}
	return s.entries[i].Value, true
}

// Has reports whether key is present, whatever its value.
func (s *Settings) Has(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Len returns the number of entries.
func (s *Settings) Len() int { return len(s.entries) }

// Entries returns a copy of the entries in insertion order.
func (s *Settings) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// Keys returns the keys in insertion order.
func (s *Settings) Keys() []string {
	keys := make([]string, len(s.entries))
	for i, e := range s.entries {
		keys[i] = e.Key
	}
	return keys
}

// Path returns the configured engine executable, or "".
func (s *Settings) Path() string {
	v, _ := s.Get(KeyPath)
	p, _ := v.Str()
	return p
}

// Clone returns an independent copy.
func (s *Settings) Clone() *Settings {
	c := &Settings{
		entries: append([]Entry(nil), s.entries...),
		index:   make(map[string]int, len(s.index)),
	}
	for k, i := range s.index {
		c.index[k] = i
	}
	return c
}

// Merge applies every non-null entry of other on top of s.
func (s *Settings) Merge(other *Settings) {
	if other == nil {
		return
	}
	for _, e := range other.entries {
		if e.Value.IsNull() {
			continue
		}
		s.Set(e.Key, e.Value)
	}
}

// Option keys understood by waifu2x-ncnn-vulkan.
const (
	KeyPath    = "path" // engine executable; never passed as a flag
	KeyVerbose = "v"
	KeyInput   = "i"
	KeyOutput  = "o"
	KeyNoise   = "n"
	KeyScale   = "s"
	KeyTile    = "t"
	KeyModel   = "m"
	KeyGPU     = "g"
	KeyThreads = "j"
	KeyTTA     = "x"
	KeyFormat  = "f"
)

// CanonicalOrder is the engine's documented option order. It is used when
// settings come from a source that carries no order of its own.
var CanonicalOrder = []string{
	KeyPath, KeyVerbose, KeyInput, KeyOutput, KeyNoise, KeyScale,
	KeyTile, KeyModel, KeyGPU, KeyThreads, KeyTTA, KeyFormat,
}

// FromMap builds settings from an unordered map: known keys in CanonicalOrder,
// then any other keys alphabetically.
func FromMap(m map[string]Value) *Settings {
	s := NewSettings()
	seen := make(map[string]bool, len(m))
	for _, k := range CanonicalOrder {
		if v, ok := m[k]; ok {
			s.Set(k, v)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(m))
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		s.Set(k, m[k])
	}
	return s
}
