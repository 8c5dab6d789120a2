package env

import (
	"strings"
	"testing"
)

// FuzzPairs feeds random layers through SetPairs and checks that the output
// stays well formed and that inputs without '$' come out unchanged.
func FuzzPairs(f *testing.F) {
	f.Add([]byte("A=1\nB=${A}-x"), []byte("C=${B}-y"))
	f.Add([]byte("FOO=bar"), []byte("FOO=${FOO}"))
	f.Add([]byte("X=${Y}"), []byte("Y=${X}"))

	f.Fuzz(func(t *testing.T, globalB []byte, perB []byte) {
		global := splitNZ(string(globalB))
		per := splitNZ(string(perB))
		if len(global) > 20 {
			global = global[:20]
		}
		if len(per) > 20 {
			per = per[:20]
		}

		out := New().SetPairs(global).SetPairs(per).Pairs()
		for _, kv := range out {
			if !strings.Contains(kv, "=") {
				t.Fatalf("bad pair: %q", kv)
			}
			if strings.HasPrefix(kv, "=") {
				t.Fatalf("empty key: %q", kv)
			}
		}

		for _, s := range append(append([]string{}, global...), per...) {
			if strings.ContainsRune(s, '$') {
				return
			}
		}
		want := make(map[string]string)
		for _, kv := range append(append([]string{}, global...), per...) {
			if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
				want[k] = v
			}
		}
		if len(out) != len(want) {
			t.Fatalf("got %d pairs, want %d", len(out), len(want))
		}
		for _, kv := range out {
			k, v, _ := strings.Cut(kv, "=")
			if want[k] != v {
				t.Fatalf("%s = %q, want %q", k, v, want[k])
			}
		}
	})
}

// splitNZ splits s by newlines and returns non-empty trimmed lines.
func splitNZ(s string) []string {
	var out []string
	for _, ln := range strings.Split(s, "\n") {
		ln = strings.TrimSpace(ln)
		if ln != "" {
			out = append(out, ln)
		}
	}
	return out
}
