package driver

import (
	"strings"
	"testing"
)

// FuzzParseArguments feeds space separated flags through the front end. A
// successful parse rendered by BuildArgs must parse back to the same argv.
func FuzzParseArguments(f *testing.F) {
	f.Add("-n -1 -s 2 -x")
	f.Add("--noise-level 3 --scale 4 -j 1:2:2 -f webp")
	f.Add("-t 32 -g 0 -m models-cunet -v")
	f.Add("-i /in.png -o /out.png")
	f.Add("-n 4")
	f.Add("--bogus")

	f.Fuzz(func(t *testing.T, line string) {
		if len(line) > 256 {
			t.Skip("too long")
		}
		s, err := ParseArguments(strings.Fields(line))
		if err != nil {
			return
		}
		s.Set(KeyPath, String("e"))
		argv := BuildArgs(s)

		again, err := ParseArguments(argv[1:])
		if err != nil {
			t.Fatalf("rendered argv %q does not parse: %v", argv, err)
		}
		again.Set(KeyPath, String("e"))
		if got := BuildArgs(again); strings.Join(got, "\x00") != strings.Join(argv, "\x00") {
			t.Fatalf("round trip changed argv: %q -> %q", argv, got)
		}
	})
}

// FuzzBuildArgsOmission checks the omission rules for arbitrary keys.
func FuzzBuildArgsOmission(f *testing.F) {
	f.Add("n", int8(0))
	f.Add("tile-size", int8(1))
	f.Add("x", int8(2))
	f.Add("path", int8(3))

	f.Fuzz(func(t *testing.T, key string, kind int8) {
		if key == "" || key == KeyPath {
			return
		}
		var v Value
		switch kind & 3 {
		case 0:
			v = Null()
		case 1:
			v = Bool(false)
		case 2:
			v = Bool(true)
		case 3:
			v = Int(int(kind))
		}
		argv := BuildArgs(NewSettings(Entry{KeyPath, String("/bin/engine")}, Entry{key, v}))
		if argv[0] != "/bin/engine" {
			t.Fatalf("argv[0] = %q", argv[0])
		}
		flag := "-" + key
		if len(key) > 1 {
			flag = "--" + key
		}
		switch {
		case v.Omitted():
			if len(argv) != 1 {
				t.Fatalf("omitted value emitted: %q", argv)
			}
		case kind&3 == 2:
			if len(argv) != 2 || argv[1] != flag {
				t.Fatalf("switch rendered as %q", argv)
			}
		default:
			if len(argv) != 3 || argv[1] != flag || argv[2] != v.String() {
				t.Fatalf("value rendered as %q", argv)
			}
		}
	})
}
