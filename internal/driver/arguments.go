package driver

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/spf13/pflag"
)

// load:proc:save, where proc may list one count per GPU (e.g. 1:2,2,2:2).
var threadSpec = regexp.MustCompile(`^[1-9][0-9]*:[1-9][0-9]*(,[1-9][0-9]*)*:[1-9][0-9]*$`)

// argument describes one engine flag accepted by the front end.
type argument struct {
	key   string // engine option key, also the shorthand
	long  string
	usage string
	kind  Kind
}

// arguments in the order the engine documents them.
var arguments = []argument{
	{KeyVerbose, "verbose", "verbose output", KindBool},
	{KeyInput, "input", "input image path (jpg/png/webp) or directory", KindString},
	{KeyOutput, "output", "output image path (jpg/png/webp) or directory", KindString},
	{KeyNoise, "noise-level", "denoise level (-1/0/1/2/3)", KindInt},
	{KeyScale, "scale", "upscale ratio (1/2/4/8/16/32)", KindInt},
	{KeyTile, "tile-size", "tile size (>=32)", KindInt},
	{KeyModel, "model-path", "waifu2x model path", KindString},
	{KeyGPU, "gpu-id", "gpu device to use (-1=cpu)", KindInt},
	{KeyThreads, "threads", "thread count for load/proc/save (e.g. 1:2:2, or 1:2,2:2 for two GPUs)", KindString},
	{KeyTTA, "tta", "enable tta mode", KindBool},
	{KeyFormat, "format", "output image format (jpg/png/webp, default=ext/png)", KindString},
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(Name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false
	fs.Bool("help", false, "show this help message and exit")
	for _, a := range arguments {
		switch a.kind {
		case KindBool:
			fs.BoolP(a.long, a.key, false, a.usage)
		case KindInt:
			fs.IntP(a.long, a.key, 0, a.usage)
		default:
			fs.StringP(a.long, a.key, "", a.usage)
		}
	}
	return fs
}

// ArgumentUsage returns the help text for the engine flags.
func ArgumentUsage() string {
	return newFlagSet().FlagUsages()
}

// ParseArguments validates raw engine flags and returns them as settings in
// the engine's documented order. Flags that were not given are null (false
// for switches). --help yields pflag.ErrHelp; -h is not an engine flag.
func ParseArguments(args []string) (*Settings, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		// pflag reports an undefined -h as a help request.
		if errors.Is(err, pflag.ErrHelp) {
			return nil, fmt.Errorf("%w: unknown shorthand flag 'h' (use --help)", ErrInvalidArgument)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if help, _ := fs.GetBool("help"); help {
		return nil, pflag.ErrHelp
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected positional arguments %q", ErrInvalidArgument, fs.Args())
	}

	s := NewSettings()
	for _, a := range arguments {
		var v Value
		switch a.kind {
		case KindBool:
			b, _ := fs.GetBool(a.long)
			v = Bool(b)
		case KindInt:
			if fs.Changed(a.long) {
				i, _ := fs.GetInt(a.long)
				v = Int(i)
			}
		default:
			if fs.Changed(a.long) {
				str, _ := fs.GetString(a.long)
				v = String(str)
			}
		}
		s.Set(a.key, v)
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks option values against the engine's documented ranges.
// Null and missing options are always valid.
func Validate(s *Settings) error {
	if v, _ := s.Get(KeyNoise); !v.IsNull() {
		n, ok := v.Int()
		if !ok || n < -1 || n > 3 {
			return fmt.Errorf("%w: -n must be an integer in -1..3, got %q", ErrInvalidArgument, v.String())
		}
	}
	if v, _ := s.Get(KeyScale); !v.IsNull() {
		if n, ok := v.Int(); !ok || n < 1 {
			return fmt.Errorf("%w: -s must be a positive integer, got %q", ErrInvalidArgument, v.String())
		}
	}
	if v, _ := s.Get(KeyTile); !v.IsNull() {
		if n, ok := v.Int(); !ok || n < 32 {
			return fmt.Errorf("%w: -t must be an integer >= 32, got %q", ErrInvalidArgument, v.String())
		}
	}
	if v, _ := s.Get(KeyGPU); !v.IsNull() {
		if _, ok := v.Int(); !ok {
			return fmt.Errorf("%w: -g must be an integer, got %q", ErrInvalidArgument, v.String())
		}
	}
	if v, _ := s.Get(KeyThreads); !v.IsNull() {
		if j, ok := v.Str(); !ok || !threadSpec.MatchString(j) {
			return fmt.Errorf("%w: -j must look like load:proc:save, got %q", ErrInvalidArgument, v.String())
		}
	}
	if v, _ := s.Get(KeyFormat); !v.IsNull() {
		f, ok := v.Str()
		switch strings.ToLower(f) {
		case "jpg", "png", "webp":
		default:
			ok = false
		}
		if !ok {
			return fmt.Errorf("%w: -f must be one of jpg, png, webp, got %q", ErrInvalidArgument, v.String())
		}
	}
	for _, k := range []string{KeyVerbose, KeyTTA} {
		if v, _ := s.Get(k); !v.IsNull() && v.Kind() != KindBool {
			return fmt.Errorf("%w: -%s is a switch, got %q", ErrInvalidArgument, k, v.String())
		}
	}
	return nil
}
