package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArgs_Scenario(t *testing.T) {
	s := NewSettings(
		Entry{KeyPath, String("/bin/engine")},
		Entry{KeyNoise, Int(2)},
		Entry{KeyScale, Int(2)},
		Entry{KeyThreads, Null()},
		Entry{KeyTTA, Bool(true)},
		Entry{KeyInput, String("/in")},
		Entry{KeyOutput, String("/out")},
	)
	assert.Equal(t,
		[]string{"/bin/engine", "-n", "2", "-s", "2", "-x", "-i", "/in", "-o", "/out"},
		BuildArgs(s))
}

func TestBuildArgs_OmissionRules(t *testing.T) {
	s := NewSettings(
		Entry{KeyPath, String("/bin/engine")},
		Entry{KeyVerbose, Bool(false)},
		Entry{KeyModel, Null()},
		Entry{KeyTTA, Bool(true)},
		Entry{KeyGPU, Int(0)},
	)
	argv := BuildArgs(s)
	assert.Equal(t, []string{"/bin/engine", "-x", "-g", "0"}, argv)
	assert.NotContains(t, argv, "-v")
	assert.NotContains(t, argv, "-m")
}

func TestBuildArgs_NegativeAndZeroIntegers(t *testing.T) {
	s := NewSettings(
		Entry{KeyPath, String("/bin/engine")},
		Entry{KeyNoise, Int(-1)},
		Entry{KeyGPU, Int(0)},
	)
	assert.Equal(t, []string{"/bin/engine", "-n", "-1", "-g", "0"}, BuildArgs(s))
}

func TestBuildArgs_FlagPrefixByKeyLength(t *testing.T) {
	s := NewSettings(
		Entry{KeyPath, String("e")},
		Entry{"t", Int(64)},
		Entry{"tile-size", Int(128)},
		Entry{"tta", Bool(true)},
	)
	assert.Equal(t, []string{"e", "-t", "64", "--tile-size", "128", "--tta"}, BuildArgs(s))
}

func TestBuildArgs_PathNeverEmittedAsFlag(t *testing.T) {
	s := NewSettings(Entry{KeyNoise, Int(1)}, Entry{KeyPath, String("/opt/w2x/engine")})
	argv := BuildArgs(s)
	require.Equal(t, "/opt/w2x/engine", argv[0])
	assert.NotContains(t, argv, "--path")
	assert.NotContains(t, argv[1:], "/opt/w2x/engine")
}

func TestBuildArgs_ValueTokenCounts(t *testing.T) {
	values := map[string]Value{
		"null":   Null(),
		"false":  Bool(false),
		"true":   Bool(true),
		"int":    Int(7),
		"zero":   Int(0),
		"string": String("png"),
		"empty":  String(""),
	}
	want := map[string]int{"null": 0, "false": 0, "true": 1, "int": 2, "zero": 2, "string": 2, "empty": 2}
	for name, v := range values {
		t.Run(name, func(t *testing.T) {
			argv := BuildArgs(NewSettings(Entry{KeyPath, String("e")}, Entry{KeyFormat, v}))
			assert.Len(t, argv[1:], want[name])
			if want[name] == 2 {
				assert.Equal(t, "-f", argv[1])
				assert.Equal(t, v.String(), argv[2])
			}
		})
	}
}

func TestSettings_SetKeepsInsertionPosition(t *testing.T) {
	s := NewSettings(Entry{KeyPath, String("e")}, Entry{KeyInput, Null()}, Entry{KeyNoise, Int(1)})
	s.Set(KeyInput, String("/a"))
	s.Set(KeyFormat, String("png"))
	assert.Equal(t, []string{KeyPath, KeyInput, KeyNoise, KeyFormat}, s.Keys())

	c := s.Clone()
	c.Set(KeyInput, String("/b"))
	v, _ := s.Get(KeyInput)
	assert.Equal(t, "/a", v.String(), "clone must not alias the original")
}

func TestSettings_FromMapCanonicalOrder(t *testing.T) {
	s := FromMap(map[string]Value{
		"zz":       Int(1),
		KeyFormat:  String("png"),
		KeyPath:    String("e"),
		KeyNoise:   Int(2),
		"aa":       Bool(true),
		KeyThreads: String("1:2:2"),
	})
	assert.Equal(t, []string{KeyPath, KeyNoise, KeyThreads, KeyFormat, "aa", "zz"}, s.Keys())
}

func TestSettings_MergeSkipsNull(t *testing.T) {
	base := NewSettings(Entry{KeyPath, String("e")}, Entry{KeyNoise, Int(2)})
	base.Merge(NewSettings(Entry{KeyNoise, Null()}, Entry{KeyTTA, Bool(true)}))
	n, _ := base.Get(KeyNoise)
	got, _ := n.Int()
	assert.Equal(t, 2, got)
	assert.True(t, base.Has(KeyTTA))
}

func TestValue_Kinds(t *testing.T) {
	assert.True(t, Null().Omitted())
	assert.True(t, Bool(false).Omitted())
	assert.False(t, Int(0).Omitted())
	assert.False(t, String("").Omitted())
	assert.Equal(t, "-1", Int(-1).String())
	assert.Equal(t, "int", Int(1).Kind().String())
	assert.Equal(t, KindNull, Value{}.Kind())
}
