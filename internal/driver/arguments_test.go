package driver

import (
	"errors"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArguments_ShortAndLong(t *testing.T) {
	s, err := ParseArguments([]string{"-n", "-1", "--scale", "4", "-x", "-j", "1:2:2", "--format", "webp"})
	require.NoError(t, err)

	assert.Equal(t, []string{"v", "i", "o", "n", "s", "t", "m", "g", "j", "x", "f"}, s.Keys())

	n, _ := s.Get(KeyNoise)
	got, ok := n.Int()
	require.True(t, ok)
	assert.Equal(t, -1, got)

	tile, _ := s.Get(KeyTile)
	assert.True(t, tile.IsNull())
	v, _ := s.Get(KeyVerbose)
	assert.True(t, v.IsFalse())

	s.Set(KeyPath, String("e"))
	assert.Equal(t, []string{"e", "-n", "-1", "-s", "4", "-j", "1:2:2", "-x", "-f", "webp"}, BuildArgs(s))
}

func TestParseArguments_Help(t *testing.T) {
	_, err := ParseArguments([]string{"--help"})
	assert.True(t, errors.Is(err, pflag.ErrHelp))
	_, err = ParseArguments([]string{"-h"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.False(t, errors.Is(err, pflag.ErrHelp))
}

func TestParseArguments_MultiGPUThreads(t *testing.T) {
	for _, j := range []string{"1:2:2", "1:2,2:2", "2:4,4,4:2"} {
		s, err := ParseArguments([]string{"-j", j})
		require.NoError(t, err, j)
		v, _ := s.Get(KeyThreads)
		assert.Equal(t, j, v.String())
	}
}

func TestParseArguments_Rejects(t *testing.T) {
	cases := map[string][]string{
		"noise too high":  {"-n", "4"},
		"noise too low":   {"-n", "-2"},
		"scale zero":      {"-s", "0"},
		"tile too small":  {"-t", "16"},
		"bad threads":     {"-j", "2:2"},
		"zero threads":    {"-j", "0:1:1"},
		"empty gpu list":  {"-j", "1:2,:2"},
		"zero gpu thread": {"-j", "1:2,0:2"},
		"bad format":      {"-f", "gif"},
		"not an int":      {"-g", "one"},
		"unknown flag":    {"--denoise"},
		"positional args": {"extra"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseArguments(args)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestValidate_SwitchMustBeBool(t *testing.T) {
	err := Validate(NewSettings(Entry{KeyTTA, Int(1)}))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.NoError(t, Validate(NewSettings(Entry{KeyTTA, Bool(true)}, Entry{KeyFormat, String("PNG")})))
}

func TestArgumentUsage(t *testing.T) {
	u := ArgumentUsage()
	for _, want := range []string{"--noise-level", "-n", "--threads", "--help"} {
		assert.Contains(t, u, want)
	}
}
