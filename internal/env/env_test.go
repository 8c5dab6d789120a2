package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayersOverride(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(p, []byte("# engine\nA = 1\n\nB=file\n"), 0o600))

	e := New().Set("A", "0").Set("", "ignored")
	require.NoError(t, e.LoadFile(p))
	e.SetPairs([]string{"B=top", "broken", "=nokey"})

	assert.Equal(t, []string{"A=1", "B=top"}, e.Pairs())
	assert.Equal(t, 2, e.Len())
}

func TestExpand(t *testing.T) {
	t.Setenv("UPSCALR_ENV_TEST_HOME", "/home/w2x")
	e := New().SetPairs([]string{
		"ICD=${UPSCALR_ENV_TEST_HOME}/icd.json",
		"MODELS=${ROOT}/models",
		"ROOT=/opt/w2x",
		"KEEP=${NOT_SET_ANYWHERE_42}",
		"PLAIN=$ROOT",
	})
	assert.Equal(t, []string{
		"ICD=/home/w2x/icd.json",
		"KEEP=${NOT_SET_ANYWHERE_42}",
		"MODELS=/opt/w2x/models",
		"PLAIN=$ROOT",
		"ROOT=/opt/w2x",
	}, e.Pairs())
}

func TestFromOS(t *testing.T) {
	t.Setenv("UPSCALR_ENV_TEST_OS", "yes")
	assert.Contains(t, New().FromOS().Pairs(), "UPSCALR_ENV_TEST_OS=yes")
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, New().LoadFile(filepath.Join(dir, "missing")))

	bad := filepath.Join(dir, "bad.env")
	require.NoError(t, os.WriteFile(bad, []byte("A=1\nnot a pair\n"), 0o600))
	assert.ErrorContains(t, New().LoadFile(bad), "bad.env:2")
}
