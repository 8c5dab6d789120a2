package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/loykin/upscalr/internal/driver"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := buildRoot(&out, &errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// executeStderr is execute that also returns what was logged.
func executeStderr(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := buildRoot(&out, &errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "upscalr.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestHelp(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "upscalr")
	for _, sub := range []string{"upscale", "batch", "serve", "args"} {
		assert.Contains(t, out, sub)
	}
}

func TestArgs_EngineFlagsOnly(t *testing.T) {
	out, err := execute(t, "args", "--engine", "/opt/w2x/engine", "--", "-n", "2", "-s", "2", "-x")
	require.NoError(t, err)
	assert.Equal(t, "/opt/w2x/engine -n 2 -s 2 -x\n", out)
}

func TestArgs_FromConfigWithDerivedSettings(t *testing.T) {
	cfg := writeConfig(t, `
[waifu2x_ncnn_vulkan]
path = "/opt/w2x/engine"
n = 2
s = 2
x = true

[upscaler]
processes = 3
scale_ratio = 4
`)
	out, err := execute(t, "args", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, "/opt/w2x/engine -n 2 -s 4 -x -j 3:3:3\n", out)

	// engine flags win over derived settings
	out, err = execute(t, "args", "--config", cfg, "--", "-s", "8")
	require.NoError(t, err)
	assert.Equal(t, "/opt/w2x/engine -n 2 -s 8 -x -j 3:3:3\n", out)
}

func TestArgs_WithInputOutput(t *testing.T) {
	out, err := execute(t, "args", "--engine", "/opt/w2x/engine", "-i", "/in/a.png", "-o", "/out/a.png", "--", "-n", "1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "/opt/w2x/engine -n 1 -i /in/a.png -o /out/a.png", lines[0])
	assert.Equal(t, "cwd: "+filepath.Clean("/opt/w2x"), lines[1])
}

func TestArgs_EngineHelp(t *testing.T) {
	out, err := execute(t, "args", "--engine", "e", "--", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "--noise-level")
}

func TestArgs_InvalidEngineFlag(t *testing.T) {
	_, err := execute(t, "args", "--engine", "e", "--", "-n", "9")
	assert.ErrorIs(t, err, driver.ErrInvalidArgument)
}

func TestArgs_NoEnginePath(t *testing.T) {
	cfg := writeConfig(t, "[waifu2x_ncnn_vulkan]\nn = 1\n")
	_, err := execute(t, "args", "--config", cfg)
	assert.ErrorIs(t, err, driver.ErrNoEnginePath)
}

func TestUpscale_RequiresInputAndOutput(t *testing.T) {
	_, err := execute(t, "upscale", "--engine", "/opt/w2x/engine", "-i", "/in/a.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--output")
}

func TestUpscale_MissingEngine(t *testing.T) {
	_, err := execute(t, "upscale", "--engine", filepath.Join(t.TempDir(), "nope"), "-i", "/in/a.png", "-o", "/out/a.png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist), "got %v", err)
	assert.Contains(t, err.Error(), "failed to start")
}

func TestBatch_RequiresDirs(t *testing.T) {
	_, err := execute(t, "batch", "--engine", "e", "--input-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output-dir")
}

func TestServe_RejectsUnknownRouter(t *testing.T) {
	_, err := execute(t, "serve", "--engine", "e", "--router", "chi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gin or echo")
}

func TestExitError(t *testing.T) {
	var err error = &exitError{code: 3}
	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 3, ee.code)
	assert.Equal(t, "engine exited with code 3", err.Error())
}

func TestHashPassword(t *testing.T) {
	out, err := execute(t, "hash-password", "--password", "s3cret", "--cost", "4")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	var buf bytes.Buffer
	root := buildRoot(&buf, &bytes.Buffer{})
	root.SetIn(strings.NewReader("piped\n"))
	root.SetArgs([]string{"hash-password", "--cost", "4"})
	require.NoError(t, root.Execute())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(buf.String())), []byte("piped")))
}

func TestHashPassword_Empty(t *testing.T) {
	root := buildRoot(&bytes.Buffer{}, &bytes.Buffer{})
	root.SetIn(strings.NewReader(""))
	root.SetArgs([]string{"hash-password"})
	assert.Error(t, root.Execute())
}

func TestInit_WritesLoadableConfig(t *testing.T) {
	out := filepath.Join(t.TempDir(), "upscalr.toml")
	stdout, err := execute(t, "init", "--preset", "anime", "--engine", "/opt/w2x/engine", "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "anime preset")

	args, err := execute(t, "args", "--config", out)
	require.NoError(t, err)
	assert.Equal(t, "/opt/w2x/engine -n 2 -s 2 -m models-cunet -x\n", args)

	_, err = execute(t, "init", "-o", out)
	assert.ErrorContains(t, err, "already exists")
	_, err = execute(t, "init", "-o", out, "--force", "--preset", "nope")
	assert.ErrorContains(t, err, "unknown preset")
}
