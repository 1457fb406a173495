package tts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript creates an executable shell script standing in for gtts-cli.
// Arguments arrive as: --lang <lang> --output <file> -, with the text on stdin.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-tts")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestNewCommandSynthesizer_Defaults(t *testing.T) {
	s := NewCommandSynthesizer("", "")
	assert.Equal(t, "gtts-cli", s.command)
	assert.Equal(t, "en", s.lang)
}

func TestSynthesize(t *testing.T) {
	script := writeScript(t, `[ "$2" = "fr" ] || exit 3
[ "$5" = "-" ] || exit 4
printf 'ID3%s' "$(cat)" > "$4"`)

	dir := t.TempDir()
	s := NewCommandSynthesizer(script, "fr")

	path, err := s.Synthesize(context.Background(), "Bonjour le monde", "scene1", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scene1.mp3"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ID3Bonjour le monde", string(data))
}

func TestSynthesize_CommandFails(t *testing.T) {
	script := writeScript(t, `echo "gTTSError: 429 Too Many Requests" >&2
exit 1`)

	_, err := NewCommandSynthesizer(script, "en").Synthesize(context.Background(), "hi", "scene0", t.TempDir())

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Contains(t, cmdErr.Stderr, "429")
}

func TestSynthesize_NoOutput(t *testing.T) {
	script := writeScript(t, `exit 0`)

	_, err := NewCommandSynthesizer(script, "en").Synthesize(context.Background(), "hi", "scene0", t.TempDir())
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestSynthesize_EmptyText(t *testing.T) {
	_, err := NewCommandSynthesizer("unused", "en").Synthesize(context.Background(), "  ", "scene0", t.TempDir())
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestSynthesize_MissingBinary(t *testing.T) {
	_, err := NewCommandSynthesizer(filepath.Join(t.TempDir(), "nope"), "en").
		Synthesize(context.Background(), "hi", "scene0", t.TempDir())

	var cmdErr *CommandError
	assert.True(t, errors.As(err, &cmdErr))
}

func TestSynthesize_LeadingDashText(t *testing.T) {
	script := writeScript(t, `[ "$#" -eq 5 ] || exit 2
cat > "$4"`)

	dir := t.TempDir()
	path, err := NewCommandSynthesizer(script, "en").
		Synthesize(context.Background(), "-5 degrees at night", "scene0", dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "-5 degrees at night", string(data))
}

func TestSynthesize_MissingOutputDirIsNotCreated(t *testing.T) {
	script := writeScript(t, `echo audio > "$4"`)
	dir := filepath.Join(t.TempDir(), "task", "Audio")

	_, err := NewCommandSynthesizer(script, "en").Synthesize(context.Background(), "hi", "scene0", dir)
	require.Error(t, err)
	assert.NoDirExists(t, filepath.Dir(dir))
}

func TestSynthesize_CancelledBeforeStart(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran")
	script := writeScript(t, `touch "`+marker+`"`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCommandSynthesizer(script, "en").Synthesize(ctx, "hi", "scene0", t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, marker)
}
