// Package tts synthesizes scene narration by running a text-to-speech command.
// The default command is gtts-cli, which writes one MP3 per call.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNoOutput is returned when the command exits cleanly but writes no audio file.
var ErrNoOutput = errors.New("tts: command produced no output file")

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("tts: text is empty")

// CommandSynthesizer runs a gtts-cli compatible binary, feeding the text on stdin:
//
//	<command> --lang <lang> --output <file> -
type CommandSynthesizer struct {
	command string
	lang    string
}

// NewCommandSynthesizer creates a synthesizer. Empty values default to gtts-cli and "en".
func NewCommandSynthesizer(command, lang string) *CommandSynthesizer {
	if command == "" {
		command = "gtts-cli"
	}
	if lang == "" {
		lang = "en"
	}
	return &CommandSynthesizer{command: command, lang: lang}
}

// Synthesize writes <outputDir>/<sceneID>.mp3 and returns its path.
// outputDir must already exist; it belongs to the task workspace.
func (s *CommandSynthesizer) Synthesize(ctx context.Context, text, sceneID, outputDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("tts cancelled: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	info, err := os.Stat(outputDir)
	if err != nil {
		return "", fmt.Errorf("tts: output dir: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("tts: output dir %s is not a directory", outputDir)
	}

	path := filepath.Join(outputDir, sceneID+".mp3")
	// "-" reads the text from stdin, so text starting with a dash is never taken for a flag.
	args := []string{"--lang", s.lang, "--output", path, "-"}

	// #nosec G204 - command is set by configuration, text never reaches argv
	cmd := exec.CommandContext(ctx, s.command, args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(path)
		if ctx.Err() != nil {
			return "", fmt.Errorf("tts cancelled: %w", ctx.Err())
		}
		return "", &CommandError{Command: s.command, Stderr: stderr.String(), Err: err}
	}

	info, err = os.Stat(path)
	if err != nil || info.Size() == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoOutput, path)
	}
	return path, nil
}

// CommandError represents a failed synthesizer run, including its stderr output.
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("tts: %s failed: %v\nstderr: %s", e.Command, e.Err, strings.TrimSpace(e.Stderr))
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
