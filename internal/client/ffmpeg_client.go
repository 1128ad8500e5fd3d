package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrConverterUnavailable is returned when ffmpeg is not installed.
var ErrConverterUnavailable = errors.New("ffmpeg not found on PATH")

// stderrTailLines bounds the diagnostic carried in a ConversionError.
const stderrTailLines = 10

// convertExts are reference formats the model cannot consume directly.
var convertExts = map[string]bool{
	"webm": true,
	"mp4":  true,
	"m4a":  true,
}

// NeedsConversion reports whether the file's extension requires conversion
// before it can be used as a reference sample.
func NeedsConversion(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return convertExts[ext]
}

// ConversionError is a failed ffmpeg run with its final diagnostic lines.
type ConversionError struct {
	ExitCode int
	Stderr   string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("audio conversion failed (exit %d). %s", e.ExitCode, e.Stderr)
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, int, error)
}

// execRunner executes commands via os/exec, capturing stderr and exit code.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return stderr.String(), code, err
	}
	return stderr.String(), 0, nil
}

// FFmpegConverter converts uploaded reference audio to the mono 22.05 kHz
// WAV layout the model expects, by shelling out to ffmpeg.
type FFmpegConverter struct {
	path   string
	runner commandRunner
}

// NewFFmpegConverter resolves ffmpeg from an explicit path or PATH lookup.
// A converter with no resolved binary is still usable: Available reports
// false and Convert fails with ErrConverterUnavailable.
func NewFFmpegConverter(path string) *FFmpegConverter {
	if path == "" {
		path, _ = exec.LookPath("ffmpeg")
	}
	return &FFmpegConverter{
		path:   path,
		runner: execRunner{},
	}
}

// Available reports whether the conversion tool is installed.
func (c *FFmpegConverter) Available() bool {
	return c.path != ""
}

// Convert transcodes inputPath to a mono 22.05 kHz WAV next to the input
// and returns the converted path.
func (c *FFmpegConverter) Convert(ctx context.Context, inputPath string) (string, error) {
	if !c.Available() {
		return "", ErrConverterUnavailable
	}

	outputPath := inputPath + ".wav"
	args := []string{"-y", "-i", inputPath, "-ac", "1", "-ar", "22050", "-vn", outputPath}

	stderr, code, err := c.runner.Run(ctx, c.path, args...)
	if err != nil {
		return "", &ConversionError{
			ExitCode: code,
			Stderr:   stderrTail(stderr),
		}
	}
	return outputPath, nil
}

// stderrTail keeps the last few lines of ffmpeg output, where the actual
// failure reason lives.
func stderrTail(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if len(lines) > stderrTailLines {
		lines = lines[len(lines)-stderrTailLines:]
	}
	return strings.Join(lines, "\n")
}
