package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// runner abstracts process execution for testability.
type runner func(ctx context.Context, name string, args ...string) (stdout string, err error)

func execRun(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), fmt.Errorf("%s failed: %s", name, strings.TrimSpace(stderr.String()))
		}
		return stdout.String(), err
	}
	return stdout.String(), nil
}

// Transcoder wraps ffmpeg/ffprobe for waveform normalization, duration
// probing, and fixed-duration chunk splitting.
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
	run         runner
	readDir     func(name string) ([]os.DirEntry, error)
}

// NewTranscoder constructs the production transcoder using binaries from
// PATH.
func NewTranscoder() *Transcoder {
	return &Transcoder{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		run:         execRun,
		readDir:     os.ReadDir,
	}
}

// ToWav converts input media to a normalized mono 16 kHz pcm_s16le wav.
// maxSec > 0 truncates the output, bounding inference cost on long media.
func (t *Transcoder) ToWav(ctx context.Context, inputPath, outPath string, maxSec int) error {
	args := buildWavArgs(inputPath, outPath, maxSec)
	if _, err := t.run(ctx, t.ffmpegPath, args...); err != nil {
		return fmt.Errorf("ffmpeg audio conversion failed: %w", err)
	}
	if _, err := os.Stat(outPath); err != nil {
		return fmt.Errorf("ffmpeg completed but output file is missing: %w", err)
	}
	return nil
}

// Split cuts a wav file into fixed-duration chunks inside outDir and
// returns the chunk paths in strict index order.
func (t *Transcoder) Split(ctx context.Context, wavPath string, chunkSec int, outDir string) ([]string, error) {
	if chunkSec <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive, got %d", chunkSec)
	}
	args := buildSplitArgs(wavPath, chunkSec, outDir)
	if _, err := t.run(ctx, t.ffmpegPath, args...); err != nil {
		return nil, fmt.Errorf("ffmpeg chunk split failed: %w", err)
	}

	entries, err := t.readDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("read chunk directory: %w", err)
	}
	var chunks []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), chunkPrefix) {
			continue
		}
		chunks = append(chunks, filepath.Join(outDir, entry.Name()))
	}
	// Zero-padded indices make lexical order the chunk order.
	sort.Strings(chunks)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no chunks in %s", outDir)
	}
	return chunks, nil
}

// DurationMs probes the media duration via ffprobe.
func (t *Transcoder) DurationMs(ctx context.Context, path string) (int64, error) {
	out, err := t.run(ctx, t.ffprobePath, buildProbeArgs(path)...)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	sec, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", strings.TrimSpace(out), err)
	}
	return int64(sec * 1000), nil
}

const chunkPrefix = "chunk_"

// buildWavArgs builds CLI args for mono 16k PCM WAV output.
func buildWavArgs(inputPath, outPath string, maxSec int) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
	}
	if maxSec > 0 {
		args = append(args, "-t", strconv.Itoa(maxSec))
	}
	return append(args, outPath)
}

// buildSplitArgs builds CLI args for fixed-duration segment splitting.
func buildSplitArgs(wavPath string, chunkSec int, outDir string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", wavPath,
		"-f", "segment",
		"-segment_time", strconv.Itoa(chunkSec),
		"-c", "copy",
		filepath.Join(outDir, chunkPrefix+"%05d.wav"),
	}
}

// buildProbeArgs builds ffprobe args emitting the duration in seconds.
func buildProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	}
}
