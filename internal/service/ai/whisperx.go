package ai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
)

type (
	whisperxResult struct {
		Segments []whisperxSegment `json:"segments"`
	}

	whisperxSegment struct {
		Text  string          `json:"text"`
		Start decimal.Decimal `json:"start"`
		End   decimal.Decimal `json:"end"`
	}
)

// WhisperxTranscriber shells out to the whisperx CLI.
type WhisperxTranscriber struct {
	Binary string
	Model  string
}

func (w WhisperxTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	outDir, err := os.MkdirTemp("", "honestai-whisperx-*")
	if err != nil {
		return "", fmt.Errorf("whisperx output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	binary := w.Binary
	if binary == "" {
		binary = "whisperx"
	}
	args := []string{path, "--output_format", "json", "--output_dir", outDir}
	if w.Model != "" {
		args = append(args, "--model", w.Model)
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("whisperx stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start whisperx: %w", err)
	}
	// drain before Wait, which closes the pipe
	logLines(stderr)
	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("transcribing with whisperx: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	f, err := os.Open(filepath.Join(outDir, name+".json"))
	if err != nil {
		return "", fmt.Errorf("opening whisperx result: %w", err)
	}
	defer f.Close()

	var res whisperxResult
	if err := json.NewDecoder(f).Decode(&res); err != nil {
		return "", fmt.Errorf("decoding whisperx result: %w", err)
	}
	return res.text()
}

func (r whisperxResult) text() (string, error) {
	if len(r.Segments) == 0 {
		return "", errors.New("whisperx produced no segments")
	}
	parts := make([]string, 0, len(r.Segments))
	duration := decimal.Zero
	for _, s := range r.Segments {
		if s.End.LessThan(s.Start) {
			return "", fmt.Errorf("whisperx segment ends before it starts (%s < %s)", s.End, s.Start)
		}
		duration = decimal.Max(duration, s.End)
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	log.Debug("whisperx transcript", "segments", len(r.Segments), "seconds", duration.StringFixed(2))
	return strings.Join(parts, " "), nil
}

func logLines(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Debug("whisperx", "line", scanner.Text())
	}
}
