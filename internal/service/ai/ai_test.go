package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honestai/internal/config"
)

func TestMocks(t *testing.T) {
	ctx := context.Background()

	text, err := MockTranscriber{}.Transcribe(ctx, "any.wav")
	require.NoError(t, err)
	assert.Equal(t, "This is a mocked transcript from wav2vec.", text)

	score, err := MockScorer{}.Score(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, 0.87, score)

	faces, err := MockFaceDetector{Faces: 3}.DetectFaces(ctx, "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, 3, faces)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = MockTranscriber{}.Transcribe(cancelled, "any.wav")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseScore(t *testing.T) {
	good := map[string]float64{"0.87": 0.87, " 1 ": 1, "0": 0, "0.5.": 0.5, "0.25\n": 0.25}
	for in, want := range good {
		got, err := parseScore(in)
		require.NoError(t, err, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}
	for _, in := range []string{"", "high", "1.01", "-0.1", "0.8 because"} {
		_, err := parseScore(in)
		assert.Error(t, err, in)
	}
}

type fakeChat struct {
	reply string
	err   error
	seen  []*schema.Message
}

func (f *fakeChat) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.seen = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChat) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestLLMScorer(t *testing.T) {
	chat := &fakeChat{reply: "0.42"}
	scorer := NewLLMScorer(chat)

	score, err := scorer.Score(context.Background(), "I was home all night.")
	require.NoError(t, err)
	assert.InDelta(t, 0.42, score, 1e-9)
	require.Len(t, chat.seen, 2)
	assert.Equal(t, schema.System, chat.seen[0].Role)
	assert.Equal(t, "I was home all night.", chat.seen[1].Content)

	chat.reply = "probably true"
	_, err = scorer.Score(context.Background(), "x")
	assert.Error(t, err)

	chat.err = errors.New("rate limited")
	_, err = scorer.Score(context.Background(), "x")
	assert.Error(t, err)

	_, err = scorer.Score(context.Background(), "  ")
	assert.Error(t, err)
}

func TestWhisperxTranscriber(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as the whisperx binary")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "whisperx")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
in="$1"; shift
while [ $# -gt 0 ]; do
  case "$1" in --output_dir) out="$2"; shift;; esac
  shift
done
base=$(basename "$in")
echo "loading model" >&2
printf '{"segments":[{"text":" Hello","start":0.0,"end":1.25},{"text":" world.","start":1.25,"end":2.5}]}' > "$out/${base%.*}.json"
`), 0o755))

	audio := filepath.Join(dir, "voice.memo.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))

	text, err := WhisperxTranscriber{Binary: script}.Transcribe(context.Background(), audio)
	require.NoError(t, err)
	assert.Equal(t, "Hello world.", text)

	failing := filepath.Join(dir, "broken")
	require.NoError(t, os.WriteFile(failing, []byte("#!/bin/sh\nexit 3\n"), 0o755))
	_, err = WhisperxTranscriber{Binary: failing}.Transcribe(context.Background(), audio)
	assert.Error(t, err)
}

func TestWhisperxRejectsBadSegments(t *testing.T) {
	var res whisperxResult
	require.NoError(t, json.Unmarshal([]byte(`{"segments":[{"text":"x","start":2,"end":1}]}`), &res))
	_, err := res.text()
	assert.Error(t, err)

	_, err = whisperxResult{}.text()
	assert.Error(t, err)
}

func TestOpenAITranscriber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		if string(data) != "RIFF" || r.FormValue("model") != "whisper-1" {
			http.Error(w, "unexpected upload", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"hello from whisper"}`)
	}))
	defer srv.Close()

	audio := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))

	tr := NewOpenAITranscriber("test-key", srv.URL+"/v1", "")
	text, err := tr.Transcribe(context.Background(), audio)
	require.NoError(t, err)
	assert.Equal(t, "hello from whisper", text)
}

func TestFactories(t *testing.T) {
	tr, err := NewTranscriber(config.TranscriberConfig{Backend: "mock"})
	require.NoError(t, err)
	assert.IsType(t, MockTranscriber{}, tr)

	tr, err = NewTranscriber(config.TranscriberConfig{Backend: "whisperx", WhisperxBinary: "/opt/whisperx"})
	require.NoError(t, err)
	assert.Equal(t, "/opt/whisperx", tr.(WhisperxTranscriber).Binary)

	_, err = NewTranscriber(config.TranscriberConfig{Backend: "openai"})
	assert.Error(t, err)
	_, err = NewTranscriber(config.TranscriberConfig{Backend: "vosk"})
	assert.Error(t, err)

	sc, err := NewScorer(context.Background(), config.ScorerConfig{Backend: "mock"})
	require.NoError(t, err)
	assert.IsType(t, MockScorer{}, sc)
	_, err = NewScorer(context.Background(), config.ScorerConfig{Backend: "llm", Provider: "openai"})
	assert.Error(t, err)
	_, err = NewScorer(context.Background(), config.ScorerConfig{Backend: "llm", Provider: "mistral", Model: "m"})
	assert.Error(t, err)
	_, err = NewScorer(context.Background(), config.ScorerConfig{Backend: "oracle"})
	assert.Error(t, err)

	fd, err := NewFaceDetector(config.FaceDetectorConfig{Backend: "mock", MockFaces: 2})
	require.NoError(t, err)
	n, err := fd.DetectFaces(context.Background(), "x.mp4")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = NewFaceDetector(config.FaceDetectorConfig{Backend: "opencv"})
	assert.Error(t, err)
}
