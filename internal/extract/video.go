package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/sirupsen/logrus"
)

const (
	ffmpegTimeout   = 3 * time.Minute
	audioSampleRate = 16000
)

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, enc speechpb.RecognitionConfig_AudioEncoding, sampleRate int32) (string, error)
}

// VideoExtractor demuxes the audio track with ffmpeg and transcribes it.
type VideoExtractor struct {
	ffmpegPath  string
	transcriber Transcriber
	log         *logrus.Logger
}

// NewVideoExtractor creates a VideoExtractor. ffmpegPath defaults to
// "ffmpeg" on PATH.
func NewVideoExtractor(ffmpegPath string, transcriber Transcriber, log *logrus.Logger) *VideoExtractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	return &VideoExtractor{ffmpegPath: ffmpegPath, transcriber: transcriber, log: log}
}

// Extract implements Extractor.
func (e *VideoExtractor) Extract(ctx context.Context, in Input) (*Document, error) {
	dir, err := os.MkdirTemp("", "mua-video-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	defer os.RemoveAll(dir) //nolint:errcheck // temp cleanup.

	inPath := filepath.Join(dir, "input"+filepath.Ext(in.Name))
	outPath := filepath.Join(dir, "audio.flac")

	if err := os.WriteFile(inPath, in.Data, 0o600); err != nil {
		return nil, fmt.Errorf("writing video: %w", err)
	}

	if err := e.demux(ctx, inPath, outPath); err != nil {
		return nil, err
	}

	audio, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("reading demuxed audio: %w", err)
	}

	text, err := e.transcriber.Transcribe(ctx, audio, speechpb.RecognitionConfig_FLAC, audioSampleRate)
	if err != nil {
		return nil, err
	}

	return &Document{Text: text, Metadata: map[string]any{"extractor": "ffmpeg+speech"}}, nil
}

func (e *VideoExtractor) demux(ctx context.Context, inPath, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, ffmpegTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, e.ffmpegPath, ffmpegArgs(inPath, outPath)...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio failed: %w; out=%s", err, tail(out, 512))
	}

	if _, err := os.Stat(outPath); err != nil {
		return fmt.Errorf("audio output missing at %s", outPath)
	}

	return nil
}

// ffmpegArgs converts the input to 16 kHz mono FLAC without video.
func ffmpegArgs(inPath, outPath string) []string {
	return []string{
		"-y",
		"-i", inPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(audioSampleRate),
		"-f", "flac",
		outPath,
	}
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}

	return string(b)
}
