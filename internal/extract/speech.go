package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/sirupsen/logrus"
)

const speechTimeout = 5 * time.Minute

// SpeechExtractor transcribes audio with Google Speech-to-Text.
type SpeechExtractor struct {
	client   *speech.Client
	language string
	log      *logrus.Logger
}

// NewSpeechExtractor creates a Speech-to-Text client. language defaults to
// en-US.
func NewSpeechExtractor(ctx context.Context, language string, log *logrus.Logger) (*SpeechExtractor, error) {
	c, err := speech.NewClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	if language == "" {
		language = "en-US"
	}

	return &SpeechExtractor{client: c, language: language, log: log}, nil
}

// Close releases the client.
func (e *SpeechExtractor) Close() error {
	return e.client.Close()
}

// Extract implements Extractor.
func (e *SpeechExtractor) Extract(ctx context.Context, in Input) (*Document, error) {
	text, err := e.Transcribe(ctx, in.Data, inferEncoding(in.MimeType, in.Name), 0)
	if err != nil {
		return nil, err
	}

	return &Document{Text: text, Metadata: map[string]any{"extractor": "speech", "language": e.language}}, nil
}

// Transcribe runs a long-running recognition over inline audio. A zero
// sampleRate lets the service read it from the file header.
func (e *SpeechExtractor) Transcribe(
	ctx context.Context,
	audio []byte,
	enc speechpb.RecognitionConfig_AudioEncoding,
	sampleRate int32,
) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, speechTimeout)
	defer cancel()

	op, err := e.client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               e.language,
			Encoding:                   enc,
			SampleRateHertz:            sampleRate,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	})
	if err != nil {
		return "", fmt.Errorf("speech LongRunningRecognize: %w", err)
	}

	resp, err := op.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("speech wait: %w", err)
	}

	return transcript(resp), nil
}

// transcript joins the top alternative of every result.
func transcript(resp *speechpb.LongRunningRecognizeResponse) string {
	if resp == nil {
		return ""
	}

	parts := make([]string, 0, len(resp.GetResults()))

	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}

		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}

	return strings.Join(parts, " ")
}

func inferEncoding(mimeType, name string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(mimeType)
	n := strings.ToLower(name)

	switch {
	case strings.Contains(m, "wav") || strings.HasSuffix(n, ".wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac") || strings.HasSuffix(n, ".flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mpeg") || strings.Contains(m, "mp3") || strings.HasSuffix(n, ".mp3"):
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "ogg") || strings.Contains(m, "opus") || strings.HasSuffix(n, ".ogg") || strings.HasSuffix(n, ".opus"):
		return speechpb.RecognitionConfig_OGG_OPUS
	case strings.Contains(m, "webm") || strings.HasSuffix(n, ".webm"):
		return speechpb.RecognitionConfig_WEBM_OPUS
	}

	return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
}
