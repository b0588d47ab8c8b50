package assistant

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/tcm-emi/linebot-go/internal/config"
)

// maxTTSInputRunes is the OpenAI speech endpoint input limit.
const maxTTSInputRunes = 4096

// AudioClient handles Whisper transcription and TTS synthesis. It shares the
// API key with the assistant client but carries its own model settings.
type AudioClient struct {
	api          openai.Client
	whisperModel string
	ttsModel     string
	ttsVoice     string
}

// NewAudioClient creates an audio client from the loaded configuration.
func NewAudioClient(cfg *config.Config) *AudioClient {
	return &AudioClient{
		api:          newAPIClient(cfg),
		whisperModel: cfg.WhisperModel,
		ttsModel:     cfg.TTSModel,
		ttsVoice:     cfg.TTSVoice,
	}
}

// Transcribe runs speech-to-text on the given audio content. LINE delivers
// voice messages as M4A; Whisper accepts the container as-is.
func (a *AudioClient) Transcribe(ctx context.Context, audio io.Reader) (string, error) {
	resp, err := a.api.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(a.whisperModel),
		File:  openai.File(audio, "voice.m4a", "audio/m4a"),
	})
	if err != nil {
		return "", fmt.Errorf("assistant: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Synthesize renders text to MP3 speech and returns the audio bytes together
// with the estimated playback duration.
func (a *AudioClient) Synthesize(ctx context.Context, text string) ([]byte, time.Duration, error) {
	input := text
	if runes := []rune(input); len(runes) > maxTTSInputRunes {
		input = string(runes[:maxTTSInputRunes])
	}

	resp, err := a.api.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model: openai.SpeechModel(a.ttsModel),
		Voice: openai.AudioSpeechNewParamsVoice(a.ttsVoice),
		Input: input,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("assistant: synthesize: %w", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, 0, fmt.Errorf("assistant: read synthesized audio: %w", err)
	}
	return buf.Bytes(), EstimateSpeechDuration(input), nil
}

// EstimateSpeechDuration estimates TTS playback time from the word count at
// roughly 2.2 words per second, with a one second floor. LINE requires a
// duration on audio messages and the speech endpoint does not report one.
func EstimateSpeechDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	ms := int64(float64(words) / 2.2 * 1000)
	if ms < 1000 {
		ms = 1000
	}
	return time.Duration(ms) * time.Millisecond
}
