// Package speech wraps Google Cloud Speech-to-Text and Text-to-Speech.
package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"google.golang.org/api/option"
	speechapi "google.golang.org/api/speech/v1"
	"google.golang.org/api/texttospeech/v1"

	"github.com/pysugar/roleplay-nexus/internal/logging"
)

const (
	sttTimeout = 120 * time.Second
	ttsTimeout = 30 * time.Second

	audioEncoding = "WEBM_OPUS"
	languageCode  = "en-US"

	englishLanguage  = "en-US"
	englishVoice     = "en-US-Wavenet-D"
	mandarinLanguage = "cmn-CN"
	mandarinVoice    = "cmn-CN-Wavenet-A"

	dataURIPrefix = "data:audio/mp3;base64,"
)

var alternativeLanguages = []string{"zh-CN", "en-US"}

var (
	ErrNoAudio = errors.New("speech synthesis returned no audio")
	ErrNoText  = errors.New("no text provided")
)

type Client struct {
	stt *speechapi.Service
	tts *texttospeech.Service
}

// New creates both API services. apiKey is the Google Cloud API key; extra
// options are appended after it.
func New(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Client, error) {
	all := make([]option.ClientOption, 0, len(opts)+1)
	if apiKey != "" {
		all = append(all, option.WithAPIKey(apiKey))
	}
	all = append(all, opts...)

	stt, err := speechapi.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create speech service: %w", err)
	}
	tts, err := texttospeech.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create text-to-speech service: %w", err)
	}
	return &Client{stt: stt, tts: tts}, nil
}

// Transcribe returns the top transcript of a WEBM/Opus recording, or an empty
// string when nothing was recognized.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, sttTimeout)
	defer cancel()

	resp, err := c.stt.Speech.Recognize(&speechapi.RecognizeRequest{
		Config: &speechapi.RecognitionConfig{
			Encoding:                 audioEncoding,
			LanguageCode:             languageCode,
			AlternativeLanguageCodes: alternativeLanguages,
		},
		Audio: &speechapi.RecognitionAudio{
			Content: base64.StdEncoding.EncodeToString(audio),
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}

	transcript := ""
	if len(resp.Results) > 0 && len(resp.Results[0].Alternatives) > 0 {
		transcript = resp.Results[0].Alternatives[0].Transcript
	}
	logging.FromContext(ctx).Info("speech recognized", "file_name", filename, "transcript", transcript)
	return transcript, nil
}

// Synthesize renders text as MP3 and returns it as a data URI.
func (c *Client) Synthesize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	ctx, cancel := context.WithTimeout(ctx, ttsTimeout)
	defer cancel()

	lang, voice := SelectVoice(text)
	resp, err := c.tts.Text.Synthesize(&texttospeech.SynthesizeSpeechRequest{
		Input:       &texttospeech.SynthesisInput{Text: text},
		Voice:       &texttospeech.VoiceSelectionParams{LanguageCode: lang, Name: voice},
		AudioConfig: &texttospeech.AudioConfig{AudioEncoding: "MP3"},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}
	if resp.AudioContent == "" {
		logging.FromContext(ctx).Error("text-to-speech returned no audio", "voice", voice)
		return "", ErrNoAudio
	}
	return dataURIPrefix + resp.AudioContent, nil
}

// SelectVoice picks a Mandarin voice for text containing Han characters and
// an English voice otherwise.
func SelectVoice(text string) (languageCode, voiceName string) {
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			return mandarinLanguage, mandarinVoice
		}
	}
	return englishLanguage, englishVoice
}
