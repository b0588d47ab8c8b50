// Package voice is the background pipeline behind audio messages: download
// from the LINE blob API, Whisper transcription, then mode-dependent coaching
// with TTS playback of the corrected sentence.
package voice

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/tcm-emi/linebot-go/internal/bot"
	"github.com/tcm-emi/linebot-go/internal/coach"
	"github.com/tcm-emi/linebot-go/internal/lineutil"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/mediastore"
	"github.com/tcm-emi/linebot-go/internal/metrics"
	"github.com/tcm-emi/linebot-go/internal/session"
	"github.com/tcm-emi/linebot-go/internal/syllabus"
)

const (
	failureMessage = "❌ 語音辨識或處理失敗，請再試一次。"

	// audioTTL bounds the Redis fallback copy served via /audio/:token.
	audioTTL = 10 * time.Minute
)

// ContentFetcher downloads the raw audio content of a LINE message.
type ContentFetcher interface {
	Fetch(ctx context.Context, messageID string) (io.ReadCloser, error)
}

// Audio is the transcription and synthesis surface.
// Satisfied by *assistant.AudioClient.
type Audio interface {
	Transcribe(ctx context.Context, audio io.Reader) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, time.Duration, error)
}

type lineFetcher struct {
	blob *messaging_api.MessagingApiBlobAPI
}

// NewContentFetcher creates a fetcher backed by the LINE blob API.
func NewContentFetcher(channelToken string) (ContentFetcher, error) {
	blob, err := messaging_api.NewMessagingApiBlobAPI(channelToken)
	if err != nil {
		return nil, err
	}
	return &lineFetcher{blob: blob}, nil
}

func (f *lineFetcher) Fetch(_ context.Context, messageID string) (io.ReadCloser, error) {
	resp, err := f.blob.GetMessageContent(messageID)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Pipeline processes one voice message end to end. It implements
// bot.VoiceRunner.
type Pipeline struct {
	fetcher       ContentFetcher
	audio         Audio
	sessions      *session.Store
	coach         *coach.Coach
	syl           *syllabus.Syllabus
	registry      *bot.Registry
	pusher        bot.Pusher
	media         *mediastore.Client
	publicBaseURL string
	logger        *logger.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

// Config wires the pipeline dependencies. Media may be nil; the Redis
// fallback then serves TTS audio.
type Config struct {
	Fetcher       ContentFetcher
	Audio         Audio
	Sessions      *session.Store
	Coach         *coach.Coach
	Syllabus      *syllabus.Syllabus
	Registry      *bot.Registry
	Pusher        bot.Pusher
	Media         *mediastore.Client
	PublicBaseURL string
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
}

// New creates the voice pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		fetcher:       cfg.Fetcher,
		audio:         cfg.Audio,
		sessions:      cfg.Sessions,
		coach:         cfg.Coach,
		syl:           cfg.Syllabus,
		registry:      cfg.Registry,
		pusher:        cfg.Pusher,
		media:         cfg.Media,
		publicBaseURL: cfg.PublicBaseURL,
		logger:        cfg.Logger.WithModule("voice"),
		metrics:       cfg.Metrics,
		now:           time.Now,
	}
}

// Run executes the pipeline for one voice message. Any failure pushes a retry
// message so the user is never left waiting.
func (p *Pipeline) Run(ctx context.Context, userID, messageID string) error {
	start := p.now()
	err := p.run(ctx, userID, messageID)
	p.metrics.RecordVoiceDuration(time.Since(start).Seconds())

	if err != nil {
		p.logger.WithError(err).WithUserID(userID).Error("Voice pipeline failed")
		if pushErr := p.pusher.Push(ctx, userID, lineutil.TextWithMainQuickReplies(failureMessage)); pushErr != nil {
			p.logger.WithError(pushErr).WithUserID(userID).Warn("Failure message not delivered")
		}
	}
	return err
}

func (p *Pipeline) run(ctx context.Context, userID, messageID string) error {
	content, err := p.fetcher.Fetch(ctx, messageID)
	if err != nil {
		p.metrics.RecordVoiceStage("download", "error")
		return err
	}
	defer content.Close()
	p.metrics.RecordVoiceStage("download", "success")

	transcript, err := p.audio.Transcribe(ctx, content)
	if err != nil || transcript == "" {
		p.metrics.RecordVoiceStage("transcribe", "error")
		if err != nil {
			return err
		}
		return p.pusher.Push(ctx, userID, lineutil.TextWithMainQuickReplies("沒有聽清楚，請再說一次～"))
	}
	p.metrics.RecordVoiceStage("transcribe", "success")

	if err := p.pusher.Push(ctx, userID, lineutil.NewTextMessage("🎤 辨識內容：「"+transcript+"」")); err != nil {
		return err
	}

	switch p.sessions.Mode(ctx, userID) {
	case session.ModeSpeaking:
		return p.runSpeaking(ctx, userID, transcript)
	case session.ModeWriting:
		return p.runWriting(ctx, userID, transcript)
	default:
		return p.runText(ctx, userID, transcript)
	}
}

// runSpeaking evaluates pronunciation and grammar, then reads the corrected
// sentence back to the student.
func (p *Pipeline) runSpeaking(ctx context.Context, userID, transcript string) error {
	eval := p.coach.EvaluateSpeech(ctx, transcript)
	p.metrics.RecordVoiceStage("evaluate", eval.Status)

	if eval.IsCorrect() {
		return p.pusher.Push(ctx, userID, lineutil.NewTextMessageWithQuickReply(
			"發音非常標準！太棒了！\n\n要再練習下一句嗎？",
			lineutil.SpeakingQuickReplies()...,
		))
	}

	feedback := "📊 口說練習回饋\n\n" + eval.Feedback
	if report := p.shadowReport(transcript, eval.Corrected); report != "" {
		feedback += "\n\n" + report
	}
	feedback += "\n\n🔊 請跟著唸：「" + eval.Corrected + "」"
	if err := p.pusher.Push(ctx, userID, lineutil.NewTextMessage(feedback)); err != nil {
		return err
	}

	return p.pushDemoAudio(ctx, userID, eval.Corrected)
}

// pushDemoAudio synthesizes the corrected sentence and delivers it as an
// audio message. TTS or hosting trouble degrades to a text fallback.
func (p *Pipeline) pushDemoAudio(ctx context.Context, userID, corrected string) error {
	data, duration, err := p.audio.Synthesize(ctx, corrected)
	if err != nil {
		p.metrics.RecordVoiceStage("tts", "error")
		p.logger.WithError(err).WithUserID(userID).Warn("TTS synthesis failed")
		return p.pushTextFallback(ctx, userID, corrected)
	}

	url, err := p.hostAudio(ctx, data)
	if err != nil {
		p.metrics.RecordVoiceStage("tts", "error")
		p.logger.WithError(err).WithUserID(userID).Warn("TTS audio not hosted")
		return p.pushTextFallback(ctx, userID, corrected)
	}
	p.metrics.RecordVoiceStage("tts", "success")

	messages := []messaging_api.MessageInterface{
		lineutil.NewAudioMessage(url, int(duration.Milliseconds())),
		lineutil.NewTextMessage("示範語音已送上，要再練習下一句嗎？"),
	}
	lineutil.AddQuickReplyToMessages(messages, lineutil.SpeakingQuickReplies()...)
	return p.pusher.Push(ctx, userID, messages...)
}

func (p *Pipeline) pushTextFallback(ctx context.Context, userID, corrected string) error {
	return p.pusher.Push(ctx, userID, lineutil.NewTextMessageWithQuickReply(
		"修正文本：「"+corrected+"」\n\n要再練習下一句嗎？",
		lineutil.SpeakingQuickReplies()...,
	))
}

// hostAudio stores the MP3 in the media store when configured, otherwise in
// Redis behind the /audio/:token route.
func (p *Pipeline) hostAudio(ctx context.Context, data []byte) (string, error) {
	token := uuid.NewString()

	if p.media.Enabled() {
		return p.media.Upload(ctx, "tts/"+token+".mp3", bytes.NewReader(data), "audio/mpeg")
	}

	if err := p.sessions.PutAudio(ctx, token, data, audioTTL); err != nil {
		return "", err
	}
	return p.publicBaseURL + "/audio/" + token, nil
}

func (p *Pipeline) runWriting(ctx context.Context, userID, transcript string) error {
	feedback, err := p.coach.ReviseWriting(ctx, p.syl.WritingInstructions(), transcript)
	if err != nil {
		return err
	}
	return p.pusher.Push(ctx, userID, lineutil.NewTextMessageWithQuickReply(
		feedback, lineutil.WritingQuickReplies()...,
	))
}

// runText routes the transcript through the regular text handlers, so voice
// questions get the same course-inquiry / off-topic / assistant treatment.
func (p *Pipeline) runText(ctx context.Context, userID, transcript string) error {
	ev := &bot.Event{
		UserID: userID,
		Text:   transcript,
		Mode:   p.sessions.Mode(ctx, userID),
		State:  p.sessions.State(ctx, userID),
	}
	reply, name, err := p.registry.Dispatch(ctx, ev)
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	p.logger.WithUserID(userID).WithField("handler", name).Debug("Voice transcript routed")

	if len(reply.Messages) > 0 {
		if err := p.pusher.Push(ctx, userID, reply.Messages...); err != nil {
			return err
		}
	}
	if reply.Job != nil {
		return reply.Job.Run(ctx)
	}
	return nil
}

// shadowReport compares the transcript against the corrected sentence, using
// the current week's keywords as the terms to check.
func (p *Pipeline) shadowReport(transcript, reference string) string {
	if reference == "" {
		return ""
	}
	var terms []string
	if lec, ok := p.syl.CurrentWeekLecture(p.now()); ok {
		terms = lec.Keywords
	}
	report := Shadow(transcript, reference, terms)
	return report.Render()
}
