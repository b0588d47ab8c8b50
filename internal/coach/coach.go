package coach

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/metrics"
)

// Speech evaluation statuses.
const (
	SpeechCorrect          = "Correct"
	SpeechNeedsImprovement = "NeedsImprovement"
)

// DefaultCategory is assigned when the model does not name a concept.
const DefaultCategory = "其他"

// conceptBatchSize is the number of questions labeled per request.
const conceptBatchSize = 20

// SpeechEvaluation is the result of grading a spoken sentence.
type SpeechEvaluation struct {
	Status    string `json:"status"`
	Feedback  string `json:"feedback"`
	Corrected string `json:"corrected"`
}

// IsCorrect reports whether the sentence needs no correction.
func (e SpeechEvaluation) IsCorrect() bool {
	return e.Status == SpeechCorrect
}

// QuizItem is a generated open-ended quiz question.
type QuizItem struct {
	Question       string `json:"question"`
	AnswerCriteria string `json:"answer_criteria"`
	Category       string `json:"category"`
}

// QuizJudgement is the grading result for a student's quiz answer.
type QuizJudgement struct {
	Feedback string `json:"feedback"`
	Category string `json:"category"`
	Correct  bool   `json:"correct"`
}

// Coach runs coaching tasks against the primary provider with retry, falling
// back to the secondary provider on quota exhaustion or persistent failure.
type Coach struct {
	primary  Provider
	fallback Provider
	retry    RetryConfig
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

// New creates a Coach. fallback may be nil.
func New(primary Provider, fallback Provider, log *logger.Logger, m *metrics.Metrics) *Coach {
	return &Coach{
		primary:  primary,
		fallback: fallback,
		retry:    DefaultRetryConfig(),
		logger:   log.WithModule("coach"),
		metrics:  m,
	}
}

// complete runs one request through primary-with-retry, then fallback.
func (c *Coach) complete(ctx context.Context, task string, req Request) (string, error) {
	reply, err := c.completeWith(ctx, c.primary, task, req)
	if err == nil {
		return reply, nil
	}

	if c.fallback == nil {
		return "", err
	}

	action := ClassifyError(err)
	c.logger.WithError(err).
		WithField("task", task).
		WithField("action", action.String()).
		Warn("Primary provider failed, trying fallback")

	reply, fbErr := c.completeWith(ctx, c.fallback, task, req)
	if fbErr != nil {
		return "", fmt.Errorf("coach: all providers failed: %w", err)
	}
	return reply, nil
}

func (c *Coach) completeWith(ctx context.Context, p Provider, task string, req Request) (string, error) {
	var reply string
	start := time.Now()
	err := withRetry(ctx, c.retry, func() error {
		var callErr error
		reply, callErr = p.Complete(ctx, req)
		return callErr
	})
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordCoachRequest(task, p.Name(), status, duration)
	}
	return reply, err
}

// EvaluateSpeech grades a speech transcript for grammar, spelling, word
// choice, and semantic completeness. An empty transcript or an unparseable
// reply is treated as correct so practice never blocks on model hiccups.
func (c *Coach) EvaluateSpeech(ctx context.Context, transcript string) SpeechEvaluation {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return SpeechEvaluation{Status: SpeechCorrect}
	}

	reply, err := c.complete(ctx, "speech_eval", Request{
		System:    speechEvalSystemPrompt,
		User:      "學生說出的內容：" + clip(transcript, 500),
		MaxTokens: 250,
	})
	if err != nil {
		c.logger.WithError(err).Warn("Speech evaluation failed, treating as correct")
		return SpeechEvaluation{Status: SpeechCorrect}
	}

	var eval SpeechEvaluation
	if !decodeJSONObject(reply, &eval) {
		return SpeechEvaluation{Status: SpeechCorrect}
	}
	if eval.Status != SpeechCorrect && eval.Status != SpeechNeedsImprovement {
		eval.Status = SpeechCorrect
	}
	eval.Feedback = clip(strings.TrimSpace(eval.Feedback), 400)
	eval.Corrected = clip(strings.TrimSpace(eval.Corrected), 500)
	return eval
}

// ReviseWriting analyzes a sentence or paragraph in writing-revision mode.
// systemPrompt carries the writing-mode instructions.
func (c *Coach) ReviseWriting(ctx context.Context, systemPrompt, text string) (string, error) {
	reply, err := c.complete(ctx, "writing_revision", Request{
		System:    systemPrompt,
		User:      "請分析以下句子或段落：\n\n" + clip(text, 1500),
		MaxTokens: 800,
	})
	if err != nil {
		return "", err
	}
	if reply == "" {
		reply = "已收到你的練習！歡迎繼續貼上其他句子～"
	}
	return reply, nil
}

// GenerateQuiz produces an open-ended quiz question. When discussedTopic is
// set the question targets it; otherwise it targets weekTopic. Never fails:
// on any error a canned question about the topic is returned.
func (c *Coach) GenerateQuiz(ctx context.Context, discussedTopic, lastContext, weekTopic string) QuizItem {
	discussedTopic = strings.TrimSpace(discussedTopic)
	if discussedTopic != "" {
		user := "剛才討論的主題（使用者問的）：" + clip(discussedTopic, 200)
		if ctxText := strings.TrimSpace(lastContext); len(ctxText) > 30 {
			user += "\n助教剛才的回答摘要：" + clip(ctxText, 500)
		}
		user += "\n\n請針對此主題出一道開放式簡答題，回傳 JSON。"

		if item, ok := c.quizRequest(ctx, quizFromTopicSystemPrompt, user); ok {
			return item
		}
	}

	topic := strings.TrimSpace(weekTopic)
	if topic == "" {
		topic = "中醫基礎觀念"
	}
	user := "本週主題：" + topic
	if ctxText := strings.TrimSpace(lastContext); len(ctxText) > 50 {
		user += "\n（若與以下近期討論相關可結合出題）近期：" + clip(ctxText, 400)
	}
	user += "\n\n請出一道小測驗，回傳 JSON。"

	if item, ok := c.quizRequest(ctx, quizFromWeekSystemPrompt, user); ok {
		return item
	}

	return QuizItem{
		Question:       fmt.Sprintf("小測驗：請用 1～2 句話說明本週主題「%s」的一個重點。", topic),
		AnswerCriteria: topic,
		Category:       DefaultCategory,
	}
}

func (c *Coach) quizRequest(ctx context.Context, system, user string) (QuizItem, bool) {
	reply, err := c.complete(ctx, "quiz_generate", Request{
		System:    system,
		User:      user,
		MaxTokens: 350,
	})
	if err != nil {
		c.logger.WithError(err).Warn("Quiz generation failed")
		return QuizItem{}, false
	}

	var item QuizItem
	if !decodeJSONObject(reply, &item) {
		return QuizItem{}, false
	}
	item.Question = clip(strings.TrimSpace(item.Question), 400)
	if item.Question == "" {
		return QuizItem{}, false
	}
	if !strings.HasPrefix(item.Question, "小測驗") {
		item.Question = "小測驗：" + item.Question
	}
	item.AnswerCriteria = clip(strings.TrimSpace(item.AnswerCriteria), 600)
	if item.AnswerCriteria == "" {
		item.AnswerCriteria = item.Question
	}
	item.Category = clip(strings.TrimSpace(item.Category), 20)
	if item.Category == "" {
		item.Category = DefaultCategory
	}
	return item, true
}

// JudgeQuizAnswer grades a student's answer. The feedback always contains
// praise, a correctness verdict, and an explanation. Errors degrade to a
// friendly acknowledgment marked correct so no weak category is recorded.
func (c *Coach) JudgeQuizAnswer(ctx context.Context, question, studentReply, answerCriteria string) QuizJudgement {
	user := "題目：" + clip(question, 250)
	if answerCriteria != "" {
		user += "\n正確答案要點（供評分參考）：" + clip(answerCriteria, 400)
	}
	user += "\n\n學生回答：" + clip(studentReply, 400) + "\n\n請批改（含稱讚、判斷、詳解）並回傳 JSON。"

	reply, err := c.complete(ctx, "quiz_judge", Request{
		System:    quizJudgeSystemPrompt,
		User:      user,
		MaxTokens: 350,
	})
	if err != nil {
		c.logger.WithError(err).Warn("Quiz judging failed")
		return QuizJudgement{Feedback: "謝謝你的回答！", Category: DefaultCategory, Correct: true}
	}

	judgement := QuizJudgement{Correct: true}
	if !decodeJSONObject(reply, &judgement) {
		text := clip(strings.TrimSpace(reply), 400)
		if text == "" {
			text = "謝謝你的回答！"
		}
		return QuizJudgement{Feedback: text, Category: DefaultCategory, Correct: true}
	}

	judgement.Feedback = clip(strings.TrimSpace(judgement.Feedback), 600)
	if judgement.Feedback == "" {
		judgement.Feedback = "謝謝你的回答！"
	}
	judgement.Category = clip(strings.TrimSpace(judgement.Category), 20)
	if judgement.Category == "" {
		judgement.Category = DefaultCategory
	}
	return judgement
}

// RevealQuizAnswer explains the correct answer when the student gives up.
func (c *Coach) RevealQuizAnswer(ctx context.Context, question, answerCriteria string) string {
	if strings.TrimSpace(question) == "" || answerCriteria == "" {
		return "參考課本與講義複習本週重點～"
	}

	reply, err := c.complete(ctx, "quiz_reveal", Request{
		System:    quizRevealSystemPrompt,
		User:      "題目：" + clip(question, 300) + "\n正確答案要點：" + clip(answerCriteria, 400) + "\n請公佈答案並簡短說明。",
		MaxTokens: 200,
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		return clip(answerCriteria, 400)
	}
	return clip(strings.TrimSpace(reply), 500)
}

// GenerateReviewNote produces a short bullet-point review note for a concept
// the student keeps missing.
func (c *Coach) GenerateReviewNote(ctx context.Context, category string) string {
	reply, err := c.complete(ctx, "review_note", Request{
		System:    reviewNoteSystemPrompt,
		User:      "領域：" + category + "\n請產出複習筆記。",
		MaxTokens: 500,
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		return fmt.Sprintf("【%s】複習要點請參考課本與講義。", category)
	}
	return clip(strings.TrimSpace(reply), 1500)
}

// LabelConcepts assigns one short concept label per question text.
// The returned slice always has the same length as texts; requests are made
// in batches and any failure fills the batch with the default category.
func (c *Coach) LabelConcepts(ctx context.Context, texts []string) []string {
	labels := make([]string, 0, len(texts))
	for i := 0; i < len(texts); i += conceptBatchSize {
		end := i + conceptBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		labels = append(labels, c.labelBatch(ctx, texts[i:end])...)
	}
	return labels
}

func (c *Coach) labelBatch(ctx context.Context, batch []string) []string {
	fallback := make([]string, len(batch))
	for i := range fallback {
		fallback[i] = DefaultCategory
	}

	reply, err := c.complete(ctx, "concept_label", Request{
		User:      conceptLabelPromptPrefix + strings.Join(batch, "\n"),
		MaxTokens: 300,
	})
	if err != nil {
		c.logger.WithError(err).Warn("Concept labeling failed for batch")
		return fallback
	}

	var labels []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		labels = append(labels, fields[len(fields)-1])
	}

	// Pad or trim to the batch size.
	for len(labels) < len(batch) {
		labels = append(labels, DefaultCategory)
	}
	return labels[:len(batch)]
}

// clip truncates s to at most n runes without adding an ellipsis.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
