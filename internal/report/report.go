// Package report builds the weekly learning-analysis report: the last seven
// days of logged questions are clustered into concepts, ranked, rendered as a
// chart + PDF, and mailed to the course staff.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tcm-emi/linebot-go/internal/coach"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/metrics"
	"github.com/tcm-emi/linebot-go/internal/storage"
)

const (
	reportWindow = 7 * 24 * time.Hour

	emailSubject  = "LINE TCM Bot 每週學習分析報告"
	emailBody     = "本週前十大困惑觀念報告如附件。"
	attachmentPDF = "weekly_learning_report.pdf"

	// labelConcurrency bounds parallel concept-labeling calls.
	labelConcurrency = 4
)

// Mailer delivers the finished report. Satisfied by *SMTPMailer.
type Mailer interface {
	Send(subject, body, attachmentName string, attachment []byte) error
}

// ConceptCount is one ranked entry in the report.
type ConceptCount struct {
	Concept string
	Count   int
}

// Summary describes what a report run produced.
type Summary struct {
	Questions int
	Concepts  []ConceptCount
	Emailed   bool
}

// Generator runs the weekly report job.
type Generator struct {
	db        *storage.DB
	coach     *coach.Coach
	mailer    Mailer
	batchSize int
	topN      int
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	buildPDF  func(concepts []ConceptCount, chartPNG []byte, totalQuestions int, from, to time.Time) ([]byte, error)
}

// New creates the report generator. mailer may be nil; the report is then
// built but not sent, which keeps the cron endpoint usable in staging.
func New(db *storage.DB, c *coach.Coach, mailer Mailer, batchSize, topN int, log *logger.Logger, m *metrics.Metrics) *Generator {
	if batchSize <= 0 {
		batchSize = 20
	}
	if topN <= 0 {
		topN = 10
	}
	return &Generator{
		db:        db,
		coach:     c,
		mailer:    mailer,
		batchSize: batchSize,
		topN:      topN,
		logger:    log.WithModule("report"),
		metrics:   m,
		now:       time.Now,
		buildPDF:  buildPDF,
	}
}

// Run generates and delivers one weekly report.
func (g *Generator) Run(ctx context.Context) (Summary, error) {
	start := g.now()
	summary, err := g.run(ctx)
	status := "success"
	switch {
	case err != nil:
		status = "error"
	case summary.Questions == 0:
		status = "empty"
	}
	g.metrics.RecordReportRun(status, time.Since(start).Seconds())
	return summary, err
}

func (g *Generator) run(ctx context.Context) (Summary, error) {
	cutoff := g.now().Add(-reportWindow)
	questions, err := g.db.QuestionsSince(ctx, cutoff)
	if err != nil {
		return Summary{}, fmt.Errorf("report: load questions: %w", err)
	}
	if len(questions) == 0 {
		g.logger.Info("本週無提問資料，未產出報告")
		return Summary{}, nil
	}

	texts := make([]string, len(questions))
	for i, q := range questions {
		texts[i] = q.Text
	}

	labels := g.labelAll(ctx, texts)
	top := g.aggregate(labels)
	summary := Summary{Questions: len(questions), Concepts: top}

	chartPNG, err := renderChart(top)
	if err != nil {
		g.logger.WithError(err).Warn("Chart rendering failed, report continues without it")
		chartPNG = nil
	}

	pdf, err := g.buildPDF(top, chartPNG, len(questions), cutoff, g.now())
	if err != nil {
		return summary, fmt.Errorf("report: build pdf: %w", err)
	}

	if g.mailer == nil {
		g.logger.Info("No mailer configured, report not sent")
		return summary, nil
	}
	if err := g.mailer.Send(emailSubject, emailBody, attachmentPDF, pdf); err != nil {
		return summary, fmt.Errorf("report: send mail: %w", err)
	}
	summary.Emailed = true
	g.logger.WithField("questions", len(questions)).Info("Weekly report sent")
	return summary, nil
}

// labelAll assigns a concept label to every question text, running batches
// concurrently. A failed batch degrades to the default category inside the
// coach, so the result always lines up with texts.
func (g *Generator) labelAll(ctx context.Context, texts []string) []string {
	labels := make([]string, len(texts))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(labelConcurrency)
	for i := 0; i < len(texts); i += g.batchSize {
		lo, hi := i, i+g.batchSize
		if hi > len(texts) {
			hi = len(texts)
		}
		eg.Go(func() error {
			copy(labels[lo:hi], g.coach.LabelConcepts(egCtx, texts[lo:hi]))
			return nil
		})
	}
	_ = eg.Wait()
	return labels
}

func (g *Generator) aggregate(labels []string) []ConceptCount {
	counts := make(map[string]int)
	for _, l := range labels {
		if l == "" {
			l = coach.DefaultCategory
		}
		counts[l]++
	}

	ranked := make([]ConceptCount, 0, len(counts))
	for concept, count := range counts {
		ranked = append(ranked, ConceptCount{Concept: concept, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Concept < ranked[j].Concept
	})

	if len(ranked) > g.topN {
		ranked = ranked[:g.topN]
	}
	return ranked
}
