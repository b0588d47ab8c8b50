// Package main provides the LINE bot server entry point.
package main

import (
	"context"
	"sync"
	"time"

	"github.com/tcm-emi/linebot-go/internal/config"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/report"
	"github.com/tcm-emi/linebot-go/internal/storage"
)

const (
	// questionRetention is how long raw question texts stay in the log.
	// Old rows only matter for weekly reports, so a quarter is plenty.
	questionRetention = 90 * 24 * time.Hour

	// prunePeriod is how often expired question rows are deleted.
	prunePeriod = 24 * time.Hour
)

// startBackgroundJobs launches the weekly report scheduler and the question
// log pruner. The returned channel closes once both have exited.
func startBackgroundJobs(ctx context.Context, gen *report.Generator, db *storage.DB, cfg *config.Config, log *logger.Logger) <-chan struct{} {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("Panic in weekly report scheduler")
			}
		}()
		scheduleWeeklyReport(ctx, gen, cfg.ReportWeekday, cfg.ReportHour, log)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("Panic in question log pruner")
			}
		}()
		pruneQuestionLog(ctx, db, log)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// scheduleWeeklyReport fires the report generator once a week at the
// configured local weekday and hour.
func scheduleWeeklyReport(ctx context.Context, gen *report.Generator, weekday time.Weekday, hour int, log *logger.Logger) {
	for {
		wait := time.Until(nextReportTime(time.Now(), weekday, hour))
		log.WithField("next_run_in", wait.Round(time.Minute).String()).Info("Weekly report scheduled")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		runCtx, cancel := context.WithTimeout(ctx, weeklyReportBudget)
		if _, err := gen.Run(runCtx); err != nil {
			log.WithError(err).Error("Scheduled weekly report failed")
		}
		cancel()
	}
}

// nextReportTime returns the next occurrence of the weekday/hour pair
// strictly after now.
func nextReportTime(now time.Time, weekday time.Weekday, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	daysAhead := (int(weekday) - int(now.Weekday()) + 7) % 7
	next = next.AddDate(0, 0, daysAhead)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// pruneQuestionLog periodically deletes question rows older than the
// retention window.
func pruneQuestionLog(ctx context.Context, db *storage.DB, log *logger.Logger) {
	ticker := time.NewTicker(prunePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := db.PruneBefore(ctx, time.Now().Add(-questionRetention))
			if err != nil {
				log.WithError(err).Error("Question log prune failed")
				continue
			}
			if deleted > 0 {
				log.WithField("deleted", deleted).Info("Question log pruned")
			}
		}
	}
}
