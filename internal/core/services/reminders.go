package services

import (
	"context"
	"log/slog"

	"asso-manager/internal/core/domain"

	"golang.org/x/time/rate"
)

// ReminderReport summarises one reminder pass
type ReminderReport struct {
	Candidates int `json:"candidates"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
}

// NewReminderLimiter returns the limiter shared by reminder passes.
// perSecond <= 0 disables throttling.
func NewReminderLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// dispatchReminders calls send for each of the n candidates, throttled by limiter.
// Individual failures are logged and counted; only ctx cancellation aborts the pass.
func dispatchReminders(ctx context.Context, limiter *rate.Limiter, log *slog.Logger, n int, send func(ctx context.Context, i int) (recipient string, err error)) (ReminderReport, error) {
	report := ReminderReport{Candidates: n}
	for i := 0; i < n; i++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return report, err
			}
		}
		recipient, err := send(ctx, i)
		if err != nil {
			report.Failed++
			log.Warn("reminder not delivered",
				slog.String("recipient", recipient),
				slog.String("error_kind", domain.ErrorKind(err)),
				slog.Any("error", err),
			)
			continue
		}
		report.Sent++
	}
	return report, nil
}
