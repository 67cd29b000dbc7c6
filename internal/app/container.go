// Package app wires the repositories and services shared by the binaries.
package app

import (
	"fmt"
	"log/slog"

	"asso-manager/internal/adapters/persistence/repositories"
	"asso-manager/internal/config"
	"asso-manager/internal/core/services"
	"asso-manager/internal/pkg/clock"

	"gorm.io/gorm"
)

// Container holds the application services
type Container struct {
	Config        *config.Config
	Logger        *slog.Logger
	Store         *repositories.Store
	Notifications *services.NotificationService
	Members       *services.MemberService
	Dues          *services.DuesService
	Events        *services.EventService
	Maintenance   *services.MaintenanceService
}

// New builds every service over db
func New(cfg *config.Config, db *gorm.DB, logger *slog.Logger) (*Container, error) {
	// Initialize store
	store := repositories.NewStore(db)
	clk := clock.System{}

	// Initialize notifications
	mailer, err := services.NewMailer(cfg.Mail, logger)
	if err != nil {
		return nil, fmt.Errorf("mailer: %w", err)
	}
	notifications := services.NewNotificationService(mailer, services.NotificationConfig{
		AssociationName: cfg.Mail.AssociationName,
		FrontendURL:     cfg.FrontendURL,
		Timeout:         cfg.Mail.Timeout,
		BreakerFailures: cfg.Mail.BreakerFailures,
		BreakerCooldown: cfg.Mail.BreakerCooldown,
		Location:        cfg.Location,
	}, logger)
	if !notifications.IsEnabled() {
		logger.Warn("📧 no mail transport configured, emails are only logged")
	}

	// Initialize services
	limiter := services.NewReminderLimiter(cfg.Scheduler.ReminderRatePerSecond)
	members := services.NewMemberService(store, notifications, clk, cfg.Location, cfg.BcryptCost, logger)
	dues := services.NewDuesService(store, clk, cfg.Location, logger)
	events := services.NewEventService(store, notifications, clk, cfg.Location, limiter, logger)
	maintenance := services.NewMaintenanceService(
		dues,
		events,
		members,
		notifications,
		clk,
		cfg.Location,
		limiter,
		cfg.Scheduler.ReminderDays,
		logger,
	)

	return &Container{
		Config:        cfg,
		Logger:        logger,
		Store:         store,
		Notifications: notifications,
		Members:       members,
		Dues:          dues,
		Events:        events,
		Maintenance:   maintenance,
	}, nil
}

// NewCron schedules the maintenance jobs from the scheduler configuration
func (c *Container) NewCron() (*services.CronService, error) {
	s := c.Config.Scheduler
	return services.NewCronService(c.Maintenance, services.CronConfig{
		SweepSpec:         s.SweepSpec,
		DuesReminderSpec:  s.DuesReminderSpec,
		EventReminderSpec: s.EventReminderSpec,
		MonthlyReportSpec: s.MonthlyReportSpec,
		ReminderDays:      s.ReminderDays,
		Location:          c.Config.Location,
	}, c.Logger)
}
