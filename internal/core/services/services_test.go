package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"asso-manager/internal/adapters/persistence/models"
	"asso-manager/internal/adapters/persistence/repositories"
	"asso-manager/internal/pkg/logger"
	"asso-manager/internal/testfixtures"

	"gorm.io/gorm"
)

var errMailDown = errors.New("mail transport down")

// recordingNotifier records every notification and optionally fails
// for every recipient, or only for the ones listed in failFor.
type recordingNotifier struct {
	mu        sync.Mutex
	err       error
	failFor   map[string]bool
	sent      map[string][]string // kind -> recipients
	lastToken string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		failFor: make(map[string]bool),
		sent:    make(map[string][]string),
	}
}

func (n *recordingNotifier) record(kind, email string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	if n.failFor[email] {
		return errMailDown
	}
	n.sent[kind] = append(n.sent[kind], email)
	return nil
}

func (n *recordingNotifier) Sent(kind string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent[kind]...)
}

func (n *recordingNotifier) SendWelcome(ctx context.Context, member *models.Member) error {
	return n.record("welcome", member.Email)
}

func (n *recordingNotifier) SendPasswordReset(ctx context.Context, member *models.Member, token string) error {
	n.mu.Lock()
	n.lastToken = token
	n.mu.Unlock()
	return n.record("password_reset", member.Email)
}

func (n *recordingNotifier) SendPasswordChanged(ctx context.Context, member *models.Member) error {
	return n.record("password_changed", member.Email)
}

// LastToken returns the most recent reset token handed to the notifier
func (n *recordingNotifier) LastToken() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastToken
}

func (n *recordingNotifier) SendRegistrationConfirmation(ctx context.Context, member *models.Member, event *models.Event) error {
	return n.record("registration", member.Email)
}

func (n *recordingNotifier) SendDuesReminder(ctx context.Context, member *models.Member, dues *models.Dues, daysRemaining int) error {
	return n.record("dues_reminder", member.Email)
}

func (n *recordingNotifier) SendEventReminder(ctx context.Context, member *models.Member, event *models.Event) error {
	return n.record("event_reminder", member.Email)
}

func (n *recordingNotifier) SendMonthlyReport(ctx context.Context, admin *models.Member, report *MonthlyReport) error {
	return n.record("monthly_report", admin.Email)
}

// stubMailer is a Mailer whose behaviour is set per test
type stubMailer struct {
	mu    sync.Mutex
	delay time.Duration
	err   error
	sent  []Message
}

func (m *stubMailer) Name() string { return "stub" }

func (m *stubMailer) Send(ctx context.Context, msg Message) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *stubMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

// testEnv wires every service over a fresh SQLite database
type testEnv struct {
	db          *gorm.DB
	store       *repositories.Store
	clock       *testfixtures.Clock
	notifier    *recordingNotifier
	members     *MemberService
	dues        *DuesService
	events      *EventService
	maintenance *MaintenanceService
}

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testfixtures.NewDB(t)
	store := repositories.NewStore(db)
	clk := testfixtures.NewClock(testNow)
	notifier := newRecordingNotifier()
	log := logger.Discard()
	limiter := NewReminderLimiter(0)

	members := NewMemberService(store, notifier, clk, time.UTC, 4, log)
	dues := NewDuesService(store, clk, time.UTC, log)
	events := NewEventService(store, notifier, clk, time.UTC, limiter, log)

	return &testEnv{
		db:          db,
		store:       store,
		clock:       clk,
		notifier:    notifier,
		members:     members,
		dues:        dues,
		events:      events,
		maintenance: NewMaintenanceService(dues, events, members, notifier, clk, time.UTC, limiter, 30, log),
	}
}

func ptr[T any](v T) *T { return &v }
