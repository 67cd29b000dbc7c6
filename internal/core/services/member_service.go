package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"asso-manager/internal/adapters/persistence/models"
	"asso-manager/internal/adapters/persistence/repositories"
	"asso-manager/internal/core/domain"
	"asso-manager/internal/pkg/clock"
	"asso-manager/internal/pkg/pagination"
	"asso-manager/internal/pkg/password"

	"github.com/oapi-codegen/nullable"
	"go.opentelemetry.io/otel/attribute"
)

// MemberService handles member management business logic
type MemberService struct {
	store      *repositories.Store
	notifier   Notifier
	clock      clock.Clock
	loc        *time.Location
	bcryptCost int
	logger     *slog.Logger
}

// NewMemberService creates a new member service
func NewMemberService(
	store *repositories.Store,
	notifier Notifier,
	clk clock.Clock,
	loc *time.Location,
	bcryptCost int,
	logger *slog.Logger,
) *MemberService {
	if loc == nil {
		loc = time.UTC
	}
	return &MemberService{
		store:      store,
		notifier:   notifier,
		clock:      clk,
		loc:        loc,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// CreateMemberInput represents create member input
type CreateMemberInput struct {
	LastName  string
	FirstName string
	Email     string
	Phone     *string
	Password  string
	Role      *domain.Role
	Status    *domain.MemberStatus
}

// UpdateMemberInput represents a partial member update.
// Phone is tri-state: unset keeps it, null clears it.
type UpdateMemberInput struct {
	LastName  *string
	FirstName *string
	Email     *string
	Phone     nullable.Nullable[string]
	Password  *string
	Role      *domain.Role
	Status    *domain.MemberStatus
}

// ListMembersInput represents list members input
type ListMembersInput struct {
	Page   int
	Limit  int
	Search string
	Status *domain.MemberStatus
	Role   *domain.Role
}

// MonthCount is a per month counter
type MonthCount struct {
	Month string `json:"month"`
	Count int64  `json:"count"`
}

// MemberStatistics aggregates member counts
type MemberStatistics struct {
	Total     int64        `json:"total"`
	Active    int64        `json:"active"`
	Inactive  int64        `json:"inactive"`
	Board     int64        `json:"board"`
	Admins    int64        `json:"admins"`
	Evolution []MonthCount `json:"evolution"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// Create creates a member with a hashed password and sends the welcome email
func (s *MemberService) Create(ctx context.Context, input CreateMemberInput) (member *models.Member, err error) {
	ctx, span := startSpan(ctx, "MemberService.Create")
	defer func() { endSpan(span, err) }()
	log := serviceLogger(ctx, s.logger, "member", "create")

	email := normalizeEmail(input.Email)
	v := &domain.ValidationError{}
	if strings.TrimSpace(input.LastName) == "" {
		v.Add("last_name", "required")
	}
	if strings.TrimSpace(input.FirstName) == "" {
		v.Add("first_name", "required")
	}
	if !validEmail(email) {
		v.Add("email", "invalid email address")
	}
	if !password.ValidatePassword(input.Password) {
		v.Add("password", fmt.Sprintf("must be at least %d characters", password.MinLength))
	}
	if input.Role != nil && !input.Role.Valid() {
		v.Add("role", "unknown role")
	}
	if input.Status != nil && !input.Status.Valid() {
		v.Add("status", "unknown status")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	exists, err := s.store.Members.ExistsByEmail(ctx, email, "")
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrEmailAlreadyExists
	}

	hashed, err := password.HashWithCost(input.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	member = &models.Member{
		LastName:  strings.TrimSpace(input.LastName),
		FirstName: strings.TrimSpace(input.FirstName),
		Email:     email,
		Phone:     input.Phone,
		Password:  hashed,
		Role:      domain.RoleMembre,
		Status:    domain.MemberActif,
	}
	if input.Role != nil {
		member.Role = *input.Role
	}
	if input.Status != nil {
		member.Status = *input.Status
	}

	if err := s.store.Members.Create(ctx, member); err != nil {
		if repositories.IsDuplicateKey(err) {
			return nil, domain.ErrEmailAlreadyExists
		}
		return nil, err
	}

	log.Info("member created", slog.String("member_id", member.ID))
	notifyBestEffort(ctx, log, "welcome email", func(ctx context.Context) error {
		return s.notifier.SendWelcome(ctx, member)
	})

	return member, nil
}

// Get gets member by ID
func (s *MemberService) Get(ctx context.Context, id string) (*models.Member, error) {
	member, err := s.store.Members.GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	return member, nil
}

// GetByEmail looks a member up by email, case-insensitively
func (s *MemberService) GetByEmail(ctx context.Context, email string) (*models.Member, error) {
	member, err := s.store.Members.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	return member, nil
}

// Update applies a partial update to a member
func (s *MemberService) Update(ctx context.Context, id string, input UpdateMemberInput) (member *models.Member, err error) {
	ctx, span := startSpan(ctx, "MemberService.Update", attribute.String("member.id", id))
	defer func() { endSpan(span, err) }()

	member, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	v := &domain.ValidationError{}
	if input.LastName != nil {
		if strings.TrimSpace(*input.LastName) == "" {
			v.Add("last_name", "required")
		}
		member.LastName = strings.TrimSpace(*input.LastName)
	}
	if input.FirstName != nil {
		if strings.TrimSpace(*input.FirstName) == "" {
			v.Add("first_name", "required")
		}
		member.FirstName = strings.TrimSpace(*input.FirstName)
	}
	if input.Email != nil {
		email := normalizeEmail(*input.Email)
		if !validEmail(email) {
			v.Add("email", "invalid email address")
		}
		member.Email = email
	}
	if input.Phone.IsSpecified() {
		if input.Phone.IsNull() {
			member.Phone = nil
		} else {
			phone := input.Phone.MustGet()
			member.Phone = &phone
		}
	}
	if input.Role != nil {
		if !input.Role.Valid() {
			v.Add("role", "unknown role")
		}
		member.Role = *input.Role
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			v.Add("status", "unknown status")
		}
		member.Status = *input.Status
	}
	if input.Password != nil && !password.ValidatePassword(*input.Password) {
		v.Add("password", fmt.Sprintf("must be at least %d characters", password.MinLength))
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	if input.Email != nil {
		exists, err := s.store.Members.ExistsByEmail(ctx, member.Email, member.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.ErrEmailAlreadyExists
		}
	}
	if input.Password != nil {
		hashed, err := password.HashWithCost(*input.Password, s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		member.Password = hashed
	}

	if err := s.store.Members.Update(ctx, member); err != nil {
		if repositories.IsDuplicateKey(err) {
			return nil, domain.ErrEmailAlreadyExists
		}
		return nil, err
	}
	return member, nil
}

// resetTokenTTL bounds how long a mailed reset link stays usable
const resetTokenTTL = time.Hour

// Authenticate checks a member's credentials and returns the actor to run
// their requests as. Unknown email and wrong password are indistinguishable.
func (s *MemberService) Authenticate(ctx context.Context, email, plain string) (*models.Member, domain.Actor, error) {
	member, err := s.store.Members.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, domain.Actor{}, domain.ErrInvalidCredentials
		}
		return nil, domain.Actor{}, err
	}
	if !password.Verify(plain, member.Password) {
		return nil, domain.Actor{}, domain.ErrInvalidCredentials
	}
	if member.Status == domain.MemberInactif {
		return nil, domain.Actor{}, domain.ErrAccountDisabled
	}
	return member, domain.NewActor(member.ID, member.Role), nil
}

// RequestPasswordReset stores a fresh reset token for the member and mails it.
// An unknown email is not an error so callers cannot tell which accounts exist.
func (s *MemberService) RequestPasswordReset(ctx context.Context, email string) (err error) {
	ctx, span := startSpan(ctx, "MemberService.RequestPasswordReset")
	defer func() { endSpan(span, err) }()
	log := serviceLogger(ctx, s.logger, "member", "request_password_reset")

	member, err := s.store.Members.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if repositories.IsNotFound(err) {
			log.Debug("password reset requested for unknown email")
			return nil
		}
		return err
	}

	token, digest, err := password.NewResetToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	expiresAt := s.clock.Now().Add(resetTokenTTL)
	member.ResetToken = &digest
	member.ResetTokenExpiresAt = &expiresAt
	if err := s.store.Members.Update(ctx, member); err != nil {
		return err
	}

	log.Info("password reset requested", slog.String("member_id", member.ID))
	notifyBestEffort(ctx, log, "password reset email", func(ctx context.Context) error {
		return s.notifier.SendPasswordReset(ctx, member, token)
	})
	return nil
}

// ResetPassword sets a new password for the holder of a valid reset token.
// The token is single use.
func (s *MemberService) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := startSpan(ctx, "MemberService.ResetPassword")
	defer func() { endSpan(span, err) }()
	log := serviceLogger(ctx, s.logger, "member", "reset_password")

	if !password.ValidatePassword(newPassword) {
		v := &domain.ValidationError{}
		v.Add("password", fmt.Sprintf("must be at least %d characters", password.MinLength))
		return v
	}
	if token == "" {
		return domain.ErrInvalidResetToken
	}

	member, err := s.store.Members.GetByResetToken(ctx, password.TokenDigest(token))
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.ErrInvalidResetToken
		}
		return err
	}
	if member.ResetTokenExpiresAt == nil || !s.clock.Now().Before(*member.ResetTokenExpiresAt) {
		return domain.ErrInvalidResetToken
	}

	if err := s.setPassword(ctx, member, newPassword); err != nil {
		return err
	}

	log.Info("password reset", slog.String("member_id", member.ID))
	notifyBestEffort(ctx, log, "password changed email", func(ctx context.Context) error {
		return s.notifier.SendPasswordChanged(ctx, member)
	})
	return nil
}

// ChangePassword replaces a member's password after checking the current one.
// The actor must be the member or an administrator.
func (s *MemberService) ChangePassword(ctx context.Context, actor domain.Actor, memberID, current, newPassword string) (err error) {
	ctx, span := startSpan(ctx, "MemberService.ChangePassword", attribute.String("member.id", memberID))
	defer func() { endSpan(span, err) }()
	log := serviceLogger(ctx, s.logger, "member", "change_password")

	if err := actor.Authorize(memberID); err != nil {
		return err
	}
	if !password.ValidatePassword(newPassword) {
		v := &domain.ValidationError{}
		v.Add("password", fmt.Sprintf("must be at least %d characters", password.MinLength))
		return v
	}

	member, err := s.Get(ctx, memberID)
	if err != nil {
		return err
	}
	if !password.Verify(current, member.Password) {
		return domain.ErrWrongPassword
	}

	if err := s.setPassword(ctx, member, newPassword); err != nil {
		return err
	}

	log.Info("password changed", slog.String("member_id", member.ID))
	notifyBestEffort(ctx, log, "password changed email", func(ctx context.Context) error {
		return s.notifier.SendPasswordChanged(ctx, member)
	})
	return nil
}

// setPassword hashes and stores a new password and drops any pending reset token
func (s *MemberService) setPassword(ctx context.Context, member *models.Member, plain string) error {
	hashed, err := password.HashWithCost(plain, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	member.Password = hashed
	member.ResetToken = nil
	member.ResetTokenExpiresAt = nil
	return s.store.Members.Update(ctx, member)
}

// Delete removes a member with their dues and registrations.
// Seats held by the member's confirmed registrations are given back.
// A member who created events cannot be deleted.
func (s *MemberService) Delete(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "MemberService.Delete", attribute.String("member.id", id))
	defer func() { endSpan(span, err) }()
	log := serviceLogger(ctx, s.logger, "member", "delete")

	err = s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if _, err := tx.Members.GetByID(ctx, id); err != nil {
			if repositories.IsNotFound(err) {
				return domain.ErrMemberNotFound
			}
			return err
		}

		owned, err := tx.Events.CountByCreator(ctx, id)
		if err != nil {
			return err
		}
		if owned > 0 {
			return domain.ErrMemberOwnsEvents
		}

		confirmed, err := tx.Registrations.ListConfirmedByMember(ctx, id)
		if err != nil {
			return err
		}
		for _, reg := range confirmed {
			if _, err := tx.Events.ReleaseSeat(ctx, reg.EventID); err != nil {
				return err
			}
		}

		if err := tx.Registrations.DeleteByMember(ctx, id); err != nil {
			return err
		}
		if err := tx.Dues.DeleteByMember(ctx, id); err != nil {
			return err
		}
		_, err = tx.Members.Delete(ctx, id)
		return err
	})
	if err != nil {
		return err
	}

	log.Info("member deleted", slog.String("member_id", id))
	return nil
}

// List lists members with filters and pagination
func (s *MemberService) List(ctx context.Context, input ListMembersInput) (*pagination.Page[*models.Member], error) {
	params := pagination.NewParams(input.Page, input.Limit)

	members, total, err := s.store.Members.List(ctx, repositories.MemberFilter{
		Search: input.Search,
		Status: input.Status,
		Role:   input.Role,
	}, params.Offset, params.Limit)
	if err != nil {
		return nil, err
	}

	return pagination.NewPage(members, params, total), nil
}

// Statistics returns member counts and the six month sign-up evolution
func (s *MemberService) Statistics(ctx context.Context) (*MemberStatistics, error) {
	byStatus, err := s.store.Members.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	byRole, err := s.store.Members.CountByRole(ctx)
	if err != nil {
		return nil, err
	}

	stats := &MemberStatistics{
		Active:   byStatus[domain.MemberActif],
		Inactive: byStatus[domain.MemberInactif],
		Board:    byStatus[domain.MemberBureau],
		Admins:   byRole[domain.RoleAdmin],
	}
	for _, n := range byStatus {
		stats.Total += n
	}

	for _, m := range lastMonths(s.clock.Now(), s.loc, 6) {
		n, err := s.store.Members.CountCreatedBetween(ctx, m.From, m.To)
		if err != nil {
			return nil, err
		}
		stats.Evolution = append(stats.Evolution, MonthCount{Month: m.Label, Count: n})
	}

	return stats, nil
}
