package services

import (
	"context"
	"testing"
	"time"

	"asso-manager/internal/adapters/persistence/models"
	"asso-manager/internal/core/domain"
	"asso-manager/internal/pkg/password"
	"asso-manager/internal/testfixtures"

	"github.com/oapi-codegen/nullable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemberService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	m, err := env.members.Create(ctx, CreateMemberInput{
		LastName:  "Kouassi",
		FirstName: "Awa",
		Email:     "  Awa.Kouassi@Example.ORG ",
		Password:  "motdepasse",
	})
	require.NoError(t, err)
	assert.Equal(t, "awa.kouassi@example.org", m.Email)
	assert.Equal(t, domain.RoleMembre, m.Role)
	assert.Equal(t, domain.MemberActif, m.Status)
	assert.NotEqual(t, "motdepasse", m.Password)
	assert.True(t, password.Verify("motdepasse", m.Password))
	assert.Equal(t, []string{"awa.kouassi@example.org"}, env.notifier.Sent("welcome"))

	_, err = env.members.Create(ctx, CreateMemberInput{
		LastName:  "Autre",
		FirstName: "Awa",
		Email:     "AWA.KOUASSI@example.org",
		Password:  "motdepasse",
	})
	assert.ErrorIs(t, err, domain.ErrEmailAlreadyExists)
	assert.ErrorIs(t, err, domain.ErrConflict)

	found, err := env.members.GetByEmail(ctx, " AWA.KOUASSI@example.org")
	require.NoError(t, err)
	assert.Equal(t, m.ID, found.ID)

	_, err = env.members.GetByEmail(ctx, "nobody@example.org")
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestMemberService_CreateValidates(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.members.Create(context.Background(), CreateMemberInput{
		LastName: "",
		Email:    "not-an-email",
		Password: "short",
		Role:     ptr(domain.Role("ROOT")),
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	var v *domain.ValidationError
	require.ErrorAs(t, err, &v)
	assert.Contains(t, v.Fields, "last_name")
	assert.Contains(t, v.Fields, "first_name")
	assert.Contains(t, v.Fields, "email")
	assert.Contains(t, v.Fields, "password")
	assert.Contains(t, v.Fields, "role")
}

func TestMemberService_CreateSurvivesNotifierFailure(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errMailDown

	m, err := env.members.Create(context.Background(), CreateMemberInput{
		LastName:  "Traoré",
		FirstName: "Moussa",
		Email:     "moussa@example.org",
		Password:  "motdepasse",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
}

func TestMemberService_Update(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := testfixtures.Member(t, env.db, func(m *models.Member) { m.Phone = ptr("0102030405") })
	other := testfixtures.Member(t, env.db)

	got, err := env.members.Update(ctx, m.ID, UpdateMemberInput{
		FirstName: ptr("Alicia"),
		Phone:     nullable.NewNullNullable[string](),
		Status:    ptr(domain.MemberBureau),
	})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", got.FirstName)
	assert.Nil(t, got.Phone)
	assert.Equal(t, domain.MemberBureau, got.Status)

	_, err = env.members.Update(ctx, m.ID, UpdateMemberInput{Email: ptr(other.Email)})
	assert.ErrorIs(t, err, domain.ErrEmailAlreadyExists)

	_, err = env.members.Update(ctx, m.ID, UpdateMemberInput{Email: ptr(m.Email)})
	assert.NoError(t, err, "keeping one's own email is not a conflict")

	got, err = env.members.Update(ctx, m.ID, UpdateMemberInput{Password: ptr("nouveaumotdepasse")})
	require.NoError(t, err)
	assert.True(t, password.Verify("nouveaumotdepasse", got.Password))

	_, err = env.members.Update(ctx, "missing", UpdateMemberInput{FirstName: ptr("x")})
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestMemberService_DeleteCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)
	member := testfixtures.Member(t, env.db)
	ev := testfixtures.Event(t, env.db, creator.ID, 5, func(e *models.Event) { e.RemainingSeats = 4 })
	testfixtures.Registration(t, env.db, member.ID, ev.ID, domain.RegistrationConfirmee)
	testfixtures.Dues(t, env.db, member.ID, testNow.AddDate(0, 3, 0))

	require.NoError(t, env.members.Delete(ctx, member.ID))

	_, err := env.members.Get(ctx, member.ID)
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
	assert.Equal(t, 5, remainingSeats(t, env, ev.ID), "the seat goes back to the event")

	regs, err := env.store.Registrations.ListByEvent(ctx, ev.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, regs)
	history, err := env.store.Dues.ListByMember(ctx, member.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.ErrorIs(t, env.members.Delete(ctx, member.ID), domain.ErrMemberNotFound)
}

func TestMemberService_DeleteRefusesEventCreator(t *testing.T) {
	env := newTestEnv(t)
	creator := testfixtures.Member(t, env.db)
	testfixtures.Event(t, env.db, creator.ID, 5)

	err := env.members.Delete(context.Background(), creator.ID)
	assert.ErrorIs(t, err, domain.ErrMemberOwnsEvents)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = env.members.Get(context.Background(), creator.ID)
	assert.NoError(t, err)
}

func TestMemberService_ListAndStatistics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testfixtures.Member(t, env.db, func(m *models.Member) { m.LastName = "Konan" })
	testfixtures.Member(t, env.db, func(m *models.Member) { m.Status = domain.MemberInactif })
	testfixtures.Member(t, env.db, func(m *models.Member) {
		m.Role = domain.RoleAdmin
		m.Status = domain.MemberBureau
	})

	page, err := env.members.List(ctx, ListMembersInput{Search: "KONAN"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Meta.Total)

	admin := domain.RoleAdmin
	page, err = env.members.List(ctx, ListMembersInput{Role: &admin})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Meta.Total)

	stats, err := env.members.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Active)
	assert.Equal(t, int64(1), stats.Inactive)
	assert.Equal(t, int64(1), stats.Board)
	assert.Equal(t, int64(1), stats.Admins)
	assert.Len(t, stats.Evolution, 6)
}

func createMemberWithPassword(t *testing.T, env *testEnv, email, plain string) *models.Member {
	t.Helper()
	m, err := env.members.Create(context.Background(), CreateMemberInput{
		LastName:  "Kouassi",
		FirstName: "Awa",
		Email:     email,
		Password:  plain,
	})
	require.NoError(t, err)
	return m
}

func TestMemberService_Authenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := createMemberWithPassword(t, env, "awa@example.org", "motdepasse")

	got, actor, err := env.members.Authenticate(ctx, " AWA@example.org ", "motdepasse")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, domain.NewActor(m.ID, domain.RoleMembre), actor)

	_, _, err = env.members.Authenticate(ctx, "awa@example.org", "mauvais-mot")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, _, err = env.members.Authenticate(ctx, "nobody@example.org", "motdepasse")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = env.members.Update(ctx, m.ID, UpdateMemberInput{Status: ptr(domain.MemberInactif)})
	require.NoError(t, err)
	_, actor, err = env.members.Authenticate(ctx, "awa@example.org", "motdepasse")
	assert.ErrorIs(t, err, domain.ErrAccountDisabled)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, domain.Actor{}, actor)
}

func TestMemberService_PasswordReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := createMemberWithPassword(t, env, "awa@example.org", "motdepasse")

	require.NoError(t, env.members.RequestPasswordReset(ctx, " AWA@example.org"))
	token := env.notifier.LastToken()
	require.NotEmpty(t, token)
	assert.Equal(t, []string{"awa@example.org"}, env.notifier.Sent("password_reset"))

	stored, err := env.members.Get(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ResetToken)
	assert.NotEqual(t, token, *stored.ResetToken, "only the digest is stored")
	require.NotNil(t, stored.ResetTokenExpiresAt)
	assert.True(t, stored.ResetTokenExpiresAt.Equal(testNow.Add(time.Hour)))

	assert.ErrorIs(t, env.members.ResetPassword(ctx, token, "court"), domain.ErrInvalidInput)
	assert.ErrorIs(t, env.members.ResetPassword(ctx, "not-a-token", "nouveau-secret"), domain.ErrInvalidResetToken)
	assert.ErrorIs(t, env.members.ResetPassword(ctx, "", "nouveau-secret"), domain.ErrInvalidResetToken)

	env.clock.Advance(30 * time.Minute)
	require.NoError(t, env.members.ResetPassword(ctx, token, "nouveau-secret"))
	assert.Equal(t, []string{"awa@example.org"}, env.notifier.Sent("password_changed"))

	_, _, err = env.members.Authenticate(ctx, "awa@example.org", "nouveau-secret")
	assert.NoError(t, err)
	_, _, err = env.members.Authenticate(ctx, "awa@example.org", "motdepasse")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	assert.ErrorIs(t, env.members.ResetPassword(ctx, token, "encore-autre"), domain.ErrInvalidResetToken,
		"a token works once")

	require.NoError(t, env.members.RequestPasswordReset(ctx, "nobody@example.org"))
	assert.Len(t, env.notifier.Sent("password_reset"), 1, "unknown emails get no mail")
}

func TestMemberService_PasswordResetExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createMemberWithPassword(t, env, "awa@example.org", "motdepasse")

	require.NoError(t, env.members.RequestPasswordReset(ctx, "awa@example.org"))
	token := env.notifier.LastToken()

	env.clock.Advance(time.Hour)
	assert.ErrorIs(t, env.members.ResetPassword(ctx, token, "nouveau-secret"), domain.ErrInvalidResetToken)

	_, _, err := env.members.Authenticate(ctx, "awa@example.org", "motdepasse")
	assert.NoError(t, err, "an expired token leaves the password alone")
}

func TestMemberService_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := createMemberWithPassword(t, env, "alice@example.org", "motdepasse")
	bob := createMemberWithPassword(t, env, "bob@example.org", "motdepasse")

	_, actor, err := env.members.Authenticate(ctx, "alice@example.org", "motdepasse")
	require.NoError(t, err)

	err = env.members.ChangePassword(ctx, actor, bob.ID, "motdepasse", "nouveau-secret")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	err = env.members.ChangePassword(ctx, domain.Actor{}, alice.ID, "motdepasse", "nouveau-secret")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	err = env.members.ChangePassword(ctx, actor, alice.ID, "pas-le-bon", "nouveau-secret")
	assert.ErrorIs(t, err, domain.ErrWrongPassword)
	err = env.members.ChangePassword(ctx, actor, alice.ID, "motdepasse", "court")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	require.NoError(t, env.members.ChangePassword(ctx, actor, alice.ID, "motdepasse", "nouveau-secret"))
	_, _, err = env.members.Authenticate(ctx, "alice@example.org", "nouveau-secret")
	assert.NoError(t, err)
	assert.Equal(t, []string{"alice@example.org"}, env.notifier.Sent("password_changed"))

	admin := domain.NewActor("someone-else", domain.RoleAdmin)
	require.NoError(t, env.members.ChangePassword(ctx, admin, bob.ID, "motdepasse", "autre-secret"))
}
