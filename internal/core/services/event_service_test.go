package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"asso-manager/internal/adapters/persistence/models"
	"asso-manager/internal/core/domain"
	"asso-manager/internal/testfixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func remainingSeats(t *testing.T, env *testEnv, eventID string) int {
	t.Helper()
	ev, err := env.store.Events.GetByID(context.Background(), eventID)
	require.NoError(t, err)
	return ev.RemainingSeats
}

func TestEventService_CreateDefaultsToPublished(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)

	ev, err := env.events.Create(ctx, CreateEventInput{
		Title:      " Sortie au musée ",
		StartsAt:   testNow.AddDate(0, 0, 10),
		Location:   "Musée des civilisations",
		TotalSeats: 20,
		CreatorID:  creator.ID,
	})
	require.NoError(t, err)
	assert.True(t, ev.IsPublished)
	assert.Equal(t, "Sortie au musée", ev.Title)
	assert.Equal(t, 20, ev.RemainingSeats)

	_, err = env.events.Create(ctx, CreateEventInput{
		Title:      "Sans places",
		StartsAt:   testNow,
		Location:   "Ici",
		TotalSeats: 0,
		CreatorID:  creator.ID,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.events.Create(ctx, CreateEventInput{
		Title:      "Orphelin",
		StartsAt:   testNow,
		Location:   "Ici",
		TotalSeats: 5,
		CreatorID:  "missing",
	})
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestEventService_RegisterTakesOneSeat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)
	member := testfixtures.Member(t, env.db)
	ev := testfixtures.Event(t, env.db, creator.ID, 5)

	reg, err := env.events.Register(ctx, ev.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationConfirmee, reg.Status)
	assert.True(t, reg.RegisteredAt.Equal(testNow))
	require.NotNil(t, reg.Event)
	assert.Equal(t, 4, reg.Event.RemainingSeats)
	assert.Equal(t, 4, remainingSeats(t, env, ev.ID))
	assert.Equal(t, []string{member.Email}, env.notifier.Sent("registration"))
}

func TestEventService_RegisterTwiceIsConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)
	member := testfixtures.Member(t, env.db)
	ev := testfixtures.Event(t, env.db, creator.ID, 5)

	_, err := env.events.Register(ctx, ev.ID, member.ID)
	require.NoError(t, err)

	_, err = env.events.Register(ctx, ev.ID, member.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyRegistered)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 4, remainingSeats(t, env, ev.ID), "the rejected attempt must not keep a seat")
}

func TestEventService_RegisterOnFullEventReportsCapacityFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)
	member := testfixtures.Member(t, env.db)
	ev := testfixtures.Event(t, env.db, creator.ID, 1)

	_, err := env.events.Register(ctx, ev.ID, member.ID)
	require.NoError(t, err)

	_, err = env.events.Register(ctx, ev.ID, member.ID)
	assert.ErrorIs(t, err, domain.ErrEventFull)
	assert.Equal(t, "capacity_exceeded", domain.ErrorKind(err))
}

func TestEventService_RegisterRejectsUnknownOrUnpublished(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)
	member := testfixtures.Member(t, env.db)
	draft := testfixtures.Event(t, env.db, creator.ID, 5, func(e *models.Event) { e.IsPublished = false })
	open := testfixtures.Event(t, env.db, creator.ID, 5)

	_, err := env.events.Register(ctx, "missing", member.ID)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	_, err = env.events.Register(ctx, draft.ID, member.ID)
	assert.ErrorIs(t, err, domain.ErrEventNotPublished)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, 5, remainingSeats(t, env, draft.ID))

	_, err = env.events.Register(ctx, open.ID, "missing")
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
	assert.Equal(t, 5, remainingSeats(t, env, open.ID))
}

func TestEventService_ConcurrentRegistrationsNeverOverbook(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)
	ev := testfixtures.Event(t, env.db, creator.ID, 3)

	const contenders = 10
	members := make([]*models.Member, contenders)
	for i := range members {
		members[i] = testfixtures.Member(t, env.db)
	}

	errs := make([]error, contenders)
	regs := make([]*models.Registration, contenders)
	var wg sync.WaitGroup
	for i := range members {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			regs[i], errs[i] = env.events.Register(ctx, ev.ID, members[i].ID)
		}(i)
	}
	wg.Wait()

	var ok, full int
	var seen []int
	for i, err := range errs {
		if err == nil {
			ok++
			seen = append(seen, regs[i].Event.RemainingSeats)
			continue
		}
		require.ErrorIs(t, err, domain.ErrEventFull)
		full++
	}
	assert.Equal(t, 3, ok)
	assert.ElementsMatch(t, []int{0, 1, 2}, seen, "each winner sees the count left by its own reservation")
	assert.Equal(t, contenders-3, full)
	assert.Equal(t, 0, remainingSeats(t, env, ev.ID))

	confirmed := domain.RegistrationConfirmee
	stored, err := env.store.Registrations.ListByEvent(ctx, ev.ID, &confirmed)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestEventService_LastSeatRace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)

	for round := 0; round < 25; round++ {
		alice := testfixtures.Member(t, env.db)
		bob := testfixtures.Member(t, env.db)
		ev := testfixtures.Event(t, env.db, creator.ID, 1)

		var wg sync.WaitGroup
		results := make(chan error, 2)
		for _, m := range []*models.Member{alice, bob} {
			wg.Add(1)
			go func(memberID string) {
				defer wg.Done()
				_, err := env.events.Register(ctx, ev.ID, memberID)
				results <- err
			}(m.ID)
		}
		wg.Wait()
		close(results)

		var succeeded, rejected int
		for err := range results {
			if err == nil {
				succeeded++
				continue
			}
			require.ErrorIs(t, err, domain.ErrCapacityExceeded, "round %d", round)
			rejected++
		}
		require.Equal(t, 1, succeeded, "round %d", round)
		require.Equal(t, 1, rejected, "round %d", round)
		require.Equal(t, 0, remainingSeats(t, env, ev.ID), "round %d", round)
	}
}

func TestEventService_CancelReleasesSeatAndReRegisterReusesRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)
	member := testfixtures.Member(t, env.db)
	ev := testfixtures.Event(t, env.db, creator.ID, 2)

	first, err := env.events.Register(ctx, ev.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, remainingSeats(t, env, ev.ID))

	require.NoError(t, env.events.Cancel(ctx, ev.ID, member.ID))
	assert.Equal(t, 2, remainingSeats(t, env, ev.ID))

	err = env.events.Cancel(ctx, ev.ID, member.ID)
	assert.ErrorIs(t, err, domain.ErrRegistrationCancelled)
	assert.Equal(t, 2, remainingSeats(t, env, ev.ID), "a second cancel must not free another seat")

	env.clock.Advance(time.Hour)
	again, err := env.events.Register(ctx, ev.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, domain.RegistrationConfirmee, again.Status)
	assert.True(t, again.RegisteredAt.Equal(testNow.Add(time.Hour)))
	assert.Equal(t, 1, remainingSeats(t, env, ev.ID))
}

func TestEventService_CancelUnknownRegistration(t *testing.T) {
	env := newTestEnv(t)
	creator := testfixtures.Member(t, env.db)
	ev := testfixtures.Event(t, env.db, creator.ID, 2)

	err := env.events.Cancel(context.Background(), ev.ID, creator.ID)
	assert.ErrorIs(t, err, domain.ErrRegistrationNotFound)
}

func TestEventService_CancelPendingKeepsSeatCount(t *testing.T) {
	env := newTestEnv(t)
	creator := testfixtures.Member(t, env.db)
	member := testfixtures.Member(t, env.db)
	ev := testfixtures.Event(t, env.db, creator.ID, 4)
	testfixtures.Registration(t, env.db, member.ID, ev.ID, domain.RegistrationEnAttente)

	require.NoError(t, env.events.Cancel(context.Background(), ev.ID, member.ID))
	assert.Equal(t, 4, remainingSeats(t, env, ev.ID))
}

func TestEventService_RegisterSurvivesNotifierFailure(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errMailDown
	creator := testfixtures.Member(t, env.db)
	member := testfixtures.Member(t, env.db)
	ev := testfixtures.Event(t, env.db, creator.ID, 3)

	reg, err := env.events.Register(context.Background(), ev.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationConfirmee, reg.Status)
	assert.Equal(t, 2, remainingSeats(t, env, ev.ID))
}

func TestEventService_SetCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)
	ev := testfixtures.Event(t, env.db, creator.ID, 10, func(e *models.Event) { e.RemainingSeats = 5 })

	got, err := env.events.SetCapacity(ctx, ev.ID, 13)
	require.NoError(t, err)
	assert.Equal(t, 13, got.TotalSeats)
	assert.Equal(t, 8, got.RemainingSeats)

	got, err = env.events.SetCapacity(ctx, ev.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RemainingSeats)
	assert.Equal(t, 0, remainingSeats(t, env, ev.ID))

	_, err = env.events.SetCapacity(ctx, ev.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.events.SetCapacity(ctx, "missing", 5)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestEventService_SetCapacityKeepsUsedSeats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)

	rapid.Check(t, func(rt *rapid.T) {
		total := rapid.IntRange(1, 200).Draw(rt, "total")
		used := rapid.IntRange(0, total).Draw(rt, "used")
		newTotal := rapid.IntRange(1, 200).Draw(rt, "newTotal")

		ev := &models.Event{
			Title:          "Atelier",
			StartsAt:       testNow.AddDate(0, 0, 3),
			Location:       "Local",
			TotalSeats:     total,
			RemainingSeats: total - used,
			IsPublished:    true,
			CreatorID:      creator.ID,
		}
		if err := env.store.Events.Create(ctx, ev); err != nil {
			rt.Fatalf("create event: %v", err)
		}

		got, err := env.events.SetCapacity(ctx, ev.ID, newTotal)
		if err != nil {
			rt.Fatalf("SetCapacity: %v", err)
		}
		want := newTotal - used
		if want < 0 {
			want = 0
		}
		if got.RemainingSeats != want || got.TotalSeats != newTotal {
			rt.Fatalf("got %d/%d, want %d/%d", got.RemainingSeats, got.TotalSeats, want, newTotal)
		}

		stored, err := env.store.Events.GetByID(ctx, ev.ID)
		if err != nil {
			rt.Fatalf("reload: %v", err)
		}
		if stored.RemainingSeats != want || stored.RemainingSeats > stored.TotalSeats {
			rt.Fatalf("stored %d/%d, want %d", stored.RemainingSeats, stored.TotalSeats, want)
		}
	})
}

func TestEventService_UpdateResizesThroughCapacityRule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)
	ev := testfixtures.Event(t, env.db, creator.ID, 10, func(e *models.Event) { e.RemainingSeats = 7 })

	got, err := env.events.Update(ctx, ev.ID, UpdateEventInput{
		Title:      ptr("AG extraordinaire"),
		TotalSeats: ptr(5),
	})
	require.NoError(t, err)
	assert.Equal(t, "AG extraordinaire", got.Title)
	assert.Equal(t, 5, got.TotalSeats)
	assert.Equal(t, 2, got.RemainingSeats)

	_, err = env.events.Update(ctx, ev.ID, UpdateEventInput{TotalSeats: ptr(0)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.events.Update(ctx, "missing", UpdateEventInput{Title: ptr("x")})
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestEventService_DeleteRemovesRegistrations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)
	member := testfixtures.Member(t, env.db)
	ev := testfixtures.Event(t, env.db, creator.ID, 3)
	testfixtures.Registration(t, env.db, member.ID, ev.ID, domain.RegistrationConfirmee)

	require.NoError(t, env.events.Delete(ctx, ev.ID))

	_, err := env.events.Get(ctx, ev.ID)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
	regs, err := env.store.Registrations.ListByEvent(ctx, ev.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, regs)

	assert.ErrorIs(t, env.events.Delete(ctx, ev.ID), domain.ErrEventNotFound)
}

func TestEventService_ParticipantsListsConfirmedOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)
	ev := testfixtures.Event(t, env.db, creator.ID, 10)
	confirmed := testfixtures.Member(t, env.db)
	cancelled := testfixtures.Member(t, env.db)
	testfixtures.Registration(t, env.db, confirmed.ID, ev.ID, domain.RegistrationConfirmee)
	testfixtures.Registration(t, env.db, cancelled.ID, ev.ID, domain.RegistrationAnnulee)

	list, err := env.events.Participants(ctx, ev.ID)
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, confirmed.ID, list.Participants[0].Member.ID)

	_, err = env.events.Participants(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestEventService_Calendar(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)
	inMay := testfixtures.Event(t, env.db, creator.ID, 5, func(e *models.Event) {
		e.StartsAt = time.Date(2024, 5, 20, 18, 0, 0, 0, time.UTC)
	})
	testfixtures.Event(t, env.db, creator.ID, 5, func(e *models.Event) {
		e.StartsAt = time.Date(2024, 5, 21, 18, 0, 0, 0, time.UTC)
		e.IsPublished = false
	})
	testfixtures.Event(t, env.db, creator.ID, 5, func(e *models.Event) {
		e.StartsAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	})

	events, err := env.events.Calendar(ctx, 5, 2024)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, inMay.ID, events[0].ID)

	_, err = env.events.Calendar(ctx, 13, 2024)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEventService_SendEventRemindersTargetsTomorrow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)
	alice := testfixtures.Member(t, env.db)
	bob := testfixtures.Member(t, env.db)
	carol := testfixtures.Member(t, env.db)

	tomorrow := testfixtures.Event(t, env.db, creator.ID, 10, func(e *models.Event) {
		e.StartsAt = time.Date(2024, 5, 2, 18, 0, 0, 0, time.UTC)
	})
	later := testfixtures.Event(t, env.db, creator.ID, 10, func(e *models.Event) {
		e.StartsAt = time.Date(2024, 5, 3, 18, 0, 0, 0, time.UTC)
	})
	testfixtures.Registration(t, env.db, alice.ID, tomorrow.ID, domain.RegistrationConfirmee)
	testfixtures.Registration(t, env.db, bob.ID, tomorrow.ID, domain.RegistrationConfirmee)
	testfixtures.Registration(t, env.db, carol.ID, tomorrow.ID, domain.RegistrationAnnulee)
	testfixtures.Registration(t, env.db, carol.ID, later.ID, domain.RegistrationConfirmee)

	env.notifier.failFor[bob.Email] = true

	report, err := env.events.SendEventReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReminderReport{Candidates: 2, Sent: 1, Failed: 1}, report)
	assert.Equal(t, []string{alice.Email}, env.notifier.Sent("event_reminder"))
}

func TestEventService_ListUpcomingAndStatistics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)
	testfixtures.Event(t, env.db, creator.ID, 5, func(e *models.Event) {
		e.StartsAt = testNow.AddDate(0, 0, -3)
	})
	testfixtures.Event(t, env.db, creator.ID, 1, func(e *models.Event) {
		e.StartsAt = testNow.AddDate(0, 0, 3)
		e.RemainingSeats = 0
	})
	testfixtures.Event(t, env.db, creator.ID, 5, func(e *models.Event) {
		e.StartsAt = testNow.AddDate(0, 0, 4)
		e.IsPublished = false
	})

	page, err := env.events.List(ctx, ListEventsInput{UpcomingOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Meta.Total)

	stats, err := env.events.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Published)
	assert.Equal(t, int64(1), stats.Upcoming)
	assert.Equal(t, int64(1), stats.FullUpcoming)
}

func TestEventService_MemberRegistrations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := testfixtures.Member(t, env.db)
	member := testfixtures.Member(t, env.db)
	past := testfixtures.Event(t, env.db, creator.ID, 5, func(e *models.Event) {
		e.StartsAt = testNow.AddDate(0, 0, -10)
	})
	next := testfixtures.Event(t, env.db, creator.ID, 5, func(e *models.Event) {
		e.StartsAt = testNow.AddDate(0, 0, 10)
	})
	testfixtures.Registration(t, env.db, member.ID, past.ID, domain.RegistrationConfirmee)
	testfixtures.Registration(t, env.db, member.ID, next.ID, domain.RegistrationConfirmee)

	all, err := env.events.MemberRegistrations(ctx, member.ID, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, past.ID, all[0].EventID)
	require.NotNil(t, all[1].Event)
	assert.Equal(t, next.ID, all[1].Event.ID)

	upcoming, err := env.events.MemberRegistrations(ctx, member.ID, true)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, next.ID, upcoming[0].EventID)
}
