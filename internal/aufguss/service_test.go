package aufguss

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"saunafreunde/internal/cache"
	"saunafreunde/internal/database"
	"saunafreunde/internal/events"
	"saunafreunde/internal/models"
	"saunafreunde/internal/schedule"
)

// Monday 12 October 2026, 10:00 UTC
var monday = time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)

func tuesdayAt(hour, minute int) time.Time {
	return time.Date(2026, 10, 13, hour, minute, 0, 0, time.UTC)
}

func testSettings(t *testing.T) Settings {
	t.Helper()
	categories, err := schedule.NewCategories(nil)
	require.NoError(t, err)
	hours := map[time.Weekday][]schedule.Window{
		time.Tuesday: {{Start: "14:00", End: "21:00"}},
	}
	return Settings{
		Table: schedule.Table{
			Resources: []schedule.Resource{
				{Name: "Finnische Sauna", Hours: hours},
				{Name: "Kelosauna", Hours: hours},
			},
			SlotDuration: 15 * time.Minute,
			SlotInterval: time.Hour,
			Location:     time.UTC,
		},
		Categories: categories,
		Unmatched:  schedule.UnmatchedDrop,
	}
}

type fixture struct {
	svc *Service
	db  *database.DB
	bus *events.EventBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "club.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, id := range []string{"anna", "ben"} {
		require.NoError(t, db.CreateProfile(context.Background(), &models.Profile{
			ID:           id,
			Username:     id,
			Name:         id + " Saunafreund",
			Email:        id + "@example.org",
			PrimarySauna: "Kelosauna",
		}))
	}

	bus := events.NewEventBus()
	svc := NewService(db, cache.NewMemoryCache(time.Minute), bus, testSettings(t), time.Second, &logger)
	svc.now = func() time.Time { return monday }
	return &fixture{svc: svc, db: db, bus: bus}
}

func claimReq(user, sauna string, start time.Time) ClaimRequest {
	return ClaimRequest{UserID: user, SaunaName: sauna, StartTime: start, AufgussType: "Birke"}
}

func TestService_ClaimShowsInWeek(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.svc.Week(ctx, tuesdayAt(9, 0))
	require.NoError(t, err)
	require.Len(t, before.Slots(), 14)
	for _, s := range before.Slots() {
		assert.False(t, s.Claimed())
	}

	claim, err := f.svc.Claim(ctx, claimReq("anna", "Kelosauna", tuesdayAt(15, 0)))
	require.NoError(t, err)
	assert.NotZero(t, claim.ID)
	assert.True(t, tuesdayAt(15, 15).Equal(claim.EndTime))
	require.NotNil(t, claim.Profile)
	assert.Equal(t, "anna Saunafreund", claim.Profile.Name)

	// the cached empty week must not hide the new claim
	after, err := f.svc.Week(ctx, tuesdayAt(9, 0))
	require.NoError(t, err)
	var claimed []schedule.MergedSlot
	for _, s := range after.Slots() {
		if s.Claimed() {
			claimed = append(claimed, s)
		}
	}
	require.Len(t, claimed, 1)
	assert.Equal(t, "Kelosauna", claimed[0].Resource)
	assert.True(t, tuesdayAt(15, 0).Equal(claimed[0].Start))
	assert.Equal(t, "anna", claimed[0].Claim.ClaimedBy)
	assert.Len(t, after.Days, 1)
	assert.Equal(t, "2026-10-13", after.Days[0].Date)
}

func TestService_ClaimValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   ClaimRequest
		field string
	}{
		{"missing user", claimReq("", "Kelosauna", tuesdayAt(14, 0)), "user_id"},
		{"unknown category", ClaimRequest{UserID: "anna", SaunaName: "Kelosauna", StartTime: tuesdayAt(14, 0), AufgussType: "Lavendel"}, "aufguss_type"},
		{"unknown sauna", claimReq("anna", "Dampfbad", tuesdayAt(14, 0)), "sauna_name"},
		{"off the grid", claimReq("anna", "Kelosauna", tuesdayAt(14, 30)), "start_time"},
		{"closed day", claimReq("anna", "Kelosauna", tuesdayAt(14, 0).AddDate(0, 0, -1)), "start_time"},
		{"no profile", claimReq("ghost", "Kelosauna", tuesdayAt(14, 0)), "user_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Claim(ctx, tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	t.Run("past slot", func(t *testing.T) {
		f.svc.now = func() time.Time { return tuesdayAt(16, 0) }
		defer func() { f.svc.now = func() time.Time { return monday } }()

		_, err := f.svc.Claim(ctx, claimReq("anna", "Kelosauna", tuesdayAt(15, 0)))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "start_time", verr.Field)
	})

	claims, err := f.db.ClaimsBetween(ctx, monday.AddDate(0, 0, -7), monday.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestService_ClaimTaken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var created []events.ClaimPayload
	f.bus.Subscribe(func(e events.Event) error {
		var p events.ClaimPayload
		require.NoError(t, e.Decode(&p))
		created = append(created, p)
		return nil
	}, events.ClaimCreated)

	_, err := f.svc.Claim(ctx, claimReq("anna", "Kelosauna", tuesdayAt(14, 0)))
	require.NoError(t, err)

	_, err = f.svc.Claim(ctx, claimReq("ben", "Kelosauna", tuesdayAt(14, 0)))
	assert.ErrorIs(t, err, database.ErrSlotTaken)

	// the same start in the other sauna is a different slot
	_, err = f.svc.Claim(ctx, claimReq("ben", "Finnische Sauna", tuesdayAt(14, 0)))
	require.NoError(t, err)

	require.Len(t, created, 2)
	assert.Equal(t, "anna", created[0].Claim.ClaimedBy)
	assert.True(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC).Equal(created[0].WeekStart))
}

// slowStore holds one ClaimsBetween call after it has read from the database.
type slowStore struct {
	*database.DB
	hold   atomic.Bool
	loaded chan struct{}
	resume chan struct{}
}

func (s *slowStore) ClaimsBetween(ctx context.Context, from, to time.Time) ([]models.AufgussClaim, error) {
	claims, err := s.DB.ClaimsBetween(ctx, from, to)
	if s.hold.CompareAndSwap(true, false) {
		s.loaded <- struct{}{}
		<-s.resume
	}
	return claims, err
}

func TestService_CancelDuringWeekLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	logger := zerolog.New(io.Discard)
	store := &slowStore{DB: f.db, loaded: make(chan struct{}), resume: make(chan struct{})}
	svc := NewService(store, cache.NewMemoryCache(time.Minute), f.bus, testSettings(t), time.Second, &logger)
	svc.now = func() time.Time { return monday }

	claim, err := svc.Claim(ctx, claimReq("anna", "Kelosauna", tuesdayAt(14, 0)))
	require.NoError(t, err)

	store.hold.Store(true)
	loading := make(chan schedule.WeekPlan, 1)
	go func() {
		plan, err := svc.Week(ctx, tuesdayAt(9, 0))
		assert.NoError(t, err)
		loading <- plan
	}()
	<-store.loaded

	_, err = svc.Cancel(ctx, CancelRequest{ClaimID: claim.ID, UserID: "anna"})
	require.NoError(t, err)
	close(store.resume)
	<-loading

	claimed := func(plan schedule.WeekPlan) int {
		n := 0
		for _, s := range plan.Slots() {
			if s.Claimed() {
				n++
			}
		}
		return n
	}
	plan, err := svc.Week(ctx, tuesdayAt(9, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, claimed(plan), "the load read before the cancel must not be cached")

	_, err = svc.Claim(ctx, claimReq("ben", "Kelosauna", tuesdayAt(14, 0)))
	require.NoError(t, err)
	plan, err = svc.Week(ctx, tuesdayAt(9, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, claimed(plan))
}

func TestService_ClaimIgnoresCachedWeek(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim, err := f.svc.Claim(ctx, claimReq("anna", "Kelosauna", tuesdayAt(16, 0)))
	require.NoError(t, err)
	_, err = f.svc.Week(ctx, tuesdayAt(9, 0))
	require.NoError(t, err)

	// cancel behind the service's back: the cached week still shows the claim
	_, _, err = f.db.CancelClaim(ctx, claim.ID, "anna", monday, time.Hour)
	require.NoError(t, err)

	_, err = f.svc.Claim(ctx, claimReq("ben", "Kelosauna", tuesdayAt(16, 0)))
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, claimReq("anna", "Kelosauna", tuesdayAt(16, 0)))
	assert.ErrorIs(t, err, database.ErrSlotTaken)
}

func TestService_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var cancelled []events.ClaimPayload
	f.bus.Subscribe(func(e events.Event) error {
		var p events.ClaimPayload
		require.NoError(t, e.Decode(&p))
		cancelled = append(cancelled, p)
		return nil
	}, events.ClaimCancelled)

	early, err := f.svc.Claim(ctx, claimReq("anna", "Kelosauna", tuesdayAt(14, 0)))
	require.NoError(t, err)
	late, err := f.svc.Claim(ctx, claimReq("anna", "Kelosauna", tuesdayAt(20, 0)))
	require.NoError(t, err)

	t.Run("not the claimant", func(t *testing.T) {
		_, err := f.svc.Cancel(ctx, CancelRequest{ClaimID: early.ID, UserID: "ben"})
		assert.ErrorIs(t, err, database.ErrNotClaimant)
	})

	t.Run("unknown claim", func(t *testing.T) {
		_, err := f.svc.Cancel(ctx, CancelRequest{ClaimID: 999, UserID: "anna"})
		assert.ErrorIs(t, err, database.ErrClaimNotFound)
	})

	t.Run("with notice", func(t *testing.T) {
		res, err := f.svc.Cancel(ctx, CancelRequest{ClaimID: early.ID, UserID: "anna"})
		require.NoError(t, err)
		assert.False(t, res.ShortNotice)
		assert.Equal(t, early.ID, res.Claim.ID)
	})

	t.Run("short notice", func(t *testing.T) {
		f.svc.now = func() time.Time { return tuesdayAt(9, 0) }
		defer func() { f.svc.now = func() time.Time { return monday } }()

		res, err := f.svc.Cancel(ctx, CancelRequest{ClaimID: late.ID, UserID: "anna"})
		require.NoError(t, err)
		assert.True(t, res.ShortNotice)

		p, err := f.db.GetProfile(ctx, "anna")
		require.NoError(t, err)
		assert.Equal(t, 1, p.ShortNoticeCancellations)
	})

	t.Run("already started", func(t *testing.T) {
		c, err := f.svc.Claim(ctx, claimReq("ben", "Kelosauna", tuesdayAt(16, 0)))
		require.NoError(t, err)

		f.svc.now = func() time.Time { return tuesdayAt(16, 5) }
		defer func() { f.svc.now = func() time.Time { return monday } }()

		_, err = f.svc.Cancel(ctx, CancelRequest{ClaimID: c.ID, UserID: "ben"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "claim_id", verr.Field)
	})

	require.Len(t, cancelled, 2)
	assert.False(t, cancelled[0].ShortNotice)
	assert.True(t, cancelled[1].ShortNotice)

	plan, err := f.svc.Week(ctx, monday)
	require.NoError(t, err)
	for _, s := range plan.Slots() {
		if s.Claimed() {
			assert.Equal(t, "ben", s.Claim.ClaimedBy)
		}
	}
}

func TestService_UnmatchedReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// a claim left over from an older grid
	stale := &models.AufgussClaim{
		SaunaName:   "Kelosauna",
		StartTime:   tuesdayAt(14, 30),
		EndTime:     tuesdayAt(14, 45),
		ClaimedBy:   "anna",
		AufgussType: "Honig",
	}
	require.NoError(t, f.db.CreateClaim(ctx, stale))

	plan, err := f.svc.Week(ctx, monday)
	require.NoError(t, err)
	assert.Empty(t, plan.Unmatched)
	assert.Len(t, plan.Slots(), 14)

	settings := testSettings(t)
	settings.Unmatched = schedule.UnmatchedReport
	f.svc.UpdateSettings(settings)

	plan, err = f.svc.Week(ctx, monday)
	require.NoError(t, err)
	require.Len(t, plan.Unmatched, 1)
	assert.Equal(t, stale.ID, plan.Unmatched[0].ID)
	assert.Len(t, plan.Slots(), 14)
}

func TestService_MyClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Claim(ctx, claimReq("anna", "Kelosauna", tuesdayAt(18, 0)))
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, claimReq("anna", "Finnische Sauna", tuesdayAt(14, 0)))
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, claimReq("ben", "Kelosauna", tuesdayAt(14, 0)))
	require.NoError(t, err)

	mine, err := f.svc.MyClaims(ctx, "anna")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "Finnische Sauna", mine[0].SaunaName)
	assert.Equal(t, "Kelosauna", mine[1].SaunaName)

	_, err = f.svc.MyClaims(ctx, " ")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestService_Share(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Claim(ctx, claimReq("anna", "Kelosauna", tuesdayAt(18, 0)))
	require.NoError(t, err)
	second, err := f.svc.Claim(ctx, claimReq("anna", "Kelosauna", tuesdayAt(19, 0)))
	require.NoError(t, err)

	_, err = f.svc.Share(ctx, ShareRequest{ClaimID: first.ID, UserID: "ben"})
	assert.ErrorIs(t, err, database.ErrNotClaimant)

	post, err := f.svc.Share(ctx, ShareRequest{ClaimID: first.ID, UserID: "anna"})
	require.NoError(t, err)
	assert.Equal(t, models.PostText, post.Type)
	assert.Equal(t, "Am Dienstag, 13.10. um 18:00 Uhr gibt es einen Birke-Aufguss in der Kelosauna. Kommt vorbei!", post.Content)

	_, err = f.svc.Share(ctx, ShareRequest{ClaimID: second.ID, UserID: "anna"})
	assert.ErrorIs(t, err, database.ErrShareCooldown)

	f.svc.now = func() time.Time { return monday.Add(DefaultShareCooldown) }
	defer func() { f.svc.now = func() time.Time { return monday } }()
	_, err = f.svc.Share(ctx, ShareRequest{ClaimID: second.ID, UserID: "anna"})
	require.NoError(t, err)

	posts, err := f.db.ListPosts(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

func TestService_Tally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Claim(ctx, claimReq("anna", "Kelosauna", tuesdayAt(14, 0)))
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, claimReq("anna", "Kelosauna", tuesdayAt(15, 0)))
	require.NoError(t, err)

	f.svc.now = func() time.Time { return tuesdayAt(15, 20) }
	n, err := f.svc.Tally(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.svc.Tally(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	p, err := f.db.GetProfile(ctx, "anna")
	require.NoError(t, err)
	assert.Equal(t, 2, p.AufgussCount)
	assert.InDelta(t, 0.5, p.WorkHours, 0.0001)
}

type mockStore struct {
	mock.Mock
	ClaimStore
}

func (m *mockStore) ClaimsBetween(ctx context.Context, from, to time.Time) ([]models.AufgussClaim, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AufgussClaim), args.Error(1)
}

func TestService_WeekStorageFailure(t *testing.T) {
	logger := zerolog.New(io.Discard)
	store := new(mockStore)
	weekStart := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	store.On("ClaimsBetween", mock.Anything, weekStart, weekStart.AddDate(0, 0, 7)).
		Return(nil, errors.New("database is locked")).Once()
	store.On("ClaimsBetween", mock.Anything, weekStart, weekStart.AddDate(0, 0, 7)).
		Return([]models.AufgussClaim{}, nil).Once()

	svc := NewService(store, nil, nil, testSettings(t), time.Second, &logger)

	_, err := svc.Week(context.Background(), monday)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")

	plan, err := svc.Week(context.Background(), monday)
	require.NoError(t, err)
	assert.Len(t, plan.Slots(), 14)
	store.AssertExpectations(t)
}
