package club

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saunafreunde/internal/database"
	"saunafreunde/internal/models"
	"saunafreunde/shared/access"
)

func newTestService(t *testing.T) (*Service, *database.DB) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "club.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	acc := access.NewService(db, func(err error) bool { return errors.Is(err, database.ErrProfileNotFound) }, logger)
	known := func(name string) bool { return name == "Kelosauna" || name == "Finnische Sauna" }
	svc := NewService(db, db, acc, known, time.Second, &logger)
	svc.now = func() time.Time { return time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC) }
	return svc, db
}

func annaInput() ProfileInput {
	return ProfileInput{
		Username:     "anna",
		Name:         "Anna Aufguss",
		Email:        "anna@example.org",
		PrimarySauna: "Kelosauna",
	}
}

func TestService_CreateProfile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProfile(ctx, "u-anna", annaInput())
	require.NoError(t, err)
	assert.Equal(t, "u-anna", p.ID)
	assert.True(t, p.ShowInMemberList)
	assert.Equal(t, models.AvatarFallbackBase+"Anna+Aufguss", p.Avatar())

	taken := annaInput()
	_, err = svc.CreateProfile(ctx, "u-other", taken)
	assert.ErrorIs(t, err, database.ErrUsernameTaken)

	tests := []struct {
		name  string
		edit  func(*ProfileInput)
		field string
	}{
		{"missing username", func(in *ProfileInput) { in.Username = " " }, "username"},
		{"username with space", func(in *ProfileInput) { in.Username = "anna b" }, "username"},
		{"missing name", func(in *ProfileInput) { in.Name = "" }, "name"},
		{"bad email", func(in *ProfileInput) { in.Email = "anna" }, "email"},
		{"display name in email", func(in *ProfileInput) { in.Email = "Anna <anna@example.org>" }, "email"},
		{"unknown sauna", func(in *ProfileInput) { in.PrimarySauna = "Dampfbad" }, "primary_sauna"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := annaInput()
			in.Username = "someone"
			tt.edit(&in)
			_, err := svc.CreateProfile(ctx, "u-new", in)
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestService_UpdateProfileAndMembers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateProfile(ctx, "u-anna", annaInput())
	require.NoError(t, err)
	_, err = svc.CreateProfile(ctx, "u-ben", ProfileInput{
		Username: "ben", Name: "Ben Birke", Email: "ben@example.org", PrimarySauna: "Finnische Sauna",
	})
	require.NoError(t, err)

	hidden := false
	in := annaInput()
	in.Motto = "Heiß, heißer, Kelo"
	in.ShowInMemberList = &hidden
	p, err := svc.UpdateProfile(ctx, "u-anna", in)
	require.NoError(t, err)
	require.NotNil(t, p.LastProfileUpdate)
	assert.Equal(t, "Heiß, heißer, Kelo", p.Motto)

	members, err := svc.Members(ctx)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "ben", members[0].Username)

	_, err = svc.UpdateProfile(ctx, "u-ghost", annaInput())
	assert.ErrorIs(t, err, database.ErrProfileNotFound)
}

func TestService_Festivals(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateProfile(ctx, "u-anna", annaInput())
	require.NoError(t, err)
	_, err = svc.CreateProfile(ctx, "u-orga", ProfileInput{
		Username: "orga", Name: "Orga Team", Email: "orga@example.org", PrimarySauna: "Kelosauna",
	})
	require.NoError(t, err)
	require.NoError(t, db.SetPermissions(ctx, "u-orga", false, []string{models.PermissionManageFestivals}))

	start := time.Date(2026, 11, 7, 10, 0, 0, 0, time.UTC)
	in := FestivalInput{Name: "Saunanacht", StartDate: start, EndDate: start.Add(14 * time.Hour), Location: "Vereinsheim"}

	_, err = svc.CreateFestival(ctx, "u-anna", in)
	assert.True(t, access.IsAccessDenied(err))

	bad := in
	bad.EndDate = start.Add(-time.Hour)
	_, err = svc.CreateFestival(ctx, "u-orga", bad)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "end_date", verr.Field)

	early := in
	early.Name = "Herbstaufguss"
	early.StartDate = start.AddDate(0, 0, -14)
	early.EndDate = early.StartDate.Add(5 * time.Hour)

	f, err := svc.CreateFestival(ctx, "u-orga", in)
	require.NoError(t, err)
	_, err = svc.CreateFestival(ctx, "u-orga", early)
	require.NoError(t, err)

	list, err := svc.Festivals(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Herbstaufguss", list[0].Name)

	svc.now = func() time.Time { return time.Date(2026, 10, 30, 0, 0, 0, 0, time.UTC) }
	upcoming, err := svc.UpcomingFestivals(ctx)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "Saunanacht", upcoming[0].Name)

	assert.True(t, access.IsAccessDenied(svc.DeleteFestival(ctx, "u-anna", f.ID)))
	require.NoError(t, svc.DeleteFestival(ctx, "u-orga", f.ID))
	assert.ErrorIs(t, svc.DeleteFestival(ctx, "u-orga", f.ID), database.ErrFestivalNotFound)
}
