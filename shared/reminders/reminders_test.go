package reminders

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"saunafreunde/internal/logging"
	"saunafreunde/internal/models"
)

var now = time.Date(2026, 10, 12, 14, 0, 0, 0, time.UTC)

type memoryClaims struct {
	mu     sync.Mutex
	claims []models.AufgussClaim
	marked []int64
}

func (m *memoryClaims) UpcomingUnreminded(_ context.Context, at time.Time, within time.Duration) ([]models.AufgussClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AufgussClaim
	for _, c := range m.claims {
		if c.ReminderSent || !c.StartTime.After(at) || c.StartTime.After(at.Add(within)) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *memoryClaims) MarkReminderSent(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.claims {
		if m.claims[i].ID == id {
			m.claims[i].ReminderSent = true
		}
	}
	m.marked = append(m.marked, id)
	return nil
}

type staticProfiles map[string]*models.Profile

func (p staticProfiles) GetProfile(_ context.Context, id string) (*models.Profile, error) {
	if prof, ok := p[id]; ok {
		return prof, nil
	}
	return nil, errors.New("profile not found")
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendReminder(ctx context.Context, chatID int64, claim *models.AufgussClaim) error {
	return m.Called(ctx, chatID, claim.ID).Error(0)
}

func testLogger() Logger {
	return logging.NewAdapter(zerolog.New(io.Discard), "reminders")
}

func fastSender(n Notifier, metrics *Metrics) *Sender {
	return NewSender(n, SenderConfig{
		RateLimiter: RateLimiterConfig{Rate: 1000, Burst: 100},
		Retry:       RetryConfig{MaxRetries: 2, RetryDelays: []time.Duration{time.Millisecond}},
	}, metrics, testLogger())
}

func claimAt(id int64, user string, start time.Time) models.AufgussClaim {
	return models.AufgussClaim{ID: id, ClaimedBy: user, SaunaName: "Kelosauna", StartTime: start, EndTime: start.Add(15 * time.Minute), AufgussType: "Birke"}
}

func TestService_CheckNow(t *testing.T) {
	store := &memoryClaims{claims: []models.AufgussClaim{
		claimAt(1, "anna", now.Add(3*time.Hour)),
		claimAt(2, "ben", now.Add(20*time.Hour)),
		claimAt(3, "carla", now.Add(5*time.Hour)),
		claimAt(4, "anna", now.Add(48*time.Hour)),
		claimAt(5, "dora", now.Add(6*time.Hour)),
	}}
	profiles := staticProfiles{
		"anna":  {ID: "anna", TelegramChatID: 100},
		"ben":   {ID: "ben", TelegramChatID: 200},
		"carla": {ID: "carla"},
		"dora":  {ID: "dora", TelegramChatID: 400},
	}
	notifier := new(mockNotifier)
	notifier.On("SendReminder", mock.Anything, int64(100), int64(1)).Return(nil).Once()
	notifier.On("SendReminder", mock.Anything, int64(200), int64(2)).Return(nil).Once()
	notifier.On("SendReminder", mock.Anything, int64(400), int64(5)).
		Return(&TelegramError{Code: 403, Message: "Forbidden: bot was blocked by the user"}).Once()

	svc := NewService(&Config{HoursBefore: 24, MaxConcurrentNotifications: 2}, store, profiles, fastSender(notifier, nil), testLogger())
	svc.now = func() time.Time { return now }

	assert.Equal(t, 2, svc.CheckNow(context.Background()))
	notifier.AssertExpectations(t)
	assert.ElementsMatch(t, []int64{1, 2, 5}, store.marked)

	// nothing is sent twice
	assert.Equal(t, 0, svc.CheckNow(context.Background()))
	notifier.AssertNumberOfCalls(t, "SendReminder", 3)
}

func TestSender_Retry(t *testing.T) {
	claim := claimAt(9, "anna", now.Add(time.Hour))

	t.Run("transient failure then success", func(t *testing.T) {
		notifier := new(mockNotifier)
		notifier.On("SendReminder", mock.Anything, int64(100), int64(9)).Return(errors.New("connection reset")).Once()
		notifier.On("SendReminder", mock.Anything, int64(100), int64(9)).Return(&TelegramError{Code: 429, Message: "Too Many Requests"}).Once()
		notifier.On("SendReminder", mock.Anything, int64(100), int64(9)).Return(nil).Once()

		reg := prometheus.NewRegistry()
		metrics := NewMetrics("test", reg)
		require.NoError(t, fastSender(notifier, metrics).Send(context.Background(), 100, &claim))
		assert.Equal(t, float64(2), testutil.ToFloat64(metrics.ReminderRetries))
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RemindersSent.WithLabelValues("sent")))
	})

	t.Run("retries exhausted", func(t *testing.T) {
		notifier := new(mockNotifier)
		notifier.On("SendReminder", mock.Anything, int64(100), int64(9)).Return(errors.New("timeout"))

		err := fastSender(notifier, nil).Send(context.Background(), 100, &claim)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUndeliverable)
		notifier.AssertNumberOfCalls(t, "SendReminder", 3)
	})

	t.Run("bad request is final", func(t *testing.T) {
		notifier := new(mockNotifier)
		notifier.On("SendReminder", mock.Anything, int64(100), int64(9)).Return(&TelegramError{Code: 400, Message: "chat not found"})

		err := fastSender(notifier, nil).Send(context.Background(), 100, &claim)
		assert.ErrorIs(t, err, ErrUndeliverable)
		notifier.AssertNumberOfCalls(t, "SendReminder", 1)
	})
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 2})
	assert.True(t, rl.TryAcquire())
	assert.True(t, rl.TryAcquire())
	assert.False(t, rl.TryAcquire())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := rl.Wait(ctx)
	assert.Error(t, err)
}
