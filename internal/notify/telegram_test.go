package notify

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saunafreunde/internal/events"
	"saunafreunde/internal/models"
	"saunafreunde/shared/reminders"
)

type fakeClient struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeClient) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

var berlin = time.FixedZone("CEST", 2*3600)

func newTelegram(client TelegramClient) *Telegram {
	logger := zerolog.New(io.Discard)
	return NewTelegram(client, -1001, berlin, &logger)
}

func claim() models.AufgussClaim {
	start := time.Date(2026, 10, 13, 12, 0, 0, 0, time.UTC)
	return models.AufgussClaim{ID: 4, SaunaName: "Kelosauna", StartTime: start, EndTime: start.Add(15 * time.Minute), AufgussType: "Honig", ClaimedBy: "anna"}
}

func TestTelegram_SendReminder(t *testing.T) {
	client := &fakeClient{}
	tg := newTelegram(client)
	c := claim()

	require.NoError(t, tg.SendReminder(context.Background(), 55, &c))
	require.Len(t, client.sent, 1)
	msg := client.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(55), msg.ChatID)
	assert.Contains(t, msg.Text, "Honig-Aufguss in der Kelosauna")
	assert.Contains(t, msg.Text, "13.10.2026 um 14:00 Uhr")
}

func TestTelegram_ErrorMapping(t *testing.T) {
	client := &fakeClient{err: &tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests: retry after 7",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7},
	}}
	tg := newTelegram(client)

	err := tg.SendMessage(context.Background(), 1, "hallo")
	tgErr, ok := reminders.IsTelegramError(err)
	require.True(t, ok)
	assert.Equal(t, 429, tgErr.Code)
	assert.Equal(t, 7, tgErr.RetryAfter)
}

func TestTelegram_HandleEvent(t *testing.T) {
	client := &fakeClient{}
	tg := newTelegram(client)

	payload := func(short bool) []byte {
		b, err := json.Marshal(events.ClaimPayload{Claim: claim(), ShortNotice: short})
		require.NoError(t, err)
		return b
	}

	require.NoError(t, tg.HandleEvent(events.Event{Type: events.ClaimCancelled, Payload: payload(false)}))
	require.NoError(t, tg.HandleEvent(events.Event{Type: events.ClaimCreated, Payload: payload(true)}))
	assert.Empty(t, client.sent)

	require.NoError(t, tg.HandleEvent(events.Event{Type: events.ClaimCancelled, Payload: payload(true)}))
	require.Len(t, client.sent, 1)
	msg := client.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(-1001), msg.ChatID)
	assert.Equal(t, "🔥 Kurzfristig frei geworden: Kelosauna, 13.10. um 14:00 Uhr. Wer übernimmt den Aufguss?", msg.Text)
}
