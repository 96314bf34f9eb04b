// Package notify sends club notifications through the Telegram bot.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"saunafreunde/internal/events"
	"saunafreunde/internal/models"
	"saunafreunde/shared/reminders"
)

// TelegramClient is the part of the bot API used for sending.
type TelegramClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram formats and sends messages.
type Telegram struct {
	client     TelegramClient
	clubChatID int64
	location   *time.Location
	logger     zerolog.Logger
}

// NewBotClient connects to the Bot API.
func NewBotClient(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	api.Debug = debug
	return api, nil
}

// NewTelegram creates the notifier. clubChatID 0 disables club announcements.
func NewTelegram(client TelegramClient, clubChatID int64, loc *time.Location, logger *zerolog.Logger) *Telegram {
	if loc == nil {
		loc = time.Local
	}
	return &Telegram{
		client:     client,
		clubChatID: clubChatID,
		location:   loc,
		logger:     logger.With().Str("component", "telegram").Logger(),
	}
}

func (t *Telegram) send(c tgbotapi.Chattable) error {
	if _, err := t.client.Send(c); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			return &reminders.TelegramError{
				Code:       apiErr.Code,
				Message:    apiErr.Message,
				RetryAfter: apiErr.RetryAfter,
			}
		}
		return err
	}
	return nil
}

// SendMessage sends plain text to a chat.
func (t *Telegram) SendMessage(_ context.Context, chatID int64, text string) error {
	return t.send(tgbotapi.NewMessage(chatID, text))
}

// SendReminder tells the claimant about the upcoming Aufguss.
func (t *Telegram) SendReminder(ctx context.Context, chatID int64, claim *models.AufgussClaim) error {
	start := claim.StartTime.In(t.location)
	text := fmt.Sprintf("⏰ Erinnerung: Dein %s-Aufguss in der %s\n📅 %s um %s Uhr",
		claim.AufgussType,
		claim.SaunaName,
		start.Format("02.01.2006"),
		start.Format("15:04"),
	)
	return t.SendMessage(ctx, chatID, text)
}

// SendDocument uploads a file with a caption.
func (t *Telegram) SendDocument(_ context.Context, chatID int64, name string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	return t.send(doc)
}

// ShortNoticeText is the club announcement for a slot freed at short notice.
func (t *Telegram) ShortNoticeText(claim models.AufgussClaim) string {
	start := claim.StartTime.In(t.location)
	return fmt.Sprintf("🔥 Kurzfristig frei geworden: %s, %s um %s Uhr. Wer übernimmt den Aufguss?",
		claim.SaunaName,
		start.Format("02.01."),
		start.Format("15:04"),
	)
}

// HandleEvent posts short-notice cancellations to the club chat.
func (t *Telegram) HandleEvent(e events.Event) error {
	if t.clubChatID == 0 || e.Type != events.ClaimCancelled {
		return nil
	}
	var p events.ClaimPayload
	if err := e.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	if !p.ShortNotice {
		return nil
	}
	if err := t.SendMessage(context.Background(), t.clubChatID, t.ShortNoticeText(p.Claim)); err != nil {
		t.logger.Error().Err(err).Int64("claim_id", p.Claim.ID).Msg("Short-notice announcement failed")
		return err
	}
	return nil
}
