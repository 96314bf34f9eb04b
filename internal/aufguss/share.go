package aufguss

import (
	"context"
	"fmt"
	"strings"
	"time"

	"saunafreunde/internal/database"
	"saunafreunde/internal/models"
)

// DefaultShareCooldown limits feed shares per member.
const DefaultShareCooldown = 24 * time.Hour

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "Montag",
	time.Tuesday:   "Dienstag",
	time.Wednesday: "Mittwoch",
	time.Thursday:  "Donnerstag",
	time.Friday:    "Freitag",
	time.Saturday:  "Samstag",
	time.Sunday:    "Sonntag",
}

// ShareRequest posts a claim to the feed.
type ShareRequest struct {
	ClaimID int64
	UserID  string
}

// Share announces the caller's upcoming Aufguss in the feed.
// Members may share once per cooldown; a second share returns database.ErrShareCooldown.
func (s *Service) Share(ctx context.Context, req ShareRequest) (*models.Post, error) {
	settings := s.Settings()
	if strings.TrimSpace(req.UserID) == "" {
		return nil, invalid("user_id", "required")
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	claim, err := s.store.GetClaim(sctx, req.ClaimID)
	if err != nil {
		return nil, err
	}
	if claim.ClaimedBy != req.UserID {
		return nil, database.ErrNotClaimant
	}
	now := s.now()
	if !claim.EndTime.After(now) {
		return nil, invalid("claim_id", "Aufguss is already over")
	}

	post := &models.Post{
		UserID:  req.UserID,
		Type:    models.PostText,
		Content: ShareText(claim, settings.Table.Location),
	}
	if err := s.store.ShareToFeed(sctx, post, now, settings.ShareCooldown); err != nil {
		return nil, err
	}
	post.Profile = claim.Profile

	s.logger.Info().Int64("claim_id", claim.ID).Int64("post_id", post.ID).Msg("Aufguss shared")
	return post, nil
}

// ShareText is the feed text announcing a claim.
func ShareText(c *models.AufgussClaim, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	start := c.StartTime.In(loc)
	return fmt.Sprintf("Am %s, %s um %s Uhr gibt es einen %s-Aufguss in der %s. Kommt vorbei!",
		weekdayNames[start.Weekday()],
		start.Format("02.01."),
		start.Format("15:04"),
		c.AufgussType,
		c.SaunaName,
	)
}
