package models

import (
	"net/url"
	"time"
)

// AvatarFallbackBase renders initials when a member has no avatar.
const AvatarFallbackBase = "https://api.dicebear.com/8.x/initials/svg?seed="

// Permission names stored in Profile.Permissions.
const (
	PermissionManageFestivals = "manage_festivals"
	PermissionManageFeed      = "manage_feed"
	PermissionExport          = "export"
)

// Profile is a club member.
type Profile struct {
	ID                        string     `json:"id"`
	Username                  string     `json:"username"`
	Name                      string     `json:"name"`
	Email                     string     `json:"email"`
	PrimarySauna              string     `json:"primary_sauna"`
	AvatarURL                 string     `json:"avatar_url,omitempty"`
	Nickname                  string     `json:"nickname,omitempty"`
	Phone                     string     `json:"phone,omitempty"`
	Motto                     string     `json:"motto,omitempty"`
	Qualifications            []string   `json:"qualifications"`
	Awards                    []string   `json:"awards"`
	AufgussCount              int        `json:"aufguss_count"`
	WorkHours                 float64    `json:"work_hours"`
	ShortNoticeCancellations  int        `json:"short_notice_cancellations"`
	IsAdmin                   bool       `json:"is_admin"`
	ShowInMemberList          bool       `json:"show_in_member_list"`
	Permissions               []string   `json:"permissions"`
	TelegramChatID            int64      `json:"telegram_chat_id,omitempty"`
	LastProfileUpdate         *time.Time `json:"last_profile_update,omitempty"`
	LastAufgussShareTimestamp *time.Time `json:"last_aufguss_share_timestamp,omitempty"`
	CreatedAt                 time.Time  `json:"created_at"`
}

// HasPermission reports whether the member holds perm. Admins hold every permission.
func (p *Profile) HasPermission(perm string) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin {
		return true
	}
	for _, have := range p.Permissions {
		if have == perm {
			return true
		}
	}
	return false
}

// Avatar returns the avatar URL or the initials fallback.
func (p *Profile) Avatar() string {
	return AvatarURLFor(p.Name, p.AvatarURL)
}

// Fragment returns the public part of the profile shown next to claims, posts and comments.
func (p *Profile) Fragment() *ProfileFragment {
	if p == nil {
		return nil
	}
	return &ProfileFragment{
		ID:        p.ID,
		Name:      p.Name,
		Username:  p.Username,
		AvatarURL: p.Avatar(),
	}
}

// ProfileFragment is the public profile subset joined onto other records.
type ProfileFragment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// AvatarURLFor returns avatar when set, otherwise the initials image for name.
func AvatarURLFor(name, avatar string) string {
	if avatar != "" {
		return avatar
	}
	return AvatarFallbackBase + url.QueryEscape(name)
}
