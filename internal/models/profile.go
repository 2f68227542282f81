package models

import (
	"fmt"
	"strings"
	"time"
)

// Profile is the raw user metadata row as stored
type Profile struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Country   string `json:"country"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url"`
	Timezone  string `json:"timezone"`
}

// ProfileSnapshot is the denormalized, display-oriented copy of a profile
// held by the profile cache. Derived fields are computed once at snapshot
// time so render paths never touch the raw row.
type ProfileSnapshot struct {
	UserID         string    `json:"user_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Country        string    `json:"country"`
	Bio            string    `json:"bio"`
	AvatarURL      string    `json:"avatar_url"`
	Timezone       string    `json:"timezone"`
	CachedAt       time.Time `json:"cached_at"`
	DisplayName    string    `json:"display_name"`
	HasAvatar      bool      `json:"has_avatar"`
	CountryDisplay string    `json:"country_display"`
	Placeholder    bool      `json:"placeholder,omitempty"`
}

// Snapshot derives a display-ready snapshot from a raw profile
func (p Profile) Snapshot(now time.Time) ProfileSnapshot {
	return ProfileSnapshot{
		UserID:         p.UserID,
		Name:           p.Name,
		Email:          p.Email,
		Country:        p.Country,
		Bio:            p.Bio,
		AvatarURL:      p.AvatarURL,
		Timezone:       p.Timezone,
		CachedAt:       now,
		DisplayName:    deriveDisplayName(p.Name, p.Email, p.UserID),
		HasAvatar:      p.AvatarURL != "",
		CountryDisplay: strings.ToUpper(p.Country),
	}
}

// PlaceholderProfile produces the deterministic fallback snapshot used when
// an owner id cannot be resolved anywhere (cache miss and fetch miss).
// Merged windows always render; they are never dropped for want of a profile.
func PlaceholderProfile(userID string, now time.Time) ProfileSnapshot {
	return ProfileSnapshot{
		UserID:      userID,
		Timezone:    "UTC",
		CachedAt:    now,
		DisplayName: deriveDisplayName("", "", userID),
		Placeholder: true,
	}
}

// deriveDisplayName picks the first usable identity: the profile name, the
// local part of the email, then a short handle derived from the user id.
func deriveDisplayName(name, email, userID string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	id := userID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("User %s", id)
}
