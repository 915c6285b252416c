// Package discordid validates Discord snowflake ids and resolves asset URLs.
package discordid

import (
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Discord's epoch, the earliest instant a snowflake can encode.
var epoch = time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC)

// Valid reports whether id is a plausible snowflake: 15 to 20 digits
// encoding a creation time between the Discord epoch and a day from now.
func Valid(id string) bool {
	if len(id) < 15 || len(id) > 20 {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	ts, err := discordgo.SnowflakeTimestamp(id)
	if err != nil {
		return false
	}
	return ts.After(epoch) && ts.Before(time.Now().Add(24*time.Hour))
}

// Created returns the creation time encoded in a snowflake.
func Created(id string) (time.Time, bool) {
	if !Valid(id) {
		return time.Time{}, false
	}
	ts, err := discordgo.SnowflakeTimestamp(id)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// GuildIconURL returns icon as-is when it is already a URL, or builds the
// CDN URL from a bare icon hash. It returns "" when there is no icon.
func GuildIconURL(guildID, icon string) string {
	icon = strings.TrimSpace(icon)
	switch {
	case icon == "":
		return ""
	case strings.HasPrefix(icon, "https://"), strings.HasPrefix(icon, "http://"):
		return icon
	case guildID == "":
		return ""
	default:
		return discordgo.EndpointGuildIcon(guildID, icon)
	}
}
