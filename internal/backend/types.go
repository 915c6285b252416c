package backend

import (
	"bytes"
	"strconv"

	"github.com/guildpanel/guildpanel/internal/jsonx"
)

// Scalar is a loosely typed JSON value kept as text. Discord snowflakes
// arrive as numbers from some endpoints and strings from others, and a
// float64 cannot hold them exactly.
type Scalar string

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*s = ""
	case data[0] == '"':
		str, err := strconv.Unquote(string(data))
		if err != nil {
			var v string
			if err := jsonx.Unmarshal(data, &v); err != nil {
				return err
			}
			str = v
		}
		*s = Scalar(str)
	default:
		*s = Scalar(data)
	}
	return nil
}

// String returns the raw text.
func (s Scalar) String() string { return string(s) }

// Guild is one entry of GET /api/guilds.
type Guild struct {
	ID            Scalar         `json:"id"`
	Name          string         `json:"name"`
	MemberCount   int            `json:"member_count"`
	Icon          string         `json:"icon"`
	VoiceChannels []VoiceChannel `json:"voice_channels"`
}

// GuildDetail is the payload of GET /api/guild/{id}.
type GuildDetail struct {
	Guild
	Config               *GuildConfig          `json:"config"`
	NotificationSettings *NotificationSettings `json:"notification_settings"`
	TrackedRoles         []Role                `json:"tracked_roles"`
	ActivityStats        *ActivityStats        `json:"activity_stats"`
	LastCheck            string                `json:"last_check"`
}

// GuildConfig holds the activity policy of a guild.
type GuildConfig struct {
	RequiredMinutes  int    `json:"required_minutes"`
	RequiredDays     int    `json:"required_days"`
	MonitoringPeriod int    `json:"monitoring_period"`
	KickAfterDays    int    `json:"kick_after_days"`
	Timezone         string `json:"timezone"`
}

// NotificationSettings lists the configured channels of a guild.
type NotificationSettings struct {
	NotificationChannel Scalar `json:"notification_channel"`
	LogChannel          Scalar `json:"log_channel"`
	AbsenceChannel      Scalar `json:"absence_channel"`
}

// Role is a tracked role inside a guild detail.
type Role struct {
	ID          Scalar `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	MemberCount int    `json:"member_count"`
	Position    int    `json:"position"`
}

// VoiceChannel is a voice channel inside a guild.
type VoiceChannel struct {
	Name      string `json:"name"`
	UserCount int    `json:"user_count"`
	Type      string `json:"type"`
}

// Whitelist is the payload of GET /api/whitelist.
type Whitelist struct {
	Users []Scalar `json:"users"`
	Roles []Scalar `json:"roles"`
}

// AllowedRole is one entry of GET /api/allowed_roles.
type AllowedRole struct {
	ID    Scalar `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// RateEvent is a rate-limiter event reported by GET /api/events.
type RateEvent struct {
	Time      string `json:"time"`
	Endpoint  string `json:"endpoint"`
	Bucket    Scalar `json:"bucket"`
	Remaining Scalar `json:"remaining"`
	Method    string `json:"method"`
}

// Events is the payload of GET /api/events.
type Events struct {
	RecentEvents []RateEvent `json:"recent_events"`
}

// Logs is the payload of GET /api/logs.
type Logs struct {
	Logs []string `json:"logs"`
}

// ActivityStats is the payload of GET /api/activity_stats and the
// activity_stats block of a guild detail.
type ActivityStats struct {
	TotalUsers         int       `json:"total_users"`
	ActiveUsers        int       `json:"active_users"`
	InactiveUsers      int       `json:"inactive_users"`
	WarnedUsers        int       `json:"warned_users"`
	WeeklyVoiceMinutes []float64 `json:"weekly_voice_minutes"`
}

// Status is the payload of GET /api/status.
type Status struct {
	BotName       string         `json:"bot_name"`
	BotStatus     string         `json:"bot_status"`
	GuildCount    int            `json:"guild_count"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds *float64       `json:"uptime_seconds"`
	DBStatus      string         `json:"db_status"`
	QueueStatus   map[string]int `json:"queue_status"`
}

// WarningRecord is one row of GET /api/warnings_history.
type WarningRecord struct {
	UserID      Scalar `json:"user_id"`
	UserName    string `json:"user_name"`
	WarningType string `json:"warning_type"`
	WarningDate string `json:"warning_date"`
}

// KickRecord is one row of GET /api/kicks_history.
type KickRecord struct {
	UserID   Scalar `json:"user_id"`
	UserName string `json:"user_name"`
	KickDate string `json:"kick_date"`
	Reason   string `json:"reason"`
}

// ConfigUpdate is the body of POST /api/update_config. Values are sent as
// entered in the form.
type ConfigUpdate struct {
	RequiredMinutes     string `json:"required_minutes"`
	RequiredDays        string `json:"required_days"`
	MonitoringPeriod    string `json:"monitoring_period"`
	KickAfterDays       string `json:"kick_after_days"`
	NotificationChannel string `json:"notification_channel"`
	LogChannel          string `json:"log_channel"`
	AbsenceChannel      string `json:"absence_channel"`
	Timezone            string `json:"timezone"`
}

// Result is the generic {status, message} answer of mutation endpoints.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Whitelist and allowed-role mutation verbs.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// Whitelist target types.
const (
	TargetUser = "user"
	TargetRole = "role"
)
