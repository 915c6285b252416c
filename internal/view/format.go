package view

import (
	"strconv"
	"strings"
	"time"

	"github.com/hako/durafmt"
)

const (
	placeholderNA     = "N/A"
	displayDateTime   = "02/01/2006 15:04:05"
	notConfigured     = "Não configurado"
	unknownID         = "ID desconhecido"
	defaultBotName    = "Inactivity Bot"
	statusOperational = "Operacional"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate accepts the timestamp formats the backend emits.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// formatDate renders a backend timestamp for display. Unparseable values are
// shown as received; empty values become N/A.
func formatDate(s string) string {
	if strings.TrimSpace(s) == "" {
		return placeholderNA
	}
	if t, ok := parseDate(s); ok {
		return t.Format(displayDateTime)
	}
	return s
}

// orText returns s, or fallback when s is blank.
func orText(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// orNA renders a positive count, or N/A when it is zero.
func orNA(n int) string {
	if n == 0 {
		return placeholderNA
	}
	return strconv.Itoa(n)
}

// queueClass bands a queue depth into a badge color.
func queueClass(size int) string {
	switch {
	case size > 100:
		return "bg-danger"
	case size > 50:
		return "bg-warning"
	case size > 0:
		return "bg-primary"
	default:
		return "bg-secondary"
	}
}

// dbStatus maps the backend's database status text to a badge.
func dbStatus(s string) (class, label string) {
	switch {
	case strings.Contains(s, statusOperational):
		return "bg-success", statusOperational
	case strings.Contains(s, "Erro"):
		return "bg-danger", "Erro"
	default:
		return "bg-warning", "Desconhecido"
	}
}

// logClass picks the styling class of a log line.
func logClass(line string) string {
	switch {
	case strings.Contains(line, "ERROR"):
		return "log-error"
	case strings.Contains(line, "WARNING"):
		return "log-warning"
	default:
		return "log-info"
	}
}

// uptimeText prefers the backend's preformatted uptime and falls back to
// formatting uptime_seconds.
func uptimeText(uptime string, seconds *float64) string {
	if strings.TrimSpace(uptime) != "" {
		return uptime
	}
	if seconds == nil || *seconds < 0 {
		return placeholderNA
	}
	d := time.Duration(*seconds * float64(time.Second)).Truncate(time.Second)
	if d == 0 {
		return "0 seconds"
	}
	return durafmt.Parse(d).LimitFirstN(2).String()
}
