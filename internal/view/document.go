package view

import (
	"errors"
	"html/template"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrNoSlot is returned when writing to a slot or field the layout does not have.
var ErrNoSlot = errors.New("slot not found")

// Slot is a named container in the dashboard page.
type Slot string

// Slots of the dashboard layout.
const (
	SlotGuildsTable     Slot = "guilds-table-body"
	SlotGuildModalTitle Slot = "guildModalTitle"
	SlotGuildModalBody  Slot = "guildModalBody"
	SlotWhitelistUsers  Slot = "whitelist-users"
	SlotWhitelistRoles  Slot = "whitelist-roles"
	SlotAllowedRoles    Slot = "allowed-roles-list"
	SlotRecentEvents    Slot = "recentEvents"
	SlotLogEntries      Slot = "logEntries"
	SlotWarningsTable   Slot = "warnings-table"
	SlotKicksTable      Slot = "kicks-table"
	SlotBotName         Slot = "bot-name"
	SlotBotStatus       Slot = "bot-status"
	SlotGuildCount      Slot = "guild-count"
	SlotUptime          Slot = "uptime"
	SlotDBStatus        Slot = "db-status-badge"
	SlotQueueStatus     Slot = "queue-status"
	SlotActivityChart   Slot = "activityChart"
	SlotUsageChart      Slot = "usageChart"
	SlotChartStatus     Slot = "chart-status"
)

// Input fields of the dashboard layout.
const (
	FieldWhitelistUser       = "whitelist-user-id"
	FieldWhitelistRole       = "whitelist-role-id"
	FieldAllowedRole         = "allowed-role-id"
	FieldLogLines            = "log-lines-count"
	FieldForceCheckUser      = "force-check-user"
	FieldRequiredMinutes     = "required_minutes"
	FieldRequiredDays        = "required_days"
	FieldMonitoringPeriod    = "monitoring_period"
	FieldKickAfterDays       = "kick_after_days"
	FieldNotificationChannel = "notification_channel"
	FieldLogChannel          = "log_channel"
	FieldAbsenceChannel      = "absence_channel"
	FieldTimezone            = "timezone"
)

// Controls of the dashboard layout that show a busy state.
const (
	ControlSaveConfig       = "save-config"
	ControlBackup           = "backup-bot"
	ControlRestart          = "restart-bot"
	ControlAddUserWhitelist = "add-user-whitelist"
	ControlAddRoleWhitelist = "add-role-whitelist"
	ControlAddAllowedRole   = "add-allowed-role"
	ControlRefreshLogs      = "refreshLogs"
	ControlRefreshGuild     = "refresh-guild-details"
	ControlExportReport     = "export-report"
	ControlSyncCommands     = "sync-commands-btn"
	ControlCleanupData      = "cleanup-data-btn"
	ControlForceCheck       = "force-check-btn"
)

// LayoutControls lists every control with a busy state.
var LayoutControls = []string{
	ControlSaveConfig, ControlBackup, ControlRestart,
	ControlAddUserWhitelist, ControlAddRoleWhitelist, ControlAddAllowedRole,
	ControlRefreshLogs, ControlRefreshGuild, ControlExportReport,
	ControlSyncCommands, ControlCleanupData, ControlForceCheck,
}

// LayoutSlots lists every slot of the dashboard page.
var LayoutSlots = []Slot{
	SlotGuildsTable, SlotGuildModalTitle, SlotGuildModalBody,
	SlotWhitelistUsers, SlotWhitelistRoles, SlotAllowedRoles,
	SlotRecentEvents, SlotLogEntries, SlotWarningsTable, SlotKicksTable,
	SlotBotName, SlotBotStatus, SlotGuildCount, SlotUptime, SlotDBStatus, SlotQueueStatus,
	SlotActivityChart, SlotUsageChart, SlotChartStatus,
}

// LayoutFields lists every input field of the dashboard page.
var LayoutFields = []string{
	FieldWhitelistUser, FieldWhitelistRole, FieldAllowedRole, FieldLogLines, FieldForceCheckUser,
	FieldRequiredMinutes, FieldRequiredDays, FieldMonitoringPeriod, FieldKickAfterDays,
	FieldNotificationChannel, FieldLogChannel, FieldAbsenceChannel, FieldTimezone,
}

// Element is the current content of a slot.
type Element struct {
	Slot    Slot          `json:"slot"`
	HTML    template.HTML `json:"html"`
	Version uint64        `json:"version"`
	Updated time.Time     `json:"updated"`
}

// UpdateKind tells what an Update refers to.
type UpdateKind string

const (
	UpdateSlot  UpdateKind = "slot"
	UpdateField UpdateKind = "field"
)

// Update is published whenever a slot or field changes.
type Update struct {
	Kind    UpdateKind    `json:"kind"`
	ID      string        `json:"id"`
	HTML    template.HTML `json:"html,omitempty"`
	Value   string        `json:"value"`
	Version uint64        `json:"version"`
}

// Document is the server-side model of the dashboard page: a fixed set of
// slots holding HTML fragments and a fixed set of input fields.
type Document struct {
	mu        sync.RWMutex
	slots     map[Slot]*Element
	fields    map[string]string
	version   uint64
	listeners []func(Update)
}

// NewDocument creates a document with the given layout.
func NewDocument(slots []Slot, fields []string) *Document {
	d := &Document{
		slots:  make(map[Slot]*Element, len(slots)),
		fields: make(map[string]string, len(fields)),
	}
	for _, s := range slots {
		d.slots[s] = &Element{Slot: s}
	}
	for _, f := range fields {
		d.fields[f] = ""
	}
	return d
}

// NewDashboardDocument creates a document with the full dashboard layout.
func NewDashboardDocument() *Document {
	return NewDocument(LayoutSlots, LayoutFields)
}

// OnUpdate registers a listener called after every change. Listeners must not block.
func (d *Document) OnUpdate(fn func(Update)) {
	d.mu.Lock()
	d.listeners = append(d.listeners, fn)
	d.mu.Unlock()
}

// Has reports whether the layout contains slot.
func (d *Document) Has(slot Slot) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.slots[slot]
	return ok
}

// Set replaces the content of a slot.
func (d *Document) Set(slot Slot, html template.HTML) error {
	d.mu.Lock()
	el, ok := d.slots[slot]
	if !ok {
		d.mu.Unlock()
		slog.Warn("slot not found", "slot", slot)
		return ErrNoSlot
	}
	d.version++
	el.HTML = html
	el.Version = d.version
	el.Updated = time.Now()
	u := Update{Kind: UpdateSlot, ID: string(slot), HTML: html, Version: d.version}
	listeners := d.listeners
	d.mu.Unlock()

	for _, fn := range listeners {
		fn(u)
	}
	return nil
}

// Get returns the current content of a slot.
func (d *Document) Get(slot Slot) (Element, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	el, ok := d.slots[slot]
	if !ok {
		return Element{}, false
	}
	return *el, true
}

// HTML returns the content of a slot, or "" when it does not exist.
func (d *Document) HTML(slot Slot) template.HTML {
	el, _ := d.Get(slot)
	return el.HTML
}

// Elements returns every slot sorted by name.
func (d *Document) Elements() []Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Element, 0, len(d.slots))
	for _, el := range d.slots {
		out = append(out, *el)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// SetValue replaces the value of an input field.
func (d *Document) SetValue(field, value string) error {
	d.mu.Lock()
	if _, ok := d.fields[field]; !ok {
		d.mu.Unlock()
		slog.Warn("field not found", "field", field)
		return ErrNoSlot
	}
	d.version++
	d.fields[field] = value
	u := Update{Kind: UpdateField, ID: field, Value: value, Version: d.version}
	listeners := d.listeners
	d.mu.Unlock()

	for _, fn := range listeners {
		fn(u)
	}
	return nil
}

// Value returns the value of an input field.
func (d *Document) Value(field string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.fields[field]
	return v, ok
}

// Fields returns a copy of every input field.
func (d *Document) Fields() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.fields))
	for k, v := range d.fields {
		out[k] = v
	}
	return out
}
