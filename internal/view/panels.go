package view

import (
	"context"
	"html/template"
	"sort"
	"strconv"
	"strings"

	"github.com/guildpanel/guildpanel/internal/backend"
	"github.com/guildpanel/guildpanel/internal/discordid"
)

// --- Guild list ---

type guildRow struct {
	ID      string
	Name    string
	Icon    string
	Members int
	Voice   int
}

// Guilds renders the guild table.
func (r *Renderer) Guilds(ctx context.Context) error {
	const cols = 5
	opts := r.Options()
	return r.run(ctx, job{
		panel:   PanelGuilds,
		title:   "Erro ao carregar servidores",
		loading: fragmentSet{SlotGuildsTable: spinnerRow(cols)},
		fetch: func(ctx context.Context) (fragmentSet, error) {
			guilds, err := r.src.Guilds(ctx)
			if err != nil {
				return nil, err
			}
			if len(guilds) == 0 {
				return fragmentSet{SlotGuildsTable: emptyRow("Nenhum servidor encontrado", cols)}, nil
			}
			rows := make([]guildRow, 0, len(guilds))
			for _, g := range guilds {
				id := g.ID.String()
				if opts.Strict && !opts.ValidID(id) {
					continue
				}
				rows = append(rows, guildRow{
					ID:      id,
					Name:    orText(g.Name, "Nome desconhecido"),
					Icon:    discordid.GuildIconURL(id, g.Icon),
					Members: g.MemberCount,
					Voice:   len(g.VoiceChannels),
				})
			}
			if len(rows) == 0 {
				return fragmentSet{SlotGuildsTable: emptyRow("Nenhum servidor válido encontrado", cols)}, nil
			}
			return fragmentSet{SlotGuildsTable: execute("guildRows", rows)}, nil
		},
		failed: func(err error) fragmentSet {
			return fragmentSet{SlotGuildsTable: errorRow("Erro ao carregar servidores", PanelGuilds, cols, err)}
		},
	})
}

// --- Guild detail ---

type roleRow struct {
	Name     string
	Members  int
	Color    string
	Position int
}

type voiceRow struct {
	Name  string
	Users int
	Type  string
}

type channelsRow struct {
	Notification string
	Log          string
	Absence      string
}

type guildDetailData struct {
	ID               string
	Name             string
	Icon             string
	Created          string
	Members          int
	Active           int
	Inactive         int
	Warned           int
	RequiredMinutes  string
	RequiredDays     string
	MonitoringPeriod string
	KickAfterDays    string
	Timezone         string
	LastCheck        string
	Channels         *channelsRow
	Roles            []roleRow
	VoiceChannels    []voiceRow
}

const guildNotFound = "Guild not found"

// GuildDetail renders the guild detail modal for guildID.
func (r *Renderer) GuildDetail(ctx context.Context, guildID string) error {
	opts := r.Options()
	return r.run(ctx, job{
		panel: PanelGuild,
		title: "Erro ao carregar detalhes do servidor",
		loading: fragmentSet{
			SlotGuildModalTitle: text("Carregando..."),
			SlotGuildModalBody:  spinner(),
		},
		fetch: func(ctx context.Context) (fragmentSet, error) {
			if strings.TrimSpace(guildID) == "" {
				return nil, &ShapeError{Panel: PanelGuild, Reason: "ID da guilda não fornecido"}
			}
			if opts.Strict && !opts.ValidID(guildID) {
				return nil, &ShapeError{Panel: PanelGuild, Reason: "ID da guilda inválido: " + guildID}
			}
			g, err := r.src.Guild(ctx, guildID)
			if err != nil {
				return nil, err
			}
			if opts.Strict && (g == nil || g.ID == "") {
				return nil, &ShapeError{Panel: PanelGuild, Reason: "Dados do servidor inválidos"}
			}
			if g == nil {
				g = &backend.GuildDetail{}
			}
			return fragmentSet{
				SlotGuildModalTitle: text(orText(g.Name, "Detalhes do Servidor")),
				SlotGuildModalBody:  execute("guildDetail", guildDetail(g)),
			}, nil
		},
		failed: func(err error) fragmentSet {
			msg := errMessage(err)
			return fragmentSet{
				SlotGuildModalTitle: text("Detalhes do Servidor"),
				SlotGuildModalBody: execute("guildError", struct {
					NotFound bool
					Message  string
				}{msg == guildNotFound, msg}),
			}
		},
	})
}

func guildDetail(g *backend.GuildDetail) guildDetailData {
	id := g.ID.String()
	d := guildDetailData{
		ID:               orText(id, placeholderNA),
		Name:             orText(g.Name, "Servidor sem nome"),
		Icon:             discordid.GuildIconURL(id, g.Icon),
		Members:          g.MemberCount,
		RequiredMinutes:  placeholderNA,
		RequiredDays:     placeholderNA,
		MonitoringPeriod: placeholderNA,
		KickAfterDays:    placeholderNA,
		Timezone:         placeholderNA,
		LastCheck:        formatDate(g.LastCheck),
	}
	if created, ok := discordid.Created(id); ok {
		d.Created = created.Format(displayDateTime)
	}
	if s := g.ActivityStats; s != nil {
		d.Active, d.Inactive, d.Warned = s.ActiveUsers, s.InactiveUsers, s.WarnedUsers
	}
	if c := g.Config; c != nil {
		d.RequiredMinutes = orNA(c.RequiredMinutes)
		d.RequiredDays = orNA(c.RequiredDays)
		d.MonitoringPeriod = orNA(c.MonitoringPeriod)
		d.KickAfterDays = orNA(c.KickAfterDays)
		d.Timezone = orText(c.Timezone, placeholderNA)
	}
	if ns := g.NotificationSettings; ns != nil {
		d.Channels = &channelsRow{
			Notification: orText(ns.NotificationChannel.String(), notConfigured),
			Log:          orText(ns.LogChannel.String(), notConfigured),
			Absence:      orText(ns.AbsenceChannel.String(), notConfigured),
		}
	}
	for _, role := range g.TrackedRoles {
		d.Roles = append(d.Roles, roleRow{
			Name:     orText(role.Name, "Sem nome"),
			Members:  role.MemberCount,
			Color:    role.Color,
			Position: role.Position,
		})
	}
	for _, ch := range g.VoiceChannels {
		d.VoiceChannels = append(d.VoiceChannels, voiceRow{
			Name:  orText(ch.Name, "Sem nome"),
			Users: ch.UserCount,
			Type:  orText(ch.Type, "Normal"),
		})
	}
	return d
}

// --- Config form ---

// ConfigForm loads the first guild's configuration into the form fields.
func (r *Renderer) ConfigForm(ctx context.Context) error {
	strict := r.Options().Strict
	var values map[string]string
	return r.run(ctx, job{
		panel: PanelConfig,
		title: "Erro ao carregar configurações",
		after: func() {
			for field, v := range values {
				r.doc.SetValue(field, v)
			}
		},
		fetch: func(ctx context.Context) (fragmentSet, error) {
			guilds, err := r.src.Guilds(ctx)
			if err != nil {
				return nil, err
			}
			if len(guilds) == 0 {
				return nil, nil
			}
			g, err := r.src.Guild(ctx, guilds[0].ID.String())
			if err != nil {
				return nil, err
			}
			if g == nil || g.Config == nil {
				if strict {
					return nil, &ShapeError{Panel: PanelConfig, Reason: "Configurações inválidas retornadas pelo servidor"}
				}
				return nil, nil
			}
			values = configValues(g)
			return nil, nil
		},
		failed: func(error) fragmentSet { return nil },
	})
}

func configValues(g *backend.GuildDetail) map[string]string {
	number := func(n int) string {
		if n == 0 {
			return ""
		}
		return strconv.Itoa(n)
	}
	values := map[string]string{
		FieldRequiredMinutes:  number(g.Config.RequiredMinutes),
		FieldRequiredDays:     number(g.Config.RequiredDays),
		FieldMonitoringPeriod: number(g.Config.MonitoringPeriod),
		FieldKickAfterDays:    number(g.Config.KickAfterDays),
	}
	if ns := g.NotificationSettings; ns != nil {
		values[FieldNotificationChannel] = ns.NotificationChannel.String()
		values[FieldLogChannel] = ns.LogChannel.String()
		values[FieldAbsenceChannel] = ns.AbsenceChannel.String()
	}
	if g.Config.Timezone != "" {
		values[FieldTimezone] = g.Config.Timezone
	}
	return values
}

// --- Whitelist ---

// Whitelist renders the whitelisted users and roles.
func (r *Renderer) Whitelist(ctx context.Context) error {
	strict := r.Options().Strict
	return r.run(ctx, job{
		panel: PanelWhitelist,
		title: "Erro ao carregar whitelist",
		loading: fragmentSet{
			SlotWhitelistUsers: spinner(),
			SlotWhitelistRoles: spinner(),
		},
		fetch: func(ctx context.Context) (fragmentSet, error) {
			wl, err := r.src.Whitelist(ctx)
			if err != nil {
				return nil, err
			}
			if wl == nil {
				wl = &backend.Whitelist{}
			}
			return fragmentSet{
				SlotWhitelistUsers: whitelistList(backend.TargetUser, wl.Users, strict, "Nenhum usuário na whitelist"),
				SlotWhitelistRoles: whitelistList(backend.TargetRole, wl.Roles, strict, "Nenhum cargo na whitelist"),
			}, nil
		},
		failed: func(err error) fragmentSet {
			return fragmentSet{
				SlotWhitelistUsers: errorAlert("Erro ao carregar usuários da whitelist", PanelWhitelist, err),
				SlotWhitelistRoles: errorAlert("Erro ao carregar cargos da whitelist", PanelWhitelist, err),
			}
		},
	})
}

func whitelistList(targetType string, ids []backend.Scalar, strict bool, empty string) template.HTML {
	items := make([]string, 0, len(ids))
	for _, id := range ids {
		s := id.String()
		if s == "" {
			if strict {
				continue
			}
			s = unknownID
		}
		items = append(items, s)
	}
	if len(items) == 0 {
		return execute("empty", empty)
	}
	return execute("whitelistItems", struct {
		Type  string
		Items []string
	}{targetType, items})
}

// --- Allowed roles ---

type allowedRoleRow struct {
	ID        string
	Name      string
	Color     string
	Removable bool
}

// AllowedRoles renders the allowed roles list.
func (r *Renderer) AllowedRoles(ctx context.Context) error {
	strict := r.Options().Strict
	return r.run(ctx, job{
		panel:   PanelAllowedRoles,
		title:   "Erro ao carregar cargos permitidos",
		loading: fragmentSet{SlotAllowedRoles: spinner()},
		fetch: func(ctx context.Context) (fragmentSet, error) {
			roles, err := r.src.AllowedRoles(ctx)
			if err != nil {
				return nil, err
			}
			rows := make([]allowedRoleRow, 0, len(roles))
			for _, role := range roles {
				id := role.ID.String()
				if strict && id == "" {
					continue
				}
				rows = append(rows, allowedRoleRow{
					ID:        orText(id, unknownID),
					Name:      orText(role.Name, "Sem nome"),
					Color:     role.Color,
					Removable: id != "",
				})
			}
			if len(rows) == 0 {
				return fragmentSet{SlotAllowedRoles: execute("empty", "Nenhum cargo permitido definido")}, nil
			}
			return fragmentSet{SlotAllowedRoles: execute("allowedRoles", rows)}, nil
		},
		failed: func(err error) fragmentSet {
			return fragmentSet{SlotAllowedRoles: errorAlert("Erro ao carregar cargos permitidos", PanelAllowedRoles, err)}
		},
	})
}

// --- Recent events ---

type eventRow struct {
	Time      string
	Endpoint  string
	Bucket    string
	Remaining string
	Method    string
}

// Events renders the recent rate-limiter events.
func (r *Renderer) Events(ctx context.Context) error {
	return r.run(ctx, job{
		panel:   PanelEvents,
		title:   "Erro ao carregar eventos",
		loading: fragmentSet{SlotRecentEvents: spinner()},
		fetch: func(ctx context.Context) (fragmentSet, error) {
			ev, err := r.src.Events(ctx)
			if err != nil {
				return nil, err
			}
			var rows []eventRow
			if ev != nil {
				for _, e := range ev.RecentEvents {
					rows = append(rows, eventRow{
						Time:      orText(e.Time, placeholderNA),
						Endpoint:  orText(e.Endpoint, placeholderNA),
						Bucket:    orText(e.Bucket.String(), placeholderNA),
						Remaining: orText(e.Remaining.String(), placeholderNA),
						Method:    orText(e.Method, "GET"),
					})
				}
			}
			return fragmentSet{SlotRecentEvents: execute("events", rows)}, nil
		},
		failed: func(err error) fragmentSet {
			return fragmentSet{SlotRecentEvents: errorAlert("Erro ao carregar eventos", PanelEvents, err)}
		},
	})
}

// --- Logs ---

type logRow struct {
	Class string
	Text  string
}

// LogLines returns the line count to request: the log-lines-count field when
// it holds a positive number, otherwise the configured default.
func (r *Renderer) LogLines() int {
	if v, ok := r.doc.Value(FieldLogLines); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return r.Options().LogLines
}

// Logs renders the last log lines.
func (r *Renderer) Logs(ctx context.Context) error {
	lines := r.LogLines()
	if r.controls != nil {
		r.controls.SetBusy(ControlRefreshLogs, true)
		defer r.controls.SetBusy(ControlRefreshLogs, false)
	}
	return r.run(ctx, job{
		panel:   PanelLogs,
		title:   "Erro ao carregar logs",
		loading: fragmentSet{SlotLogEntries: spinner()},
		fetch: func(ctx context.Context) (fragmentSet, error) {
			logs, err := r.src.Logs(ctx, lines)
			if err != nil {
				return nil, err
			}
			var rows []logRow
			if logs != nil {
				for _, line := range logs.Logs {
					rows = append(rows, logRow{Class: logClass(line), Text: orText(line, "Entrada de log vazia")})
				}
			}
			if len(rows) == 0 {
				return fragmentSet{SlotLogEntries: execute("empty", "Nenhum log disponível")}, nil
			}
			return fragmentSet{SlotLogEntries: execute("logs", rows)}, nil
		},
		failed: func(err error) fragmentSet {
			return fragmentSet{SlotLogEntries: errorAlert("Erro ao carregar logs", PanelLogs, err)}
		},
	})
}

// --- History ---

type warningRow struct {
	User string
	Type string
	Date string
}

type kickRow struct {
	User   string
	Date   string
	Reason string
}

func historyUser(name string, id backend.Scalar) string {
	return orText(name, orText(id.String(), unknownID))
}

// Warnings renders the warnings history table.
func (r *Renderer) Warnings(ctx context.Context) error {
	const cols = 3
	opts := r.Options()
	return r.run(ctx, job{
		panel:   PanelWarnings,
		title:   "Erro ao carregar avisos",
		loading: fragmentSet{SlotWarningsTable: spinnerRow(cols)},
		fetch: func(ctx context.Context) (fragmentSet, error) {
			records, err := r.src.WarningsHistory(ctx, opts.HistoryDays, opts.HistoryLimit)
			if err != nil {
				return nil, err
			}
			if len(records) == 0 {
				return fragmentSet{SlotWarningsTable: emptyRow("Nenhum aviso registrado", cols)}, nil
			}
			rows := make([]warningRow, 0, len(records))
			for _, w := range records {
				rows = append(rows, warningRow{
					User: historyUser(w.UserName, w.UserID),
					Type: orText(w.WarningType, placeholderNA),
					Date: formatDate(w.WarningDate),
				})
			}
			return fragmentSet{SlotWarningsTable: execute("warnings", rows)}, nil
		},
		failed: func(err error) fragmentSet {
			return fragmentSet{SlotWarningsTable: errorRow("Erro ao carregar avisos", PanelWarnings, cols, err)}
		},
	})
}

// Kicks renders the kicks history table.
func (r *Renderer) Kicks(ctx context.Context) error {
	const cols = 3
	opts := r.Options()
	return r.run(ctx, job{
		panel:   PanelKicks,
		title:   "Erro ao carregar expulsões",
		loading: fragmentSet{SlotKicksTable: spinnerRow(cols)},
		fetch: func(ctx context.Context) (fragmentSet, error) {
			records, err := r.src.KicksHistory(ctx, opts.HistoryDays, opts.HistoryLimit)
			if err != nil {
				return nil, err
			}
			if len(records) == 0 {
				return fragmentSet{SlotKicksTable: emptyRow("Nenhuma expulsão registrada", cols)}, nil
			}
			rows := make([]kickRow, 0, len(records))
			for _, k := range records {
				rows = append(rows, kickRow{
					User:   historyUser(k.UserName, k.UserID),
					Date:   formatDate(k.KickDate),
					Reason: orText(k.Reason, placeholderNA),
				})
			}
			return fragmentSet{SlotKicksTable: execute("kicks", rows)}, nil
		},
		failed: func(err error) fragmentSet {
			return fragmentSet{SlotKicksTable: errorRow("Erro ao carregar expulsões", PanelKicks, cols, err)}
		},
	})
}

// --- System status ---

// QueueBadge is one queue depth badge of the status card.
type QueueBadge struct {
	Name  string
	Size  int
	Class string
}

// QueueBadges bands each queue depth, sorted by queue name.
func QueueBadges(queues map[string]int) []QueueBadge {
	names := make([]string, 0, len(queues))
	for name := range queues {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]QueueBadge, 0, len(names))
	for _, name := range names {
		out = append(out, QueueBadge{Name: name, Size: queues[name], Class: queueClass(queues[name])})
	}
	return out
}

// Status renders the system status card. The previous values stay visible
// while the refresh is in flight.
func (r *Renderer) Status(ctx context.Context) error {
	return r.run(ctx, job{
		panel: PanelStatus,
		title: "Erro ao carregar status do sistema",
		loading: r.loadingIfEmpty(fragmentSet{
			SlotBotStatus: spinner(),
		}),
		fetch: func(ctx context.Context) (fragmentSet, error) {
			st, err := r.src.Status(ctx)
			if err != nil {
				return nil, err
			}
			if st == nil {
				st = &backend.Status{}
			}
			dbClass, dbLabel := dbStatus(st.DBStatus)
			frags := fragmentSet{
				SlotBotName: text(orText(st.BotName, defaultBotName)),
				SlotBotStatus: execute("botStatus", struct {
					Operational bool
					Text        string
				}{st.BotStatus == statusOperational, "Erro"}),
				SlotGuildCount: text(strconv.Itoa(st.GuildCount)),
				SlotUptime:     text(uptimeText(st.Uptime, st.UptimeSeconds)),
				SlotDBStatus: execute("dbStatus", struct {
					Class string
					Text  string
				}{dbClass, dbLabel}),
			}
			if st.QueueStatus != nil {
				frags[SlotQueueStatus] = execute("queues", QueueBadges(st.QueueStatus))
			}
			return frags, nil
		},
		failed: func(error) fragmentSet {
			return fragmentSet{
				SlotBotStatus: template.HTML(`<span class="status-indicator status-error"></span> <span>Erro ao carregar</span> `) +
					execute("retry", PanelStatus),
			}
		},
	})
}

// loadingIfEmpty keeps only the placeholders for slots that have nothing
// to show yet.
func (r *Renderer) loadingIfEmpty(frags fragmentSet) fragmentSet {
	out := make(fragmentSet, len(frags))
	for slot, html := range frags {
		if r.doc.HTML(slot) == "" {
			out[slot] = html
		}
	}
	return out
}

// --- Charts ---

func chartFragments(activityJSON, usageJSON string) fragmentSet {
	return fragmentSet{
		SlotActivityChart: execute("chart", struct{ Canvas, JSON string }{string(SlotActivityChart), activityJSON}),
		SlotUsageChart:    execute("chart", struct{ Canvas, JSON string }{string(SlotUsageChart), usageJSON}),
		SlotChartStatus:   "",
	}
}

// InitCharts disposes any live charts and publishes fresh, zero-filled ones.
func (r *Renderer) InitCharts() {
	activity, usage := r.charts.Init()
	p := r.panel(PanelCharts)
	_, seq, done := p.begin(context.Background())
	defer done()
	p.commit(seq, func() { r.apply(chartFragments(activity.JSON(), usage.JSON())) })
}

// UpdateCharts fetches activity stats and applies them to the charts,
// creating the charts first if they do not exist.
func (r *Renderer) UpdateCharts(ctx context.Context) error {
	return r.run(ctx, job{
		panel: PanelCharts,
		title: "Erro ao atualizar gráficos",
		fetch: func(ctx context.Context) (fragmentSet, error) {
			stats, err := r.src.ActivityStats(ctx)
			if err != nil {
				return nil, err
			}
			activity, usage, _ := r.charts.Update(stats)
			return chartFragments(activity.JSON(), usage.JSON()), nil
		},
		failed: func(err error) fragmentSet {
			return fragmentSet{SlotChartStatus: execute("chartError", errorData{
				Title:   "Erro ao atualizar gráficos",
				Message: errMessage(err),
				Panel:   PanelCharts,
			})}
		},
	})
}
