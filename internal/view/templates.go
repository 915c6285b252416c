package view

import (
	"bytes"
	"html/template"
	"log/slog"
	"regexp"
)

const defaultRoleColor = "#99aab5"

var colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// roleColor returns a safe CSS color, falling back to Discord's default role grey.
func roleColor(c string) template.CSS {
	if colorPattern.MatchString(c) {
		return template.CSS(c)
	}
	return template.CSS(defaultRoleColor)
}

var fragments = template.Must(template.New("fragments").Funcs(template.FuncMap{
	"roleColor": roleColor,
}).Parse(fragmentsSource))

// execute renders a named fragment. Template errors are programming errors;
// they are logged and produce an empty fragment.
func execute(name string, data any) template.HTML {
	var buf bytes.Buffer
	if err := fragments.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("fragment render failed", "template", name, "err", err)
		return ""
	}
	return template.HTML(buf.String())
}

// text escapes a plain string for a text-only slot.
func text(s string) template.HTML {
	return template.HTML(template.HTMLEscapeString(s))
}

const fragmentsSource = `
{{define "spinner"}}<div class="text-center py-3"><div class="spinner-border text-primary" role="status"><span class="visually-hidden">Carregando...</span></div></div>{{end}}

{{define "spinnerRow"}}<tr><td colspan="{{.}}" class="text-center py-3"><div class="spinner-border spinner-border-sm text-primary" role="status"><span class="visually-hidden">Carregando...</span></div></td></tr>{{end}}

{{define "retry"}}<button class="btn btn-sm btn-outline-primary mt-2" data-action="render" data-panel="{{.}}"><i class="bi bi-arrow-repeat"></i> Tentar novamente</button>{{end}}

{{define "errorAlert"}}<div class="alert alert-danger">{{.Title}}: {{.Message}} {{template "retry" .Panel}}</div>{{end}}

{{define "errorRow"}}<tr><td colspan="{{.Cols}}" class="text-center text-danger">{{.Title}}: {{.Message}} {{template "retry" .Panel}}</td></tr>{{end}}

{{define "empty"}}<p class="text-muted">{{.}}</p>{{end}}

{{define "emptyRow"}}<tr><td colspan="{{.Cols}}" class="text-center">{{.Text}}</td></tr>{{end}}

{{define "guildRows"}}{{range .}}<tr>
<td>{{if .Icon}}<img src="{{.Icon}}" class="guild-icon" alt="{{.Name}}">{{else}}<div class="guild-icon guild-icon-placeholder"><i class="bi bi-server"></i></div>{{end}}</td>
<td>{{.Name}}</td>
<td>{{.Members}}</td>
<td>{{.Voice}}</td>
<td>{{if .ID}}<button class="btn btn-sm btn-outline-primary" data-action="open-guild" data-id="{{.ID}}"><i class="bi bi-eye"></i> Detalhes</button>{{end}}</td>
</tr>{{end}}{{end}}

{{define "guildDetail"}}<div class="guild-header">
{{if .Icon}}<img src="{{.Icon}}" class="guild-modal-icon" alt="{{.Name}}">{{else}}<div class="guild-modal-icon guild-icon-placeholder"><i class="bi bi-server" style="font-size: 2rem;"></i></div>{{end}}
<div class="guild-info"><h4>{{.Name}}</h4><p class="text-muted">ID: {{.ID}}</p>{{if .Created}}<p class="text-muted small">Criado em {{.Created}}</p>{{end}}</div>
</div>
<div class="guild-stats-grid">
<div class="guild-stat-card"><div class="guild-stat-label">Membros</div><div class="guild-stat-value" id="guild-member-count">{{.Members}}</div></div>
<div class="guild-stat-card"><div class="guild-stat-label">Canais de Voz</div><div class="guild-stat-value" id="guild-voice-channels">{{len .VoiceChannels}}</div></div>
<div class="guild-stat-card"><div class="guild-stat-label">Ativos</div><div class="guild-stat-value text-success">{{.Active}}</div></div>
<div class="guild-stat-card"><div class="guild-stat-label">Inativos</div><div class="guild-stat-value text-warning">{{.Inactive}}</div></div>
<div class="guild-stat-card"><div class="guild-stat-label">Avisados</div><div class="guild-stat-value text-danger">{{.Warned}}</div></div>
</div>
<div class="config-section"><h5>Configurações do Bot</h5><div class="row">
<div class="col-md-6"><ul class="list-group">
<li class="list-group-item d-flex justify-content-between align-items-center">Minutos necessários em voz <span class="badge bg-primary rounded-pill config-value">{{.RequiredMinutes}}</span></li>
<li class="list-group-item d-flex justify-content-between align-items-center">Dias diferentes necessários <span class="badge bg-primary rounded-pill config-value">{{.RequiredDays}}</span></li>
<li class="list-group-item d-flex justify-content-between align-items-center">Período de monitoramento <span class="badge bg-primary rounded-pill config-value">{{.MonitoringPeriod}} dias</span></li>
</ul></div>
<div class="col-md-6"><ul class="list-group">
<li class="list-group-item d-flex justify-content-between align-items-center">Expulsão após dias sem cargo <span class="badge bg-primary rounded-pill config-value">{{.KickAfterDays}}</span></li>
<li class="list-group-item d-flex justify-content-between align-items-center">Fuso horário <span class="badge bg-primary rounded-pill config-value">{{.Timezone}}</span></li>
<li class="list-group-item d-flex justify-content-between align-items-center">Última verificação <span class="badge bg-primary rounded-pill config-value">{{.LastCheck}}</span></li>
</ul></div>
</div></div>
{{with .Channels}}<div class="config-section"><h5>Canais Configurados</h5><div class="row">
<div class="col-md-4"><div class="card"><div class="card-body"><h6 class="card-subtitle mb-2 text-muted">Notificações</h6><p class="card-text">{{.Notification}}</p></div></div></div>
<div class="col-md-4"><div class="card"><div class="card-body"><h6 class="card-subtitle mb-2 text-muted">Logs</h6><p class="card-text">{{.Log}}</p></div></div></div>
<div class="col-md-4"><div class="card"><div class="card-body"><h6 class="card-subtitle mb-2 text-muted">Ausências</h6><p class="card-text">{{.Absence}}</p></div></div></div>
</div></div>{{end}}
{{with .Roles}}<div class="config-section"><h5>Cargos Monitorados</h5><div class="table-responsive"><table class="table table-sm">
<thead><tr><th>Nome</th><th>Membros</th><th>Cor</th><th>Prioridade</th></tr></thead><tbody>
{{range .}}<tr><td>{{.Name}}</td><td>{{.Members}}</td><td><span class="badge" style="background-color: {{roleColor .Color}}">&nbsp;&nbsp;&nbsp;</span></td><td>{{.Position}}</td></tr>{{end}}
</tbody></table></div></div>{{end}}
{{with .VoiceChannels}}<div class="config-section"><h5>Canais de Voz</h5><div class="table-responsive"><table class="table table-sm">
<thead><tr><th>Nome</th><th>Usuários</th><th>Tipo</th></tr></thead><tbody>
{{range .}}<tr><td>{{.Name}}</td><td>{{.Users}}</td><td>{{.Type}}</td></tr>{{end}}
</tbody></table></div></div>{{end}}{{end}}

{{define "guildError"}}<div class="alert alert-danger">{{if .NotFound}}Servidor não encontrado. Verifique se:<ul><li>O bot ainda está no servidor</li><li>O servidor está disponível</li><li>Você tem permissões para visualizar</li></ul>{{else}}{{.Message}}{{end}}
<button class="btn btn-sm btn-outline-primary mt-2" data-action="render" data-panel="guilds"><i class="bi bi-arrow-repeat"></i> Atualizar lista de servidores</button>{{if not .NotFound}} {{template "retry" "guild"}}{{end}}</div>{{end}}

{{define "whitelistItems"}}{{$type := .Type}}{{range .Items}}<div class="whitelist-item"><span>{{.}}</span><button class="btn btn-sm btn-danger remove-whitelist" data-action="whitelist-remove" data-type="{{$type}}" data-id="{{.}}"><i class="bi bi-trash"></i></button></div>{{end}}{{end}}

{{define "allowedRoles"}}{{range .}}<div class="whitelist-item"><span><span class="badge" style="background-color: {{roleColor .Color}}">&nbsp;&nbsp;&nbsp;</span> {{.Name}} ({{.ID}})</span>{{if .Removable}}<button class="btn btn-sm btn-danger remove-allowed-role" data-action="allowed-role-remove" data-id="{{.ID}}"><i class="bi bi-trash"></i></button>{{end}}</div>{{end}}{{end}}

{{define "events"}}<h5>Eventos Recentes</h5>{{range .}}<div class="event-item"><div><strong>{{.Time}}</strong> - {{.Endpoint}}</div><div>Bucket: {{.Bucket}} - Restantes: {{.Remaining}}</div><small class="text-muted">{{.Method}}</small></div>{{else}}<p class="text-muted">Nenhum evento recente registrado</p>{{end}}{{end}}

{{define "logs"}}{{range .}}<div class="log-entry {{.Class}}">{{.Text}}</div>{{end}}{{end}}

{{define "warnings"}}{{range .}}<tr><td>{{.User}}</td><td>{{.Type}}</td><td>{{.Date}}</td></tr>{{end}}{{end}}

{{define "kicks"}}{{range .}}<tr><td>{{.User}}</td><td>{{.Date}}</td><td>{{.Reason}}</td></tr>{{end}}{{end}}

{{define "botStatus"}}{{if .Operational}}<span class="status-indicator status-operational" id="bot-status-icon"></span> <span id="bot-status-text">Operacional</span>{{else}}<span class="status-indicator status-error" id="bot-status-icon"></span> <span id="bot-status-text">{{.Text}}</span>{{end}}{{end}}

{{define "dbStatus"}}<span class="badge {{.Class}}">{{.Text}}</span>{{end}}

{{define "queues"}}{{range .}}<span class="badge {{.Class}} badge-queue">{{.Name}}: {{.Size}}</span>{{end}}{{end}}

{{define "chart"}}<canvas id="{{.Canvas}}" data-chart="{{.JSON}}"></canvas>{{end}}

{{define "chartError"}}<div class="alert alert-danger">{{.Title}}: {{.Message}} {{template "retry" .Panel}}</div>{{end}}
`
