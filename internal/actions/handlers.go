package actions

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/guildpanel/guildpanel/internal/backend"
	"github.com/guildpanel/guildpanel/internal/notify"
	"github.com/guildpanel/guildpanel/internal/view"
)

// Action names, used for metrics and confirmation round-trips.
const (
	ActionSaveConfig        = "save_config"
	ActionBackup            = "backup"
	ActionRestart           = "restart"
	ActionWhitelistAdd      = "whitelist_add"
	ActionWhitelistRemove   = "whitelist_remove"
	ActionAllowedRoleAdd    = "allowed_role_add"
	ActionAllowedRoleRemove = "allowed_role_remove"
	ActionRunCommand        = "run_command"
	ActionSyncCommands      = "sync_commands"
	ActionCleanupData       = "cleanup_data"
	ActionForceCheck        = "force_check"
	ActionOpenGuild         = "open_guild"
	ActionRefreshGuild      = "refresh_guild"
	ActionRefreshLogs       = "refresh_logs"
	ActionLoadHistory       = "load_history"
	ActionExportReport      = "export_report"
)

const (
	msgInvalidUser = "Por favor, insira um ID de usuário válido"
	msgInvalidRole = "Por favor, insira um ID de cargo válido"

	defaultCleanupDays = 60
)

var configFields = []string{
	view.FieldRequiredMinutes, view.FieldRequiredDays, view.FieldMonitoringPeriod, view.FieldKickAfterDays,
	view.FieldNotificationChannel, view.FieldLogChannel, view.FieldAbsenceChannel, view.FieldTimezone,
}

// SaveConfig writes the submitted values into the config form and sends the
// form to the backend. Fields missing from values keep their current value.
func (h *Handler) SaveConfig(ctx context.Context, values map[string]string) error {
	return h.run(ctx, ActionSaveConfig, view.ControlSaveConfig, func(ctx context.Context) error {
		for _, field := range configFields {
			if v, ok := values[field]; ok {
				h.doc.SetValue(field, strings.TrimSpace(v))
			}
		}
		u := backend.ConfigUpdate{
			RequiredMinutes:     h.value(view.FieldRequiredMinutes),
			RequiredDays:        h.value(view.FieldRequiredDays),
			MonitoringPeriod:    h.value(view.FieldMonitoringPeriod),
			KickAfterDays:       h.value(view.FieldKickAfterDays),
			NotificationChannel: h.value(view.FieldNotificationChannel),
			LogChannel:          h.value(view.FieldLogChannel),
			AbsenceChannel:      h.value(view.FieldAbsenceChannel),
			Timezone:            h.value(view.FieldTimezone),
		}
		if h.strict() {
			if err := h.validateConfig(u); err != nil {
				return err
			}
		}

		if err := h.api.UpdateConfig(ctx, u); err != nil {
			h.fail("Erro ao salvar configurações", err)
			return err
		}
		h.notify("Configurações salvas com sucesso!", notify.Success)
		h.refresh(ctx, view.PanelConfig)
		return nil
	})
}

func (h *Handler) validateConfig(u backend.ConfigUpdate) error {
	for name, v := range map[string]string{
		"Minutos necessários":      u.RequiredMinutes,
		"Dias necessários":         u.RequiredDays,
		"Período de monitoramento": u.MonitoringPeriod,
		"Dias para expulsão":       u.KickAfterDays,
	} {
		if v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err != nil || n < 0 {
			return h.invalid(fmt.Sprintf("%s: valor inválido %q", name, v))
		}
	}
	for _, v := range []string{u.NotificationChannel, u.LogChannel, u.AbsenceChannel} {
		if v != "" && !h.validID(v) {
			return h.invalid(fmt.Sprintf("ID de canal inválido: %s", v))
		}
	}
	return nil
}

// Backup asks the backend to back up its database.
func (h *Handler) Backup(ctx context.Context, c Confirmer) error {
	if err := confirm(c, ActionBackup, "Deseja criar um backup do banco de dados agora?", nil); err != nil {
		h.record(ActionBackup, err)
		return err
	}
	return h.run(ctx, ActionBackup, view.ControlBackup, func(ctx context.Context) error {
		res, err := h.api.Backup(ctx)
		if err != nil {
			h.fail("Erro ao criar backup", err)
			return err
		}
		h.notify(resultMessage(res, "Backup criado com sucesso!"), notify.Success)
		return nil
	})
}

// Restart asks the backend to restart the bot, then tells the user the bot
// is coming back once the restart notice delay elapses.
func (h *Handler) Restart(ctx context.Context, c Confirmer) error {
	prompt := "Tem certeza que deseja reiniciar o bot? Isso pode causar uma breve interrupção no serviço."
	if err := confirm(c, ActionRestart, prompt, nil); err != nil {
		h.record(ActionRestart, err)
		return err
	}
	return h.run(ctx, ActionRestart, view.ControlRestart, func(ctx context.Context) error {
		res, err := h.api.Restart(ctx)
		if err != nil {
			h.fail("Erro ao reiniciar o bot", err)
			return err
		}
		h.notify(resultMessage(res, "Reinicialização iniciada"), notify.Success)
		h.after(h.RestartNotice, func() {
			h.notify("O bot está reiniciando...", notify.Info)
		})
		return nil
	})
}

func resultMessage(res *backend.Result, fallback string) string {
	if res == nil || res.Message == "" {
		return fallback
	}
	return res.Message
}

// --- Whitelist ---

func whitelistField(targetType string) (field, control, invalid string, ok bool) {
	switch targetType {
	case backend.TargetUser:
		return view.FieldWhitelistUser, view.ControlAddUserWhitelist, msgInvalidUser, true
	case backend.TargetRole:
		return view.FieldWhitelistRole, view.ControlAddRoleWhitelist, msgInvalidRole, true
	default:
		return "", "", "", false
	}
}

// AddWhitelist adds the id typed in the whitelist input of targetType. An
// empty input is rejected with a warning and no backend call.
func (h *Handler) AddWhitelist(ctx context.Context, targetType string) error {
	field, control, invalidMsg, ok := whitelistField(targetType)
	if !ok {
		err := h.invalid("Parâmetros inválidos para atualizar whitelist")
		h.record(ActionWhitelistAdd, err)
		return err
	}
	id := strings.TrimSpace(h.value(field))
	if !h.validID(id) {
		err := h.invalid(invalidMsg)
		h.record(ActionWhitelistAdd, err)
		return err
	}
	return h.run(ctx, ActionWhitelistAdd, control, func(ctx context.Context) error {
		return h.updateWhitelist(ctx, backend.ActionAdd, targetType, id, field)
	})
}

// RemoveWhitelist removes id from the whitelist of targetType.
func (h *Handler) RemoveWhitelist(ctx context.Context, targetType, id string) error {
	_, control, invalidMsg, ok := whitelistField(targetType)
	id = strings.TrimSpace(id)
	if !ok || id == "" {
		err := h.invalid("Parâmetros inválidos para atualizar whitelist")
		h.record(ActionWhitelistRemove, err)
		return err
	}
	if !h.validID(id) {
		err := h.invalid(invalidMsg)
		h.record(ActionWhitelistRemove, err)
		return err
	}
	return h.run(ctx, ActionWhitelistRemove, control, func(ctx context.Context) error {
		return h.updateWhitelist(ctx, backend.ActionRemove, targetType, id, "")
	})
}

func (h *Handler) updateWhitelist(ctx context.Context, action, targetType, id, field string) error {
	if err := h.api.UpdateWhitelist(ctx, action, targetType, id); err != nil {
		h.fail("Erro ao atualizar whitelist", err)
		return err
	}
	h.refresh(ctx, view.PanelWhitelist)
	if field != "" {
		h.clear(field)
	}
	h.notify(fmt.Sprintf("Whitelist atualizada com sucesso! (%s %s)", action, targetType), notify.Success)
	return nil
}

// --- Allowed roles ---

// AddAllowedRole adds the role id typed in the allowed-role input.
func (h *Handler) AddAllowedRole(ctx context.Context) error {
	id := strings.TrimSpace(h.value(view.FieldAllowedRole))
	if !h.validID(id) {
		err := h.invalid(msgInvalidRole)
		h.record(ActionAllowedRoleAdd, err)
		return err
	}
	return h.run(ctx, ActionAllowedRoleAdd, view.ControlAddAllowedRole, func(ctx context.Context) error {
		return h.updateAllowedRoles(ctx, backend.ActionAdd, id)
	})
}

// RemoveAllowedRole removes id from the allowed roles.
func (h *Handler) RemoveAllowedRole(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if !h.validID(id) {
		err := h.invalid("Parâmetros inválidos para atualizar cargos permitidos")
		h.record(ActionAllowedRoleRemove, err)
		return err
	}
	return h.run(ctx, ActionAllowedRoleRemove, "", func(ctx context.Context) error {
		return h.updateAllowedRoles(ctx, backend.ActionRemove, id)
	})
}

func (h *Handler) updateAllowedRoles(ctx context.Context, action, id string) error {
	if err := h.api.UpdateAllowedRoles(ctx, action, id); err != nil {
		h.fail("Erro ao atualizar cargos permitidos", err)
		return err
	}
	h.refresh(ctx, view.PanelAllowedRoles)
	verb := "removido"
	if action == backend.ActionAdd {
		verb = "adicionado"
		h.clear(view.FieldAllowedRole)
	}
	h.notify(fmt.Sprintf("Cargo %s com sucesso!", verb), notify.Success)
	return nil
}

// --- Bot commands ---

// RunCommand runs a named bot command after confirmation. A response whose
// status is not "success" is reported as a failure.
func (h *Handler) RunCommand(ctx context.Context, c Confirmer, command string, params map[string]any) error {
	command = strings.TrimSpace(command)
	if command == "" {
		err := h.invalid("Nenhum comando especificado")
		h.record(ActionRunCommand, err)
		return err
	}
	prompt := fmt.Sprintf("Deseja executar o comando %s agora?", command)
	if err := confirm(c, ActionRunCommand, prompt, nil); err != nil {
		h.record(ActionRunCommand, err)
		return err
	}
	return h.run(ctx, ActionRunCommand, "", func(ctx context.Context) error {
		return h.runCommand(ctx, command, params)
	})
}

// SyncCommands re-registers the bot's slash commands.
func (h *Handler) SyncCommands(ctx context.Context, c Confirmer) error {
	if err := confirm(c, ActionSyncCommands, "Deseja sincronizar os comandos do bot agora?", nil); err != nil {
		h.record(ActionSyncCommands, err)
		return err
	}
	return h.run(ctx, ActionSyncCommands, view.ControlSyncCommands, func(ctx context.Context) error {
		return h.runCommand(ctx, "sync_commands", nil)
	})
}

// CleanupData removes backend data older than days. An empty or
// non-numeric days value falls back to 60.
func (h *Handler) CleanupData(ctx context.Context, c Confirmer, days string) error {
	input := &Input{Prompt: "Dias para manter (padrão: 60):", Default: strconv.Itoa(defaultCleanupDays)}
	if err := confirm(c, ActionCleanupData, "Deseja limpar dados antigos do banco de dados agora?", input); err != nil {
		h.record(ActionCleanupData, err)
		return err
	}
	n, err := strconv.Atoi(strings.TrimSpace(days))
	if err != nil || n <= 0 {
		n = defaultCleanupDays
	}
	return h.run(ctx, ActionCleanupData, view.ControlCleanupData, func(ctx context.Context) error {
		return h.runCommand(ctx, "cleanup_data", map[string]any{"days": n})
	})
}

// ForceCheck runs an inactivity check for the member typed in the
// force-check input.
func (h *Handler) ForceCheck(ctx context.Context, c Confirmer) error {
	member := strings.TrimSpace(h.value(view.FieldForceCheckUser))
	if !h.validID(member) {
		err := h.invalid(msgInvalidUser)
		h.record(ActionForceCheck, err)
		return err
	}
	prompt := fmt.Sprintf("Deseja forçar verificação de inatividade para o usuário %s?", member)
	if err := confirm(c, ActionForceCheck, prompt, nil); err != nil {
		h.record(ActionForceCheck, err)
		return err
	}
	return h.run(ctx, ActionForceCheck, view.ControlForceCheck, func(ctx context.Context) error {
		return h.runCommand(ctx, "force_check", map[string]any{"member_id": member})
	})
}

func (h *Handler) runCommand(ctx context.Context, command string, params map[string]any) error {
	title := fmt.Sprintf("Erro ao executar comando %s", command)
	res, err := h.api.RunCommand(ctx, command, params)
	if err != nil {
		h.fail(title, err)
		return err
	}
	if res == nil || res.Status != "success" {
		msg := "Erro desconhecido"
		if res != nil && res.Message != "" {
			msg = res.Message
		}
		err := fmt.Errorf("command %s: %s", command, msg)
		h.notify(title+": "+msg, notify.Error)
		return err
	}
	h.notify(fmt.Sprintf("Comando %s executado com sucesso!", command), notify.Success)
	return nil
}

// --- Navigation ---

// OpenGuild shows the detail modal of guild id.
func (h *Handler) OpenGuild(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		err := h.invalid("ID da guilda não fornecido")
		h.record(ActionOpenGuild, err)
		return err
	}
	if h.state != nil {
		h.state.SetCurrentGuild(id)
	}
	return h.run(ctx, ActionOpenGuild, "", func(ctx context.Context) error {
		return h.panels.Render(ctx, view.PanelGuild, id)
	})
}

// RefreshGuild re-renders the guild currently shown in the modal. It does
// nothing when no guild was opened.
func (h *Handler) RefreshGuild(ctx context.Context) error {
	if h.state == nil || h.state.CurrentGuild() == "" {
		return nil
	}
	id := h.state.CurrentGuild()
	return h.run(ctx, ActionRefreshGuild, view.ControlRefreshGuild, func(ctx context.Context) error {
		return h.panels.Render(ctx, view.PanelGuild, id)
	})
}

// RefreshLogs re-renders the logs, first storing lines in the line-count
// input when it is not empty.
func (h *Handler) RefreshLogs(ctx context.Context, lines string) error {
	if lines = strings.TrimSpace(lines); lines != "" && h.doc != nil {
		h.doc.SetValue(view.FieldLogLines, lines)
	}
	return h.run(ctx, ActionRefreshLogs, "", func(ctx context.Context) error {
		return h.panels.Render(ctx, view.PanelLogs, "")
	})
}

// LoadHistory renders the warnings or kicks history tab.
func (h *Handler) LoadHistory(ctx context.Context, tab string) error {
	switch tab {
	case view.PanelWarnings, view.PanelKicks:
	default:
		err := fmt.Errorf("%w: unknown history tab %q", ErrInvalidInput, tab)
		h.record(ActionLoadHistory, err)
		return err
	}
	return h.run(ctx, ActionLoadHistory, "", func(ctx context.Context) error {
		return h.panels.Render(ctx, tab, "")
	})
}

// ExportReport writes the warnings and kicks history as CSV to w.
func (h *Handler) ExportReport(ctx context.Context, w io.Writer) error {
	return h.run(ctx, ActionExportReport, view.ControlExportReport, func(ctx context.Context) error {
		opts := h.options()
		warnings, err := h.api.WarningsHistory(ctx, opts.HistoryDays, opts.HistoryLimit)
		if err != nil {
			h.fail("Erro ao exportar relatório", err)
			return err
		}
		kicks, err := h.api.KicksHistory(ctx, opts.HistoryDays, opts.HistoryLimit)
		if err != nil {
			h.fail("Erro ao exportar relatório", err)
			return err
		}
		if err := writeReport(w, warnings, kicks); err != nil {
			h.fail("Erro ao exportar relatório", err)
			return err
		}
		h.notify("Relatório exportado com sucesso!", notify.Success)
		return nil
	})
}

func writeReport(w io.Writer, warnings []backend.WarningRecord, kicks []backend.KickRecord) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"tipo", "usuario_id", "usuario", "detalhe", "data"})
	for _, r := range warnings {
		cw.Write([]string{"aviso", r.UserID.String(), r.UserName, r.WarningType, r.WarningDate})
	}
	for _, r := range kicks {
		cw.Write([]string{"expulsao", r.UserID.String(), r.UserName, r.Reason, r.KickDate})
	}
	cw.Flush()
	return cw.Error()
}
