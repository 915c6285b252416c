package api

// dashboardHTML is the shell page. Every slot is a data-slot container whose
// content is pushed over the websocket; the page itself holds no state.
const dashboardHTML = `<!DOCTYPE html>
<html lang="pt-br">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Painel do Bot</title>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css">
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/bootstrap-icons@1.11.3/font/bootstrap-icons.min.css">
<script src="https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/js/bootstrap.bundle.min.js"></script>
<script src="https://cdn.jsdelivr.net/npm/chart.js@4.4.1/dist/chart.umd.min.js"></script>
<style>
body{background:#f6f8fa}
.card{margin-bottom:1rem}
.status-indicator{display:inline-block;width:10px;height:10px;border-radius:50%}
.status-operational{background:#3fb950}.status-error{background:#f85149}
.whitelist-item{display:flex;justify-content:space-between;align-items:center;padding:4px 0;border-bottom:1px solid #eee}
.log-entry{font-family:monospace;font-size:12px;white-space:pre-wrap}
.log-error{color:#cf222e}.log-warning{color:#9a6700}.log-info{color:#0969da}
#logEntriesBox{max-height:400px;overflow:auto}
.voice-channel{margin-right:8px}
#toast-container{position:fixed;top:1rem;right:1rem;z-index:1080}
.toast.fading{opacity:0;transition:opacity .3s}
.ws-dot{width:8px;height:8px;border-radius:50%;display:inline-block;background:#8b949e}
.ws-dot.on{background:#3fb950}
</style>
</head>
<body>
<nav class="navbar navbar-dark bg-dark mb-3">
  <div class="container-fluid">
    <span class="navbar-brand"><i class="bi bi-robot"></i> <span data-slot="bot-name"></span></span>
    <span class="text-light small"><span class="ws-dot" id="ws-dot"></span> <span data-slot="bot-status"></span></span>
  </div>
</nav>

<div class="container-fluid">
  <div class="row">
    <div class="col-md-3"><div class="card"><div class="card-body"><div class="text-muted small">Servidores</div><h4 data-slot="guild-count"></h4></div></div></div>
    <div class="col-md-3"><div class="card"><div class="card-body"><div class="text-muted small">Uptime</div><h4 data-slot="uptime"></h4></div></div></div>
    <div class="col-md-3"><div class="card"><div class="card-body"><div class="text-muted small">Banco de dados</div><h4 data-slot="db-status-badge"></h4></div></div></div>
    <div class="col-md-3"><div class="card"><div class="card-body"><div class="text-muted small">Filas</div><div data-slot="queue-status"></div></div></div></div>
  </div>

  <div class="row">
    <div class="col-md-8"><div class="card"><div class="card-header">Atividade semanal</div><div class="card-body"><div data-slot="activityChart"></div></div></div></div>
    <div class="col-md-4"><div class="card"><div class="card-header">Usuários</div><div class="card-body"><div data-slot="usageChart"></div></div></div></div>
  </div>
  <div data-slot="chart-status"></div>

  <div class="card">
    <div class="card-header">Servidores</div>
    <div class="card-body">
      <table class="table table-sm">
        <thead><tr><th>Servidor</th><th>ID</th><th>Membros</th><th>Canais de voz</th><th></th></tr></thead>
        <tbody data-slot="guilds-table-body"></tbody>
      </table>
    </div>
  </div>

  <div class="row">
    <div class="col-md-6">
      <div class="card">
        <div class="card-header">Configurações</div>
        <div class="card-body">
          <form id="config-form" class="row g-2">
            <div class="col-6"><label class="form-label">Minutos necessários</label><input class="form-control" data-field="required_minutes" type="number"></div>
            <div class="col-6"><label class="form-label">Dias necessários</label><input class="form-control" data-field="required_days" type="number"></div>
            <div class="col-6"><label class="form-label">Período de monitoramento</label><input class="form-control" data-field="monitoring_period" type="number"></div>
            <div class="col-6"><label class="form-label">Dias para expulsão</label><input class="form-control" data-field="kick_after_days" type="number"></div>
            <div class="col-6"><label class="form-label">Canal de notificações</label><input class="form-control" data-field="notification_channel"></div>
            <div class="col-6"><label class="form-label">Canal de logs</label><input class="form-control" data-field="log_channel"></div>
            <div class="col-6"><label class="form-label">Canal de ausência</label><input class="form-control" data-field="absence_channel"></div>
            <div class="col-6"><label class="form-label">Fuso horário</label><input class="form-control" data-field="timezone"></div>
            <div class="col-12">
              <button type="button" class="btn btn-primary" id="save-config" data-post="save_config" data-form="config-form"><span class="spinner-border spinner-border-sm d-none"></span><i class="bi bi-save"></i> Salvar</button>
            </div>
          </form>
        </div>
      </div>
    </div>
    <div class="col-md-6">
      <div class="card">
        <div class="card-header">Whitelist</div>
        <div class="card-body">
          <div class="input-group mb-2"><input class="form-control" data-field="whitelist-user-id" placeholder="ID do usuário">
            <button class="btn btn-outline-primary" id="add-user-whitelist" data-post="whitelist_add" data-type="user"><span class="spinner-border spinner-border-sm d-none"></span><i class="bi bi-person-plus"></i></button></div>
          <div data-slot="whitelist-users"></div>
          <div class="input-group my-2"><input class="form-control" data-field="whitelist-role-id" placeholder="ID do cargo">
            <button class="btn btn-outline-primary" id="add-role-whitelist" data-post="whitelist_add" data-type="role"><span class="spinner-border spinner-border-sm d-none"></span><i class="bi bi-shield-plus"></i></button></div>
          <div data-slot="whitelist-roles"></div>
        </div>
      </div>
      <div class="card">
        <div class="card-header">Cargos permitidos</div>
        <div class="card-body">
          <div class="input-group mb-2"><input class="form-control" data-field="allowed-role-id" placeholder="ID do cargo">
            <button class="btn btn-outline-primary" id="add-allowed-role" data-post="allowed_role_add"><span class="spinner-border spinner-border-sm d-none"></span><i class="bi bi-plus"></i></button></div>
          <div data-slot="allowed-roles-list"></div>
        </div>
      </div>
    </div>
  </div>

  <div class="card">
    <div class="card-header">Ações</div>
    <div class="card-body d-flex flex-wrap gap-2">
      <button class="btn btn-secondary" id="backup-bot" data-post="backup"><span class="spinner-border spinner-border-sm d-none"></span><i class="bi bi-database-down"></i> Backup</button>
      <button class="btn btn-danger" id="restart-bot" data-post="restart"><span class="spinner-border spinner-border-sm d-none"></span><i class="bi bi-arrow-clockwise"></i> Reiniciar</button>
      <button class="btn btn-outline-primary" id="sync-commands-btn" data-post="sync_commands"><span class="spinner-border spinner-border-sm d-none"></span><i class="bi bi-arrow-repeat"></i> Sincronizar comandos</button>
      <button class="btn btn-outline-warning" id="cleanup-data-btn" data-post="cleanup_data"><span class="spinner-border spinner-border-sm d-none"></span><i class="bi bi-trash"></i> Limpar dados</button>
      <div class="input-group" style="max-width:360px"><input class="form-control" data-field="force-check-user" placeholder="ID do usuário">
        <button class="btn btn-outline-secondary" id="force-check-btn" data-post="force_check"><span class="spinner-border spinner-border-sm d-none"></span><i class="bi bi-search"></i> Verificar</button></div>
    </div>
  </div>

  <div class="row">
    <div class="col-md-6"><div class="card"><div class="card-header">Eventos recentes</div><div class="card-body" data-slot="recentEvents"></div></div></div>
    <div class="col-md-6">
      <div class="card">
        <div class="card-header d-flex gap-2 align-items-center">Logs
          <input class="form-control form-control-sm ms-auto" style="width:90px" type="number" data-field="log-lines-count">
          <button class="btn btn-sm btn-outline-primary" id="refreshLogs" data-post="refresh_logs"><span class="spinner-border spinner-border-sm d-none"></span><i class="bi bi-arrow-repeat"></i></button>
        </div>
        <div class="card-body" id="logEntriesBox" data-slot="logEntries"></div>
      </div>
    </div>
  </div>

  <div class="card">
    <div class="card-header d-flex gap-2 align-items-center">Histórico
      <button class="btn btn-sm btn-outline-secondary" data-post="load_history" data-tab="warnings">Avisos</button>
      <button class="btn btn-sm btn-outline-secondary" data-post="load_history" data-tab="kicks">Expulsões</button>
      <button class="btn btn-sm btn-outline-success ms-auto" id="export-report" data-export="/export/report.csv"><span class="spinner-border spinner-border-sm d-none"></span><i class="bi bi-download"></i> Exportar relatório</button>
    </div>
    <div class="card-body row">
      <div class="col-md-6"><table class="table table-sm"><thead><tr><th>Usuário</th><th>Tipo</th><th>Data</th></tr></thead><tbody data-slot="warnings-table"></tbody></table></div>
      <div class="col-md-6"><table class="table table-sm"><thead><tr><th>Usuário</th><th>Motivo</th><th>Data</th></tr></thead><tbody data-slot="kicks-table"></tbody></table></div>
    </div>
  </div>
</div>

<div class="modal fade" id="guildModal" tabindex="-1">
  <div class="modal-dialog modal-lg"><div class="modal-content">
    <div class="modal-header"><h5 class="modal-title" data-slot="guildModalTitle"></h5>
      <button class="btn btn-sm btn-outline-primary ms-auto me-2" id="refresh-guild-details" data-post="refresh_guild"><span class="spinner-border spinner-border-sm d-none"></span><i class="bi bi-arrow-repeat"></i></button>
      <button type="button" class="btn-close" data-bs-dismiss="modal"></button></div>
    <div class="modal-body" data-slot="guildModalBody"></div>
  </div></div>
</div>

<div id="toast-container"></div>

<script>
(function(){
'use strict';
let key = sessionStorage.getItem('guildpanel-key') || '';
const charts = {};

function headers(){
  const h = {'Content-Type':'application/json'};
  if (key) h['Authorization'] = 'Bearer ' + key;
  return h;
}

function slotEl(id){ return document.querySelector('[data-slot="'+CSS.escape(id)+'"]'); }
function fieldEl(id){ return document.querySelector('[data-field="'+CSS.escape(id)+'"]'); }

function setSlot(id, html){
  const el = slotEl(id);
  if (!el) return;
  el.innerHTML = html;
  el.querySelectorAll('canvas[data-chart]').forEach(drawChart);
}

function setField(id, value){
  const el = fieldEl(id);
  if (!el || document.activeElement === el) return;
  el.value = value;
}

function setControl(c){
  const el = document.getElementById(c.id);
  if (!el) return;
  el.disabled = c.disabled;
  const spin = el.querySelector('.spinner-border');
  const icon = el.querySelector('i');
  if (spin) spin.classList.toggle('d-none', !c.spinner_visible);
  if (icon) icon.classList.toggle('d-none', !c.icon_visible);
}

// Previous instances are destroyed before drawing so each canvas holds one chart.
function drawChart(canvas){
  let spec;
  try { spec = JSON.parse(canvas.dataset.chart); } catch (e) { return; }
  const name = spec.canvas || canvas.id;
  if (charts[name]) { charts[name].destroy(); delete charts[name]; }
  if (typeof Chart === 'undefined') return;
  charts[name] = new Chart(canvas, {
    type: spec.type,
    data: {labels: spec.labels, datasets: spec.datasets},
    options: {responsive: true, plugins: {legend: {display: spec.type !== 'line'}}}
  });
}

function toastEvent(ev){
  const t = ev.toast;
  const container = document.getElementById('toast-container');
  let el = document.getElementById(t.id);
  if (ev.type === 'toast_shown' && !el) {
    el = document.createElement('div');
    el.id = t.id;
    el.className = 'toast show align-items-center text-white border-0 ' + t.class;
    el.setAttribute('role', 'alert');
    const body = document.createElement('div');
    body.className = 'd-flex';
    const msg = document.createElement('div');
    msg.className = 'toast-body';
    msg.textContent = t.message;
    body.appendChild(msg);
    el.appendChild(body);
    container.appendChild(el);
  } else if (ev.type === 'toast_fading' && el) {
    el.classList.add('fading');
  } else if (ev.type === 'toast_removed' && el) {
    el.remove();
  }
}

function applySnapshot(s){
  (s.elements || []).forEach(e => setSlot(e.slot, e.html));
  Object.entries(s.fields || {}).forEach(([k, v]) => setField(k, v));
  (s.controls || []).forEach(setControl);
  document.getElementById('toast-container').innerHTML = '';
  (s.toasts || []).forEach(t => toastEvent({type: 'toast_shown', toast: t}));
}

let ws;
function connect(){
  const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
  ws = new WebSocket(proto + '//' + location.host + '/ws' + (key ? '?key=' + encodeURIComponent(key) : ''));
  ws.onopen = () => document.getElementById('ws-dot').classList.add('on');
  ws.onclose = () => {
    document.getElementById('ws-dot').classList.remove('on');
    setTimeout(connect, 3000);
  };
  ws.onmessage = (m) => {
    const msg = JSON.parse(m.data);
    switch (msg.type) {
    case 'snapshot': applySnapshot(msg.data); break;
    case 'slot': setSlot(msg.data.id, msg.data.html); break;
    case 'field': setField(msg.data.id, msg.data.value); break;
    case 'control': setControl(msg.data); break;
    case 'toast': toastEvent(msg.data); break;
    }
  };
}

function sendField(el){
  if (ws && ws.readyState === WebSocket.OPEN) {
    ws.send(JSON.stringify({type: 'field', id: el.dataset.field, value: el.value}));
  }
}

function fields(formId){
  const out = {};
  const root = formId ? document.getElementById(formId) : document;
  root.querySelectorAll('[data-field]').forEach(el => { out[el.dataset.field] = el.value; });
  return out;
}

async function request(method, url, body){
  const res = await fetch(url, {method: method, headers: headers(), body: body ? JSON.stringify(body) : undefined});
  if (res.status === 401) {
    const k = window.prompt('Chave de API:');
    if (k !== null) {
      key = k;
      sessionStorage.setItem('guildpanel-key', k);
      if (ws) ws.close();
      return request(method, url, body);
    }
  }
  return res;
}

// post runs an action. A 409 with a confirmation asks the user and re-posts.
async function post(action, body){
  const res = await request('POST', '/actions/' + action, body);
  if (res.status !== 409) return;
  const data = await res.json().catch(() => ({}));
  const c = data.confirmation;
  if (!c) return;
  if (!window.confirm(c.prompt)) return;
  const next = Object.assign({}, body, {confirm: true});
  if (c.input) {
    const v = window.prompt(c.input.prompt, c.input.default);
    if (v === null) return;
    next.input = v;
  }
  return post(action, next);
}

async function exportReport(url){
  const res = await request('GET', url);
  if (!res.ok) return;
  const blob = await res.blob();
  const name = (res.headers.get('Content-Disposition') || '').split('filename=')[1] || 'relatorio.csv';
  const a = document.createElement('a');
  a.href = URL.createObjectURL(blob);
  a.download = name.replace(/"/g, '');
  a.click();
  URL.revokeObjectURL(a.href);
}

document.addEventListener('input', (e) => {
  if (e.target.dataset && e.target.dataset.field) sendField(e.target);
});

document.addEventListener('click', (e) => {
  const el = e.target.closest('[data-action],[data-post],[data-export]');
  if (!el) return;
  e.preventDefault();
  if (el.dataset.export) { exportReport(el.dataset.export); return; }
  if (el.dataset.post) {
    const body = {fields: fields(el.dataset.form)};
    if (el.dataset.type) body.type = el.dataset.type;
    if (el.dataset.tab) body.tab = el.dataset.tab;
    post(el.dataset.post, body);
    return;
  }
  switch (el.dataset.action) {
  case 'render':
    request('POST', '/panels/' + encodeURIComponent(el.dataset.panel) + '/render');
    break;
  case 'open-guild':
    bootstrap.Modal.getOrCreateInstance(document.getElementById('guildModal')).show();
    post('open_guild', {id: el.dataset.id});
    break;
  case 'whitelist-remove':
    post('whitelist_remove', {type: el.dataset.type, id: el.dataset.id});
    break;
  case 'allowed-role-remove':
    post('allowed_role_remove', {id: el.dataset.id});
    break;
  }
});

window.addEventListener('error', (e) => {
  console.error('dashboard error', e.error || e.message);
});

connect();
})();
</script>
</body>
</html>
`
