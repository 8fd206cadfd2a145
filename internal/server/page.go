package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// dashboardPageHandler serves the single-page wallet dashboard.
func dashboardPageHandler(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, dashboardPageHTML)
}

const dashboardPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>TxSentinel</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --bg: #09090b; --bg-subtle: #18181b; --border: #27272a;
            --text: #fafafa; --muted: #a1a1aa;
            --low: #22c55e; --medium: #eab308; --high: #ef4444;
        }
        body { font-family: system-ui, sans-serif; background: var(--bg); color: var(--text); padding: 24px; }
        header { display: flex; gap: 12px; align-items: center; margin-bottom: 20px; }
        input { flex: 1; background: var(--bg-subtle); color: var(--text); border: 1px solid var(--border); padding: 8px; border-radius: 6px; font-family: monospace; }
        button { background: var(--bg-subtle); color: var(--text); border: 1px solid var(--border); padding: 8px 12px; border-radius: 6px; cursor: pointer; }
        .grid { display: grid; grid-template-columns: 2fr 1fr; gap: 20px; }
        .card { background: var(--bg-subtle); border: 1px solid var(--border); border-radius: 8px; padding: 14px; margin-bottom: 12px; }
        .muted { color: var(--muted); font-size: 13px; }
        .mono { font-family: monospace; }
        .Low { color: var(--low); } .Medium { color: var(--medium); } .High { color: var(--high); }
        #chat { height: 420px; overflow-y: auto; }
        .msg { margin: 6px 0; } .msg.user { text-align: right; }
    </style>
</head>
<body>
    <header>
        <strong>TxSentinel</strong>
        <input id="address" placeholder="0x... wallet address">
        <button onclick="connect()">Connect</button>
        <button onclick="disconnect()">Disconnect</button>
        <button onclick="refresh()">Refresh</button>
    </header>
    <div id="summary" class="muted">No wallet connected.</div>
    <div id="head" class="muted"></div>
    <div class="grid">
        <section id="txs"></section>
        <aside>
            <div class="card"><div id="chat"></div></div>
            <input id="question" placeholder="Ask about your wallet" onkeydown="if(event.key==='Enter')ask()">
        </aside>
    </div>
<script>
const $ = (id) => document.getElementById(id);
const esc = (s) => String(s ?? '').replace(/[&<>"']/g, (c) => ({'&':'&amp;','<':'&lt;','>':'&gt;','"':'&quot;',"'":'&#39;'}[c]));
let simplified = {};

async function api(method, path, body) {
    const res = await fetch(path, { method, headers: {'Content-Type': 'application/json'}, body: body ? JSON.stringify(body) : undefined });
    if (res.status === 204) return null;
    const ct = res.headers.get('Content-Type') || '';
    if (ct.startsWith('audio/')) return res.blob();
    const data = await res.json();
    if (!res.ok) throw new Error(data.message || data.error);
    return data;
}

function renderWallet(w) {
    $('summary').textContent = w.connected
        ? w.session.address + ' | ' + w.session.balance + ' ETH | ' + w.transactions + ' transactions | ' + w.highRisk + ' high risk' + (w.demo ? ' | demo data' : '')
        : 'No wallet connected.';
}

function renderBatch(batch) {
    simplified = batch.simplified || {};
    $('txs').innerHTML = (batch.records || []).map((r) => {
        const a = r.analysis.explanation || {};
        const text = simplified[r.hash] || a.explanation || (r.analysis.state === 'pending' ? 'Analyzing...' : '');
        return '<div class="card"><div class="mono muted">' + esc(r.hash) + '</div>' +
            '<div><span class="' + esc(r.risk.level) + '">' + esc(r.risk.level) + ' (' + r.risk.score + ')</span> ' + esc(r.context) + '</div>' +
            '<p>' + esc(text) + '</p><p class="muted">' + esc(a.suggestion) + '</p>' +
            '<button onclick="simplify(\'' + esc(r.hash) + '\')">Simplify</button> ' +
            '<button onclick="speak(\'' + esc(r.hash) + '\')">Listen</button></div>';
    }).join('');
}

function renderChat(messages) {
    $('chat').innerHTML = messages.map((m) => '<div class="msg ' + esc(m.sender) + '">' + esc(m.text) + '</div>').join('');
    $('chat').scrollTop = $('chat').scrollHeight;
}

async function load() {
    renderWallet(await api('GET', '/v1/wallet'));
    try { renderBatch(await api('GET', '/v1/transactions')); } catch (e) { $('txs').innerHTML = ''; }
    renderChat((await api('GET', '/v1/chat')).messages);
}

// requestAccount asks the injected wallet for an account and falls back to
// the address box without one. null means the user declined the prompt.
async function requestAccount() {
    if (!window.ethereum) return $('address').value.trim();
    try {
        const accounts = await window.ethereum.request({method: 'eth_requestAccounts'});
        return accounts[0] || '';
    } catch (e) {
        if (e.code === 4001) return null;
        throw e;
    }
}

async function connect() {
    try {
        const address = await requestAccount();
        const body = address === null ? {rejected: true} : {address};
        renderWallet(await api('POST', '/v1/wallet/connect', body));
        await load();
    } catch (e) { alert(e.message); }
}
async function disconnect() { await api('DELETE', '/v1/wallet'); await load(); }
async function refresh() { try { renderBatch(await api('POST', '/v1/transactions/refresh')); } catch (e) { alert(e.message); } }
async function simplify(hash) { const r = await api('POST', '/v1/transactions/' + hash + '/simplify'); simplified[hash] = r.text; await load(); }
async function speak(hash) {
    const audio = await api('POST', '/v1/transactions/' + hash + '/speech');
    if (audio) new Audio(URL.createObjectURL(audio)).play();
}
async function ask() {
    const q = $('question').value.trim();
    if (!q) return;
    $('question').value = '';
    try { await api('POST', '/v1/chat', {message: q}); } catch (e) { alert(e.message); }
    renderChat((await api('GET', '/v1/chat')).messages);
}

let ws = null;

function relayAccounts(accounts) {
    if (ws && ws.readyState === WebSocket.OPEN) {
        ws.send(JSON.stringify({type: 'accountsChanged', accounts}));
        return;
    }
    api('POST', '/v1/wallet/accounts', {accounts}).then(load, (e) => alert(e.message));
}

function listen() {
    ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
    ws.onmessage = (msg) => {
        const ev = JSON.parse(msg.data);
        if (ev.type === 'block') { $('head').textContent = 'Block ' + ev.data.number + ' is out. Refresh to rescan.'; return; }
        if (ev.type === 'transactions') $('head').textContent = '';
        load();
    };
    ws.onclose = () => setTimeout(listen, 3000);
}

if (window.ethereum) {
    $('address').style.display = 'none';
    if (window.ethereum.on) window.ethereum.on('accountsChanged', relayAccounts);
}
load();
listen();
</script>
</body>
</html>`
