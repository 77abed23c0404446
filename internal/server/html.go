package server

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>ThreatWatch Dashboard</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body { background: #0d1117; color: #e6edf3; font-family: 'Segoe UI', system-ui, sans-serif; }
        .app { max-width: 1400px; margin: 0 auto; padding: 20px; }
        .header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 20px; }
        .title { font-size: 1.5em; font-weight: 600; }
        .badge { padding: 4px 12px; border-radius: 12px; font-size: 0.85em; font-weight: 600; }
        .badge.safe { background: #1a7f37; }
        .badge.elevated { background: #9a6700; }
        .badge.high { background: #bc4c00; }
        .badge.critical { background: #cf222e; animation: pulse 1s infinite; }
        @keyframes pulse { 50% { opacity: 0.5; } }
        .grid { display: grid; grid-template-columns: 2fr 1fr; gap: 16px; }
        .cameras { display: grid; grid-template-columns: repeat(auto-fill, minmax(400px, 1fr)); gap: 12px; }
        .camera { background: #161b22; border: 1px solid #30363d; border-radius: 8px; overflow: hidden; }
        .camera.alerting { border-color: #cf222e; }
        .camera img { width: 100%; height: auto; display: block; background: #000; }
        .camera .bar { display: flex; justify-content: space-between; padding: 8px 12px; font-size: 0.85em; }
        .camera .state { color: #8b949e; }
        .camera .state.connected { color: #3fb950; }
        .camera .state.degraded { color: #d29922; }
        .camera .state.disconnected { color: #f85149; }
        .panel { background: #161b22; border: 1px solid #30363d; border-radius: 8px; padding: 16px; }
        .panel h2 { font-size: 1.1em; margin-bottom: 12px; }
        .alert-item { padding: 10px; border-left: 3px solid #cf222e; background: #21262d; border-radius: 4px; margin-bottom: 8px; font-size: 0.9em; }
        .alert-item.acked { border-left-color: #30363d; opacity: 0.6; }
        .alert-item .meta { color: #8b949e; font-size: 0.85em; margin-top: 4px; }
        .alert-item button { float: right; background: #21262d; color: #58a6ff; border: 1px solid #30363d; border-radius: 4px; padding: 2px 8px; cursor: pointer; }
        .empty { color: #8b949e; font-size: 0.9em; text-align: center; padding: 20px; }
    </style>
</head>
<body>
    <div class="app">
        <div class="header">
            <div class="title">ThreatWatch</div>
            <span class="badge safe" id="threat-badge">SAFE</span>
        </div>
        <div class="grid">
            <div class="cameras" id="cameras"></div>
            <div class="panel">
                <h2>Alerts <span id="alert-count"></span></h2>
                <div id="alerts"><div class="empty">No alerts</div></div>
            </div>
        </div>
    </div>

    <script>
        const cameras = {};
        const levelRank = { SAFE: 0, ELEVATED: 1, HIGH: 2, CRITICAL: 3 };

        function cameraCard(cam) {
            const el = document.createElement('div');
            el.className = 'camera';
            el.id = 'camera-' + cam.id;
            el.innerHTML =
                '<img src="/stream/' + cam.id + '" alt="' + cam.name + '">' +
                '<div class="bar">' +
                '<span>' + cam.name + '</span>' +
                '<span class="state" id="state-' + cam.id + '">' + cam.state + '</span>' +
                '</div>';
            return el;
        }

        function renderStatuses(list) {
            const grid = document.getElementById('cameras');
            let worst = 'SAFE';
            for (const cam of list) {
                if (!cameras[cam.id]) {
                    cameras[cam.id] = cam;
                    grid.appendChild(cameraCard(cam));
                }
                const state = document.getElementById('state-' + cam.id);
                if (state) {
                    state.textContent = cam.state + ' · ' + cam.fps.toFixed(1) + ' fps';
                    state.className = 'state ' + cam.state;
                }
                const card = document.getElementById('camera-' + cam.id);
                if (card) {
                    card.classList.toggle('alerting', levelRank[cam.threat_level] >= levelRank.HIGH);
                }
                if (levelRank[cam.threat_level] > levelRank[worst]) worst = cam.threat_level;
            }
            const badge = document.getElementById('threat-badge');
            badge.textContent = worst;
            badge.className = 'badge ' + worst.toLowerCase();
        }

        function alertItem(a) {
            const el = document.createElement('div');
            el.className = 'alert-item' + (a.acknowledged ? ' acked' : '');
            el.id = 'alert-' + a.id;
            el.innerHTML =
                (a.acknowledged ? '' : '<button onclick="acknowledge(' + a.id + ')">Ack</button>') +
                '<strong>' + a.threat_type + '</strong> on ' + a.camera_name +
                '<div class="meta">' + a.time_str + ' · confidence ' + (a.confidence * 100).toFixed(0) + '%</div>';
            return el;
        }

        function acknowledge(id) {
            fetch('/api/alerts/' + id + '/acknowledge', { method: 'POST' })
                .then(() => refreshAlerts());
        }

        function refreshAlerts() {
            fetch('/api/alerts?limit=20').then(r => r.json()).then(data => {
                const panel = document.getElementById('alerts');
                panel.innerHTML = '';
                if (!data.alerts.length) {
                    panel.innerHTML = '<div class="empty">No alerts</div>';
                } else {
                    for (const a of data.alerts) panel.appendChild(alertItem(a));
                }
                const count = document.getElementById('alert-count');
                count.textContent = data.unacknowledged ? '(' + data.unacknowledged + ' new)' : '';
            });
        }

        function connectEvents() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const ws = new WebSocket(proto + location.host + '/ws');
            ws.onmessage = (ev) => {
                const msg = JSON.parse(ev.data);
                if (msg.type === 'new_alert') refreshAlerts();
                if (msg.type === 'camera_status') renderStatuses(msg.data);
            };
            ws.onclose = () => setTimeout(connectEvents, 2000);
        }

        fetch('/api/cameras').then(r => r.json()).then(data => renderStatuses(data.cameras));
        refreshAlerts();
        connectEvents();

        const sse = new EventSource('/api/status/stream');
        sse.onmessage = (ev) => {
            const data = JSON.parse(ev.data);
            renderStatuses(data.cameras);
        };
    </script>
</body>
</html>
`
