package api

import "net/http"

// overlayUIHTML draws the current overlay on a 10x20 grid and tails the
// event log. Edges in the payload are the sides a cell shares with the rest
// of its piece, so outlines are drawn on the other sides.
const overlayUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>pcassist - Overlay</title>
    <style>
        html, body { margin: 0; height: 100%; }
        body { font: 12px/1.4 ui-monospace, Menlo, monospace; background: #111418; color: #d8dee9; display: grid; grid-template-rows: auto 1fr auto; }
        .bar { display: flex; align-items: baseline; gap: 16px; padding: 10px 16px; background: #1b2027; }
        .bar b { font-size: 15px; letter-spacing: 0.04em; }
        #link { margin-left: auto; padding: 2px 8px; border: 1px solid currentColor; }
        #link[data-state="open"] { color: #a3be8c; }
        #link[data-state="closed"] { color: #bf616a; }
        #link[data-state="opening"] { color: #ebcb8b; }
        .split { display: grid; grid-template-columns: auto 1fr; gap: 16px; padding: 16px; min-height: 0; }
        #board { background: #0a0c0f; outline: 1px solid #2e3440; }
        .log { display: grid; grid-template-rows: auto 1fr; gap: 8px; min-height: 0; }
        #placement { padding: 8px; background: #1b2027; }
        #events { overflow-y: auto; margin: 0; padding: 0; list-style: none; }
        #events li { display: grid; grid-template-columns: 7em 14em 1fr; padding: 3px 6px; border-left: 2px solid #3b4252; }
        #events li:nth-child(odd) { background: #161a20; }
        #events li .seq { color: #616e88; }
        #events li.warning { border-left-color: #ebcb8b; }
        #events li.error { border-left-color: #bf616a; }
        #events li.overlay { border-left-color: #a3be8c; }
        .foot { padding: 4px 16px; color: #616e88; background: #1b2027; }
    </style>
</head>
<body>
    <div class="bar">
        <b>pcassist</b>
        <span>overlay viewer</span>
        <span id="link" data-state="opening">opening</span>
    </div>
    <div class="split">
        <canvas id="board" width="200" height="400"></canvas>
        <div class="log">
            <div id="placement">no placement</div>
            <ul id="events"></ul>
        </div>
    </div>
    <div class="foot">last seq <span id="seq">-</span> &middot; /ws/events &middot; /overlay &middot; /sessions</div>

    <script>
        const COLS = 10, ROWS = 20, CELL = 20, KEEP = 400;
        const COLORS = { S: '#4ade80', Z: '#f87171', J: '#60a5fa', L: '#fb923c', T: '#c084fc', O: '#facc15', I: '#22d3ee' };
        const canvas = document.getElementById('board');
        const ctx = canvas.getContext('2d');
        const placementEl = document.getElementById('placement');
        const list = document.getElementById('events');
        const linkEl = document.getElementById('link');
        const seqEl = document.getElementById('seq');
        let lastSeq = 0;
        let socket = null;
        let retry = null;

        function drawGrid() {
            ctx.fillStyle = '#0b0b1a';
            ctx.fillRect(0, 0, canvas.width, canvas.height);
            ctx.strokeStyle = '#1f2a48';
            ctx.lineWidth = 1;
            for (let c = 0; c <= COLS; c++) {
                ctx.beginPath(); ctx.moveTo(c * CELL + 0.5, 0); ctx.lineTo(c * CELL + 0.5, ROWS * CELL); ctx.stroke();
            }
            for (let r = 0; r <= ROWS; r++) {
                ctx.beginPath(); ctx.moveTo(0, r * CELL + 0.5); ctx.lineTo(COLS * CELL, r * CELL + 0.5); ctx.stroke();
            }
        }

        function drawCell(cell, color) {
            // Row 0 is the bottom of the board.
            const x = cell.col * CELL;
            const y = (ROWS - 1 - cell.row) * CELL;
            const edges = cell.edges || [];
            ctx.globalAlpha = 0.45;
            ctx.fillStyle = color;
            ctx.fillRect(x, y, CELL, CELL);
            ctx.globalAlpha = 1;
            ctx.strokeStyle = color;
            ctx.lineWidth = 2;
            const side = function(name, x1, y1, x2, y2) {
                if (edges.indexOf(name) >= 0) return;
                ctx.beginPath(); ctx.moveTo(x1, y1); ctx.lineTo(x2, y2); ctx.stroke();
            };
            side('up', x, y + 1, x + CELL, y + 1);
            side('down', x, y + CELL - 1, x + CELL, y + CELL - 1);
            side('left', x + 1, y, x + 1, y + CELL);
            side('right', x + CELL - 1, y, x + CELL - 1, y + CELL);
        }

        function render(state) {
            drawGrid();
            if (!state.active || !state.message || !state.message.payload || state.message.payload.length === 0) {
                placementEl.textContent = 'no placement';
                return;
            }
            const msg = state.message;
            const first = (msg.solution || [])[0];
            const color = first ? (COLORS[first.piece] || '#eee') : '#eee';
            msg.payload.forEach(function(cell) { drawCell(cell, color); });
            placementEl.textContent = first
                ? '#' + msg.seq + ' ' + first.piece + ' ' + first.rotation + ' at (' + first.x + ', ' + first.y + '), ' + msg.solution.length + ' pieces to clear'
                : '#' + msg.seq;
        }

        function refreshOverlay() {
            fetch('/overlay')
                .then(function(res) { return res.json(); })
                .then(render)
                .catch(function(err) { console.error('overlay fetch failed:', err); });
        }

        function append(e) {
            // Sequence numbers restart when pcassist does.
            if (e.seq === 1) lastSeq = 0;
            if (e.seq && e.seq <= lastSeq) return;
            lastSeq = e.seq || lastSeq;
            seqEl.textContent = lastSeq;

            const li = document.createElement('li');
            li.classList.add(e.level, e.event.split('.')[0]);
            const seq = document.createElement('span');
            seq.className = 'seq';
            seq.textContent = '#' + e.seq;
            const name = document.createElement('span');
            name.textContent = e.event;
            const detail = document.createElement('span');
            detail.textContent = e.fields ? JSON.stringify(e.fields) : (e.msg || '');
            li.append(seq, name, detail);
            list.appendChild(li);
            while (list.childElementCount > KEEP) list.firstElementChild.remove();
            list.scrollTop = list.scrollHeight;

            if (e.event === 'overlay.broadcast' || e.event === 'overlay.cleared') refreshOverlay();
        }

        function link(state) {
            linkEl.dataset.state = state;
            linkEl.textContent = state;
        }

        function connect() {
            if (socket && socket.readyState <= WebSocket.OPEN) return;
            link('opening');
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            // On reconnect, resume after the last event shown.
            socket = new WebSocket(scheme + location.host + '/ws/events' + (lastSeq ? '?since=' + lastSeq : ''));
            socket.addEventListener('open', function() {
                link('open');
                refreshOverlay();
            });
            socket.addEventListener('message', function(msg) {
                let e;
                try { e = JSON.parse(msg.data); } catch (err) { return; }
                append(e);
            });
            socket.addEventListener('close', function() {
                link('closed');
                clearTimeout(retry);
                retry = setTimeout(connect, 3000);
            });
        }

        drawGrid();
        connect();
    </script>
</body>
</html>`

// uiHandler serves the overlay viewer page.
func uiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(overlayUIHTML))
}
