// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, metrics, and the built-in test page.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthText is the body returned by the health endpoint.
const HealthText = "relaychat server is running!"

// WebSocketHandler upgrades GET requests to WebSocket and starts the session
// for the new client on a goroutine tracked by the hub.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, r.RemoteAddr, s.cfg, s.logger)
	client.logger.Debug("websocket upgraded")

	if !s.hub.Go(func() { s.serve(client) }) {
		client.logger.Info("rejecting connection during shutdown")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		client.closeConn()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, HealthText)
}

// MetricsHandler exposes the server's Prometheus registry.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// TestPageHandler serves a minimal chat page. Every frame received is shown
// as a line; try "exchange 2" to query rates.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		s.logger.Warn("error writing HTML response", "error", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>relaychat</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            white-space: pre-wrap;
        }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>relaychat</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <form id="formChat">
        <input type="text" id="textField" placeholder="Message, or exchange N" autocomplete="off">
        <button type="submit">Send</button>
    </form>

    <div id="messages"></div>

    <script>
        document.addEventListener('DOMContentLoaded', () => {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const ws = new WebSocket(scheme + location.host + '/ws');
            const formChat = document.getElementById('formChat');
            const textField = document.getElementById('textField');
            const messages = document.getElementById('messages');
            const status = document.getElementById('status');

            function setStatus(connected) {
                status.textContent = connected ? 'Connected' : 'Disconnected';
                status.className = 'status ' + (connected ? 'connected' : 'disconnected');
            }

            formChat.addEventListener('submit', (event) => {
                event.preventDefault();
                const message = textField.value.trim();
                if (message !== '' && ws.readyState === WebSocket.OPEN) {
                    ws.send(message);
                    textField.value = '';
                }
            });

            ws.onopen = () => setStatus(true);
            ws.onclose = () => setStatus(false);
            ws.onerror = () => setStatus(false);
            ws.onmessage = (event) => {
                const line = document.createElement('div');
                line.textContent = event.data;
                messages.appendChild(line);
                messages.scrollTop = messages.scrollHeight;
            };
        });
    </script>
</body>
</html>`
