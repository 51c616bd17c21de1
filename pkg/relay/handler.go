package relay

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mpapenbr/sequential/log"
	"github.com/mpapenbr/sequential/pkg/adapter"
	"github.com/mpapenbr/sequential/pkg/model"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler returns the http endpoints of the relay
//
//	POST /ingest?session_id=<id>&lap=<n>   batch of frames (array or envelope)
//	GET  /ws/ and /ws/{session}            live stream for dashboards
//	GET  /health
func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ingest", VersionGate(http.HandlerFunc(r.handleIngest)))
	mux.HandleFunc("/ws/", r.handleWebsocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // by design
		w.Write([]byte("OK"))
	})
	return mux
}

func (r *Relay) handleIngest(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := readBody(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	batch, err := adapter.Decode(body)
	if err != nil {
		r.l.Debug("invalid ingest request", log.ErrorField(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if batch.Dropped > 0 {
		r.l.Warn("dropped invalid records", log.Int("dropped", batch.Dropped))
	}

	sessionID := req.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = batch.SessionID
	}
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	lap := batch.Lap
	if v := req.URL.Query().Get("lap"); v != "" {
		if lap, err = strconv.Atoi(v); err != nil || lap < 0 {
			http.Error(w, "invalid lap", http.StatusBadRequest)
			return
		}
	}
	if len(batch.Records) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}
	p := &model.Payload{
		SessionID: sessionID,
		Lap:       r.resolveLap(sessionID, lap),
		Data:      batch.Records,
	}
	if err := r.Ingest(p); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleWebsocket streams payloads to a dashboard.
// /ws/{session} only receives payloads of that session.
func (r *Relay) handleWebsocket(w http.ResponseWriter, req *http.Request) {
	session := strings.Trim(strings.TrimPrefix(req.URL.Path, "/ws/"), "/")
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.l.Warn("upgrade error", log.ErrorField(err))
		return
	}
	c := &client{
		id:      uuid.New(),
		conn:    conn,
		session: session,
		l:       r.l.Named("ws"),
	}
	c.l.Info("new dashboard connected",
		log.String("client", c.id.String()),
		log.String("remote", conn.RemoteAddr().String()),
		log.String("session", session))
	c.serve(r)
}

type client struct {
	id      uuid.UUID
	conn    *websocket.Conn
	session string
	l       *log.Logger
}

func (c *client) serve(r *Relay) {
	data := r.Subscribe()
	defer func() {
		r.CancelSubscription(data)
		c.conn.Close()
		c.l.Info("dashboard disconnected", log.String("client", c.id.String()))
	}()

	// detect closed connections, dashboards don't send anything
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay stopped"),
				time.Now().Add(time.Second))
			return
		case p, ok := <-data:
			if !ok {
				return
			}
			if c.session != "" && c.session != p.SessionID {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(p); err != nil {
				if !isExpectedCloseError(err) {
					c.l.Error("websocket write error",
						log.String("client", c.id.String()), log.ErrorField(err))
				}
				return
			}
		}
	}
}

// isExpectedCloseError reports errors caused by clients leaving abruptly
func isExpectedCloseError(err error) bool {
	if websocket.IsCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseNormalClosure,
		websocket.CloseAbnormalClosure) {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "wsasend") ||
		strings.Contains(msg, "connection was aborted")
}
