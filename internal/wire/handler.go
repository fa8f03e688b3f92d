package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/matthewbaird/railgrid/internal/autocomplete"
	"github.com/matthewbaird/railgrid/internal/schema"
	"github.com/matthewbaird/railgrid/internal/session"
	"github.com/matthewbaird/railgrid/internal/view"
)

// outboxSize bounds the per-connection send queue.
const outboxSize = 256

// Handler manages WebSocket connections for grid sessions.
type Handler struct {
	sessions *session.Manager
	logger   *zap.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(sessions *session.Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sessions: sessions, logger: logger}
}

// conn is one WebSocket connection attached to a session. Messages are
// queued by the session loop and the read loop and written by a single
// writer goroutine.
type conn struct {
	ws     *websocket.Conn
	sess   *session.Session
	out    chan ServerMessage
	logger *zap.Logger
}

// Changed sends a fresh frame. It runs on the session loop.
func (c *conn) Changed() {
	c.enqueue(ServerMessage{Type: "frame", Data: c.sess.View().Frame()})
}

// Dialog forwards a field-dialog request. It runs on the session loop.
func (c *conn) Dialog(d session.Dialog) {
	c.enqueue(ServerMessage{Type: "dialog", Data: d})
}

func (c *conn) enqueue(msg ServerMessage) {
	select {
	case c.out <- msg:
	default:
		c.logger.Warn("grid: outbox full, dropping message", zap.String("type", msg.Type))
	}
}

func (c *conn) send(requestID, typ string, data any) {
	c.enqueue(ServerMessage{Type: typ, RequestID: requestID, Data: data})
}

func (c *conn) sendError(requestID, code string, err error) {
	c.enqueue(ServerMessage{
		Type:      "error",
		RequestID: requestID,
		Data:      ErrorData{Code: code, Message: err.Error()},
	})
}

func (c *conn) writer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.out:
			if err := wsjson.Write(ctx, c.ws, msg); err != nil {
				c.logger.Debug("grid: write error", zap.Error(err))
				return
			}
		}
	}
}

// ServeHTTP upgrades to WebSocket and runs the message loop. The optional
// "session" query parameter resumes an existing session; otherwise a new
// one is created on the "schema" and "entity" parameters.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("grid: websocket accept", zap.Error(err))
		return
	}
	defer ws.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	q := r.URL.Query()
	sess := h.sessions.Get(q.Get("session"))
	if sess == nil {
		sess = h.sessions.Create(q.Get("schema"), q.Get("entity"))
	}
	c := &conn{
		ws:     ws,
		sess:   sess,
		out:    make(chan ServerMessage, outboxSize),
		logger: h.logger.With(zap.String("session", sess.ID)),
	}
	go c.writer(ctx)

	if err := sess.Attach(ctx, c); err != nil {
		h.logger.Warn("grid: attach", zap.Error(err))
		return
	}
	defer sess.Attach(context.Background(), nil) //nolint:errcheck

	c.send("", "session", SessionData{SessionID: sess.ID, Schema: sess.Schema, Entity: sess.Entity})
	if err := sess.Do(ctx, func(*view.View) { c.Changed() }); err != nil {
		return
	}

	// Message loop
	for {
		var msg ClientMessage
		err := wsjson.Read(ctx, ws, &msg)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.logger.Debug("grid: connection closed", zap.Int("status", int(websocket.CloseStatus(err))))
			}
			return
		}
		if msg.Type == "ping" {
			c.send(msg.ID, "pong", nil)
			continue
		}
		if err := sess.Do(ctx, func(v *view.View) { h.dispatch(c, v, msg) }); err != nil {
			c.logger.Debug("grid: session unavailable", zap.Error(err))
			return
		}
	}
}

// dispatch runs one client message on the session loop.
func (h *Handler) dispatch(c *conn, v *view.View, msg ClientMessage) {
	var err error
	switch msg.Type {
	case "load":
		v.Load(func(err error) {
			if err != nil {
				c.sendError(msg.ID, "load_error", err)
			}
		})
	case "reload":
		var d ReloadData
		if err = decode(msg.Data, &d); err == nil {
			v.Reload(d.Schema, d.Entity, func(err error) {
				if err != nil {
					c.sendError(msg.ID, "load_error", err)
				}
			})
		}
	case "filter":
		var d FilterData
		if err = decode(msg.Data, &d); err == nil {
			if ferr := v.SetFilter(d.Expr, func(err error) {
				if err != nil {
					c.sendError(msg.ID, "load_error", err)
				}
			}); ferr != nil {
				c.sendError(msg.ID, "invalid_filter", ferr)
				return
			}
		}
	case "activate":
		var d CellData
		if err = decode(msg.Data, &d); err == nil {
			_, err = v.Activate(d.Row, d.Column)
		}
	case "cancel":
		var d CellData
		if err = decode(msg.Data, &d); err == nil {
			err = v.Cancel(d.Row, d.Column)
		}
	case "confirm", "blur":
		var d EditData
		if err = decode(msg.Data, &d); err == nil {
			var value any
			if value, err = decodeValue(d.Value); err == nil {
				if msg.Type == "confirm" {
					_, err = v.Confirm(d.Row, d.Column, value)
				} else {
					_, err = v.Blur(d.Row, d.Column, value)
				}
			}
		}
	case "toggle":
		var d ToggleData
		if err = decode(msg.Data, &d); err == nil {
			_, err = v.Toggle(d.Row, d.Column, d.Checked)
		}
	case "search":
		var d SearchData
		if err = decode(msg.Data, &d); err == nil {
			err = h.search(c, v, msg.ID, d)
		}
	case "select_row":
		var d RowData
		if err = decode(msg.Data, &d); err == nil {
			err = v.ToggleRow(d.Row)
		}
	case "select_all":
		err = v.ToggleAll()
	case "resize":
		var d ResizeData
		if err = decode(msg.Data, &d); err == nil {
			err = v.Resize(d.Column, d.Width)
		}
	case "hide":
		var d HideData
		if err = decode(msg.Data, &d); err == nil {
			err = v.SetHidden(d.Column, d.Hidden)
		}
	case "header_menu":
		var d HeaderMenuData
		if err = decode(msg.Data, &d); err == nil {
			m, openErr := v.OpenHeaderMenu(d.Column)
			if err = openErr; err == nil {
				c.send(msg.ID, "menu", m)
			}
		}
	case "menu_action":
		var d MenuActionData
		if err = decode(msg.Data, &d); err == nil {
			if d.Item == "" {
				v.CloseHeaderMenu()
			} else {
				err = v.ChooseHeaderMenu(d.Item)
			}
		}
	case "create_form":
		fields, formErr := v.CreateForm()
		if err = formErr; err == nil {
			c.send(msg.ID, "form", FormData{Fields: fields})
		}
	case "create":
		var d CreateData
		if err = decode(msg.Data, &d); err == nil {
			err = v.CreateRecord(d.Inputs, func(row schema.Row, err error) {
				if err != nil {
					c.sendError(msg.ID, "create_error", err)
					return
				}
				c.send(msg.ID, "created", CreatedData{Row: row})
			})
		}
	default:
		c.sendError(msg.ID, "unknown_type", fmt.Errorf("unknown message type: %s", msg.Type))
		return
	}
	if err != nil {
		c.sendError(msg.ID, errorCode(err), err)
	}
}

func (h *Handler) search(c *conn, v *view.View, requestID string, d SearchData) error {
	hint := ""
	if t := v.Table(); t != nil {
		if col, err := t.Column(d.Column); err == nil {
			hint = autocomplete.NoOptionsMessage(autocomplete.CandidatesOf(col.Field))
		}
	}
	return v.Search(d.Row, d.Column, d.Prefix, func(opts []autocomplete.Option) {
		if opts == nil {
			opts = []autocomplete.Option{}
		}
		c.send(requestID, "options", OptionsData{Row: d.Row, Column: d.Column, Options: opts, Hint: hint})
	})
}

var errInvalidData = errors.New("invalid message data")

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidData, err)
	}
	return nil
}

// decodeValue turns an edit value into plain JSON values, keeping numbers
// as json.Number.
func decodeValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidData, err)
	}
	return v, nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, errInvalidData):
		return "invalid_data"
	case errors.Is(err, view.ErrNotLoaded):
		return "not_loaded"
	default:
		return "gesture_error"
	}
}
