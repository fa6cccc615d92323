package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kuji/controlroom"
)

// controlMessage is an operator action sent over the control room socket
type controlMessage struct {
	Action       string    `json:"action"`
	Key          string    `json:"key"`
	InputFocused bool      `json:"input_focused"`
	PrizeID      uuid.UUID `json:"prize_id"`
	Name         string    `json:"name"`
}

type viewMessage struct {
	Type string           `json:"type"`
	View controlroom.View `json:"view"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (s *Server) controlWebSocket(c *gin.Context) {
	boardID, ok := s.ownedBoard(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Control room websocket upgrade failed")
		return
	}

	fields := log.Fields{"board_id": boardID, "seller_id": sellerID(c), "socket": "control"}
	client := newWSClient(conn, fields)
	go client.writePump()

	session := controlroom.NewSession(controlroom.Dependencies{
		Query:       s.deps.Query,
		Ledger:      s.deps.Ledger,
		Overlay:     s.deps.Overlay,
		Bus:         s.deps.Bus,
		Limiter:     s.deps.Limiter,
		RecentLimit: s.deps.RecentLimit,
	}, boardID)
	defer session.Close()

	ctx := c.Request.Context()
	if err := session.Open(ctx, func(v controlroom.View) {
		client.enqueue(viewMessage{Type: "view", View: v})
	}); err != nil {
		client.enqueue(errorMessage{Type: "error", Error: err.Error()})
		client.Close()
		return
	}
	client.enqueue(viewMessage{Type: "view", View: session.View()})
	log.WithFields(fields).Info("Control room connected")

	client.readPump(func(msg []byte) {
		if err := dispatchControl(ctx, session, msg); err != nil {
			log.WithFields(fields).WithError(err).Debug("Control room action rejected")
		}
	})
}

// dispatchControl applies one operator message to the session
func dispatchControl(ctx context.Context, session *controlroom.Session, raw []byte) error {
	var msg controlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	switch msg.Action {
	case "key":
		return session.HandleKey(ctx, msg.Key, msg.InputFocused)
	case "select_prize":
		return session.SelectPrize(msg.PrizeID)
	case "clear_selection":
		session.ClearSelection()
	case "set_viewer_name":
		session.SetViewerName(msg.Name)
	case "submit_draw":
		_, err := session.SubmitDraw(ctx)
		return err
	case "toggle_modal":
		return session.ToggleModal(ctx)
	case "show_prize":
		return session.ShowPrize(ctx, msg.PrizeID)
	case "hide_result":
		return session.HideLastResult(ctx)
	case "dismiss_notice":
		session.DismissNotice()
	default:
		return fmt.Errorf("unknown action %q", msg.Action)
	}
	return nil
}
