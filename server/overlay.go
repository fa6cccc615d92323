package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"kuji/overlay"
	"kuji/service"
)

type frameMessage struct {
	Type  string        `json:"type"`
	Frame overlay.Frame `json:"frame"`
	Cues  []overlay.Cue `json:"cues,omitempty"`
}

func (s *Server) newOverlaySession(c *gin.Context) (*overlay.Session, bool) {
	boardID, ok := pathUUID(c, "boardId")
	if !ok {
		return nil, false
	}
	return overlay.NewSession(overlay.Dependencies{
		Boards:      s.deps.Boards,
		Query:       s.deps.Query,
		Bus:         s.deps.Bus,
		RevealDelay: s.deps.RevealDelay,
	}, boardID), true
}

// settledFrame loads the overlay once with any pending reveal already shown
func (s *Server) settledFrame(c *gin.Context) (overlay.Frame, int, bool) {
	session, ok := s.newOverlaySession(c)
	if !ok {
		return overlay.Frame{}, 0, false
	}
	defer session.Close()

	if err := session.Load(c.Request.Context(), c.Query("token")); err != nil {
		if session.Denied() == nil {
			respondError(c, err)
			return overlay.Frame{}, 0, false
		}
		return session.Frame(), statusFor(err), true
	}
	session.Settle()
	return session.Frame(), http.StatusOK, true
}

func (s *Server) overlayFrame(c *gin.Context) {
	frame, status, ok := s.settledFrame(c)
	if !ok {
		return
	}
	c.JSON(status, frame)
}

func (s *Server) overlayCard(c *gin.Context) {
	if s.deps.Cards == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Result cards are not enabled"})
		return
	}
	frame, status, ok := s.settledFrame(c)
	if !ok {
		return
	}

	data, err := s.deps.Cards.Render(frame)
	if err != nil {
		respondError(c, service.NewStoreError(err, "render result card"))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(status, "image/png", data)
}

func (s *Server) overlayWebSocket(c *gin.Context) {
	session, ok := s.newOverlaySession(c)
	if !ok {
		return
	}
	defer session.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Overlay websocket upgrade failed")
		return
	}

	fields := log.Fields{"board_id": c.Param("boardId"), "socket": "overlay"}
	client := newWSClient(conn, fields)
	go client.writePump()

	err = session.Open(c.Request.Context(), c.Query("token"), func(f overlay.Frame, cues []overlay.Cue) {
		client.enqueue(frameMessage{Type: "frame", Frame: f, Cues: cues})
	})
	client.enqueue(frameMessage{Type: "frame", Frame: session.Frame()})
	if err != nil {
		// denied sessions get their placeholder frame, failed loads a loading frame; the client reconnects
		log.WithFields(fields).WithField("kind", service.KindOf(err)).Info("Overlay websocket closed on open")
		client.Close()
		return
	}

	// overlays never write; reading only detects the disconnect
	client.readPump(func([]byte) {})
}
