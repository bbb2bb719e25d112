package ui

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"riskboard/domain/dataset"
	"riskboard/domain/session"
	"riskboard/internal/dragdrop"
	apperrors "riskboard/internal/errors"
	"riskboard/internal/upload"
)

// Live message types
const (
	EventDragEnter = "dragenter"
	EventDragLeave = "dragleave"
	EventDragOver  = "dragover"
	EventDrop      = "drop"

	MessageOverlay   = "overlay"
	MessageSelection = "selection"
	MessageSession   = "session"
	MessageProgress  = "progress"
	MessageError     = "error"
)

const (
	liveBuffer       = 64
	liveWriteTimeout = 5 * time.Second
)

// clientEvent is a drag event forwarded by the page
type clientEvent struct {
	Type  string            `json:"type"`
	Files []dataset.FileRef `json:"files,omitempty"`
}

// liveMessage is pushed to the page
type liveMessage struct {
	Type    string           `json:"type"`
	Visible *bool            `json:"visible,omitempty"`
	File    *dataset.FileRef `json:"file,omitempty"`
	Session *session.Session `json:"session,omitempty"`
	State   *upload.State    `json:"state,omitempty"`
	Error   string           `json:"error,omitempty"`
	Code    string           `json:"code,omitempty"`
}

// liveConn is one page's channel. Every producer enqueues; only the writer touches the socket.
type liveConn struct {
	out chan liveMessage
}

// push enqueues m, dropping it when the page is not keeping up
func (c *liveConn) push(m liveMessage) bool {
	select {
	case c.out <- m:
		return true
	default:
		return false
	}
}

// handleLive upgrades to a websocket carrying drag events in and state changes out
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.opts.AllowedOrigins,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	s.live.Add(1)
	defer s.live.Done()
	defer ws.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	conn := &liveConn{out: make(chan liveMessage, liveBuffer)}

	tracker := dragdrop.NewTracker(s.clock, s.opts.DragDebounce)
	defer tracker.Stop()
	tracker.OnChange(func(visible bool) {
		conn.push(liveMessage{Type: MessageOverlay, Visible: &visible})
	})

	unsubscribe := s.auth.Subscribe(func(sess session.Session) {
		conn.push(liveMessage{Type: MessageSession, Session: &sess})
	})
	defer unsubscribe()

	lastError := ""
	unwatch := s.uploads.Watch(func(st upload.State) {
		conn.push(liveMessage{Type: MessageProgress, State: &st})
		if st.Error != "" && st.Error != lastError {
			conn.push(liveMessage{Type: MessageError, Error: st.Error, Code: st.ErrorCode})
		}
		lastError = st.Error
	})
	defer unwatch()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		s.writeLoop(ctx, ws, conn)
	}()

	s.readLoop(ctx, ws, conn, tracker)
	cancel()
	<-done

	ws.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) readLoop(ctx context.Context, ws *websocket.Conn, conn *liveConn, tracker *dragdrop.Tracker) {
	for {
		var ev clientEvent
		if err := wsjson.Read(ctx, ws, &ev); err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				s.logger.Debug("live read ended", "error", err)
			}
			return
		}

		switch ev.Type {
		case EventDragEnter:
			tracker.Enter()
		case EventDragLeave:
			tracker.Leave()
		case EventDragOver:
			tracker.Over()
		case EventDrop:
			s.handleDrop(conn, tracker, ev.Files)
		default:
			conn.push(liveMessage{Type: MessageError, Error: "Unknown event", Code: apperrors.CodeInvalidInput})
		}
	}
}

// handleDrop resets the overlay and hands the dropped file to the upload selection,
// which clears the selection and shows the error when the file is rejected
func (s *Server) handleDrop(conn *liveConn, tracker *dragdrop.Tracker, files []dataset.FileRef) {
	file, err := tracker.Drop(files)
	if err != nil && len(files) == 0 {
		conn.push(liveMessage{Type: MessageError, Error: apperrors.UserMessage(err, ""), Code: apperrors.GetCode(err)})
		return
	}
	if err != nil {
		file = files[0]
	}
	if err := s.uploads.Select(file); err != nil {
		if errors.Is(err, upload.ErrClosed) {
			conn.push(liveMessage{Type: MessageError, Error: apperrors.UserMessage(err, ""), Code: apperrors.GetCode(err)})
		}
		return
	}
	conn.push(liveMessage{Type: MessageSelection, File: &file})
}

func (s *Server) writeLoop(ctx context.Context, ws *websocket.Conn, conn *liveConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-conn.out:
			wctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
			err := wsjson.Write(wctx, ws, m)
			cancel()
			if err != nil {
				s.logger.Debug("live write failed", "type", m.Type, "error", err)
				return
			}
		}
	}
}
