package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/backendmcp/internal/protocol"
	"github.com/antoniostano/backendmcp/internal/tasks"
)

const (
	defaultWSReadTimeout = 120 * time.Second
	wsWriteTimeout       = 10 * time.Second
)

// handleTaskEventsWS streams task events for one session and accepts
// client_control frames (snapshot, next, complete) on the same socket.
func (s *Server) handleTaskEventsWS(w http.ResponseWriter, r *http.Request) {
	if !s.tasksEnabled(w) {
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if strings.TrimSpace(sessionID) == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := s.tasks.Subscribe(sessionID)
	defer unsubscribe()
	s.logger.Info().Str("session_id", sessionID).Msg("task event stream connected")

	readTimeout := s.wsReadTimeout
	outbound := make(chan any, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Listen-only clients send nothing, so pings keep the read deadline alive.
		ping := time.NewTicker(readTimeout * 9 / 10)
		defer ping.Stop()
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					s.metrics.ObserveWSMessage("outbound", "ping", "write_error")
					cancel()
					return
				}
				continue
			case evt, ok := <-events:
				if !ok {
					cancel()
					return
				}
				msg = taskEventFrame(evt)
			case out := <-outbound:
				msg = out
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				s.metrics.ObserveWSMessage("outbound", messageTypeOf(msg), "write_error")
				cancel()
				return
			}
			s.metrics.ObserveWSMessage("outbound", messageTypeOf(msg), "sent")
		}
	}()

	send := func(msg any) {
		select {
		case outbound <- msg:
		default:
			// Writes stay single-threaded; drop when the queue is saturated.
			s.metrics.ObserveWSMessage("outbound", messageTypeOf(msg), "drop_full")
		}
	}

	send(protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: sessionID,
		Code:      "subscribed",
	})

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for ctx.Err() == nil {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.metrics.ObserveWSMessage("inbound", "unknown", "invalid")
			send(errorFrame(sessionID, "invalid_client_message", err.Error()))
			continue
		}
		control, ok := parsed.(protocol.ClientControl)
		if !ok {
			continue
		}
		s.metrics.ObserveWSMessage("inbound", string(control.Type), "ok")
		if control.SessionID != "" && control.SessionID != sessionID {
			send(errorFrame(sessionID, "session_mismatch", "client_control session_id does not match the stream"))
			continue
		}
		if reply := s.handleControl(ctx, sessionID, control); reply != nil {
			send(reply)
		}
	}

	cancel()
	<-writerDone
	s.logger.Info().Str("session_id", sessionID).Msg("task event stream disconnected")
}

// handleControl applies one control action. Mutations reply through the
// subscription, so only snapshots and failures return a frame here.
func (s *Server) handleControl(ctx context.Context, sessionID string, control protocol.ClientControl) any {
	switch control.Action {
	case protocol.ActionSnapshot:
		list, err := s.tasks.List(ctx, sessionID)
		if err != nil {
			return errorFrame(sessionID, "snapshot_failed", err.Error())
		}
		return snapshotFrame(sessionID, list)
	case protocol.ActionNext:
		if _, _, err := s.tasks.Next(ctx, sessionID); err != nil {
			return errorFrame(sessionID, "next_failed", err.Error())
		}
	case protocol.ActionComplete:
		if err := s.tasks.Complete(ctx, control.TaskID); err != nil {
			code := "complete_failed"
			if errors.Is(err, tasks.ErrTaskNotFound) {
				code = "task_not_found"
			}
			return errorFrame(sessionID, code, err.Error())
		}
	}
	return nil
}

func taskEventFrame(evt tasks.Event) protocol.TaskEvent {
	return protocol.TaskEvent{
		Type:      protocol.TypeTaskEvent,
		SessionID: evt.SessionID,
		Event:     string(evt.Type),
		TaskID:    evt.TaskID,
		Title:     evt.Title,
		Status:    string(evt.Status),
		TSMs:      evt.At.UnixMilli(),
	}
}

func snapshotFrame(sessionID string, list []tasks.Task) protocol.TaskSnapshot {
	views := make([]protocol.TaskView, 0, len(list))
	for _, t := range list {
		views = append(views, protocol.TaskView{
			TaskID:      t.ID,
			Title:       t.Title,
			Description: t.Description,
			Status:      string(t.Status),
			CreatedAt:   t.CreatedAt.Format(time.RFC3339Nano),
			UpdatedAt:   t.UpdatedAt.Format(time.RFC3339Nano),
		})
	}
	return protocol.TaskSnapshot{
		Type:      protocol.TypeTaskSnapshot,
		SessionID: sessionID,
		Total:     len(views),
		Tasks:     views,
	}
}

func errorFrame(sessionID, code, detail string) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Source:    "httpapi",
		Retryable: false,
		Detail:    detail,
	}
}

func messageTypeOf(v any) string {
	switch m := v.(type) {
	case protocol.TaskEvent:
		return string(m.Type)
	case protocol.TaskSnapshot:
		return string(m.Type)
	case protocol.SystemEvent:
		return string(m.Type)
	case protocol.ErrorEvent:
		return string(m.Type)
	default:
		return "unknown"
	}
}
