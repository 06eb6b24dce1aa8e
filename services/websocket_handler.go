package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rehearsal-ai/backend/models"
	ws "github.com/rehearsal-ai/backend/websocket"
)

// safeSend tries to send a message to the client channel, recovers if closed
func safeSend(ch chan<- []byte, msg []byte) {
	defer func() {
		if r := recover(); r != nil {
			// Channel is closed, ignore
		}
	}()
	select {
	case ch <- msg:
		// sent
	default:
		// channel full or closed
	}
}

// WebSocketHandler routes session socket frames to the interview and
// communication services. Every inbound frame gets exactly one reply
// frame, either the result or an error.
type WebSocketHandler struct {
	sessions    *SessionManager
	interviewer *AIInterviewer
	comms       *CommunicationManager
}

func NewWebSocketHandler(sessions *SessionManager, interviewer *AIInterviewer, comms *CommunicationManager) *WebSocketHandler {
	return &WebSocketHandler{
		sessions:    sessions,
		interviewer: interviewer,
		comms:       comms,
	}
}

// HandleWebSocketConnection greets a freshly registered client with the
// session's current communication state.
func (h *WebSocketHandler) HandleWebSocketConnection(client *ws.Client) {
	slog.Info("WebSocket connection handled", "user_id", client.UserID, "session_id", client.SessionID)

	active, err := h.comms.ActiveModes(context.Background(), client.SessionID)
	if err != nil {
		slog.Error("Failed to load active modes for greeting", "error", err, "session_id", client.SessionID)
		h.sendError(client, err.Error())
		return
	}

	h.sendFrame(client, map[string]any{
		"type":         "ready",
		"session_id":   client.SessionID,
		"active_modes": active,
	})
}

// HandleWebSocketMessage processes one inbound frame. It runs outside
// the read loop, so slow provider calls do not stall the socket.
func (h *WebSocketHandler) HandleWebSocketMessage(client *ws.Client, messageBytes []byte) {
	var frame ws.Frame
	if err := json.Unmarshal(messageBytes, &frame); err != nil {
		slog.Error("Failed to unmarshal WebSocket frame", "error", err)
		h.sendError(client, "invalid frame")
		return
	}

	ctx := context.Background()

	switch frame.Type {
	case "start_interview":
		opening, err := h.interviewer.StartInterview(ctx, client.SessionID)
		if err != nil {
			slog.Error("Failed to start interview over socket", "error", err, "session_id", client.SessionID)
			h.sendError(client, err.Error())
			return
		}
		h.sendFrame(client, map[string]any{
			"type":    "interviewer_message",
			"message": opening,
		})

	case "candidate_message":
		reply, err := h.interviewer.ProcessResponse(ctx, client.SessionID, frame.Content)
		if err != nil {
			slog.Error("Failed to process candidate message over socket", "error", err, "session_id", client.SessionID)
			h.sendError(client, err.Error())
			return
		}
		h.sendFrame(client, map[string]any{
			"type":    "interviewer_message",
			"message": reply,
		})

	case "whiteboard_snapshot":
		h.saveMedia(ctx, client, frame.Data, h.comms.SaveWhiteboardSnapshot)

	case "screen_capture":
		h.saveMedia(ctx, client, frame.Data, h.comms.SaveScreenCapture)

	case "enable_mode":
		h.toggleMode(ctx, client, frame.Mode, h.comms.EnableMode)

	case "disable_mode":
		h.toggleMode(ctx, client, frame.Mode, h.comms.DisableMode)

	case "end_session":
		slog.Info("Received end_session frame", "session_id", client.SessionID)
		report, err := h.sessions.EndSession(ctx, client.SessionID)
		if err != nil {
			slog.Error("Failed to end session over socket", "error", err, "session_id", client.SessionID)
			h.sendError(client, err.Error())
			return
		}
		h.sendFrame(client, map[string]any{
			"type":   "session_ended",
			"report": report,
		})
		// Close after a short delay so the final frame gets flushed
		go func() {
			<-time.After(200 * time.Millisecond)
			client.Conn.Close()
		}()

	default:
		slog.Warn("Unknown frame type", "type", frame.Type, "session_id", client.SessionID)
		h.sendError(client, "unknown frame type "+frame.Type)
	}
}

func (h *WebSocketHandler) saveMedia(ctx context.Context, client *ws.Client, encoded string, op func(context.Context, string, []byte) (*models.MediaFile, error)) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		slog.Error("Failed to decode media payload", "error", err, "session_id", client.SessionID)
		h.sendError(client, "media data must be base64 encoded")
		return
	}

	file, err := op(ctx, client.SessionID, data)
	if err != nil {
		slog.Error("Failed to save media over socket", "error", err, "session_id", client.SessionID)
		h.sendError(client, err.Error())
		return
	}

	h.sendFrame(client, map[string]any{
		"type":  "media_saved",
		"media": file,
	})
}

func (h *WebSocketHandler) toggleMode(ctx context.Context, client *ws.Client, mode string, op func(context.Context, string, string) (models.StringList, error)) {
	active, err := op(ctx, client.SessionID, mode)
	if err != nil {
		slog.Error("Failed to toggle mode over socket", "error", err, "session_id", client.SessionID, "mode", mode)
		h.sendError(client, err.Error())
		return
	}

	h.sendFrame(client, map[string]any{
		"type":         "modes",
		"active_modes": active,
	})
}

func (h *WebSocketHandler) sendFrame(client *ws.Client, payload map[string]any) {
	b, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal frame", "error", err, "session_id", client.SessionID)
		return
	}
	safeSend(client.Send, b)
}

func (h *WebSocketHandler) sendError(client *ws.Client, message string) {
	h.sendFrame(client, map[string]any{
		"type":  "error",
		"error": message,
	})
}
