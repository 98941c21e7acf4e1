package app

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/domain"
	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/repository"
	"github.com/MYCE-Refactoring/myce-backend-sub000/pkg/logger"
	"github.com/MYCE-Refactoring/myce-backend-sub000/pkg/middlewares"
	"github.com/MYCE-Refactoring/myce-backend-sub000/pkg/token"
)

// ChatWebsocketHandler websocket entry for the support chat protocol.
// The handler is shared by every connection and holds no per-connection
// state; each connection carries its own roomFeed.
type ChatWebsocketHandler struct {
	roomUC      *RoomUseCase
	handoffUC   *HandoffUseCase
	broadcaster repository.Broadcaster
}

// roomFeed one connection's live subscription slot. Entering a room
// replaces the previous subscription of the same connection only; other
// connections keep their own feeds.
type roomFeed struct {
	broadcaster repository.Broadcaster
	cancel      context.CancelFunc
}

func (f *roomFeed) enter(roomCode string, deliver func(domain.RoomEvent)) error {
	f.leave()
	ctx, cancel := context.WithCancel(context.Background())
	if err := f.broadcaster.Subscribe(ctx, roomCode, deliver); err != nil {
		cancel()
		return err
	}
	f.cancel = cancel
	return nil
}

func (f *roomFeed) leave() {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(roomUC *RoomUseCase, handoffUC *HandoffUseCase, broadcaster repository.Broadcaster) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		roomUC:      roomUC,
		handoffUC:   handoffUC,
		broadcaster: broadcaster,
	}
}

// HandleConnection websocket connection entry point
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	viewerID, _ := conn.Locals(middlewares.TokenViewerID).(string)
	viewerName, _ := conn.Locals(middlewares.TokenViewerName).(string)
	roleClaim, ok := conn.Locals(middlewares.TokenRole).(string)
	logger.Log.Info("websocket handle viewer",
		zap.String("viewerID", viewerID), zap.String("ok", strconv.FormatBool(ok)))

	role := domain.ParticipantOwner
	if roleClaim == string(token.RoleOperator) {
		role = domain.ParticipantOperator
	}

	ticker := time.NewTicker(10 * time.Minute)
	ctxClose, cancel := context.WithCancel(context.Background())
	feed := &roomFeed{broadcaster: h.broadcaster}

	defer func() {
		ticker.Stop()
		logger.Log.Info("websocket close", zap.String("viewerID", viewerID))
		conn.Close()
		cancel()
		feed.leave()
	}()

	// fiber answers close/ping/pong itself; the handlers below only log
	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Infof("WebSocket closed:", conn.RemoteAddr())
		return nil
	})
	conn.SetPongHandler(func(appData string) error {
		logger.Log.Infof("Received PONG:", appData)
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	// keepalive ping
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
					logger.Log.Errorf("Ping error:", err)
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Infof("Connection closed:", err)
			} else {
				logger.Log.Errorf("websocket read error:", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			h.sendError(conn, "unknown message type")
			continue
		}
		h.textMessageAction(ctx, conn, feed, viewerID, viewerName, role, message)
	}
}

func (h *ChatWebsocketHandler) textMessageAction(ctx context.Context, conn *websocket.Conn, feed *roomFeed, viewerID, viewerName string, role domain.ParticipantType, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		logger.Log.Errorf("json unmarshal error:", err)
		return
	}

	resp := domain.WSResponse{Action: req.Action, Success: false, Payload: map[string]interface{}{}}
	switch req.Action {
	case string(domain.ActionJoinRoom):
		room, recent, err := h.roomUC.JoinRoom(ctx, req.RoomCode, viewerID, viewerName, role)
		if err != nil {
			resp.Error = err.Error()
			break
		}
		resp.Success = true
		resp.Payload["room"] = room
		resp.Payload["room_state"] = room.StateInfo()
		flagged := make([]map[string]interface{}, 0, len(recent))
		for i := range recent {
			flagged = append(flagged, map[string]interface{}{
				"message": recent[i],
				"unread":  domain.MessageUnreadFlag(&recent[i], room),
			})
		}
		resp.Payload["recent_messages"] = flagged

	case string(domain.ActionEnterRoom):
		err := feed.enter(req.RoomCode, func(event domain.RoomEvent) {
			h.sendResponse(conn, domain.WSResponse{
				Action:  string(domain.ActionNotifyEvent),
				Success: true,
				Payload: map[string]interface{}{
					"type":       event.Type,
					"message":    event.Message,
					"room_state": event.RoomState,
					"version":    event.Version,
				},
			})
		})
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["room_code"] = req.RoomCode
		}

	case string(domain.ActionLeaveRoom):
		feed.leave()
		resp.Success = true
		resp.Payload["room_code"] = req.RoomCode

	case string(domain.ActionSendMessage):
		message, err := h.handoffUC.SendMessage(ctx, req.RoomCode, viewerID, viewerName, role, req.Content)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["message_id"] = message.ID
		}

	case string(domain.ActionRequestHandoff):
		sysMsg, err := h.handoffUC.RequestHandoff(ctx, req.RoomCode, viewerID)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["message_id"] = sysMsg.ID
		}

	case string(domain.ActionCancelHandoff):
		if err := h.handoffUC.CancelHandoff(ctx, req.RoomCode, viewerID); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}

	case string(domain.ActionAcceptHandoff):
		room, err := h.handoffUC.AcceptHandoff(ctx, req.RoomCode, viewerID, viewerName)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["room_state"] = room.StateInfo()
		}

	case string(domain.ActionIntervene):
		room, err := h.handoffUC.ProactiveIntervene(ctx, req.RoomCode, viewerID, viewerName)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["room_state"] = room.StateInfo()
		}

	case string(domain.ActionAssistantReturn):
		if err := h.handoffUC.RequestAssistantReturn(ctx, req.RoomCode, viewerID, role); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}

	case string(domain.ActionMarkRead):
		if err := h.roomUC.MarkRead(ctx, req.RoomCode, viewerID, role, req.MessageID); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}

	case string(domain.ActionGetUnread):
		summaries, err := h.roomUC.ListRooms(ctx, viewerID, role)
		if err != nil {
			resp.Error = err.Error()
			break
		}
		for _, s := range summaries {
			resp.Payload[s.Room.RoomCode] = s.UnreadCount
		}
		if badge, err := h.roomUC.BadgeTotal(ctx, viewerID, role); err == nil {
			resp.Payload["badge_total"] = badge
		}
		resp.Success = true

	case string(domain.ActionListRooms):
		summaries, err := h.roomUC.ListRooms(ctx, viewerID, role)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["rooms"] = summaries
		}

	default:
		h.sendError(conn, "unknown action")
		return
	}

	if resp.Error != "" {
		logger.Log.Error("websocket err",
			zap.String("viewerID", viewerID),
			zap.String("action", req.Action),
			zap.String("err", resp.Error))
	}
	h.sendResponse(conn, resp)
}

// sendResponse write JSON back to the client
func (h *ChatWebsocketHandler) sendResponse(conn *websocket.Conn, resp domain.WSResponse) {
	b, _ := json.Marshal(resp)
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logger.Log.Errorf("write message error:", err)
	}
}

func (h *ChatWebsocketHandler) sendError(conn *websocket.Conn, errorMsg string) {
	h.sendResponse(conn, domain.WSResponse{
		Action:  "error",
		Success: false,
		Payload: map[string]interface{}{"error": errorMsg},
	})
}
