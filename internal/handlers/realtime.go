// internal/handlers/realtime.go
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/middleware"
	"github.com/netwarden/backend/internal/models"
	"github.com/netwarden/backend/internal/realtime"
	"github.com/netwarden/backend/internal/services"
	"github.com/netwarden/backend/internal/utils"
)

// RealtimeHandler upgrades subscriptions and bridges websocket commands to
// the same services the HTTP surface uses.
type RealtimeHandler struct {
	hub                *realtime.Hub
	authzService       *services.AuthorizationService
	snapshotService    *services.SnapshotService
	joinRequestService *services.JoinRequestService
	deviceService      *services.DeviceService
	intrusionService   *services.IntrusionService
	upgrader           websocket.Upgrader
}

func NewRealtimeHandler(hub *realtime.Hub, authzService *services.AuthorizationService,
	snapshotService *services.SnapshotService, joinRequestService *services.JoinRequestService,
	deviceService *services.DeviceService, intrusionService *services.IntrusionService,
	allowedOrigins []string) *RealtimeHandler {

	checkOrigin := func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, allowed := range allowedOrigins {
			if allowed == "*" || strings.EqualFold(allowed, origin) {
				return true
			}
		}
		return false
	}

	return &RealtimeHandler{
		hub:                hub,
		authzService:       authzService,
		snapshotService:    snapshotService,
		joinRequestService: joinRequestService,
		deviceService:      deviceService,
		intrusionService:   intrusionService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// GET /realtime?token=...&scopes=network:<id>,user:<id>
//
// Authentication and scope authorization happen before the client sees any
// event. A refused connection is closed with 4001 (unauthenticated), 4003
// (unauthorized scope) or 4004 (invalid scope).
func (h *RealtimeHandler) Connect(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Debug("Websocket upgrade failed")
		return
	}

	token := middleware.TokenFromRequest(c)
	if token == "" {
		closeWith(conn, apperrors.CloseAuthenticationRequired, "authentication required")
		return
	}
	claims, err := utils.ValidateJWT(token)
	if err != nil {
		closeWith(conn, apperrors.CloseAuthenticationRequired, "invalid or expired token")
		return
	}
	principal, err := claims.Principal()
	if err != nil {
		closeWith(conn, apperrors.CloseAuthenticationRequired, "invalid token claims")
		return
	}

	rawScopes := c.Query("scopes")
	if rawScopes == "" {
		// Every session at least follows its own user scope.
		rawScopes = "user:" + principal.ID.String()
	}

	var topics []realtime.Topic
	for _, raw := range strings.Split(rawScopes, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		topic, err := realtime.ParseTopic(raw)
		if err != nil {
			closeWith(conn, apperrors.CloseInvalidScope, err.Error())
			return
		}
		if err := h.authzService.AuthorizeTopic(principal, topic); err != nil {
			// A not-found on a network scope may be a cross-tenant probe;
			// the detector decides whether there is anything to record.
			if topic.Kind() == "network" && apperrors.KindOf(err) == apperrors.KindNotFound {
				if networkID, idErr := topic.ResourceID(); idErr == nil {
					h.intrusionService.RecordCrossTenantSubscribe(principal, networkID, c.ClientIP())
				}
			}
			closeWith(conn, apperrors.CloseCode(err), apperrors.AsError(err).Message)
			return
		}
		topics = append(topics, topic)
	}

	client := realtime.NewClient(h.hub, conn, principal, topics, h)

	// Hello frames: a full snapshot per network/company scope, queued before
	// registration so the first frame a subscriber reads is the snapshot,
	// never an incremental event.
	for _, topic := range topics {
		h.sendSnapshot(client, topic)
	}

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

func (h *RealtimeHandler) sendSnapshot(client *realtime.Client, topic realtime.Topic) {
	resourceID, err := topic.ResourceID()
	if err != nil {
		return
	}

	switch topic.Kind() {
	case "network":
		snapshot, err := h.snapshotService.BuildNetworkSnapshot(resourceID)
		if err != nil {
			logrus.WithError(err).WithField("topic", topic).Error("Failed to build snapshot")
			return
		}
		client.Send(realtime.NewEvent(realtime.EventSnapshot, topic, snapshot))
	case "company":
		snapshot, err := h.snapshotService.BuildCompanySnapshot(resourceID)
		if err != nil {
			logrus.WithError(err).WithField("topic", topic).Error("Failed to build snapshot")
			return
		}
		client.Send(realtime.NewEvent(realtime.EventSnapshot, topic, snapshot))
	}
}

// HandleCommand implements realtime.CommandHandler. Commands run through the
// same services as their HTTP equivalents, so authorization and state rules
// cannot diverge between the two surfaces.
func (h *RealtimeHandler) HandleCommand(client *realtime.Client, cmd realtime.Command) error {
	principal := client.Principal()

	var err error
	switch cmd.Action {
	case "recommend_request":
		err = h.withRequestID(cmd, func(id uuid.UUID) error {
			_, e := h.joinRequestService.Recommend(principal, id)
			return e
		})
	case "approve_request":
		err = h.withRequestID(cmd, func(id uuid.UUID) error {
			_, e := h.joinRequestService.Approve(principal, id)
			return e
		})
	case "reject_request":
		err = h.withRequestID(cmd, func(id uuid.UUID) error {
			_, e := h.joinRequestService.Deny(principal, id)
			return e
		})
	case "cancel_request":
		err = h.withRequestID(cmd, func(id uuid.UUID) error {
			_, e := h.joinRequestService.Cancel(principal, id)
			return e
		})
	case "block_device":
		err = h.withDeviceID(cmd, func(id uuid.UUID) error {
			_, e := h.deviceService.Block(principal, id)
			return e
		})
	case "unblock_device":
		err = h.withDeviceID(cmd, func(id uuid.UUID) error {
			_, e := h.deviceService.Unblock(principal, id)
			return e
		})
	case "acknowledge_intruder":
		err = h.withIntruderID(cmd, func(id uuid.UUID) error {
			_, e := h.intrusionService.Advance(principal, id, models.IntruderAcknowledged)
			return e
		})
	case "escalate_intruder":
		err = h.withIntruderID(cmd, func(id uuid.UUID) error {
			_, e := h.intrusionService.Advance(principal, id, models.IntruderEscalated)
			return e
		})
	default:
		err = apperrors.Validation("unknown action", nil)
	}

	if err != nil {
		e := apperrors.AsError(err)
		client.SendError(string(e.Kind), e.Message)
	}
	return err
}

func (h *RealtimeHandler) withRequestID(cmd realtime.Command, fn func(uuid.UUID) error) error {
	id, err := uuid.Parse(cmd.RequestID)
	if err != nil {
		return apperrors.Validation("request_id is required", nil)
	}
	return fn(id)
}

func (h *RealtimeHandler) withDeviceID(cmd realtime.Command, fn func(uuid.UUID) error) error {
	id, err := uuid.Parse(cmd.DeviceID)
	if err != nil {
		return apperrors.Validation("device_id is required", nil)
	}
	return fn(id)
}

func (h *RealtimeHandler) withIntruderID(cmd realtime.Command, fn func(uuid.UUID) error) error {
	id, err := uuid.Parse(cmd.IntruderID)
	if err != nil {
		return apperrors.Validation("intruder_id is required", nil)
	}
	return fn(id)
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}
