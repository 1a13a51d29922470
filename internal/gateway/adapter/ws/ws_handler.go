// Package ws is the websocket command transport. Every client command
// arrives as a JSON frame carrying a correlation id; replies echo that id and
// subscription change events are pushed as separate frames. Closing the
// connection releases every subscription it owns.
package ws

import (
	"context"
	"fmt"
	"sync"

	"docstore-gateway/internal/gateway/domain/model"
	"docstore-gateway/internal/gateway/usecase"
	apperrors "docstore-gateway/internal/shared/errors"
	"docstore-gateway/internal/shared/logger"
	"docstore-gateway/internal/shared/refpath"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const defaultEventBufferSize = 256

// Handler terminates websocket connections and dispatches command frames to
// the orchestrator.
type Handler struct {
	commands   *usecase.Commands
	secret     []byte
	bufferSize int
	log        logger.Logger
}

// NewHandler creates a websocket handler. secret verifies session tokens;
// bufferSize caps the per-connection event and outbound queues, with a sane
// default when non-positive.
func NewHandler(commands *usecase.Commands, secret []byte, bufferSize int, log logger.Logger) *Handler {
	if bufferSize <= 0 {
		bufferSize = defaultEventBufferSize
	}
	if log == nil {
		log = logger.Noop()
	}
	return &Handler{
		commands:   commands,
		secret:     secret,
		bufferSize: bufferSize,
		log:        log.WithComponent("ws"),
	}
}

// RegisterRoutes mounts the websocket endpoint. The session is established
// from the token query parameter before the upgrade; a missing token yields
// an anonymous session, an invalid one rejects the upgrade.
func (h *Handler) RegisterRoutes(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		client, err := h.clientFromToken(c.Query("token"))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		c.Locals("client", client)
		return c.Next()
	})
	router.Get("/ws", websocket.New(h.handleConnection))
}

// clientFromToken verifies an HMAC session token and maps its claims onto the
// client model.
func (h *Handler) clientFromToken(token string) (*model.Client, error) {
	if token == "" {
		return nil, nil
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return h.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, apperrors.NewUnauthorized("invalid session token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.NewUnauthorized("invalid session token")
	}

	client := &model.Client{Claims: map[string]interface{}(claims)}
	if sub, ok := claims["sub"].(string); ok {
		client.ID = sub
	}
	if admin, ok := claims["admin"].(bool); ok {
		client.Admin = admin
	}
	return client, nil
}

// session is the per-connection state: the authenticated client, the
// subscriptions this connection owns and a single outbound writer feeding the
// socket, since websocket writes must not interleave.
type session struct {
	client   *model.Client
	events   chan model.ChangeEvent
	outbound chan interface{}

	mu    sync.Mutex
	owned map[string]struct{}
}

func (s *session) send(ctx context.Context, frame interface{}) {
	select {
	case s.outbound <- frame:
	case <-ctx.Done():
	}
}

func (s *session) track(subscriptionID string) {
	s.mu.Lock()
	s.owned[subscriptionID] = struct{}{}
	s.mu.Unlock()
}

func (s *session) release(subscriptionID string) {
	s.mu.Lock()
	delete(s.owned, subscriptionID)
	s.mu.Unlock()
}

func newSession(client *model.Client, bufferSize int) *session {
	return &session{
		client:   client,
		events:   make(chan model.ChangeEvent, bufferSize),
		outbound: make(chan interface{}, bufferSize),
		owned:    make(map[string]struct{}),
	}
}

func (s *session) ownedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.owned))
	for id := range s.owned {
		ids = append(ids, id)
	}
	return ids
}

func (h *Handler) handleConnection(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, _ := conn.Locals("client").(*model.Client)
	sess := newSession(client, h.bufferSize)

	h.log.WithFields(map[string]interface{}{"client_id": clientID(client)}).Info("websocket connection established")

	defer func() {
		cancel()
		for _, id := range sess.ownedIDs() {
			if err := h.commands.Unsubscribe(context.Background(), id); err != nil {
				h.log.WithFields(map[string]interface{}{"subscription_id": id}).Errorf("failed to release subscription on disconnect: %v", err)
			}
		}
		h.log.WithFields(map[string]interface{}{"client_id": clientID(client)}).Info("websocket connection closed")
	}()

	// Single writer: replies and events funnel through outbound.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-sess.outbound:
				if err := conn.WriteJSON(frame); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-sess.events:
				sess.send(ctx, toEventFrame(event))
			}
		}
	}()

	for {
		var frame CommandFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Errorf("websocket read failed: %v", err)
			}
			return
		}
		sess.send(ctx, h.dispatch(ctx, sess, frame))
	}
}

// dispatch runs one command frame to completion. Commands on a connection
// execute in arrival order.
func (h *Handler) dispatch(ctx context.Context, sess *session, frame CommandFrame) Reply {
	switch frame.Command {
	case CmdCreateDocument:
		ref, err := refpath.ParseCollection(frame.Args.Ref)
		if err != nil {
			return errorReply(frame.ID, frame.Args.Ref, err)
		}
		snap, err := h.commands.CreateDocument(ctx, sess.client, ref, frame.Args.Data)
		if err != nil {
			return errorReply(frame.ID, ref.Path(), err)
		}
		reply := okReply(frame.ID)
		reply.Ref = snap.Ref.Path()
		reply.Snapshot = toSnapshotPayload(snap)
		return reply

	case CmdReadDocument:
		ref, err := refpath.ParseDocument(frame.Args.Ref)
		if err != nil {
			return errorReply(frame.ID, frame.Args.Ref, err)
		}
		snap, err := h.commands.ReadDocument(ctx, sess.client, ref)
		if err != nil {
			return errorReply(frame.ID, ref.Path(), err)
		}
		reply := okReply(frame.ID)
		reply.Ref = ref.Path()
		reply.Snapshot = toSnapshotPayload(snap)
		return reply

	case CmdUpdateDocument:
		ref, err := refpath.ParseDocument(frame.Args.Ref)
		if err != nil {
			return errorReply(frame.ID, frame.Args.Ref, err)
		}
		snap, err := h.commands.UpdateDocument(ctx, sess.client, ref, frame.Args.Data, toWriteOptions(frame.Args.Options))
		if err != nil {
			return errorReply(frame.ID, ref.Path(), err)
		}
		reply := okReply(frame.ID)
		reply.Ref = ref.Path()
		reply.Snapshot = toSnapshotPayload(snap)
		return reply

	case CmdDeleteDocument:
		ref, err := refpath.ParseDocument(frame.Args.Ref)
		if err != nil {
			return errorReply(frame.ID, frame.Args.Ref, err)
		}
		snap, err := h.commands.DeleteDocument(ctx, sess.client, ref)
		if err != nil {
			return errorReply(frame.ID, ref.Path(), err)
		}
		reply := okReply(frame.ID)
		reply.Ref = ref.Path()
		reply.Snapshot = toSnapshotPayload(snap)
		return reply

	case CmdReadCollection:
		ref, err := refpath.ParseCollection(frame.Args.Ref)
		if err != nil {
			return errorReply(frame.ID, frame.Args.Ref, err)
		}
		ref.Query = toQuery(frame.Args.Query)
		snaps, err := h.commands.ReadCollection(ctx, sess.client, ref)
		if err != nil {
			return errorReply(frame.ID, ref.Path(), err)
		}
		reply := okReply(frame.ID)
		reply.Ref = ref.Path()
		reply.Collection = make([]SnapshotPayload, 0, len(snaps))
		for _, snap := range snaps {
			reply.Collection = append(reply.Collection, *toSnapshotPayload(snap))
		}
		return reply

	case CmdSubscribeDocument:
		ref, err := refpath.ParseDocument(frame.Args.Ref)
		if err != nil {
			return errorReply(frame.ID, frame.Args.Ref, err)
		}
		sub, err := h.commands.SubscribeDocument(ctx, sess.client, ref, sess.events)
		if err != nil {
			return errorReply(frame.ID, ref.Path(), err)
		}
		sess.track(sub.ID)
		reply := okReply(frame.ID)
		reply.Ref = ref.Path()
		reply.SubscriptionID = sub.ID
		return reply

	case CmdSubscribeCollection:
		ref, err := refpath.ParseCollection(frame.Args.Ref)
		if err != nil {
			return errorReply(frame.ID, frame.Args.Ref, err)
		}
		ref.Query = toQuery(frame.Args.Query)
		sub, err := h.commands.SubscribeCollection(ctx, sess.client, ref, sess.events)
		if err != nil {
			return errorReply(frame.ID, ref.Path(), err)
		}
		sess.track(sub.ID)
		reply := okReply(frame.ID)
		reply.Ref = ref.Path()
		reply.SubscriptionID = sub.ID
		return reply

	case CmdUnsubscribe:
		sess.release(frame.Args.SubscriptionID)
		if err := h.commands.Unsubscribe(ctx, frame.Args.SubscriptionID); err != nil {
			return errorReply(frame.ID, "", err)
		}
		reply := okReply(frame.ID)
		reply.SubscriptionID = frame.Args.SubscriptionID
		return reply

	case CmdAdminGetCollections:
		ref, err := refpath.ParseDatabase(frame.Args.Ref)
		if err != nil {
			return errorReply(frame.ID, frame.Args.Ref, err)
		}
		collections, err := h.commands.AdminGetCollections(ctx, sess.client, ref)
		if err != nil {
			return errorReply(frame.ID, ref.Path(), err)
		}
		reply := okReply(frame.ID)
		reply.Ref = ref.Path()
		reply.Collections = collections
		return reply

	default:
		return errorReply(frame.ID, "", apperrors.NewValidationError(fmt.Sprintf("unknown command %q", frame.Command)).WithCause(apperrors.ErrUnknownCommand))
	}
}

func clientID(client *model.Client) string {
	if client == nil {
		return "anonymous"
	}
	return client.ID
}
