// Package httpapi exposes the room journal over HTTP: intents in through
// the authoritative gate, events and reduced state out, and a websocket
// stream pushing appended events to subscribed clients.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/laborio/questing-together/internal/platform/errors"
	"github.com/laborio/questing-together/internal/storage"
	"github.com/laborio/questing-together/internal/story/command"
	"github.com/laborio/questing-together/internal/story/content"
	"github.com/laborio/questing-together/internal/story/gate"
	"github.com/laborio/questing-together/internal/story/state"
	"github.com/laborio/questing-together/internal/story/turns"
)

// Server carries the handler dependencies.
type Server struct {
	story *content.Story
	store storage.Store
	gate  *gate.Gate
	hub   *Hub
	now   func() time.Time
}

// NewServer wires the API handlers.
func NewServer(story *content.Story, store storage.Store, g *gate.Gate, hub *Hub) *Server {
	return &Server{story: story, store: store, gate: g, hub: hub, now: time.Now}
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(server *Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		rooms := api.Group("/rooms")
		{
			rooms.POST("", server.createRoom)
			rooms.GET("", server.listRooms)
			rooms.GET("/:id", server.getRoom)
			rooms.POST("/:id/members", server.claimSeat)
			rooms.GET("/:id/members", server.listMembers)
			rooms.POST("/:id/intents", server.submitIntent)
			rooms.GET("/:id/events", server.listEvents)
			rooms.GET("/:id/state", server.getState)
		}
	}

	router.GET("/ws/rooms/:id", server.serveWS)
	return router
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps a domain error onto status + {code, message}.
func writeError(c *gin.Context, err error) {
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		c.JSON(domainErr.Code.HTTPStatus(), errorBody{
			Code:    string(domainErr.Code),
			Message: domainErr.Message,
		})
		return
	}
	log.Printf("api: internal error path=%s err=%v", c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, errorBody{
		Code:    string(apperrors.CodeUnknown),
		Message: "internal error",
	})
}

// writeRejection maps a gate rejection onto status + {code, message}.
func writeRejection(c *gin.Context, rejection command.Rejection) {
	c.JSON(apperrors.Code(rejection.Code).HTTPStatus(), errorBody{
		Code:    rejection.Code,
		Message: rejection.Message,
	})
}

type createRoomRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

func (s *Server) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Code: string(apperrors.CodeCommandInvalid), Message: "invalid request body"})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	now := s.now().UTC()
	room := storage.RoomRecord{ID: req.ID, Name: req.Name, CreatedAt: now, UpdatedAt: now}
	if err := s.store.PutRoom(c.Request.Context(), room); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRoomView(room))
}

func (s *Server) listRooms(c *gin.Context) {
	rooms, err := s.store.ListRooms(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]RoomView, 0, len(rooms))
	for _, room := range rooms {
		views = append(views, newRoomView(room))
	}
	c.JSON(http.StatusOK, gin.H{"rooms": views})
}

func (s *Server) getRoom(c *gin.Context) {
	room, err := s.store.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoomView(room))
}

type claimSeatRequest struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role"`
}

func (s *Server) claimSeat(c *gin.Context) {
	var req claimSeatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PlayerID == "" {
		c.JSON(http.StatusBadRequest, errorBody{Code: string(apperrors.CodeCommandInvalid), Message: "player_id and role are required"})
		return
	}
	role, ok := content.ParseRole(req.Role)
	if !ok {
		c.JSON(http.StatusBadRequest, errorBody{Code: string(apperrors.CodeCommandInvalid), Message: "unknown role " + strconv.Quote(req.Role)})
		return
	}

	member := storage.MemberRecord{
		RoomID:   c.Param("id"),
		PlayerID: req.PlayerID,
		Name:     req.Name,
		Role:     role,
		JoinedAt: s.now().UTC(),
	}
	if err := s.store.PutMember(c.Request.Context(), member); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newMemberView(member))
}

func (s *Server) listMembers(c *gin.Context) {
	members, err := s.store.ListMembers(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]MemberView, 0, len(members))
	for _, member := range members {
		views = append(views, newMemberView(member))
	}
	c.JSON(http.StatusOK, gin.H{"members": views})
}

type intentRequest struct {
	Type      string          `json:"type"`
	PlayerID  string          `json:"player_id"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type intentResponse struct {
	NoOp   bool        `json:"no_op"`
	Events []EventView `json:"events"`
}

func (s *Server) submitIntent(c *gin.Context) {
	var req intentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Code: string(apperrors.CodeCommandInvalid), Message: "invalid request body"})
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	decision, err := s.gate.Submit(c.Request.Context(), command.Command{
		Type:        command.Type(req.Type),
		RoomID:      c.Param("id"),
		PlayerID:    req.PlayerID,
		RequestID:   req.RequestID,
		PayloadJSON: req.Payload,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if decision.Rejected() {
		writeRejection(c, decision.Rejections[0])
		return
	}

	resp := intentResponse{NoOp: decision.NoOp, Events: make([]EventView, 0, len(decision.Events))}
	for _, evt := range decision.Events {
		resp.Events = append(resp.Events, NewEventView(evt))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listEvents(c *gin.Context) {
	afterSeq, err := parseUintQuery(c, "after_seq")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Code: string(apperrors.CodeCommandInvalid), Message: "after_seq must be a non-negative integer"})
		return
	}
	limit, err := parseUintQuery(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Code: string(apperrors.CodeCommandInvalid), Message: "limit must be a non-negative integer"})
		return
	}

	events, err := s.store.ListEvents(c.Request.Context(), c.Param("id"), afterSeq, int(limit))
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]EventView, 0, len(events))
	for _, evt := range events {
		views = append(views, NewEventView(evt))
	}
	c.JSON(http.StatusOK, gin.H{"events": views})
}

// getState renders the room's reduction. With a player_id query parameter it
// also includes the actions that player may take, resolved through their
// claimed seat role.
func (s *Server) getState(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("id")

	events, err := s.store.ListEvents(ctx, roomID, 0, 0)
	if err != nil {
		writeError(c, err)
		return
	}
	st := state.Reduce(s.story, events)

	var available []turns.Availability
	if playerID := c.Query("player_id"); playerID != "" {
		member, err := s.store.GetMember(ctx, roomID, playerID)
		if err != nil {
			writeError(c, err)
			return
		}
		available = turns.AvailableActions(s.story, &st, playerID, member.Role)
	}
	c.JSON(http.StatusOK, newStateView(st, available))
}

func (s *Server) serveWS(c *gin.Context) {
	roomID := c.Param("id")
	if _, err := s.store.GetRoom(c.Request.Context(), roomID); err != nil {
		writeError(c, err)
		return
	}
	if err := s.hub.ServeWS(c.Writer, c.Request, roomID); err != nil {
		// Upgrade already wrote the failure response.
		log.Printf("api: websocket upgrade room=%s err=%v", roomID, err)
	}
}

func parseUintQuery(c *gin.Context, name string) (uint64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}
