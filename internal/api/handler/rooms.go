package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type roomCreated struct {
	RoomID int64 `json:"roomId"`
}

// CreatePrivateRoom handles POST /v1/chat/private?otherMemberId=.
func (h *Handler) CreatePrivateRoom(c *gin.Context) {
	other, err := strconv.ParseInt(c.Query("otherMemberId"), 10, 64)
	if err != nil || other <= 0 {
		h.fail(c, errBadParam)
		return
	}
	roomID, err := h.Chat.CreatePrivateRoom(c.Request.Context(), identity(c).MemberID, other)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, roomCreated{RoomID: roomID})
}

type createGroupRequest struct {
	MemberIDs []int64 `json:"memberIds"`
}

// CreateGroupRoom handles POST /v1/chat/groups.
func (h *Handler) CreateGroupRoom(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errBadParam)
		return
	}
	roomID, err := h.Chat.CreateGroupRoom(c.Request.Context(), identity(c).MemberID, req.MemberIDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, roomCreated{RoomID: roomID})
}

func (h *Handler) ListGroupRooms(c *gin.Context) {
	rooms, err := h.Chat.ListGroupRooms(c.Request.Context(), identity(c).MemberID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, rooms)
}

func (h *Handler) JoinGroupRoom(c *gin.Context) {
	roomID, err := pathID(c, "roomId")
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Chat.JoinGroupRoom(c.Request.Context(), identity(c).MemberID, roomID); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, nil)
}

func (h *Handler) ListMyRooms(c *gin.Context) {
	rooms, err := h.Chat.ListMyRooms(c.Request.Context(), identity(c).MemberID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, rooms)
}

func (h *Handler) GetRoom(c *gin.Context) {
	roomID, err := pathID(c, "roomId")
	if err != nil {
		h.fail(c, err)
		return
	}
	detail, err := h.Chat.GetRoom(c.Request.Context(), roomID, identity(c).MemberID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, detail)
}

// LeaveRoom handles DELETE /v1/chat/rooms/:roomId.
func (h *Handler) LeaveRoom(c *gin.Context) {
	roomID, err := pathID(c, "roomId")
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Chat.LeaveRoom(c.Request.Context(), roomID, identity(c).MemberID); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, nil)
}
