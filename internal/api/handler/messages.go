package handler

import (
	"net/http"

	"shelterchat/backend/internal/chat"

	"github.com/gin-gonic/gin"
)

// FetchHistory handles GET /v1/chat/rooms/:roomId/messages?beforeSeq=&size=.
func (h *Handler) FetchHistory(c *gin.Context) {
	roomID, err := pathID(c, "roomId")
	if err != nil {
		h.fail(c, err)
		return
	}
	before, err := optionalInt(c, "beforeSeq")
	if err != nil {
		h.fail(c, err)
		return
	}
	size, err := optionalInt(c, "size")
	if err != nil {
		h.fail(c, err)
		return
	}
	var pageSize int
	if size != nil {
		pageSize = int(*size)
	}

	page, err := h.Chat.FetchHistory(c.Request.Context(), roomID, identity(c).MemberID, before, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, page)
}

func (h *Handler) SendMessage(c *gin.Context) {
	roomID, err := pathID(c, "roomId")
	if err != nil {
		h.fail(c, err)
		return
	}
	var draft chat.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		h.fail(c, errBadParam)
		return
	}
	msg, err := h.Chat.SendMessage(c.Request.Context(), roomID, identity(c).MemberID, draft)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, msg)
}

type readPosition struct {
	LastReadSeq int64 `json:"lastReadSeq"`
}

func (h *Handler) MarkRead(c *gin.Context) {
	roomID, err := pathID(c, "roomId")
	if err != nil {
		h.fail(c, err)
		return
	}
	pos, err := h.Chat.MarkRead(c.Request.Context(), roomID, identity(c).MemberID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, readPosition{LastReadSeq: pos})
}
