// README: In-ride chat endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taxihub/internal/http/middleware"
	"taxihub/internal/modules/chat"
	"taxihub/internal/modules/order"
	"taxihub/internal/types"
)

type ChatHandler struct {
	chat  *chat.Store
	order *order.Service
}

func NewChatHandler(chatStore *chat.Store, orderSvc *order.Service) *ChatHandler {
	return &ChatHandler{chat: chatStore, order: orderSvc}
}

// party verifies the caller belongs to the order's conversation.
func (h *ChatHandler) party(c *gin.Context, orderID types.ID) bool {
	o, err := h.order.Get(c.Request.Context(), orderID)
	if err != nil {
		writeOrderError(c, err)
		return false
	}
	caller := callerID(c)
	if o.ClientID == caller {
		return true
	}
	if o.DriverID != nil && *o.DriverID == caller {
		return true
	}
	writeError(c, http.StatusForbidden, "not a party to this order")
	return false
}

type sendMessageReq struct {
	Text string `json:"text" binding:"required"`
}

func (h *ChatHandler) Send(c *gin.Context) {
	orderID := types.ID(c.Param("id"))
	if !h.party(c, orderID) {
		return
	}
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	msg := chat.Message{
		SenderID: callerID(c),
		Role:     c.GetString(middleware.ContextRole),
		Text:     req.Text,
		SentAt:   time.Now(),
	}
	if err := h.chat.Append(c.Request.Context(), orderID, msg); err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) History(c *gin.Context) {
	orderID := types.ID(c.Param("id"))
	if !h.party(c, orderID) {
		return
	}
	msgs, err := h.chat.History(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, msgs)
}
