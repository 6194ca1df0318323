package handlers

import (
	"net/http"

	"github.com/akinalp/opti/pkg"
	"github.com/akinalp/opti/services"
)

// ChatHandler, chat geçmişinin REST aynası.
type ChatHandler struct {
	chatService services.ChatService
}

// NewChatHandler, constructor.
func NewChatHandler(chatService services.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// ListChats godoc
// GET /api/chats
// Kullanıcının konuşma listesi: karşı taraf, son mesaj, okunmamış sayısı.
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	chats, err := h.chatService.GetPreview(r.Context(), userID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, chats)
}

// GetMessages godoc
// GET /api/chats/{userId}/messages
// İki kullanıcı arasındaki tüm mesajlar, eskiden yeniye.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	messages, err := h.chatService.GetChat(r.Context(), userID, r.PathValue("userId"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, messages)
}
