package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fitgent/auth"
	"fitgent/domain"
	"fitgent/repositories"
	"fitgent/services"
)

type ChatServer struct {
	chatService services.IChatService
}

func NewChatServer(chatService services.IChatService) *ChatServer {
	return &ChatServer{chatService: chatService}
}

func (s *ChatServer) ListConversations(c *gin.Context) {
	actor := auth.CurrentActor(c)
	conversations, err := s.chatService.ListConversations(actor.ID)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{
		"results":       len(conversations),
		"conversations": conversations,
	})
}

type createConversationRequest struct {
	Participants []string `json:"participants" binding:"required,min=1"`
	Type         string   `json:"type"`
	Name         string   `json:"name"`
}

func (s *ChatServer) CreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "please provide at least one participant"})
		return
	}

	actor := auth.CurrentActor(c)
	conv, created, err := s.chatService.CreateConversation(actor, req.Participants,
		domain.ConversationType(req.Type), req.Name)
	if err != nil {
		fail(c, err)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	success(c, code, gin.H{"conversation": conv})
}

func (s *ChatServer) GetConversation(c *gin.Context) {
	actor := auth.CurrentActor(c)
	conv, err := s.chatService.GetConversation(actor, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"conversation": conv})
}

func (s *ChatServer) ListMessages(c *gin.Context) {
	actor := auth.CurrentActor(c)
	filter, err := parseListFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	messages, err := s.chatService.ListMessages(actor, c.Param("id"), filter)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{
		"results":  len(messages),
		"messages": messages,
	})
}

func (s *ChatServer) SearchMessages(c *gin.Context) {
	actor := auth.CurrentActor(c)
	terms := c.Query("q")
	if terms == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "please provide a search query"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	messages, err := s.chatService.SearchMessages(c.Request.Context(), actor, c.Param("id"), terms, limit)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{
		"results":  len(messages),
		"messages": messages,
	})
}

type sendMessageRequest struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
	FileURL     string `json:"fileUrl"`
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
}

func (s *ChatServer) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "please provide message content"})
		return
	}

	actor := auth.CurrentActor(c)
	message, err := s.chatService.SendMessage(c.Request.Context(), actor, c.Param("id"), services.SendMessageInput{
		Content:     req.Content,
		ContentType: domain.ContentType(req.ContentType),
		FileURL:     req.FileURL,
		FileName:    req.FileName,
		FileSize:    req.FileSize,
	})
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusCreated, gin.H{"message": message})
}

func (s *ChatServer) MarkConversationRead(c *gin.Context) {
	actor := auth.CurrentActor(c)
	marked, err := s.chatService.MarkConversationRead(actor, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"markedCount": marked})
}

type addParticipantsRequest struct {
	Participants []string `json:"participants" binding:"required,min=1"`
}

func (s *ChatServer) AddParticipants(c *gin.Context) {
	var req addParticipantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "please provide at least one participant"})
		return
	}

	actor := auth.CurrentActor(c)
	conv, err := s.chatService.AddParticipants(c.Request.Context(), actor, c.Param("id"), req.Participants)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"conversation": conv})
}

func (s *ChatServer) DeleteMessage(c *gin.Context) {
	actor := auth.CurrentActor(c)
	message, err := s.chatService.DeleteMessage(actor, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"message": message})
}

// parseListFilter reads paging, ordering, and the createdAt range operators
// (gte/gt/lte/lt, RFC 3339) from the query string.
func parseListFilter(c *gin.Context) (repositories.ListFilter, error) {
	filter := repositories.ListFilter{
		Sender:    c.Query("sender"),
		Ascending: c.Query("sort") == "createdAt",
	}

	var err error
	if filter.Page, err = intQuery(c, "page", 1); err != nil {
		return repositories.ListFilter{}, err
	}
	if filter.Limit, err = intQuery(c, "limit", repositories.DefaultPageSize); err != nil {
		return repositories.ListFilter{}, err
	}

	bounds := map[string]**time.Time{
		"createdAt[gte]": &filter.CreatedGTE,
		"createdAt[gt]":  &filter.CreatedGT,
		"createdAt[lte]": &filter.CreatedLTE,
		"createdAt[lt]":  &filter.CreatedLT,
	}
	for key, dst := range bounds {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return repositories.ListFilter{}, err
		}
		*dst = &at
	}
	return filter, nil
}

func intQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
