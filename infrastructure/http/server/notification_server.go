package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fitgent/auth"
	"fitgent/domain"
	"fitgent/repositories"
	"fitgent/services"
)

type NotificationServer struct {
	notificationService services.INotificationService
}

func NewNotificationServer(notificationService services.INotificationService) *NotificationServer {
	return &NotificationServer{notificationService: notificationService}
}

func (s *NotificationServer) List(c *gin.Context) {
	actor := auth.CurrentActor(c)
	filter, err := parseNotificationFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	notifications, unread, err := s.notificationService.List(actor.ID, filter)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{
		"results":       len(notifications),
		"unreadCount":   unread,
		"notifications": notifications,
	})
}

func (s *NotificationServer) Count(c *gin.Context) {
	actor := auth.CurrentActor(c)
	unread, err := s.notificationService.UnreadCount(actor.ID)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"unreadCount": unread})
}

func (s *NotificationServer) MarkRead(c *gin.Context) {
	actor := auth.CurrentActor(c)
	notification, err := s.notificationService.MarkRead(c.Param("id"), actor)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"notification": notification})
}

func (s *NotificationServer) MarkAllRead(c *gin.Context) {
	actor := auth.CurrentActor(c)
	marked, err := s.notificationService.MarkAllRead(actor.ID)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"markedCount": marked})
}

func (s *NotificationServer) Delete(c *gin.Context) {
	actor := auth.CurrentActor(c)
	if err := s.notificationService.Delete(c.Param("id"), actor); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusNoContent, nil)
}

func (s *NotificationServer) DeleteRead(c *gin.Context) {
	actor := auth.CurrentActor(c)
	deleted, err := s.notificationService.DeleteRead(actor.ID)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"deletedCount": deleted})
}

// Create lets platform tooling raise notifications by hand. Regular
// clients never call it; everything user-facing goes through the
// domain write paths.
func (s *NotificationServer) Create(c *gin.Context) {
	actor := auth.CurrentActor(c)
	if !actor.IsPlatformAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"status": "error", "message": "only administrators may create notifications directly"})
		return
	}

	var notification domain.Notification
	if err := c.ShouldBindJSON(&notification); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "please provide a valid notification payload"})
		return
	}

	created, err := s.notificationService.Create(c.Request.Context(), notification)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusCreated, gin.H{"notification": created})
}

func parseNotificationFilter(c *gin.Context) (repositories.NotificationFilter, error) {
	var filter repositories.NotificationFilter

	if raw := c.Query("type"); raw != "" {
		t := domain.NotificationType(raw)
		filter.Type = &t
	}
	if raw := c.Query("isRead"); raw != "" {
		isRead, err := strconv.ParseBool(raw)
		if err != nil {
			return repositories.NotificationFilter{}, err
		}
		filter.IsRead = &isRead
	}

	var err error
	if filter.Page, err = intQuery(c, "page", 1); err != nil {
		return repositories.NotificationFilter{}, err
	}
	if filter.Limit, err = intQuery(c, "limit", repositories.DefaultNotificationPageSize); err != nil {
		return repositories.NotificationFilter{}, err
	}
	return filter, nil
}
