package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fitgent/services"
)

type AuthServer struct {
	authService services.IAuthService
}

func NewAuthServer(authService services.IAuthService) *AuthServer {
	return &AuthServer{authService: authService}
}

type registerRequest struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
}

func (s *AuthServer) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "please provide email, password, firstName and lastName"})
		return
	}

	token, err := s.authService.Register(req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusCreated, gin.H{"token": token})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *AuthServer) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "please provide email and password"})
		return
	}

	token, err := s.authService.Login(req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"token": token})
}
