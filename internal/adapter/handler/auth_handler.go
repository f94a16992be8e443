package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/posbuzz/internal/core/domain"
)

const signupMessage = "Signup successful. Welcome to POSBuzz"

func (h *HTTPHandler) Signup(c *gin.Context) {
	var creds domain.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		writeBindError(c, err)
		return
	}

	if _, err := h.auth.Signup(c.Request.Context(), creds); err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, MessageResponse{Message: signupMessage})
}

func (h *HTTPHandler) Login(c *gin.Context) {
	var creds domain.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		writeBindError(c, err)
		return
	}

	session, err := h.auth.Login(c.Request.Context(), creds)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}
