package rest

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRegister_And_Login(t *testing.T) {
	h := newHarness(t)

	token, userID := h.register(t, "ana@example.com", "Ana")
	assert.NotEmpty(t, token)
	assert.NotZero(t, userID)

	w := h.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "ana@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	h := newHarness(t)
	h.register(t, "ana@example.com", "Ana")

	w := h.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"email": "ana@example.com", "display_name": "Otra Ana", "password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLogin_BadPassword(t *testing.T) {
	h := newHarness(t)
	h.register(t, "ana@example.com", "Ana")

	w := h.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "ana@example.com", "password": "wrongpass",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_UnknownEmail(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "nobody@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout_InvalidatesSession(t *testing.T) {
	h := newHarness(t)
	token, _ := h.register(t, "ana@example.com", "Ana")

	w := h.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/api/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoute_RequiresToken(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/api/challenges", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
