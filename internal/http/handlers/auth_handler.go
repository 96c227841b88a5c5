// Auth HTTP handlers.
//
//   - POST /auth/register
//   - POST /auth/login
//   - GET  /auth/refresh
//   - GET  /auth/logout
//
// The access token travels in the JSON body; the refresh token only ever
// travels in the httpOnly "refreshToken" cookie.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/services"
)

// RefreshCookie is the name of the refresh-token cookie.
const RefreshCookie = "refreshToken"

// RegisterRequest is the JSON payload for creating an account.
type RegisterRequest struct {
	Email       string `json:"email" example:"ada@example.com"`
	Password    string `json:"password" example:"correct-horse-battery"`
	DisplayName string `json:"displayName" example:"Ada"`
}

// LoginRequest is the JSON payload for password login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required" example:"ada@example.com"`
	Password string `json:"password" binding:"required" example:"correct-horse-battery"`
}

// AccessTokenResponse carries a freshly signed access token.
type AccessTokenResponse struct {
	AccessToken string `json:"accessToken" example:"eyJhbGciOiJIUzI1NiIs..."`
}

// Register godoc
// @ID          register
// @Summary     Create an account
// @Description Creates an account, emails a verification code and signs the user in. The refresh token is set as an httpOnly cookie.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Account details"
// @Success     201   {object}  handlers.AccessTokenResponse
// @Header      201   {string}  Set-Cookie  "refreshToken"
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     409   {object}  handlers.ErrorResponse  "Email already exists"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	pair, err := h.auth.Register(c.Request.Context(), services.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		failErr(c, err, "Failed to register")
		return
	}
	h.setRefreshCookie(c, pair.RefreshToken, pair.RefreshExpiresAt)
	ok(c, http.StatusCreated, AccessTokenResponse{AccessToken: pair.AccessToken})
}

// Login godoc
// @ID          login
// @Summary     Sign in with email and password
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.AccessTokenResponse
// @Header      200   {string}  Set-Cookie  "refreshToken"
// @Failure     400   {object}  handlers.ErrorResponse  "Bad credentials"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password are required")
		return
	}
	pair, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		// unknown email and wrong password both answer 400
		if msg, isPublic := services.PublicMessage(err); isPublic {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, msg)
			return
		}
		failErr(c, err, "Failed to login")
		return
	}
	h.setRefreshCookie(c, pair.RefreshToken, pair.RefreshExpiresAt)
	ok(c, http.StatusOK, AccessTokenResponse{AccessToken: pair.AccessToken})
}

// Refresh godoc
// @ID          refresh
// @Summary     Rotate the refresh session
// @Description Consumes the refreshToken cookie and issues a new access token and cookie.
// @Tags        Auth
// @Produce     json
// @Success     200  {object}  handlers.AccessTokenResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing, unknown or expired refresh token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/refresh [get]
func (h *Handlers) Refresh(c *gin.Context) {
	token, _ := c.Cookie(RefreshCookie)
	if token == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, services.ErrUnauthorized.Error())
		return
	}
	pair, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		if status, _ := statusFor(err); status == http.StatusUnauthorized {
			h.clearRefreshCookie(c)
		}
		failErr(c, err, "Failed to refresh token")
		return
	}
	h.setRefreshCookie(c, pair.RefreshToken, pair.RefreshExpiresAt)
	ok(c, http.StatusOK, AccessTokenResponse{AccessToken: pair.AccessToken})
}

// Logout godoc
// @ID          logout
// @Summary     Sign out
// @Description Deletes the refresh session, if any, and clears the cookie.
// @Tags        Auth
// @Success     204  {string}  string  "No Content"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/logout [get]
func (h *Handlers) Logout(c *gin.Context) {
	token, _ := c.Cookie(RefreshCookie)
	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		failErr(c, err, "Failed to logout")
		return
	}
	h.clearRefreshCookie(c)
	noContent(c)
}

func (h *Handlers) setRefreshCookie(c *gin.Context, token string, expires time.Time) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     RefreshCookie,
		Value:    token,
		Path:     h.cookie.Path,
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteNoneMode,
	})
}

func (h *Handlers) clearRefreshCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     h.cookie.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteNoneMode,
	})
}
