package handlers

import (
	"net/http"

	"github.com/Dhoini/checkout-service/internal/middleware"
	"github.com/Dhoini/checkout-service/internal/services"
	"github.com/Dhoini/checkout-service/pkg/logger"
	"github.com/Dhoini/checkout-service/pkg/req"
	"github.com/Dhoini/checkout-service/pkg/res"

	"github.com/gin-gonic/gin"
)

// AccountHandler - регистрация, вход, выход и удаление аккаунта.
type AccountHandler struct {
	service *services.AccountService
	log     *logger.Logger
}

// NewAccountHandler создает новый экземпляр AccountHandler.
func NewAccountHandler(service *services.AccountService, log *logger.Logger) *AccountHandler {
	return &AccountHandler{service: service, log: log}
}

type SignUpRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	FullName    string `json:"fullName"`
	CompanyName string `json:"companyName"`
	PhoneNumber string `json:"phoneNumber"`
	PlanName    string `json:"planName"`
	PriceID     string `json:"priceId"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignUp обрабатывает POST /auth/signup
func (h *AccountHandler) SignUp(c *gin.Context) {
	body, err := req.HandleBody[SignUpRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	result, err := h.service.SignUp(c.Request.Context(), services.SignUpInput{
		Email:       body.Email,
		Password:    body.Password,
		FullName:    body.FullName,
		CompanyName: body.CompanyName,
		PhoneNumber: body.PhoneNumber,
		PlanName:    body.PlanName,
		PriceID:     body.PriceID,
		UserAgent:   c.Request.UserAgent(),
		IPAddress:   c.ClientIP(),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	res.JsonResponse(c.Writer, result, http.StatusOK)
}

// SignIn обрабатывает POST /auth/signin
func (h *AccountHandler) SignIn(c *gin.Context) {
	body, err := req.HandleBody[SignInRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	session, err := h.service.SignIn(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	res.JsonResponse(c.Writer, session, http.StatusOK)
}

// SignOut обрабатывает POST /auth/signout
func (h *AccountHandler) SignOut(c *gin.Context) {
	if err := h.service.SignOut(c.Request.Context(), middleware.AccessToken(c)); err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, gin.H{"ok": true}, http.StatusOK)
}

// Session обрабатывает GET /auth/session
func (h *AccountHandler) Session(c *gin.Context) {
	user, err := h.service.CurrentUser(c.Request.Context(), middleware.AccessToken(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, user, http.StatusOK)
}

// DeleteAccount обрабатывает DELETE /account
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	userID, ok := requireSameUser(c, h.log, "")
	if !ok {
		return
	}

	if err := h.service.DeleteAccount(c.Request.Context(), userID); err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, gin.H{"message": "Account deleted"}, http.StatusOK)
}
