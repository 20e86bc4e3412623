package api

import (
	"OBScan/internal/domain/models"
	"OBScan/internal/usecase"
	xhttp "OBScan/pkg/http"
	xlogger "OBScan/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AuthEchoHandler serves registration, login and the caller's own status.
type AuthEchoHandler struct {
	logger   *xlogger.Logger
	accounts *usecase.AccountService
	tokens   TokenParser
}

func NewAuthEchoHandler(logger *xlogger.Logger, accounts *usecase.AccountService, tokens TokenParser) *AuthEchoHandler {
	return &AuthEchoHandler{logger: logger, accounts: accounts, tokens: tokens}
}

func (h *AuthEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/auth")
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)

	e.GET("/api/user/status", h.Status, JWT(h.tokens))
}

func (h *AuthEchoHandler) Register(c echo.Context) error {
	req := &models.RegisterRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	u, err := h.accounts.Register(c.Request().Context(), req.Username, req.Email, req.Password, req.Plan)
	if err != nil {
		return h.fail(c, "register", err)
	}
	st, err := h.accounts.Status(c.Request().Context(), u.Username)
	if err != nil {
		return h.fail(c, "register", err)
	}
	return xhttp.CreatedResponse(c, st)
}

func (h *AuthEchoHandler) Login(c echo.Context) error {
	req := &models.LoginRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	resp, err := h.accounts.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return h.fail(c, "login", err)
	}
	return xhttp.SuccessResponse(c, resp)
}

func (h *AuthEchoHandler) Status(c echo.Context) error {
	claims, _ := claimsFrom(c)
	st, err := h.accounts.Status(c.Request().Context(), claims.Subject)
	if err != nil {
		return h.fail(c, "user status", err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *AuthEchoHandler) fail(c echo.Context, op string, err error) error {
	ae := appError(err)
	if ae.Status >= 500 {
		h.logger.Error(op+" failed", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, ae)
}
