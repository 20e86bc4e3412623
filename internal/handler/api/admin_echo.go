package api

import (
	"OBScan/internal/domain/models"
	"OBScan/internal/usecase"
	xhttp "OBScan/pkg/http"
	xlogger "OBScan/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AdminEchoHandler exposes account management to ROLE_ADMIN.
type AdminEchoHandler struct {
	logger   *xlogger.Logger
	accounts *usecase.AccountService
	tokens   TokenParser
}

func NewAdminEchoHandler(logger *xlogger.Logger, accounts *usecase.AccountService, tokens TokenParser) *AdminEchoHandler {
	return &AdminEchoHandler{logger: logger, accounts: accounts, tokens: tokens}
}

func (h *AdminEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/admin", JWT(h.tokens), RequireRole(models.RoleAdmin))
	g.GET("/users", h.ListUsers)
	g.POST("/users/:username/premium", h.GrantPremium)
	g.DELETE("/users/:username/premium", h.RevokePremium)
	g.POST("/users/:username/trial", h.ActivateTrial)
}

func (h *AdminEchoHandler) ListUsers(c echo.Context) error {
	users, err := h.accounts.ListUsers(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.ListResponse(c, users, int64(len(users)))
}

func (h *AdminEchoHandler) GrantPremium(c echo.Context) error {
	st, err := h.accounts.GrantPremium(c.Request().Context(), c.Param("username"))
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *AdminEchoHandler) RevokePremium(c echo.Context) error {
	st, err := h.accounts.RevokePremium(c.Request().Context(), c.Param("username"))
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *AdminEchoHandler) ActivateTrial(c echo.Context) error {
	req := &models.TrialRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, err := h.accounts.ActivateTrial(c.Request().Context(), req.Username, req.Days)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *AdminEchoHandler) fail(c echo.Context, err error) error {
	ae := appError(err)
	if ae.Status >= 500 {
		h.logger.Error("admin request failed", xlogger.Error(err), xlogger.String("path", c.Path()))
	}
	return xhttp.AppErrorResponse(c, ae)
}
