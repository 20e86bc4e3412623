package api

import (
	"errors"

	drepo "OBScan/internal/domain/repository"
	"OBScan/internal/usecase"
	xhttp "OBScan/pkg/http"
)

// appError maps use case errors onto the HTTP error envelope. Unknown errors
// become a 500.
func appError(err error) *xhttp.AppError {
	var ae *xhttp.AppError
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, usecase.ErrUsernameTaken):
		return xhttp.ConflictError("username", err.Error())
	case errors.Is(err, usecase.ErrEmailTaken):
		return xhttp.ConflictError("email", err.Error())
	case errors.Is(err, usecase.ErrInvalidCredentials):
		return xhttp.UnauthorizedError(err.Error())
	case errors.Is(err, drepo.ErrUserNotFound):
		return xhttp.NotFoundError("user not found")
	case errors.Is(err, usecase.ErrInvalidPlan),
		errors.Is(err, usecase.ErrInvalidTrialDays),
		errors.Is(err, usecase.ErrInvalidTimeframe),
		errors.Is(err, usecase.ErrInvalidLimit),
		errors.Is(err, usecase.ErrInvalidRange),
		errors.Is(err, usecase.ErrSymbolRequired):
		return xhttp.BadRequestError(err.Error())
	case errors.Is(err, usecase.ErrHistoryDisabled):
		return xhttp.ServiceUnavailableError(err.Error())
	default:
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
}
