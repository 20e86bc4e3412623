package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"OBScan/internal/domain/models"
	drepo "OBScan/internal/domain/repository"
	apimetrics "OBScan/internal/service/metrics"
	"OBScan/internal/services/detector"
	"OBScan/internal/usecase"
	xhttp "OBScan/pkg/http"
	xlogger "OBScan/pkg/logger"

	"github.com/labstack/echo/v4"
)

// OrderBlockScanner runs one scan.
type OrderBlockScanner interface {
	Scan(ctx context.Context, p usecase.ScanParams) (*models.ScanReport, error)
}

// UserLimiter throttles requests per key.
type UserLimiter interface {
	Allow(key string) bool
}

// ScanEchoHandler serves on-demand scans, the latest cached results and
// detection history.
type ScanEchoHandler struct {
	logger      *xlogger.Logger
	accounts    *usecase.AccountService
	tokens      TokenParser
	policy      usecase.EntitlementPolicy
	scanner     OrderBlockScanner
	limiter     UserLimiter
	results     drepo.ResultCache
	history     *usecase.HistoryUseCase
	candleLimit int
}

func NewScanEchoHandler(
	logger *xlogger.Logger,
	accounts *usecase.AccountService,
	tokens TokenParser,
	policy usecase.EntitlementPolicy,
	scanner OrderBlockScanner,
	limiter UserLimiter,
	results drepo.ResultCache,
	history *usecase.HistoryUseCase,
	candleLimit int,
) *ScanEchoHandler {
	return &ScanEchoHandler{
		logger:      logger,
		accounts:    accounts,
		tokens:      tokens,
		policy:      policy,
		scanner:     scanner,
		limiter:     limiter,
		results:     results,
		history:     history,
		candleLimit: candleLimit,
	}
}

func (h *ScanEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/scan-order-blocks", h.ScanOrderBlocks, JWT(h.tokens))
	g.GET("/results", h.Results, JWT(h.tokens), h.subscribed("results"))
	g.GET("/results/:symbol", h.Result, JWT(h.tokens), h.subscribed("result"))
	g.GET("/history/:symbol", h.History, JWT(h.tokens), h.subscribed("history"))
}

// subscribed admits trial and premium users. It must run after JWT.
func (h *ScanEchoHandler) subscribed(endpoint string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := claimsFrom(c)
			if !ok {
				return xhttp.UnauthorizedResponse(c, "missing bearer token")
			}
			st, err := h.accounts.Status(c.Request().Context(), claims.Subject)
			if err != nil {
				return h.fail(c, endpoint, err)
			}
			if !h.policy.Entitle(st, h.policy.TrialTimeframe).Allowed {
				apimetrics.APIRejected.WithLabelValues(endpoint, "entitlement").Inc()
				return xhttp.AppErrorResponse(c, xhttp.ForbiddenError("an active trial or premium subscription is required"))
			}
			return next(c)
		}
	}
}

// ScanOrderBlocks runs a scan sized by the caller's plan. Trial users are
// always scanned on the trial timeframe.
func (h *ScanEchoHandler) ScanOrderBlocks(c echo.Context) error {
	const endpoint = "scan"
	start := time.Now()
	defer func() { apimetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.ScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf := drepo.Timeframe(strings.TrimSpace(req.Interval))
	if tf != drepo.TF1M {
		tf = drepo.Timeframe(strings.ToLower(string(tf)))
	}
	if !drepo.IsValidTimeframe(tf) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unsupported interval %q", req.Interval))
	}

	claims, _ := claimsFrom(c)
	st, err := h.accounts.Status(c.Request().Context(), claims.Subject)
	if err != nil {
		return h.fail(c, endpoint, err)
	}

	ent := h.policy.Entitle(st, tf)
	if !ent.Allowed {
		apimetrics.APIRejected.WithLabelValues(endpoint, "entitlement").Inc()
		return xhttp.AppErrorResponse(c, xhttp.ForbiddenError("an active trial or premium subscription is required"))
	}
	if h.limiter != nil && !h.limiter.Allow(claims.Subject) {
		apimetrics.APIRejected.WithLabelValues(endpoint, "rate_limit").Inc()
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many scan requests, slow down"))
	}

	report, err := h.scanner.Scan(c.Request().Context(), usecase.ScanParams{
		Timeframe:   ent.Timeframe,
		Limit:       ent.Limit,
		CandleLimit: h.candleLimit,
		Config:      detectorConfig(req),
	})
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	if ent.Forced {
		c.Response().Header().Set("X-Timeframe-Forced", string(ent.Timeframe))
	}
	return xhttp.SuccessResponse(c, report)
}

func detectorConfig(req *models.ScanRequest) detector.Config {
	return detector.Config{
		ImpulsiveMinBodyRatio:   req.MinBodyRatio,
		ImpulsiveMinPriceChange: req.MinPriceChange,
		SignificantVolumeFactor: req.VolumeFactor,
		RequireBOS:              req.RequireBOS,
		RequireC3ClosePastC2:    req.RequireC3ClosePastC2,
		RequireFVG:              req.RequireFVG,
		MinFvgDepthRatio:        req.MinFvgDepthRatio,
		RequireUnmitigated:      req.RequireUnmitigated,
	}
}

// Results lists the latest result per instrument, optionally by zone type.
func (h *ScanEchoHandler) Results(c echo.Context) error {
	req := &models.ResultsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	all, err := h.results.All(c.Request().Context())
	if err != nil {
		return h.fail(c, "results", err)
	}
	if req.Zone != "" {
		kept := all[:0]
		for _, r := range all {
			if string(r.ZoneType) == req.Zone {
				kept = append(kept, r)
			}
		}
		all = kept
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, all, int64(len(all)))
}

func (h *ScanEchoHandler) Result(c echo.Context) error {
	symbol := strings.ToUpper(c.Param("symbol"))
	r, ok, err := h.results.Get(c.Request().Context(), symbol)
	if err != nil {
		return h.fail(c, "result", err)
	}
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no result for %s", symbol))
	}
	return xhttp.SuccessResponse(c, r)
}

// History returns stored detections. from and to accept RFC3339, unix
// seconds or epoch milliseconds.
func (h *ScanEchoHandler) History(c echo.Context) error {
	const endpoint = "history"
	start := time.Now()
	defer func() { apimetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p := usecase.HistoryParams{Symbol: req.Symbol, Limit: req.Limit}
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Time
	}{{"from", req.From, &p.From}, {"to", req.To, &p.To}} {
		if f.raw == "" {
			continue
		}
		t, ok := xhttp.ParseTime(f.raw)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("%s must be RFC3339, unix seconds or milliseconds", f.name))
		}
		*f.dst = t
	}

	rs, err := h.history.GetHistory(c.Request().Context(), p)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.ListResponse(c, rs, int64(len(rs)))
}

func (h *ScanEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	ae := appError(err)
	if ae.Status >= http.StatusInternalServerError {
		apimetrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error(endpoint+" request failed", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, ae)
}
