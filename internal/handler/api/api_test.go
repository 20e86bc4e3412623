package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"OBScan/internal/domain/models"
	"OBScan/internal/repository"
	"OBScan/internal/service/auth"
	"OBScan/internal/service/cache"
	"OBScan/internal/service/ratelimit"
	"OBScan/internal/usecase"
	xhttp "OBScan/pkg/http"
	xlogger "OBScan/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

type stubScanner struct {
	got  []usecase.ScanParams
	resp *models.ScanReport
	err  error
}

func (s *stubScanner) Scan(_ context.Context, p usecase.ScanParams) (*models.ScanReport, error) {
	s.got = append(s.got, p)
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

type stubStorage struct {
	rows   []*models.DetectionResult
	symbol string
	from   time.Time
	limit  int
}

func (s *stubStorage) Init(context.Context) error                                  { return nil }
func (s *stubStorage) Store(context.Context, *models.DetectionResult) error        { return nil }
func (s *stubStorage) StoreBatch(context.Context, []*models.DetectionResult) error { return nil }
func (s *stubStorage) Health(context.Context) error                                { return nil }
func (s *stubStorage) Close() error                                                { return nil }

func (s *stubStorage) Query(_ context.Context, symbol string, from, _ time.Time, limit int) ([]*models.DetectionResult, error) {
	s.symbol, s.from, s.limit = symbol, from, limit
	return s.rows, nil
}

type fixture struct {
	e        *echo.Echo
	users    *repository.MemoryUserRepository
	accounts *usecase.AccountService
	tokens   *auth.TokenManager
	scanner  *stubScanner
	results  *cache.ResultCache
	storage  *stubStorage
}

func newFixture(t *testing.T, limiter UserLimiter) *fixture {
	t.Helper()
	return newFixtureWithStorage(t, limiter, &stubStorage{})
}

// a nil storage disables history
func newFixtureWithStorage(t *testing.T, limiter UserLimiter, storage *stubStorage) *fixture {
	t.Helper()
	tokens, err := auth.NewTokenManager(secret, time.Hour)
	require.NoError(t, err)

	f := &fixture{
		e:       echo.New(),
		users:   repository.NewMemoryUserRepository(),
		tokens:  tokens,
		scanner: &stubScanner{resp: &models.ScanReport{RunID: "run-1", Timeframe: "4h"}},
		results: cache.NewResultCache(cache.NewTTLCache(), time.Hour),
		storage: storage,
	}
	f.accounts = usecase.NewAccountService(f.users, tokens, 3, nil)

	history := usecase.NewHistoryUseCase(nil)
	if storage != nil {
		history = usecase.NewHistoryUseCase(storage)
	}

	log := xlogger.Nop()
	for _, h := range []xhttp.Handler{
		NewAuthEchoHandler(log, f.accounts, tokens),
		NewAdminEchoHandler(log, f.accounts, tokens),
		NewScanEchoHandler(log, f.accounts, tokens, usecase.DefaultEntitlementPolicy(), f.scanner, limiter,
			f.results, history, 200),
	} {
		h.RegisterRoutes(f.e)
	}
	return f
}

func (f *fixture) do(t *testing.T, method, target, token, body string) (*httptest.ResponseRecorder, xhttp.APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	var resp xhttp.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func (f *fixture) login(t *testing.T, username, plan string) string {
	t.Helper()
	body := `{"username":"` + username + `","email":"` + username + `@example.com","password":"secret1","plan":"` + plan + `"}`
	rec, _ := f.do(t, http.MethodPost, "/api/auth/register", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, resp := f.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"`+username+`","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := resp.Data.(map[string]interface{})
	return data["token"].(string)
}

func (f *fixture) admin(t *testing.T) string {
	t.Helper()
	f.login(t, "root", usecase.PlanNone)
	u, err := f.users.FindByUsername(context.Background(), "root")
	require.NoError(t, err)
	u.Roles = u.Roles.With(models.RoleAdmin)
	require.NoError(t, f.users.Update(context.Background(), u))

	// roles travel in the token, so log in again
	rec, resp := f.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"root","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	return resp.Data.(map[string]interface{})["token"].(string)
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t, nil)
	token := f.login(t, "alice", usecase.PlanTrial)

	rec, resp := f.do(t, http.MethodGet, "/api/user/status", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := resp.Data.(map[string]interface{})
	assert.Equal(t, "alice", st["username"])
	assert.Equal(t, true, st["trialActive"])
	assert.Equal(t, false, st["isPremium"])
}

func TestRegister_Conflicts(t *testing.T) {
	f := newFixture(t, nil)
	f.login(t, "alice", usecase.PlanTrial)

	rec, resp := f.do(t, http.MethodPost, "/api/auth/register", "", `{"username":"alice","email":"new@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, http.StatusConflict, resp.Status)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t, nil)
	rec, resp := f.do(t, http.MethodPost, "/api/auth/register", "", `{"username":"al","email":"nope","password":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errs := resp.Data.([]interface{})
	assert.Len(t, errs, 3)
}

func TestLogin_BadPassword(t *testing.T) {
	f := newFixture(t, nil)
	f.login(t, "alice", usecase.PlanTrial)

	rec, _ := f.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"wrong!"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWT_Required(t *testing.T) {
	f := newFixture(t, nil)

	rec, _ := f.do(t, http.MethodGet, "/api/user/status", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/scan-order-blocks", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScan_TrialIsForcedTo4h(t *testing.T) {
	f := newFixture(t, nil)
	token := f.login(t, "alice", usecase.PlanTrial)

	rec, resp := f.do(t, http.MethodGet, "/api/scan-order-blocks?interval=1h&requireFVG=false&minBodyRatio=0.3", token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "4h", rec.Header().Get("X-Timeframe-Forced"))
	assert.Equal(t, "run-1", resp.Data.(map[string]interface{})["runId"])

	require.Len(t, f.scanner.got, 1)
	p := f.scanner.got[0]
	assert.Equal(t, "4h", string(p.Timeframe))
	assert.Equal(t, 20, p.Limit)
	assert.Equal(t, 200, p.CandleLimit)
	assert.False(t, p.Config.RequireFVG)
	assert.True(t, p.Config.RequireBOS)
	assert.Equal(t, 0.3, p.Config.ImpulsiveMinBodyRatio)
	assert.Equal(t, 0.0002, p.Config.ImpulsiveMinPriceChange)
	assert.Equal(t, 0.5, p.Config.SignificantVolumeFactor)
}

func TestScan_PremiumKeepsInterval(t *testing.T) {
	f := newFixture(t, nil)
	token := f.login(t, "bob", usecase.PlanPremium)

	rec, _ := f.do(t, http.MethodGet, "/api/scan-order-blocks?interval=15M", token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, rec.Header().Get("X-Timeframe-Forced"))
	assert.Equal(t, "15m", string(f.scanner.got[0].Timeframe))
	assert.Equal(t, 100, f.scanner.got[0].Limit)
}

func TestScan_Rejections(t *testing.T) {
	f := newFixture(t, ratelimit.New(60, 1, time.Minute))

	basic := f.login(t, "carol", usecase.PlanNone)
	rec, _ := f.do(t, http.MethodGet, "/api/scan-order-blocks", basic, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	trial := f.login(t, "alice", usecase.PlanTrial)
	rec, _ = f.do(t, http.MethodGet, "/api/scan-order-blocks?interval=7h", trial, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/scan-order-blocks", trial, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/api/scan-order-blocks", trial, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Len(t, f.scanner.got, 1)
}

func TestResults(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	price := 90.0
	require.NoError(t, f.results.Put(ctx, models.DetectionResult{Instrument: models.Instrument{ID: "BTCUSDT"}, ZoneType: models.ZoneBullish, ZonePrice: &price}))
	require.NoError(t, f.results.Put(ctx, models.DetectionResult{Instrument: models.Instrument{ID: "ETHUSDT"}, ZoneType: models.ZoneNone}))

	token := f.login(t, "alice", usecase.PlanTrial)

	rec, resp := f.do(t, http.MethodGet, "/api/results", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), resp.Data.(map[string]interface{})["total"])

	rec, resp = f.do(t, http.MethodGet, "/api/results?zone=BullishOB", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), resp.Data.(map[string]interface{})["total"])

	rec, _ = f.do(t, http.MethodGet, "/api/results?zone=Sideways", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = f.do(t, http.MethodGet, "/api/results/btcusdt", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BullishOB", resp.Data.(map[string]interface{})["zoneType"])

	rec, _ = f.do(t, http.MethodGet, "/api/results/DOGEUSDT", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResults_RequireSubscription(t *testing.T) {
	f := newFixture(t, nil)
	price := 90.0
	require.NoError(t, f.results.Put(context.Background(), models.DetectionResult{Instrument: models.Instrument{ID: "BTCUSDT"}, ZoneType: models.ZoneBullish, ZonePrice: &price}))
	basic := f.login(t, "carol", usecase.PlanNone)

	for _, target := range []string{"/api/results", "/api/results/BTCUSDT", "/api/history/BTCUSDT"} {
		rec, _ := f.do(t, http.MethodGet, target, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)

		rec, _ = f.do(t, http.MethodGet, target, "garbage", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)

		rec, _ = f.do(t, http.MethodGet, target, basic, "")
		assert.Equal(t, http.StatusForbidden, rec.Code, target)
	}
	assert.Zero(t, f.storage.limit)

	premium := f.login(t, "bob", usecase.PlanPremium)
	rec, _ := f.do(t, http.MethodGet, "/api/results/BTCUSDT", premium, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHistory(t *testing.T) {
	f := newFixture(t, nil)
	f.storage.rows = []*models.DetectionResult{{Instrument: models.Instrument{ID: "BTCUSDT"}, ZoneType: models.ZoneBearish}}
	token := f.login(t, "bob", usecase.PlanPremium)

	rec, resp := f.do(t, http.MethodGet, "/api/history/btcusdt?from=1700000000000&limit=10", token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), resp.Data.(map[string]interface{})["total"])
	assert.Equal(t, "BTCUSDT", f.storage.symbol)
	assert.Equal(t, int64(1700000000000), f.storage.from.UnixMilli())
	assert.Equal(t, 10, f.storage.limit)

	rec, _ = f.do(t, http.MethodGet, "/api/history/BTCUSDT?from=yesterday", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/history/BTCUSDT?from=2024-03-02&to=2024-03-01", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/history/BTCUSDT?limit=100000", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory_Disabled(t *testing.T) {
	f := newFixtureWithStorage(t, nil, nil)
	token := f.login(t, "bob", usecase.PlanPremium)

	rec, _ := f.do(t, http.MethodGet, "/api/history/BTCUSDT", token, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdmin(t *testing.T) {
	f := newFixture(t, nil)
	user := f.login(t, "alice", usecase.PlanTrial)
	admin := f.admin(t)

	rec, _ := f.do(t, http.MethodGet, "/api/admin/users", user, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp := f.do(t, http.MethodGet, "/api/admin/users", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), resp.Data.(map[string]interface{})["total"])

	rec, resp = f.do(t, http.MethodPost, "/api/admin/users/alice/premium", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp.Data.(map[string]interface{})["isPremium"])

	rec, resp = f.do(t, http.MethodPost, "/api/admin/users/alice/trial?days=7", admin, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := resp.Data.(map[string]interface{})
	assert.Equal(t, false, st["isPremium"])
	assert.Equal(t, true, st["trialActive"])
	expiry, err := time.Parse(time.RFC3339Nano, st["trialExpiryDate"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 7), expiry, time.Minute)

	rec, _ = f.do(t, http.MethodPost, "/api/admin/users/alice/trial?days=0", admin, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = f.do(t, http.MethodDelete, "/api/admin/users/alice/premium", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, resp.Data.(map[string]interface{})["trialActive"])

	rec, _ = f.do(t, http.MethodPost, "/api/admin/users/ghost/premium", admin, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
