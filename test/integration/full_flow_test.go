package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/biosync/biosync/internal/api"
	"github.com/biosync/biosync/internal/config"
	"github.com/biosync/biosync/internal/credstore"
	"github.com/biosync/biosync/internal/logging"
	"github.com/biosync/biosync/internal/metrics"
	"github.com/biosync/biosync/internal/models"
	"github.com/biosync/biosync/internal/provider"
	"github.com/biosync/biosync/internal/store"
	syncsvc "github.com/biosync/biosync/internal/sync"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "integration-secret"

// fakeProvider serves both the token exchange endpoint and the data
// endpoints the syncers hit, so the full path from /setup through row
// counts runs against real HTTP.
type fakeProvider struct {
	mu            sync.Mutex
	exchangeCalls int
	dataCalls     []string
	server        *httptest.Server
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	f := &fakeProvider{}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeProvider) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost && strings.Contains(r.URL.Path, "exchange") {
		f.mu.Lock()
		f.exchangeCalls++
		f.mu.Unlock()
		if !strings.HasPrefix(r.Header.Get("Authorization"), "OAuth ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"bearer-abc","refresh_token":"refresh-xyz","expires_in":3600,"refresh_token_expires_in":7200}`)
		return
	}

	f.mu.Lock()
	f.dataCalls = append(f.dataCalls, r.URL.Path)
	f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer bearer-abc" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path
	switch {
	case strings.Contains(path, "socialProfile"):
		io.WriteString(w, `{"displayName":"athlete42"}`)
	case strings.Contains(path, "dailyHeartRate"):
		io.WriteString(w, `{"restingHeartRate":52,"maxHeartRate":142,"minHeartRate":48,"heartRateValues":[[1767256200000,60],[1767256320000,64],[1767256440000,null],[1767256680000,68]]}`)
	case strings.Contains(path, "dailyStress"):
		io.WriteString(w, `{"avgStressLevel":30,"maxStressLevel":88,"stressValuesArray":[[1767256200000,25],[1767256380000,-1],[1767256560000,35]]}`)
	case strings.Contains(path, "bodyBattery"):
		io.WriteString(w, `[{"date":"2026-01-01","charged":55,"drained":60,"bodyBatteryValuesArray":[[1767256200000,72],[1767256380000,70]]}]`)
	case strings.Contains(path, "dailySleepData"):
		io.WriteString(w, `{"dailySleepDTO":{"calendarDate":"2026-01-01","sleepStartTimestampGMT":1767222000000,"sleepEndTimestampGMT":1767250800000,"deepSleepSeconds":5700,"lightSleepSeconds":14400,"remSleepSeconds":4800,"awakeSleepSeconds":1800,"sleepScores":{"overall":{"value":82}}}}`)
	case strings.Contains(path, "hrv-service"):
		io.WriteString(w, `{"hrvSummary":{"weeklyAvg":48.2,"lastNightAvg":51,"lastNight5MinHigh":64,"status":"BALANCED"}}`)
	case strings.Contains(path, "spo2"):
		io.WriteString(w, `{"averageSpO2":95.2,"spO2ValuesArray":[[1767256200000,96],[1767256380000,94.5]]}`)
	case strings.Contains(path, "respiration"):
		io.WriteString(w, `{"avgRespirationValue":14.2,"respirationValuesArray":[[1767256200000,14],[1767256380000,15.5]]}`)
	case strings.Contains(path, "menstrualcycle"):
		io.WriteString(w, `{"dayInCycle":14,"phaseType":"OVULATION"}`)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type testServer struct {
	Engine   *gin.Engine
	Store    *store.SQLiteStore
	Provider *fakeProvider
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := newFakeProvider(t)

	dbPath := filepath.Join(t.TempDir(), "integration.db")
	sqliteStore, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	providerCfg := config.ProviderConfig{
		BaseURL:        fake.server.URL,
		ExchangeURL:    fake.server.URL + "/exchange",
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		Timeout:        5 * time.Second,
	}

	logger := logging.NewLogger(logging.WithOutput(io.Discard))
	m := metrics.NewMetrics("test_integration_" + strings.ReplaceAll(t.Name(), "/", "_"))

	creds := credstore.New(sqliteStore.Settings())
	client := provider.NewClient(providerCfg, provider.WithLogger(logger))
	exchanger := provider.NewExchanger(providerCfg)
	tokens := syncsvc.NewTokenSource(creds, exchanger, m, logger)
	orchestrator := syncsvc.NewOrchestrator(sqliteStore, creds, tokens, client, m, logger)

	serverCfg := config.ServerConfig{Host: "localhost", HTTPPort: 0}
	apiCfg := config.APIConfig{Auth: config.AuthConfig{Secret: testSecret}}
	srv := api.NewServer(serverCfg, apiCfg, creds, orchestrator, nil, m, logger)

	return &testServer{Engine: srv.Router(), Store: sqliteStore, Provider: fake}
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestFullFlow_SetupThenSync(t *testing.T) {
	ts := setupTestServer(t)

	// Before setup: no credential, nothing synced
	w := doJSON(t, ts.Engine, "GET", "/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, false, status["credential_present"])

	// Setup stores the credential and validates it via one exchange
	setupBody := map[string]string{
		"oauth_token":        "token-1",
		"oauth_token_secret": "secret-1",
	}
	w = doJSON(t, ts.Engine, "POST", "/setup", setupBody, testSecret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var setupResp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &setupResp))
	assert.Equal(t, "athlete42", setupResp["display_name"])
	assert.Equal(t, 1, ts.Provider.exchangeCalls)

	// Manual sync reuses the cached bearer token
	w = doJSON(t, ts.Engine, "POST", "/sync", nil, testSecret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var syncResp struct {
		Results []struct {
			Date      string         `json:"date"`
			Counts    map[string]int `json:"counts"`
			TotalRows int            `json:"total_rows"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &syncResp))
	require.Len(t, syncResp.Results, 1)

	counts := syncResp.Results[0].Counts
	assert.Equal(t, 3, counts["heart_rate"])
	assert.Equal(t, 2, counts["stress"])
	assert.Equal(t, 2, counts["body_battery"])
	assert.Equal(t, 1, counts["sleep"])
	assert.Equal(t, 1, counts["hrv"])
	assert.Equal(t, 2, counts["spo2"])
	assert.Equal(t, 2, counts["respiration"])
	assert.Equal(t, 1, counts["cycle"])
	assert.Equal(t, 1, counts["daily_summary"])
	assert.Equal(t, 1, ts.Provider.exchangeCalls, "cached bearer should be reused")

	// Samples landed in SQLite under their own timestamps
	n, err := ts.Store.CountForDate(models.ResourceHeartRate, "2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Status now reflects the synced state
	w = doJSON(t, ts.Engine, "GET", "/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, true, status["credential_present"])
	assert.Equal(t, true, status["bearer_valid"])
	assert.Equal(t, true, status["refresh_token_present"])
	assert.Equal(t, "athlete42", status["display_name"])
	assert.NotEmpty(t, status["last_run"])
}

func TestFullFlow_AuthRequired(t *testing.T) {
	ts := setupTestServer(t)

	endpoints := []struct {
		method string
		path   string
		body   interface{}
	}{
		{"POST", "/sync", nil},
		{"POST", "/setup", map[string]string{"oauth_token": "t", "oauth_token_secret": "s"}},
	}

	for _, ep := range endpoints {
		w := doJSON(t, ts.Engine, ep.method, ep.path, ep.body, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, ep.path)

		w = doJSON(t, ts.Engine, ep.method, ep.path, ep.body, "wrong-secret")
		assert.Equal(t, http.StatusUnauthorized, w.Code, ep.path)
	}

	// Nothing reached the provider
	assert.Zero(t, ts.Provider.exchangeCalls)
	assert.Empty(t, ts.Provider.dataCalls)
}

func TestFullFlow_SyncWithoutCredential(t *testing.T) {
	ts := setupTestServer(t)

	w := doJSON(t, ts.Engine, "POST", "/sync", nil, testSecret)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "sync_failed")
	assert.Zero(t, ts.Provider.exchangeCalls)
}

func TestFullFlow_ExchangeRejected(t *testing.T) {
	ts := setupTestServer(t)

	// Store a credential directly, then break the exchange endpoint by
	// swapping the provider URL for a server that always 401s.
	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer rejecting.Close()

	setupBody := map[string]string{
		"oauth_token":        "token-1",
		"oauth_token_secret": "secret-1",
	}
	w := doJSON(t, ts.Engine, "POST", "/setup", setupBody, testSecret)
	require.Equal(t, http.StatusOK, w.Code)

	providerCfg := config.ProviderConfig{
		BaseURL:        rejecting.URL,
		ExchangeURL:    rejecting.URL + "/exchange",
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
	}
	logger := logging.NewLogger(logging.WithOutput(io.Discard))
	m := metrics.NewMetrics("test_integration_rejected")
	creds := credstore.New(ts.Store.Settings())
	require.NoError(t, creds.SetOAuth1(&models.OAuth1Token{Token: "token-1", TokenSecret: "secret-1"}))

	client := provider.NewClient(providerCfg, provider.WithLogger(logger))
	exchanger := provider.NewExchanger(providerCfg)
	tokens := syncsvc.NewTokenSource(creds, exchanger, m, logger)
	orchestrator := syncsvc.NewOrchestrator(ts.Store, creds, tokens, client, m, logger)
	srv := api.NewServer(config.ServerConfig{}, config.APIConfig{Auth: config.AuthConfig{Secret: testSecret}}, creds, orchestrator, nil, m, logger)

	w = doJSON(t, srv.Router(), "POST", "/sync", nil, testSecret)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "sync_failed")
}
