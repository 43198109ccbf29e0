package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"identity-reconciler/internal/core/database"
	"identity-reconciler/internal/domain"
	"identity-reconciler/internal/repo"
	"identity-reconciler/internal/service"
	"identity-reconciler/internal/transport/http/handler"
)

var testDBSeq int64

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:api_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := database.NewGorm(database.Opts{
		Driver:       "sqlite",
		DSN:          dsn,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Contact{}))

	log := zap.NewNop()
	contacts := repo.NewContactRepo(db)
	svc := service.NewReconciler(contacts, log)
	h := handler.NewContactHandler(svc, contacts, nil, 5*time.Second, log)
	return NewAPIEngine(log, h)
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestHealth(t *testing.T) {
	r := newTestEngine(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestIdentifyCreatesAndConsolidates(t *testing.T) {
	r := newTestEngine(t)

	_, env := doJSON(t, r, http.MethodPost, "/api/v1/identify", gin.H{
		"email": "doc@hillvalley.edu", "phoneNumber": "555-0123",
	})
	require.Zero(t, env.Code)

	var out struct {
		Contact domain.ConsolidatedView `json:"contact"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Equal(t, []string{"doc@hillvalley.edu"}, out.Contact.Emails)
	require.Equal(t, []string{"555-0123"}, out.Contact.PhoneNumbers)
	require.Empty(t, out.Contact.SecondaryContactIDs)
	primaryID := out.Contact.PrimaryContactID

	// partial match links a secondary
	_, env = doJSON(t, r, http.MethodPost, "/api/v1/identify", gin.H{
		"email": "emmett@hillvalley.edu", "phoneNumber": "555-0123",
	})
	require.Zero(t, env.Code)
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Equal(t, primaryID, out.Contact.PrimaryContactID)
	require.Equal(t, []string{"doc@hillvalley.edu", "emmett@hillvalley.edu"}, out.Contact.Emails)
	require.Len(t, out.Contact.SecondaryContactIDs, 1)
}

func TestIdentifyRejectsEmptyProbe(t *testing.T) {
	r := newTestEngine(t)
	_, env := doJSON(t, r, http.MethodPost, "/api/v1/identify", gin.H{})
	require.Equal(t, 400, env.Code)
}

func TestIdentifyRejectsMalformedBody(t *testing.T) {
	r := newTestEngine(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/identify", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, 400, env.Code)
}

func TestMetricsExposedUnderIdentityNamespace(t *testing.T) {
	r := newTestEngine(t)
	doJSON(t, r, http.MethodPost, "/api/v1/identify", gin.H{"email": "doc@hillvalley.edu"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "identity_http_requests_total")
	require.Contains(t, w.Body.String(), "identity_http_request_duration_seconds")
}

func TestRequestIDEchoedAndMinted(t *testing.T) {
	r := newTestEngine(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "rid-1885")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "rid-1885", w.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestContactsListing(t *testing.T) {
	r := newTestEngine(t)
	doJSON(t, r, http.MethodPost, "/api/v1/identify", gin.H{"email": "doc@hillvalley.edu"})
	doJSON(t, r, http.MethodPost, "/api/v1/identify", gin.H{"phoneNumber": "555-0123"})

	_, env := doJSON(t, r, http.MethodGet, "/api/v1/contacts", nil)
	require.Zero(t, env.Code)

	var out struct {
		Contacts []domain.Contact `json:"contacts"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Len(t, out.Contacts, 2)
}
