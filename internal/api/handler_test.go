package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"society-gate-backend/config"
	"society-gate-backend/internal/db"
	"society-gate-backend/internal/fanout"
	"society-gate-backend/internal/gate"
	"society-gate-backend/internal/model"
	"society-gate-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	hub    *fanout.Hub
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		CacheTTL:        time.Minute,
		ActorIDHeader:   "X-Actor-ID",
		ActorRoleHeader: "X-Actor-Role",
	}
}

func newTestServer(t *testing.T, webpushOptions *webpush.Options) *testServer {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gormDB, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gormDB))

	require.NoError(t, gormDB.Create(&[]model.Resident{
		{ID: "res-9", Name: "Ravi", Role: model.RoleResident, UnitNumber: "9", Phone: "900", PhoneSecondary: "901"},
		{ID: "guard-1", Name: "Gate", Role: model.RoleGuard, Phone: "100"},
	}).Error)

	hub := fanout.NewHub(8)
	s := store.NewGormStore(gormDB)
	svc := gate.NewService(s, hub)
	router := NewRouter(svc, s, hub, RouterOptions{
		Server:   testServerConfig(),
		Realtime: config.RealtimeConfig{Prefix: "/realtime", HeartbeatSeconds: 25},
		WebPush:  webpushOptions,
	})
	return &testServer{router: router, db: gormDB, hub: hub}
}

func (ts *testServer) do(method, path string, body any, id, role string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if id != "" {
		req.Header.Set("X-Actor-ID", id)
		req.Header.Set("X-Actor-Role", role)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) resident(method, path string, body any) *httptest.ResponseRecorder {
	return ts.do(method, path, body, "res-9", "resident")
}

func (ts *testServer) guard(method, path string, body any) *httptest.ResponseRecorder {
	return ts.do(method, path, body, "guard-1", "guard")
}

type visitorEnvelope struct {
	Visitor model.Visitor `json:"visitor"`
	Message string        `json:"message"`
}

func decodeVisitor(t *testing.T, w *httptest.ResponseRecorder) model.Visitor {
	t.Helper()
	var env visitorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env.Visitor
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Error, body.Kind
}

func TestRoutes_Identity(t *testing.T) {
	ts := newTestServer(t, nil)

	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/api/visitors/resident", nil, "", "").Code)
	assert.Equal(t, http.StatusForbidden, ts.guard(http.MethodGet, "/api/visitors/resident", nil).Code)
	assert.Equal(t, http.StatusForbidden, ts.resident(http.MethodGet, "/api/visitors/guard/approved", nil).Code)
	assert.Equal(t, http.StatusForbidden, ts.guard(http.MethodGet, "/api/visitors/logs", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/visitors/logs", nil, "admin-1", "admin").Code)
}

func TestPreApprove(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.resident(http.MethodPost, "/api/visitors/pre-approve", gin.H{"phone": "555"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	_, kind := decodeError(t, w)
	assert.Equal(t, "validation", kind)

	w = ts.resident(http.MethodPost, "/api/visitors/pre-approve", gin.H{"name": "Alice", "phone": "555", "visitorType": "spy"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	expected := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	w = ts.resident(http.MethodPost, "/api/visitors/pre-approve", gin.H{
		"name": "Alice", "phone": "555", "visitorType": "guest", "expectedTime": expected,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	v := decodeVisitor(t, w)
	assert.Equal(t, model.StatusApproved, v.ApprovalStatus)
	assert.True(t, v.PreApproved)
	assert.Nil(t, v.CheckInTime)
	assert.Equal(t, "9", v.UnitNumber)
	require.NotNil(t, v.ExpectedTime)
	assert.True(t, expected.Equal(*v.ExpectedTime))

	w = ts.resident(http.MethodGet, "/api/visitors/resident", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []model.Visitor
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, v.ID, history[0].ID)
}

func TestSuddenEntryFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.guard(http.MethodPost, "/api/visitors/guard/request-entry", gin.H{"unitNumber": "12A", "name": "Bob", "phone": "777"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	_, kind := decodeError(t, w)
	assert.Equal(t, "not_found", kind)

	w = ts.guard(http.MethodPost, "/api/visitors/guard/request-entry", gin.H{"unitNumber": "9", "name": "Bob", "phone": "777", "vehicleNo": "KA01"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	v := decodeVisitor(t, w)
	assert.Equal(t, model.StatusPending, v.ApprovalStatus)

	w = ts.resident(http.MethodGet, "/api/visitors/resident/pending-requests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), v.ID)

	w = ts.resident(http.MethodPut, "/api/visitors/resident/respond-request/"+v.ID, gin.H{"status": "later"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.resident(http.MethodPut, "/api/visitors/resident/respond-request/"+v.ID, gin.H{"status": "denied"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.StatusDenied, decodeVisitor(t, w).ApprovalStatus)

	w = ts.guard(http.MethodPost, "/api/visitors/guard/check-in", gin.H{"visitorId": v.ID})
	assert.Equal(t, http.StatusConflict, w.Code)
	msg, kind := decodeError(t, w)
	assert.Equal(t, "conflict", kind)
	assert.Equal(t, "cannot check in: status is denied", msg)

	w = ts.resident(http.MethodPut, "/api/visitors/resident/respond-request/"+v.ID, gin.H{"status": "approved"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCheckInCheckOut(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.resident(http.MethodPost, "/api/visitors/pre-approve", gin.H{"name": "Alice", "phone": "555"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeVisitor(t, w).ID

	w = ts.guard(http.MethodGet, "/api/visitors/guard/approved", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id)

	w = ts.guard(http.MethodPost, "/api/visitors/guard/check-in", gin.H{"visitorId": id, "vehicleNo": "MH12"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	in := decodeVisitor(t, w)
	assert.NotNil(t, in.CheckInTime)
	assert.Equal(t, "MH12", in.VehicleNo)

	w = ts.guard(http.MethodPost, "/api/visitors/guard/check-in", gin.H{"visitorId": id})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.guard(http.MethodGet, "/api/visitors/guard/checked-in", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id)

	w = ts.guard(http.MethodPost, "/api/visitors/guard/check-out/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	first := decodeVisitor(t, w).CheckOutTime
	require.NotNil(t, first)

	w = ts.guard(http.MethodPost, "/api/visitors/guard/check-out/"+id, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.guard(http.MethodPost, "/api/visitors/guard/check-out/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestManualCheckIn(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.guard(http.MethodPost, "/api/visitors/guard/check-in", gin.H{"unitNumber": "villa 9", "name": "Carol", "phone": "888"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	v := decodeVisitor(t, w)
	assert.Equal(t, model.StatusApproved, v.ApprovalStatus)
	assert.NotNil(t, v.CheckInTime)
	assert.True(t, v.ManualOverride)

	w = ts.guard(http.MethodPost, "/api/visitors/guard/check-in", gin.H{"unitNumber": "9"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/api/visitors/logs", nil, "admin-1", "admin")
	require.Equal(t, http.StatusOK, w.Code)
	var logs []model.Visitor
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].UnitOwner)
	assert.Equal(t, "Ravi", logs[0].UnitOwner.Name)
}

func TestLookupResident(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.guard(http.MethodGet, "/api/visitors/guard/lookup/9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"name":"Ravi","unitNumber":"9","phone":"900","phoneSecondary":"901"}`, w.Body.String())
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	w = ts.guard(http.MethodGet, "/api/visitors/guard/lookup/9", nil)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	w = ts.guard(http.MethodGet, "/api/visitors/guard/lookup/404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPushSubscriptions(t *testing.T) {
	ts := newTestServer(t, &webpush.Options{VAPIDPublicKey: "public-key"})

	w := ts.do(http.MethodGet, "/api/push/vapid_public_key", nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"public-key"}`, w.Body.String())

	w = ts.resident(http.MethodPut, "/api/push/subscriptions", gin.H{"endpoint": "https://push.example/abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.resident(http.MethodPut, "/api/push/subscriptions", gin.H{"endpoint": "https://push.example/abc", "p256dh": "k", "auth": "a"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = ts.resident(http.MethodGet, "/api/push/subscriptions?endpoint=https://push.example/abc", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.guard(http.MethodPut, "/api/push/subscriptions", gin.H{"endpoint": "https://push.example/g", "p256dh": "k", "auth": "a"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.resident(http.MethodDelete, "/api/push/subscriptions", gin.H{"endpoint": "https://push.example/abc"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.resident(http.MethodGet, "/api/push/subscriptions?endpoint=https://push.example/abc", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVAPIDKeyNotConfigured(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(http.MethodGet, "/api/push/vapid_public_key", nil, "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(http.MethodGet, "/healthz", nil, "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRespondError_PersistenceHidesCause(t *testing.T) {
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		respondError(c, &gate.Error{Kind: gate.KindPersistence, Message: "check_in failed", Err: errors.New("pq: connection refused")})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"check_in failed","kind":"persistence"}`, w.Body.String())
}

func TestMutationsReachRealtimeClients(t *testing.T) {
	ts := newTestServer(t, nil)
	client := ts.hub.Connect()
	defer ts.hub.Disconnect(client)

	w := ts.resident(http.MethodPost, "/api/visitors/pre-approve", gin.H{"name": "Alice", "phone": "555"})
	require.Equal(t, http.StatusCreated, w.Code)

	select {
	case raw := <-client.Send:
		var evt struct {
			Type   string        `json:"type"`
			Action string        `json:"action"`
			Data   model.Visitor `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &evt))
		assert.Equal(t, "visitor", evt.Type)
		assert.Equal(t, "create", evt.Action)
		assert.Equal(t, "Alice", evt.Data.Name)
	case <-time.After(time.Second):
		t.Fatal("no realtime event")
	}
}
