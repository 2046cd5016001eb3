package internal

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"society-gate-backend/config"
	"society-gate-backend/internal/api"
	"society-gate-backend/internal/db"
	"society-gate-backend/internal/directory"
	"society-gate-backend/internal/fanout"
	"society-gate-backend/internal/gate"
	"society-gate-backend/internal/model"
	"society-gate-backend/internal/notification"
	"society-gate-backend/internal/store"
)

type stack struct {
	router http.Handler
	db     *gorm.DB
	hub    *fanout.Hub
}

func (s *stack) call(t *testing.T, method, path string, body any, id string, role model.Role) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", id)
	req.Header.Set("X-Actor-Role", string(role))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func visitorID(t *testing.T, body map[string]any) string {
	t.Helper()
	v, ok := body["visitor"].(map[string]any)
	require.True(t, ok, "response has no visitor: %v", body)
	return v["id"].(string)
}

// browserKeys returns the p256dh and auth values a browser would register.
func browserKeys(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(secret)
}

func TestGateWorkflowEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testDB, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, db.Migrate(testDB))

	// Upstream accounts service.
	accounts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"data":{"page":1,"pageSize":50,"total":2,"items":[
			{"id":"res-9","name":"Ravi","role":"resident","unitNumber":"Villa 9","phone":"900"},
			{"id":"guard-1","name":"Gate","role":"guard","phone":"100"}]}}`)
	}))
	defer accounts.Close()

	// Browser push service.
	var pushes atomic.Int32
	pushService := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushes.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer pushService.Close()

	appStore := store.NewGormStore(testDB, store.WithResidentCache(time.Minute))
	n, err := directory.NewSyncer(config.DirectoryConfig{Enabled: true, URL: accounts.URL, PageSize: 50}, appStore).SyncOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  publicKey,
		VAPIDPrivateKey: privateKey,
		Subscriber:      "mailto:gate@example.com",
		TTL:             60,
	}
	pool := notification.NewWorkerPool(1, 8, appStore, webpushOptions)
	pool.Start(ctx)

	hub := fanout.NewHub(16)
	svc := gate.NewService(appStore, hub, gate.WithNotifier(pool))
	s := &stack{
		router: api.NewRouter(svc, appStore, hub, api.RouterOptions{
			Server: config.ServerConfig{
				RateLimitPerSec: 1000,
				RateLimitBurst:  1000,
				ActorIDHeader:   "X-Actor-ID",
				ActorRoleHeader: "X-Actor-Role",
			},
			Realtime: config.RealtimeConfig{Prefix: "/realtime", HeartbeatSeconds: 25},
			WebPush:  webpushOptions,
		}),
		db:  testDB,
		hub: hub,
	}

	guardScreen := hub.Connect()
	defer hub.Disconnect(guardScreen)

	p256dh, auth := browserKeys(t)
	code, _ := s.call(t, http.MethodPut, "/api/push/subscriptions", gin.H{
		"endpoint": pushService.URL + "/sub/1", "p256dh": p256dh, "auth": auth,
	}, "res-9", model.RoleResident)
	require.Equal(t, http.StatusCreated, code)

	// Guard asks the resident of villa 9 about a sudden visitor.
	code, body := s.call(t, http.MethodPost, "/api/visitors/guard/request-entry", gin.H{
		"unitNumber": "9", "name": "Bob", "phone": "777", "visitorType": "delivery",
	}, "guard-1", model.RoleGuard)
	require.Equal(t, http.StatusCreated, code, body)
	id := visitorID(t, body)

	require.Eventually(t, func() bool { return pushes.Load() == 1 }, 5*time.Second, 20*time.Millisecond)

	code, body = s.call(t, http.MethodPut, "/api/visitors/resident/respond-request/"+id, gin.H{"status": "approved"}, "res-9", model.RoleResident)
	require.Equal(t, http.StatusOK, code, body)

	code, body = s.call(t, http.MethodPost, "/api/visitors/guard/check-in", gin.H{"visitorId": id}, "guard-1", model.RoleGuard)
	require.Equal(t, http.StatusOK, code, body)

	code, body = s.call(t, http.MethodPost, "/api/visitors/guard/check-out/"+id, nil, "guard-1", model.RoleGuard)
	require.Equal(t, http.StatusOK, code, body)

	code, body = s.call(t, http.MethodPost, "/api/visitors/guard/check-out/"+id, nil, "guard-1", model.RoleGuard)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", body["kind"])

	var ops []string
	for len(ops) < 4 {
		select {
		case raw := <-guardScreen.Send:
			var evt fanout.Event
			require.NoError(t, json.Unmarshal(raw, &evt))
			assert.Equal(t, fanout.TypeVisitor, evt.Type)
			ops = append(ops, evt.Action+":"+evt.Op)
		case <-time.After(time.Second):
			t.Fatalf("missing realtime events, got %v", ops)
		}
	}
	assert.Equal(t, []string{"create:request_entry", "update:approve", "update:check_in", "update:check_out"}, ops)

	var stored model.Visitor
	require.NoError(t, testDB.First(&stored, "id = ?", id).Error)
	assert.Equal(t, model.StatusApproved, stored.ApprovalStatus)
	assert.Equal(t, "guard-1", stored.CheckedInByID)
	assert.Equal(t, "guard-1", stored.CheckedOutByID)
	require.NotNil(t, stored.CheckInTime)
	require.NotNil(t, stored.CheckOutTime)
	assert.False(t, stored.CheckOutTime.Before(*stored.CheckInTime))
	assert.Equal(t, int32(1), pushes.Load(), "only sudden entry requests push")
}
