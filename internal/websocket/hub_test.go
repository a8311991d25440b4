package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pluto/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/api/companies/:company_id/ws", hub.ServeWs)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, companyID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/companies/" + companyID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, companyID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.Subscribers(companyID) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPublishReachesCompanySubscribers(t *testing.T) {
	hub, srv := newTestServer(t)

	mine := dial(t, srv, "company-1")
	other := dial(t, srv, "company-2")
	waitForSubscribers(t, hub, "company-1", 1)
	waitForSubscribers(t, hub, "company-2", 1)

	hub.Publish("company-1", "tax_rule.created", map[string]interface{}{"rule_id": "r1"})

	require.NoError(t, mine.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := mine.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "tax_rule.created", msg.Event)
	assert.Equal(t, "company-1", msg.CompanyID)
	assert.Equal(t, "r1", msg.Data["rule_id"])

	// the other company's subscriber sees nothing
	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = other.ReadMessage()
	assert.Error(t, err)
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, srv := newTestServer(t)

	conn := dial(t, srv, "company-1")
	waitForSubscribers(t, hub, "company-1", 1)

	require.NoError(t, conn.Close())
	waitForSubscribers(t, hub, "company-1", 0)
}

func TestPublishWithoutRunningHubDoesNotBlock(t *testing.T) {
	hub := NewHub(logger.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBufferSize+10; i++ {
			hub.Publish("company-1", "tax.created", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}
}
