package leads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Dhoini/checkout-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardPostsLeadWithoutPassword(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewForwarder(srv.URL, "checkout-service", time.Second, logger.Nop())
	f.Forward(context.Background(), Lead{Email: "ada@example.com", FullName: "Ada", PlanName: "Growth"})
	f.Wait()

	select {
	case body := <-received:
		assert.Equal(t, "ada@example.com", body["email"])
		assert.Equal(t, "web", body["platform"])
		assert.Equal(t, "checkout-service", body["source"])
		assert.NotContains(t, body, "password")
		assert.NotEmpty(t, body["timestamp"])
	default:
		t.Fatal("lead was not delivered")
	}
}

func TestForwardDoesNotBlockOrFail(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewForwarder(srv.URL, "", 2*time.Second, logger.Nop())

	// Отмененный контекст запроса не должен прерывать отправку
	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	f.Forward(ctx, Lead{Email: "ada@example.com"})
	cancel()
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(release)
	f.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestForwarderDisabledWithoutURL(t *testing.T) {
	f := NewForwarder("", "", 0, logger.Nop())
	require.False(t, f.Enabled())

	f.Forward(context.Background(), Lead{Email: "ada@example.com"})
	f.Wait()
}
