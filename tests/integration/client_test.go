//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sternrassler/marvel-client/internal/server"
	"github.com/Sternrassler/marvel-client/internal/testutil"
	"github.com/Sternrassler/marvel-client/pkg/auth"
	"github.com/Sternrassler/marvel-client/pkg/catalog"
	"github.com/Sternrassler/marvel-client/pkg/client"
	"github.com/Sternrassler/marvel-client/pkg/pagination"
	"github.com/Sternrassler/marvel-client/pkg/quota"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

type stack struct {
	mock    *testutil.MockMarvel
	tracker *quota.Tracker
	client  *client.Client
	handler http.Handler
}

func newStack(t *testing.T, redisClient *redis.Client, qcfg quota.Config) *stack {
	t.Helper()

	mock := testutil.NewMockMarvel("pub", "priv")
	t.Cleanup(mock.Close)
	mock.SetCharacters(testutil.NumberedCharacters(250))

	tracker := quota.NewTracker(redisClient, qcfg, zerolog.Nop())

	cfg := client.DefaultConfig(auth.Credentials{PublicKey: "pub", PrivateKey: "priv"})
	cfg.BaseURL = mock.URL()
	cfg.Quota = tracker
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	svc := catalog.NewService(c)
	agg := pagination.NewAggregator(svc, pagination.Config{BatchSize: 100})

	return &stack{
		mock:    mock,
		tracker: tracker,
		client:  c,
		handler: server.New(svc, agg, server.Options{Ready: tracker}).Handler(),
	}
}

func get(h http.Handler, path string) (int, []byte) {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(w.Result().Body)
	return w.Code, body
}

// TestFullRequestFlow tests the complete flow: Quota → Sign → Upstream → Aggregate.
func TestFullRequestFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	s := newStack(t, redisClient, quota.DefaultConfig())
	ctx := context.Background()

	code, body := get(s.handler, "/characters_all?limit=250")
	if code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", code, body)
	}

	var result map[string]int
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(result) != 250 {
		t.Errorf("Expected 250 entries, got %d", len(result))
	}

	// 100 + 100 + 50
	if n := s.mock.GetRequestCount(); n != 3 {
		t.Errorf("Expected 3 upstream calls, got %d", n)
	}

	state, err := s.tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("Failed to get quota state: %v", err)
	}
	if state.CallsUsed != 3 {
		t.Errorf("Expected 3 calls recorded, got %d", state.CallsUsed)
	}

	if code, _ := get(s.handler, "/ready"); code != http.StatusOK {
		t.Errorf("Expected ready, got %d", code)
	}
}

// TestQuotaExhaustion verifies that a spent budget stops the aggregation
// before any upstream call.
func TestQuotaExhaustion(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	s := newStack(t, redisClient, quota.Config{DailyLimit: 2})

	code, body := get(s.handler, "/characters_all?limit=250")
	if code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 once the budget runs out mid-aggregation, got %d: %s", code, body)
	}
	if n := s.mock.GetRequestCount(); n != 2 {
		t.Errorf("Expected 2 upstream calls before blocking, got %d", n)
	}

	s.mock.Reset()
	code, _ = get(s.handler, "/comics")
	if code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", code)
	}
	if n := s.mock.GetRequestCount(); n != 0 {
		t.Errorf("Expected no upstream calls while exhausted, got %d", n)
	}
}

// TestUpstream429BlocksFurtherCalls verifies that an upstream 429 is
// remembered across requests.
func TestUpstream429BlocksFurtherCalls(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	s := newStack(t, redisClient, quota.DefaultConfig())
	s.mock.SetResponse("/series", testutil.MockResponse{StatusCode: http.StatusTooManyRequests, Body: `{"code":"RequestThrottled"}`})

	code, _ := get(s.handler, "/series")
	if code != http.StatusTooManyRequests {
		t.Fatalf("Expected upstream 429 passed through, got %d", code)
	}

	_, err := s.client.GetJSON(context.Background(), "characters", nil, "Failed to fetch characters")
	if !errors.Is(err, client.ErrQuotaExhausted) {
		t.Errorf("Expected ErrQuotaExhausted after 429, got %v", err)
	}
}

// TestSignatureRejected verifies that a wrong private key surfaces the
// upstream 401.
func TestSignatureRejected(t *testing.T) {
	mock := testutil.NewMockMarvel("pub", "priv")
	defer mock.Close()

	cfg := client.DefaultConfig(auth.Credentials{PublicKey: "pub", PrivateKey: "wrong"})
	cfg.BaseURL = mock.URL()
	cfg.Timeout = 5 * time.Second
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer c.Close()

	_, err = catalog.NewService(c).ListCharacters(context.Background(), catalog.PageRequest{Limit: 1})

	var ue *client.UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 UpstreamError, got %v", err)
	}
}
