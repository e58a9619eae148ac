package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthcheck "github.com/vladislavdragonenkov/backoffice/internal/health"
)

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger).WithField("component", "test")
}

func getStatus(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestStartMetricsServer_ServesProbesAndMetrics(t *testing.T) {
	port := findFreePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := healthcheck.NewHandler("test")
	handler.RegisterChecker("storage", healthcheck.NewPingChecker("storage", time.Second, func(context.Context) error { return nil }))
	srv := startMetricsServer(ctx, fmt.Sprintf("127.0.0.1:%d", port), testLogger(), handler)
	require.NotNil(t, srv)

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.True(t, waitForHTTP(base+"/livez", time.Second))

	code, body := getStatus(t, base+"/metrics")
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, body)

	code, body = getStatus(t, base+"/livez")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body)

	code, body = getStatus(t, base+"/healthz")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"storage"`)

	code, _ = getStatus(t, base+"/readyz")
	require.Equal(t, http.StatusOK, code)
}

func TestStartMetricsServer_ReadinessFailsOnBrokenStorage(t *testing.T) {
	port := findFreePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := healthcheck.NewHandler("test")
	handler.RegisterChecker("storage", healthcheck.NewPingChecker("storage", time.Second, func(context.Context) error {
		return errors.New("connection refused")
	}))
	startMetricsServer(ctx, fmt.Sprintf("127.0.0.1:%d", port), testLogger(), handler)

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.True(t, waitForHTTP(base+"/livez", time.Second))

	code, body := getStatus(t, base+"/readyz")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Contains(t, body, "storage")
}

func TestStartMetricsServer_StopsOnContextCancel(t *testing.T) {
	port := findFreePort(t)
	ctx, cancel := context.WithCancel(context.Background())

	startMetricsServer(ctx, fmt.Sprintf("127.0.0.1:%d", port), testLogger(), healthcheck.NewHandler("test"))
	url := fmt.Sprintf("http://127.0.0.1:%d/livez", port)
	require.True(t, waitForHTTP(url, time.Second))

	cancel()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
		}
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestShutdownHTTP_NilServer(_ *testing.T) {
	shutdownHTTP(nil, testLogger())
}

func TestNewGRPCServer_HealthServing(t *testing.T) {
	grpcServer, healthServer := newGRPCServer(testLogger())
	// повторная регистрация метрик не должна ломать создание сервера
	second, secondHealth := newGRPCServer(testLogger())
	second.Stop()
	secondHealth.Shutdown()

	for _, service := range []string{"", grpcServiceName} {
		resp, err := healthServer.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	}

	shutdownGRPC(grpcServer, healthServer, testLogger())

	resp, err := healthServer.Check(context.Background(), &healthpb.HealthCheckRequest{Service: grpcServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestShutdownGRPC_NilServer(_ *testing.T) {
	shutdownGRPC(nil, nil, testLogger())
}

func TestShutdownAPI_StopsListener(t *testing.T) {
	shutdownAPI(nil, testLogger())

	api := fiber.New(fiber.Config{DisableStartupMessage: true})
	api.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- api.Listener(lis) }()

	url := fmt.Sprintf("http://%s/ping", lis.Addr())
	require.True(t, waitForHTTP(url, time.Second))

	shutdownAPI(api, testLogger())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fiber listener did not stop")
	}
}

// findFreePort находит свободный порт для тестов
func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
