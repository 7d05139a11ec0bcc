package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/planora/server/internal/api"
	"github.com/planora/server/internal/auth"
	"github.com/planora/server/internal/config"
	"github.com/planora/server/internal/domain/events"
	"github.com/planora/server/internal/domain/ids"
	"github.com/planora/server/internal/domain/registrations"
	"github.com/planora/server/internal/domain/users"
	"github.com/planora/server/internal/media"
	"github.com/planora/server/internal/storage/postgres"
)

type testEnv struct {
	Context  context.Context
	Pool     *pgxpool.Pool
	Server   *httptest.Server
	JWT      *auth.JWTManager
	MediaDir string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	container, err := tcpostgres.Run(
		ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("planora"),
		tcpostgres.WithUsername("planora"),
		tcpostgres.WithPassword("planora_dev"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrationsPath := filepath.Join(projectRoot(t), "internal", "storage", "postgres", "migrations")
	require.NoError(t, migrateWithRetry(dbURL, migrationsPath, 10*time.Second))

	pool, err := postgres.NewPool(ctx, dbURL, 5)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	eventRepo, err := postgres.NewEventRepository(pool)
	require.NoError(t, err)
	regRepo, err := postgres.NewRegistrationRepository(pool)
	require.NoError(t, err)
	userRepo, err := postgres.NewUserRepository(pool)
	require.NoError(t, err)

	mediaDir := t.TempDir()
	store, err := media.NewDiskStore(mediaDir, "/uploads")
	require.NoError(t, err)

	logger := zerolog.New(io.Discard)
	jwt := auth.NewJWTManager("test-secret-32-bytes-minimum----", time.Hour, "planora-test")

	server := httptest.NewServer(api.NewRouter(api.Deps{
		Config:     testConfig(dbURL),
		Logger:     logger,
		Pool:       pool,
		JWT:        jwt,
		Events:     events.NewService(eventRepo),
		Lifecycle:  events.NewLifecycleService(eventRepo, store, logger),
		Admissions: registrations.NewService(regRepo, eventRepo, nil, logger),
		Users:      users.NewService(userRepo, jwt, logger),
		MediaDir:   mediaDir,
	}))
	t.Cleanup(server.Close)

	return &testEnv{
		Context:  ctx,
		Pool:     pool,
		Server:   server,
		JWT:      jwt,
		MediaDir: mediaDir,
	}
}

func testConfig(dbURL string) config.Config {
	return config.Config{
		Server: config.ServerConfig{
			Host:    "127.0.0.1",
			Port:    0,
			BaseURL: "http://localhost",
		},
		Database: config.DatabaseConfig{
			URL:            dbURL,
			MaxConnections: 5,
		},
		Auth: config.AuthConfig{
			JWTSecret: "test-secret-32-bytes-minimum----",
			JWTExpiry: time.Hour,
			Issuer:    "planora-test",
		},
		RateLimit: config.RateLimitConfig{
			PublicPerMinute: 0,
			UserPerMinute:   0,
			LoginPerMinute:  0,
		},
		Logging: config.LoggingConfig{
			Level:  "debug",
			Format: "json",
		},
		Environment: "test",
	}
}

func projectRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}

func migrateWithRetry(databaseURL string, migrationsPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := postgres.MigrateUp(databaseURL, migrationsPath); err != nil {
			if time.Now().After(deadline) {
				return err
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}
		return nil
	}
}

// doJSON sends a JSON request to the test server. A nil body sends no payload;
// an empty token sends no Authorization header.
func doJSON(t *testing.T, env *testEnv, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.Server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

// signupUser registers an account through the API and returns its id and token.
func signupUser(t *testing.T, env *testEnv, name, email, role string) (string, string) {
	t.Helper()

	resp := doJSON(t, env, http.MethodPost, "/api/v1/auth/signup", "", map[string]any{
		"name":     name,
		"email":    email,
		"password": "correct-horse-battery",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	payload := decodeBody(t, resp)
	token, _ := payload["token"].(string)
	require.NotEmpty(t, token)
	user, _ := payload["user"].(map[string]any)
	id, _ := user["id"].(string)
	require.NotEmpty(t, id)
	return id, token
}

// insertAdmin seeds an admin row directly; signup cannot mint admins.
func insertAdmin(t *testing.T, env *testEnv, email string) (string, string) {
	t.Helper()

	id, err := ids.NewULID()
	require.NoError(t, err)
	hash, err := auth.HashPassword("correct-horse-battery")
	require.NoError(t, err)

	_, err = env.Pool.Exec(env.Context,
		`INSERT INTO users (id, name, email, password_hash, role, status) VALUES ($1, $2, $3, $4, 'admin', 'active')`,
		id, "Admin", email, hash,
	)
	require.NoError(t, err)

	token, err := env.JWT.Generate(id, auth.RoleAdmin)
	require.NoError(t, err)
	return id, token
}

func createEvent(t *testing.T, env *testEnv, token string, capacity int) string {
	t.Helper()

	resp := doJSON(t, env, http.MethodPost, "/api/v1/events", token, map[string]any{
		"title":    "Harbour Lights Concert",
		"location": "Pier 21",
		"date":     "2026-10-03",
		"capacity": capacity,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	payload := decodeBody(t, resp)
	id, _ := payload["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func countRows(t *testing.T, env *testEnv, query string, args ...any) int {
	t.Helper()
	var count int
	require.NoError(t, env.Pool.QueryRow(env.Context, query, args...).Scan(&count))
	return count
}

func problemType(t *testing.T, resp *http.Response) string {
	t.Helper()
	payload := decodeBody(t, resp)
	typ, _ := payload["type"].(string)
	return typ
}

func emailFor(prefix string, n int) string {
	return fmt.Sprintf("%s-%d@example.com", prefix, n)
}
