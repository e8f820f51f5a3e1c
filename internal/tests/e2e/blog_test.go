//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/kedevs/blogapi/config"
	"github.com/kedevs/blogapi/internal/db"
	"github.com/kedevs/blogapi/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage    = "postgres:16-alpine"
	postgresUser     = "blog"
	postgresPassword = "blog"
	postgresDB       = "blog_e2e"
)

var (
	baseURL string
	cfg     config.Config
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		os.Exit(1)
	}

	cancel, err := startServer(ctx, container)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start server: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()

	cancel()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestBlogLifecycle(t *testing.T) {
	suffix := strconv.FormatInt(time.Now().UnixNano(), 36)
	alice := "alice_" + suffix
	bob := "bob_" + suffix
	password := "testpass123!"

	signup(t, alice, password)
	signup(t, bob, password)

	aliceTokens := login(t, alice, password)
	bobTokens := login(t, bob, password)

	status, body := doJSON(t, http.MethodPost, "/posts", "", map[string]string{"title": "Anon", "content": "no"})
	require.Equal(t, http.StatusUnauthorized, status, body)

	var post postResponse
	status, body = doJSON(t, http.MethodPost, "/posts", aliceTokens.Access, map[string]string{
		"title":   "Hello",
		"content": "first post",
	})
	require.Equal(t, http.StatusCreated, status, body)
	require.NoError(t, json.Unmarshal([]byte(body), &post))
	assert.NotZero(t, post.ID)
	assert.Equal(t, alice, post.Author)

	status, body = doJSON(t, http.MethodGet, fmt.Sprintf("/posts/%d", post.ID), "", nil)
	require.Equal(t, http.StatusOK, status, body)

	status, body = doJSON(t, http.MethodPatch, fmt.Sprintf("/posts/%d", post.ID), bobTokens.Access, map[string]string{"title": "Hijacked"})
	require.Equal(t, http.StatusForbidden, status, body)

	status, body = doJSON(t, http.MethodDelete, fmt.Sprintf("/posts/%d", post.ID), bobTokens.Access, nil)
	require.Equal(t, http.StatusForbidden, status, body)

	status, body = doJSON(t, http.MethodPatch, fmt.Sprintf("/posts/%d", post.ID), aliceTokens.Access, map[string]string{"title": "Hello again"})
	require.Equal(t, http.StatusOK, status, body)
	require.NoError(t, json.Unmarshal([]byte(body), &post))
	assert.Equal(t, "Hello again", post.Title)
	assert.Equal(t, "first post", post.Content)

	require.NoError(t, promoteToStaff(bob+"@example.com"))

	status, body = doJSON(t, http.MethodDelete, fmt.Sprintf("/posts/%d", post.ID), bobTokens.Access, nil)
	require.Equal(t, http.StatusNoContent, status, body)

	status, body = doJSON(t, http.MethodGet, fmt.Sprintf("/posts/%d", post.ID), "", nil)
	require.Equal(t, http.StatusNotFound, status, body)
}

func TestRefreshIssuesUsableAccessToken(t *testing.T) {
	username := "carol_" + strconv.FormatInt(time.Now().UnixNano(), 36)
	signup(t, username, "testpass123!")
	tokens := login(t, username, "testpass123!")

	status, body := doJSON(t, http.MethodPost, "/refresh", "", map[string]string{"refresh": tokens.Refresh})
	require.Equal(t, http.StatusOK, status, body)

	var refreshed struct {
		Access string `json:"access"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &refreshed))
	require.NotEmpty(t, refreshed.Access)

	status, body = doJSON(t, http.MethodGet, "/me", refreshed.Access, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, username)

	status, _ = doJSON(t, http.MethodGet, "/me", tokens.Refresh, nil)
	assert.Equal(t, http.StatusUnauthorized, status, "refresh token must not authenticate requests")
}

type postResponse struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Author  string `json:"author"`
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func signup(t *testing.T, username, password string) {
	t.Helper()

	status, body := doJSON(t, http.MethodPost, "/signup", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
	})
	require.Equal(t, http.StatusCreated, status, body)
}

func login(t *testing.T, username, password string) tokenResponse {
	t.Helper()

	status, body := doJSON(t, http.MethodPost, "/login", "", map[string]string{
		"email":    username + "@example.com",
		"password": password,
	})
	require.Equal(t, http.StatusOK, status, body)

	var tokens tokenResponse
	require.NoError(t, json.Unmarshal([]byte(body), &tokens))
	require.NotEmpty(t, tokens.Access)
	require.NotEmpty(t, tokens.Refresh)
	return tokens
}

func doJSON(t *testing.T, method, path, token string, payload any) (int, string) {
	t.Helper()

	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, strings.TrimSpace(string(body))
}

func promoteToStaff(email string) error {
	conn, err := sql.Open("postgres", db.PostgresURL(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := conn.ExecContext(ctx, `UPDATE users SET is_staff = TRUE WHERE email = $1`, email)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("user %s not found", email)
	}
	return nil
}

func startPostgres(ctx context.Context) (testcontainers.Container, error) {
	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		// Postgres restarts once after running init scripts.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	return testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
}

func startServer(ctx context.Context, container testcontainers.Container) (context.CancelFunc, error) {
	host, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}
	mapped, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return nil, err
	}
	port, err := freePort()
	if err != nil {
		return nil, err
	}

	cfg = config.Config{
		Env:        "test",
		ServerPort: port,
		Database: config.DatabaseConfig{
			Driver:   config.DriverPostgres,
			Host:     host,
			Port:     mapped.Int(),
			User:     postgresUser,
			Password: postgresPassword,
			DBName:   postgresDB,
		},
		Auth: config.AuthConfig{
			JWTSecret:       "e2e-secret",
			Issuer:          "blogapi",
			AccessTokenTTL:  5 * time.Minute,
			RefreshTokenTTL: 24 * time.Hour,
			BcryptCost:      4,
		},
		Log: config.LogConfig{Level: "warn", Format: "json"},
		MQ:  config.MQConfig{Backend: config.MQBackendNone},
	}

	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	err = db.MigrateUp(conn, config.DriverPostgres)
	_ = conn.Close()
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	srv, err := server.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(runCtx)
	}()

	baseURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	if err := waitForHealth(baseURL+"/healthz", 30*time.Second); err != nil {
		cancel()
		<-done
		return nil, err
	}

	return func() {
		cancel()
		<-done
	}, nil
}

func waitForHealth(url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("server not healthy after %s", timeout)
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
