package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/barrett-share/internal/auth"
	"github.com/prn-tf/barrett-share/internal/cache/memory"
	"github.com/prn-tf/barrett-share/internal/config"
	"github.com/prn-tf/barrett-share/internal/domain"
	"github.com/prn-tf/barrett-share/internal/lock"
	"github.com/prn-tf/barrett-share/internal/metrics"
	"github.com/prn-tf/barrett-share/internal/repository/sqlite"
	"github.com/prn-tf/barrett-share/internal/service"
	"github.com/prn-tf/barrett-share/internal/storage"
)

// testServer is a fully wired API over sqlite :memory: and a tempdir
// filesystem backend.
type testServer struct {
	*httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(":memory:"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))

	root := t.TempDir()
	backend, err := storage.NewFilesystemBackend(
		filepath.Join(root, "data"),
		filepath.Join(root, "tmp"),
		logger,
	)
	require.NoError(t, err)

	cache := memory.NewCache()
	t.Cleanup(cache.Stop)

	hasher := auth.NewPasswordHasher()
	tokens := auth.NewTokenManager(config.AuthConfig{
		JWTSecret: "handler-test-secret-key-0123456789abc",
		TokenTTL:  time.Hour,
	})

	userService := service.NewUserService(sqlite.NewUserRepository(db), hasher, tokens, logger)
	fileService := service.NewFileService(
		sqlite.NewFileRepository(db),
		backend,
		cache,
		lock.NewMemoryLocker(),
		hasher,
		logger,
	)

	m := metrics.New()
	router := NewRouter(RouterConfig{
		AuthHandler:     NewAuthHandler(userService, logger),
		FileHandler:     NewFileHandler(fileService, m, 1<<20, logger),
		DownloadHandler: NewDownloadHandler(fileService, m, logger),
		AuthMiddleware:  auth.NewMiddleware(tokens, logger),
		Metrics:         m,
		CORS:            config.CORSConfig{AllowedOrigins: []string{"*"}, MaxAge: 300},
		RateLimit:       config.RateLimitConfig{Enabled: false},
		Health:          db,
		Logger:          logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv}
}

func (s *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func (s *testServer) doJSON(t *testing.T, method, path, token string, payload any) *http.Response {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return s.do(t, method, path, token, bytes.NewReader(data), "application/json")
}

func (s *testServer) register(t *testing.T, username, password string) {
	t.Helper()

	resp := s.doJSON(t, http.MethodPost, "/register", "", map[string]string{
		"username": username,
		"password": password,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()

	resp := s.doJSON(t, http.MethodPost, "/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	token, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(token)
}

func (s *testServer) upload(t *testing.T, token, filename, content string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp := s.do(t, http.MethodPost, "/upload", token, &buf, mw.FormDataContentType())
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (s *testServer) listFiles(t *testing.T, token string) []domain.FileListItem {
	t.Helper()

	resp := s.do(t, http.MethodGet, "/files", token, nil, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var items []domain.FileListItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	return items
}

func (s *testServer) setPermission(t *testing.T, token string, fileID int64, permission, password string) *http.Response {
	t.Helper()

	payload := map[string]string{"permission": permission}
	if password != "" {
		payload["password"] = password
	}
	return s.doJSON(t, http.MethodPut, fmt.Sprintf("/files/%d/permission", fileID), token, payload)
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)

	s.register(t, "alice", "correcthorse")
	token := s.login(t, "alice", "correcthorse")
	require.NotEmpty(t, token)

	t.Run("duplicate username conflicts", func(t *testing.T) {
		resp := s.doJSON(t, http.MethodPost, "/register", "", map[string]string{
			"username": "alice",
			"password": "otherpassword",
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("wrong password unauthorized", func(t *testing.T) {
		resp := s.doJSON(t, http.MethodPost, "/login", "", map[string]string{
			"username": "alice",
			"password": "wrong",
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("short password rejected", func(t *testing.T) {
		resp := s.doJSON(t, http.MethodPost, "/register", "", map[string]string{
			"username": "bob",
			"password": "short",
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestUploadRequiresAuth(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/upload", "", strings.NewReader("x"), "text/plain")
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInvalidTokenIs401(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/files", "garbage-token", nil, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFileLifecycle(t *testing.T) {
	s := newTestServer(t)

	s.register(t, "alice", "correcthorse")
	token := s.login(t, "alice", "correcthorse")

	s.upload(t, token, "notes.txt", "my notes")

	items := s.listFiles(t, token)
	require.Len(t, items, 1)
	require.Equal(t, "notes.txt", items[0].OriginalFilename)
	require.Equal(t, domain.PermissionPrivate, items[0].Permission)
	require.NotEmpty(t, items[0].LinkID)

	t.Run("detail", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, fmt.Sprintf("/files/%d", items[0].ID), token, nil, "")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var detail struct {
			ID               int64  `json:"id"`
			Size             int64  `json:"size"`
			Username         string `json:"username"`
			OriginalFilename string `json:"originalFilename"`
			LinkID           string `json:"linkId"`
			Permission       string `json:"permission"`
			ContentType      string `json:"contentType"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
		require.Equal(t, items[0].ID, detail.ID)
		require.Equal(t, int64(8), detail.Size)
		require.Equal(t, "alice", detail.Username)
		require.Equal(t, items[0].LinkID, detail.LinkID)
	})

	t.Run("other user cannot see it", func(t *testing.T) {
		s.register(t, "bob", "correcthorse")
		bobToken := s.login(t, "bob", "correcthorse")

		require.Empty(t, s.listFiles(t, bobToken))

		resp := s.do(t, http.MethodGet, fmt.Sprintf("/files/%d", items[0].ID), bobToken, nil, "")
		defer resp.Body.Close()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("delete", func(t *testing.T) {
		resp := s.do(t, http.MethodDelete, fmt.Sprintf("/files/%d", items[0].ID), token, nil, "")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		detail := s.do(t, http.MethodGet, fmt.Sprintf("/files/%d", items[0].ID), token, nil, "")
		defer detail.Body.Close()
		require.Equal(t, http.StatusNotFound, detail.StatusCode)

		dl := s.do(t, http.MethodGet, "/download/"+items[0].LinkID, "", nil, "")
		defer dl.Body.Close()
		require.Equal(t, http.StatusNotFound, dl.StatusCode)
	})
}

func TestPermissionTransitions(t *testing.T) {
	s := newTestServer(t)

	s.register(t, "alice", "correcthorse")
	token := s.login(t, "alice", "correcthorse")
	s.upload(t, token, "secret.txt", "top secret")
	fileID := s.listFiles(t, token)[0].ID

	t.Run("protected without password is 400", func(t *testing.T) {
		resp := s.setPermission(t, token, fileID, "protected", "")
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		// Permission is unchanged on failure.
		require.Equal(t, domain.PermissionPrivate, s.listFiles(t, token)[0].Permission)
	})

	t.Run("invalid permission value is 400", func(t *testing.T) {
		resp := s.setPermission(t, token, fileID, "everyone", "")
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("protected with password succeeds", func(t *testing.T) {
		resp := s.setPermission(t, token, fileID, "protected", "filepass")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, domain.PermissionProtected, s.listFiles(t, token)[0].Permission)
	})

	t.Run("non-owner cannot change permission", func(t *testing.T) {
		s.register(t, "bob", "correcthorse")
		bobToken := s.login(t, "bob", "correcthorse")

		resp := s.setPermission(t, bobToken, fileID, "public", "")
		defer resp.Body.Close()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestDownloadAccessControl(t *testing.T) {
	s := newTestServer(t)

	s.register(t, "alice", "correcthorse")
	token := s.login(t, "alice", "correcthorse")
	s.upload(t, token, "shared.txt", "share me")
	item := s.listFiles(t, token)[0]

	t.Run("private anonymous is 403", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/download/"+item.LinkID, "", nil, "")
		defer resp.Body.Close()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("private owner succeeds", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/download/"+item.LinkID, token, nil, "")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, "share me", string(data))
	})

	t.Run("protected round trip", func(t *testing.T) {
		resp := s.setPermission(t, token, item.ID, "protected", "hunter2")
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		ok := s.do(t, http.MethodGet, "/download/"+item.LinkID+"?password=hunter2", "", nil, "")
		defer ok.Body.Close()
		require.Equal(t, http.StatusOK, ok.StatusCode)
		data, err := io.ReadAll(ok.Body)
		require.NoError(t, err)
		require.Equal(t, "share me", string(data))

		wrong := s.do(t, http.MethodGet, "/download/"+item.LinkID+"?password=wrong", "", nil, "")
		defer wrong.Body.Close()
		require.Equal(t, http.StatusForbidden, wrong.StatusCode)

		missing := s.do(t, http.MethodGet, "/download/"+item.LinkID, "", nil, "")
		defer missing.Body.Close()
		require.Equal(t, http.StatusForbidden, missing.StatusCode)
	})

	t.Run("unknown link is 404", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/download/doesnotexist", "", nil, "")
		defer resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestEndToEndPublicShare(t *testing.T) {
	// Upload a 10-byte file, flip it public, fetch it with no auth.
	s := newTestServer(t)

	s.register(t, "alice", "correcthorse")
	token := s.login(t, "alice", "correcthorse")
	s.upload(t, token, "hello.txt", "helloworld")

	items := s.listFiles(t, token)
	require.Len(t, items, 1)
	require.Equal(t, domain.PermissionPrivate, items[0].Permission)

	resp := s.setPermission(t, token, items[0].ID, "public", "")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dl := s.do(t, http.MethodGet, "/download/"+items[0].LinkID, "", nil, "")
	defer dl.Body.Close()
	require.Equal(t, http.StatusOK, dl.StatusCode)
	require.Equal(t, "10", dl.Header.Get("Content-Length"))
	require.Contains(t, dl.Header.Get("Content-Disposition"), "hello.txt")

	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	require.Equal(t, "helloworld", string(data))
}

func TestUploadTooLargeIs413(t *testing.T) {
	s := newTestServer(t)

	s.register(t, "alice", "correcthorse")
	token := s.login(t, "alice", "correcthorse")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "big.bin")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), 1<<20+4096))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp := s.do(t, http.MethodPost, "/upload", token, &buf, mw.FormDataContentType())
	defer resp.Body.Close()
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/health", "", nil, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "healthy", body["status"])
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, s.URL+"/files", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://ui.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}
