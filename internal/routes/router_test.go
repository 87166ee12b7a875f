package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloudrams/internal/controllers"
	"cloudrams/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	args []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (int, string, string, error) {
	f.args = args
	return 1, "", "ERROR: The system cannot find the file specified.", nil
}

type testAgent struct {
	router  *gin.Engine
	dataDir string
	runner  *fakeRunner
}

func newTestAgent(t *testing.T, safeBaseDirs ...string) *testAgent {
	t.Helper()
	dataDir := t.TempDir()
	for _, dir := range []string{"cache", "downloads"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dataDir, dir), 0o755))
	}

	controllers.Configure(controllers.Settings{Version: "test", DataDir: dataDir})
	services.InitAuthService(services.AuthConfig{StaticToken: testToken})
	services.InitProcessService([]string{"no-such-process-cloudrams.exe"})
	services.InitArchiveService(filepath.Join(dataDir, "cache"), 10*services.MB, safeBaseDirs)
	services.InitTransferService(services.TransferConfig{
		DownloadsDir:     filepath.Join(dataDir, "downloads"),
		MaxDownloadBytes: services.MB,
		Timeout:          5 * time.Second,
		RetryWaitMin:     time.Millisecond,
		RetryWaitMax:     time.Millisecond,
	}, nil)
	runner := &fakeRunner{}
	services.InitAutorunService("CloudRAMS-LocalAgent", runner)

	return &testAgent{
		router:  NewRouter(RouterOptions{AllowedOrigins: []string{"http://localhost:5000"}}),
		dataDir: dataDir,
		runner:  runner,
	}
}

func (a *testAgent) do(t *testing.T, method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "127.0.0.1:50000"
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("X-Agent-Token", testToken)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthIsPublic(t *testing.T) {
	agent := newTestAgent(t)

	w := agent.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"service":"cloudrams-local-agent","version":"test"}`, w.Body.String())
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	agent := newTestAgent(t)

	for _, path := range []string{"/running_tasks", "/processes/", "/processes/status", "/system", "/autorun_status"} {
		w := agent.do(t, http.MethodGet, path, nil, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Equal(t, "Unauthorized (bad agent token)", decode(t, w)["error"], path)
	}
}

func TestNonLoopbackRejected(t *testing.T) {
	agent := newTestAgent(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	w := httptest.NewRecorder()
	agent.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRunningTasks(t *testing.T) {
	agent := newTestAgent(t)

	w := agent.do(t, http.MethodGet, "/running_tasks", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, []interface{}{}, body["tasks"])
	assert.NotEmpty(t, body["last_updated"])
}

func TestProcesses(t *testing.T) {
	agent := newTestAgent(t)

	w := agent.do(t, http.MethodGet, "/processes/?limit=3", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	procs := decode(t, w)["processes"].([]interface{})
	assert.LessOrEqual(t, len(procs), 3)

	w = agent.do(t, http.MethodGet, "/processes/?limit=abc", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = agent.do(t, http.MethodGet, "/processes/status", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Greater(t, decode(t, w)["total_processes"], 0.0)
}

func TestSystem(t *testing.T) {
	agent := newTestAgent(t)

	w := agent.do(t, http.MethodGet, "/system", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "test", body["agent_version"])
	assert.Equal(t, agent.dataDir, body["data_dir"])
}

func TestZipFolderRoute(t *testing.T) {
	allowed := t.TempDir()
	agent := newTestAgent(t, allowed)

	src := filepath.Join(allowed, "proj")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0o644))

	w := agent.do(t, http.MethodPost, "/zip_folder", map[string]string{"folder_path": src}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, 1.0, body["files"])
	assert.True(t, strings.HasPrefix(body["zip_path"].(string), filepath.Join(agent.dataDir, "cache")))

	w = agent.do(t, http.MethodPost, "/zip_folder", map[string]string{"folder_path": filepath.Join(allowed, "missing")}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = agent.do(t, http.MethodPost, "/zip_folder", map[string]string{"folder_path": t.TempDir()}, true)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Folder not allowed by SAFE_BASE_DIRS policy", decode(t, w)["error"])

	w = agent.do(t, http.MethodPost, "/zip_folder", "{not json", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = agent.do(t, http.MethodPost, "/zip_folder", map[string]string{}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadRoute(t *testing.T) {
	agent := newTestAgent(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("SignatureDoesNotMatch"))
	}))
	defer upstream.Close()

	file := filepath.Join(t.TempDir(), "p.zip")
	require.NoError(t, os.WriteFile(file, []byte("zip"), 0o644))

	w := agent.do(t, http.MethodPost, "/upload_to_url", map[string]string{"file_path": file, "put_url": upstream.URL + "/k"}, true)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "Upload failed: 403 SignatureDoesNotMatch", decode(t, w)["error"])

	w = agent.do(t, http.MethodPost, "/upload_to_url", map[string]string{"file_path": file + ".missing", "put_url": upstream.URL}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownloadRoute(t *testing.T) {
	agent := newTestAgent(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/big" {
			w.Write(bytes.Repeat([]byte("x"), 2*services.MB))
			return
		}
		w.Write([]byte("content"))
	}))
	defer upstream.Close()

	w := agent.do(t, http.MethodPost, "/download_from_url", map[string]string{"url": upstream.URL + "/f", "filename": "../report.txt"}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	saved := decode(t, w)["saved_to"].(string)
	assert.Equal(t, filepath.Join(agent.dataDir, "downloads", "report.txt"), saved)

	w = agent.do(t, http.MethodPost, "/download_from_url", map[string]string{"url": upstream.URL + "/big"}, true)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAutorunRoutes(t *testing.T) {
	agent := newTestAgent(t)

	w := agent.do(t, http.MethodGet, "/autorun_status", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":false,"task":"CloudRAMS-LocalAgent","stdout":"","stderr":"ERROR: The system cannot find the file specified."}`, w.Body.String())
	assert.Equal(t, "/Query", agent.runner.args[0])

	w = agent.do(t, http.MethodPost, "/install_autorun", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/Create", agent.runner.args[0])

	w = agent.do(t, http.MethodPost, "/install_autorun", map[string]interface{}{"exe_path": `C:\agent.exe`, "args": []string{"serve", "--debug"}}, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"C:\agent.exe" serve --debug`, agent.runner.args[len(agent.runner.args)-1])

	w = agent.do(t, http.MethodPost, "/run_autorun_now", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/Run", agent.runner.args[0])

	w = agent.do(t, http.MethodPost, "/uninstall_autorun", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/Delete", agent.runner.args[0])
}

func TestTokenStatus(t *testing.T) {
	agent := newTestAgent(t)

	token, err := services.GenerateToken("web-ui", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/token_status", nil)
	req.RemoteAddr = "127.0.0.1:50000"
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	agent.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "web-ui", decode(t, w)["client_name"])
}

func TestWebSocketEvents(t *testing.T) {
	agent := newTestAgent(t)
	hub := services.InitWebSocketHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(agent.router)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+testToken, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(services.ClientMessage{Type: "ping"}))
	var evt services.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, services.EventPong, evt.Type)

	require.NoError(t, conn.WriteJSON(services.ClientMessage{Type: "auth", Token: "wrong"}))
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, services.EventAuthError, evt.Type)

	require.NoError(t, conn.WriteJSON(services.ClientMessage{Type: "auth", Token: testToken}))
	evt = services.Event{}
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, services.EventAuthSuccess, evt.Type)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	hub.PublishTasks(nil)
	evt = services.Event{}
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, services.EventTasks, evt.Type)
}
