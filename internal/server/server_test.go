package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"AutoDailyReport/internal/capture"
	"AutoDailyReport/internal/config"
	"AutoDailyReport/internal/countdown"
	"AutoDailyReport/internal/pathguard"
	"AutoDailyReport/internal/storage"
)

// noopPresenter 测试用指示器
type noopPresenter struct{}

func (noopPresenter) SetStatus(string) {}

// stubAnalyzer 测试用分析器
type stubAnalyzer struct {
	text string
	err  error
}

func (s *stubAnalyzer) Analyze(imagePath, model, prompt string) (string, error) {
	return s.text, s.err
}

// stubStore 测试用凭据存储
type stubStore struct {
	secret string
}

func (s *stubStore) Set(secret string) error { s.secret = secret; return nil }
func (s *stubStore) Get() (string, error)    { return s.secret, nil }
func (s *stubStore) Has() (bool, error)      { return s.secret != "", nil }
func (s *stubStore) Delete() error           { s.secret = ""; return nil }

// testEnv 一套完整的测试装配
type testEnv struct {
	srv       *Server
	store     *stubStore
	sourceDir string
	outputDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	base := t.TempDir()
	sourceDir := filepath.Join(base, "cache")
	outputDir := filepath.Join(base, "pictures")
	for _, dir := range []string{sourceDir, outputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}

	configMgr, err := config.NewManager(filepath.Join(base, "config.json"))
	if err != nil {
		t.Fatalf("创建配置管理器失败: %v", err)
	}

	storageMgr, err := storage.NewManager(filepath.Join(base, "data"))
	if err != nil {
		t.Fatalf("创建存储管理器失败: %v", err)
	}
	t.Cleanup(func() { storageMgr.Close() })

	processor := capture.NewProcessor(
		pathguard.NewPolicy("temp-and-cache", sourceDir),
		outputDir,
	)

	store := &stubStore{}
	srv := NewServer(
		configMgr,
		storageMgr,
		countdown.NewScheduler(noopPresenter{}, nil),
		processor,
		nil, // 引擎不参与 handler 级测试
		&stubAnalyzer{text: "分析结果"},
		store,
		"test",
	)

	return &testEnv{srv: srv, store: store, sourceDir: sourceDir, outputDir: outputDir}
}

// doJSON 发送 JSON 请求并返回响应
func (e *testEnv) doJSON(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("解析响应失败: %v (body=%s)", err, w.Body.String())
	}
	return m
}

func TestCountdownLifecycle(t *testing.T) {
	env := newTestEnv(t)

	// 启动
	w := env.doJSON(t, "POST", "/api/countdown/start", map[string]interface{}{"interval_seconds": 120})
	if w.Code != http.StatusOK {
		t.Fatalf("start = %d, body=%s", w.Code, w.Body.String())
	}

	// 查询
	w = env.doJSON(t, "GET", "/api/countdown/remaining", nil)
	body := decodeBody(t, w)
	if body["running"] != true {
		t.Error("启动后 running 应为 true")
	}
	if rem := body["remaining_seconds"].(float64); rem > 120 {
		t.Errorf("remaining = %v, 不应超过间隔", rem)
	}

	// 重置
	w = env.doJSON(t, "POST", "/api/countdown/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset = %d", w.Code)
	}

	// 停止
	w = env.doJSON(t, "POST", "/api/countdown/stop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stop = %d", w.Code)
	}
}

func TestCountdownStartUsesConfiguredInterval(t *testing.T) {
	env := newTestEnv(t)

	// 不带 body 时落回配置值（默认 600 秒）
	w := env.doJSON(t, "POST", "/api/countdown/start", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start = %d, body=%s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if got := body["interval_seconds"].(float64); got != 600 {
		t.Errorf("interval_seconds = %v, want 600", got)
	}
}

func TestCountdownCapturingFlag(t *testing.T) {
	env := newTestEnv(t)

	w := env.doJSON(t, "POST", "/api/countdown/capturing", map[string]interface{}{"is_capturing": true})
	if w.Code != http.StatusOK {
		t.Fatalf("capturing = %d", w.Code)
	}

	w = env.doJSON(t, "GET", "/api/countdown/remaining", nil)
	if decodeBody(t, w)["capturing"] != true {
		t.Error("capturing 标志未生效")
	}
}

func TestProcessEndpoint(t *testing.T) {
	env := newTestEnv(t)

	// 在来源目录放一张真实 PNG
	src := filepath.Join(env.sourceDir, "raw.png")
	f, err := os.Create(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 100, 80))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	w := env.doJSON(t, "POST", "/api/screenshots/process", map[string]interface{}{"source_path": src})
	if w.Code != http.StatusOK {
		t.Fatalf("process = %d, body=%s", w.Code, w.Body.String())
	}

	dest := decodeBody(t, w)["artifact_path"].(string)
	if !strings.HasPrefix(dest, env.outputDir) {
		t.Errorf("产物路径 %s 不在输出目录下", dest)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("产物文件不存在: %v", err)
	}
}

func TestProcessRejectsOutsidePath(t *testing.T) {
	env := newTestEnv(t)

	outside := filepath.Join(t.TempDir(), "evil.png")
	if err := os.WriteFile(outside, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	w := env.doJSON(t, "POST", "/api/screenshots/process", map[string]interface{}{"source_path": outside})
	if w.Code != http.StatusBadRequest {
		t.Errorf("目录外来源应返回 400, got %d", w.Code)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.doJSON(t, "POST", "/api/screenshots/analyze", map[string]interface{}{
		"image_path": filepath.Join(env.outputDir, "shot.jpg"),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("analyze = %d, body=%s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["analysis"] != "分析结果" {
		t.Errorf("analysis = %v", body["analysis"])
	}
	if !strings.HasSuffix(body["sidecar_path"].(string), "shot.json") {
		t.Errorf("sidecar_path = %v", body["sidecar_path"])
	}
}

func TestSecretLifecycle(t *testing.T) {
	env := newTestEnv(t)

	// 初始为空
	w := env.doJSON(t, "GET", "/api/secret", nil)
	if decodeBody(t, w)["has_secret"] != false {
		t.Error("初始状态不应有密钥")
	}

	// 保存
	w = env.doJSON(t, "PUT", "/api/secret", map[string]interface{}{"api_key": "sk-test"})
	if w.Code != http.StatusOK {
		t.Fatalf("set secret = %d", w.Code)
	}

	// 查询只回布尔，不回显密钥
	w = env.doJSON(t, "GET", "/api/secret", nil)
	if decodeBody(t, w)["has_secret"] != true {
		t.Error("保存后应报告密钥存在")
	}
	if strings.Contains(w.Body.String(), "sk-test") {
		t.Error("密钥查询不应回显密钥本身")
	}

	// 删除
	w = env.doJSON(t, "DELETE", "/api/secret", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete secret = %d", w.Code)
	}
	w = env.doJSON(t, "GET", "/api/secret", nil)
	if decodeBody(t, w)["has_secret"] != false {
		t.Error("删除后不应再报告密钥存在")
	}
}

func TestCaptureNowWithoutEngine(t *testing.T) {
	env := newTestEnv(t)

	w := env.doJSON(t, "POST", "/api/screenshots/capture", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("引擎未运行时应返回 409, got %d", w.Code)
	}
}

func TestTodayStatsEmpty(t *testing.T) {
	env := newTestEnv(t)

	w := env.doJSON(t, "GET", "/api/stats/today", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats = %d, body=%s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["total"].(float64) != 0 || body["analyzed"].(float64) != 0 {
		t.Errorf("空库统计应为 0/0, got %v/%v", body["total"], body["analyzed"])
	}
}
