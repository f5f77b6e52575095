package analysis

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"AutoDailyReport/internal/pathguard"
	"AutoDailyReport/internal/secrets"
	"AutoDailyReport/pkg/models"
)

// stubStore 测试用凭据存储
type stubStore struct {
	secret string
	err    error
}

func (s *stubStore) Set(secret string) error { s.secret = secret; return nil }
func (s *stubStore) Get() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.secret, nil
}
func (s *stubStore) Has() (bool, error) { return s.secret != "", nil }
func (s *stubStore) Delete() error      { s.secret = ""; return nil }

// stubCollector 测试用环境采集器
type stubCollector struct {
	info models.ContextInfo
}

func (s *stubCollector) Collect() models.ContextInfo { return s.info }

// successBody 标准成功响应
func successBody(text string) string {
	return `{"choices":[{"message":{"content":` + strconvQuote(text) + `}}]}`
}

func strconvQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// newTestClient 构造带 httptest 端点的客户端, 返回产物目录
func newTestClient(t *testing.T, handler http.Handler, collector *stubCollector) (*Client, string) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	root := t.TempDir()
	if collector == nil {
		collector = &stubCollector{}
	}
	c := NewClient(
		pathguard.NewPolicy("artifact-root", root),
		&stubStore{secret: "sk-test"},
		collector,
		models.AIConfig{
			Endpoint:    srv.URL,
			MaxTokens:   1024,
			Temperature: 0.1,
		},
	)
	return c, root
}

// writeArtifact 在产物目录放一个假图片文件
func writeArtifact(t *testing.T, root, name string) string {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.WriteFile(path, []byte("fake-jpeg-bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyze_Success(t *testing.T) {
	var gotReq chatRequest
	var gotAuth string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(successBody("正在编写 Go 代码")))
	})

	c, root := newTestClient(t, handler, nil)
	img := writeArtifact(t, root, "20250114_093045_001.jpg")

	text, err := c.Analyze(img, "gpt-4o", "描述这张截图")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if text != "正在编写 Go 代码" {
		t.Errorf("Analyze() = %q", text)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want Bearer sk-test", gotAuth)
	}
	if gotReq.Model != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", gotReq.Model)
	}
	if gotReq.MaxTokens != 1024 || gotReq.Temperature != 0.1 {
		t.Errorf("生成参数 = %d/%v, want 1024/0.1", gotReq.MaxTokens, gotReq.Temperature)
	}
}

func TestAnalyze_WritesSidecar(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(successBody("分析结果")))
	})

	collector := &stubCollector{info: models.ContextInfo{WifiSSID: "office-wifi"}}
	c, root := newTestClient(t, handler, collector)
	img := writeArtifact(t, root, "shot.jpg")

	if _, err := c.Analyze(img, "gpt-4o", "p"); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "shot.json"))
	if err != nil {
		t.Fatalf("sidecar 未写入: %v", err)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("sidecar 解析失败: %v", err)
	}
	if result.Analysis != "分析结果" {
		t.Errorf("sidecar analysis = %q", result.Analysis)
	}
	if result.Model != "gpt-4o" {
		t.Errorf("sidecar model = %q", result.Model)
	}
	if result.Context.WifiSSID != "office-wifi" {
		t.Errorf("sidecar context ssid = %q", result.Context.WifiSSID)
	}
	if result.Timestamp.IsZero() {
		t.Error("sidecar timestamp 为零值")
	}
}

func TestAnalyze_ContextAppendedToPrompt(t *testing.T) {
	var gotReq chatRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(successBody("ok")))
	})

	collector := &stubCollector{info: models.ContextInfo{
		WifiSSID: "office-wifi",
		Location: &models.Location{Latitude: 35.6812, Longitude: 139.7671},
	}}
	c, root := newTestClient(t, handler, collector)
	img := writeArtifact(t, root, "shot.jpg")

	if _, err := c.Analyze(img, "gpt-4o", "基础提示词"); err != nil {
		t.Fatal(err)
	}

	raw, _ := json.Marshal(gotReq.Messages)
	body := string(raw)
	if !strings.Contains(body, "office-wifi") {
		t.Error("请求中缺少 WiFi SSID")
	}
	if !strings.Contains(body, "35.6812") {
		t.Error("请求中缺少坐标")
	}
	if !strings.Contains(body, "基础提示词") {
		t.Error("请求中缺少原始提示词")
	}
}

func TestAnalyze_PNGMimeType(t *testing.T) {
	var gotReq chatRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(successBody("ok")))
	})

	c, root := newTestClient(t, handler, nil)
	img := writeArtifact(t, root, "shot.png")

	if _, err := c.Analyze(img, "m", "p"); err != nil {
		t.Fatal(err)
	}

	raw, _ := json.Marshal(gotReq.Messages)
	if !strings.Contains(string(raw), "data:image/png;base64,") {
		t.Error("PNG 文件应使用 image/png MIME 类型")
	}
}

func TestAnalyze_OutsideArtifactRootNoNetworkCall(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(successBody("ok")))
	})

	c, _ := newTestClient(t, handler, nil)

	outside := t.TempDir()
	img := writeArtifact(t, outside, "evil.jpg")

	if _, err := c.Analyze(img, "m", "p"); !errors.Is(err, pathguard.ErrPathRejected) {
		t.Fatalf("Analyze() error = %v, want ErrPathRejected", err)
	}
	if calls.Load() != 0 {
		t.Errorf("路径被拒后仍发起了 %d 次网络请求", calls.Load())
	}
}

func TestAnalyze_MissingCredential(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	c, root := newTestClient(t, handler, nil)
	c.store = &stubStore{err: secrets.ErrCredentialMissing}
	img := writeArtifact(t, root, "shot.jpg")

	if _, err := c.Analyze(img, "m", "p"); !errors.Is(err, secrets.ErrCredentialMissing) {
		t.Fatalf("Analyze() error = %v, want ErrCredentialMissing", err)
	}
	if calls.Load() != 0 {
		t.Errorf("缺少密钥时仍发起了 %d 次网络请求", calls.Load())
	}
}

func TestAnalyze_RateLimitSanitized(t *testing.T) {
	const leakedDetail = "internal-request-echo-do-not-leak"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, leakedDetail, http.StatusTooManyRequests)
	})

	c, root := newTestClient(t, handler, nil)
	img := writeArtifact(t, root, "shot.jpg")

	_, err := c.Analyze(img, "m", "p")
	if !errors.Is(err, ErrHTTP) {
		t.Fatalf("Analyze() error = %v, want ErrHTTP", err)
	}
	if !strings.Contains(err.Error(), "限流") {
		t.Errorf("429 应返回限流类提示, got %q", err.Error())
	}
	if strings.Contains(err.Error(), leakedDetail) {
		t.Errorf("错误消息泄露了响应体: %q", err.Error())
	}
}

func TestAnalyze_HTTPStatusClasses(t *testing.T) {
	cases := []struct {
		status int
		want   string
	}{
		{401, "认证失败"},
		{403, "没有访问权限"},
		{429, "限流"},
		{500, "暂时不可用"},
		{503, "暂时不可用"},
		{418, "请求失败"},
	}

	for _, tc := range cases {
		status := tc.status
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "provider detail", status)
		})

		c, root := newTestClient(t, handler, nil)
		img := writeArtifact(t, root, "shot.jpg")

		_, err := c.Analyze(img, "m", "p")
		if !errors.Is(err, ErrHTTP) {
			t.Errorf("status %d: error = %v, want ErrHTTP", tc.status, err)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("status %d: 提示 = %q, want 包含 %q", tc.status, err.Error(), tc.want)
		}
	}
}

func TestAnalyze_ProviderErrorEnvelope(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	})

	c, root := newTestClient(t, handler, nil)
	img := writeArtifact(t, root, "shot.jpg")

	_, err := c.Analyze(img, "m", "p")
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("Analyze() error = %v, want ErrProvider", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("ErrProvider 应携带服务端消息, got %q", err.Error())
	}
}

func TestAnalyze_EmptyCompletion(t *testing.T) {
	cases := []string{
		`{"choices":[]}`,
		`{"choices":[{"message":{"content":""}}]}`,
	}

	for _, body := range cases {
		body := body
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})

		c, root := newTestClient(t, handler, nil)
		img := writeArtifact(t, root, "shot.jpg")

		if _, err := c.Analyze(img, "m", "p"); !errors.Is(err, ErrEmptyCompletion) {
			t.Errorf("body %s: error = %v, want ErrEmptyCompletion", body, err)
		}
	}
}

func TestSidecarPath(t *testing.T) {
	if got := SidecarPath("/a/b/20250114_093045_001.jpg"); got != "/a/b/20250114_093045_001.json" {
		t.Errorf("SidecarPath() = %s", got)
	}
}
