package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"AutoDailyReport/internal/ambient"
	"AutoDailyReport/internal/pathguard"
	"AutoDailyReport/internal/secrets"
	"AutoDailyReport/pkg/logger"
	"AutoDailyReport/pkg/models"
)

// Client AI 分析客户端
// 对单个多模态 chat-completion 端点发起分析请求，并把结果
// 作为 sidecar JSON 落在产物旁边
type Client struct {
	artifactPolicy *pathguard.Policy
	store          secrets.Store
	collector      ambient.Collector
	endpoint       string
	maxTokens      int
	temperature    float32
	httpClient     *http.Client
}

// NewClient 创建分析客户端
// artifactPolicy 必须只允许应用自己的产物目录树，
// 防止任意文件系统内容经分析通道外传
func NewClient(
	artifactPolicy *pathguard.Policy,
	store secrets.Store,
	collector ambient.Collector,
	cfg models.AIConfig,
) *Client {
	return &Client{
		artifactPolicy: artifactPolicy,
		store:          store,
		collector:      collector,
		endpoint:       cfg.Endpoint,
		maxTokens:      cfg.MaxTokens,
		temperature:    cfg.Temperature,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// 请求结构（OpenAI 兼容格式）
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []interface{} `json:"content"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type imageContent struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

type imageURL struct {
	URL string `json:"url"`
}

// 响应结构
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze 分析一张产物图片，返回分析文本
// 成功时在图片旁写入同名 .json sidecar；sidecar 写入失败视为整体失败，
// 分析结果必须能从磁盘恢复
func (c *Client) Analyze(imagePath, model, prompt string) (string, error) {
	logger.Info("开始 AI 分析: %s (模型: %s)", imagePath, model)

	// 1. 路径校验：只接受产物目录树内的文件
	canonical, err := c.artifactPolicy.Validate(imagePath)
	if err != nil {
		return "", err
	}

	// 2. 取密钥，即取即用，不缓存
	apiKey, err := c.store.Get()
	if err != nil {
		return "", err
	}

	// 3. 环境上下文尽力采集，失败只是快照为空
	info := c.collector.Collect()
	fullPrompt := appendContext(prompt, info)

	// 4. 读取并编码图片
	imageData, err := os.ReadFile(canonical)
	if err != nil {
		return "", fmt.Errorf("%w: 读取图片 %s: %v", ErrIO, canonical, err)
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s",
		mimeForPath(canonical), base64.StdEncoding.EncodeToString(imageData))

	// 5. 发起唯一一次 HTTP 请求
	text, err := c.callEndpoint(model, fullPrompt, dataURL, apiKey)
	if err != nil {
		return "", err
	}

	// 6. 写入 sidecar
	result := &models.AnalysisResult{
		Timestamp: time.Now(),
		Model:     model,
		Context:   info,
		Analysis:  text,
	}
	if err := writeSidecar(canonical, result); err != nil {
		return "", err
	}

	logger.Info("AI 分析完成: %s (%d 字符)", canonical, len(text))
	return text, nil
}

// callEndpoint 发起 chat-completion 请求并抽取首个回答文本
func (c *Client) callEndpoint(model, prompt, imageDataURL, apiKey string) (string, error) {
	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []interface{}{
					textContent{Type: "text", Text: prompt},
					imageContent{Type: "image_url", ImageURL: imageURL{URL: imageDataURL}},
				},
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: 编码请求: %v", ErrSerialization, err)
	}

	req, err := http.NewRequestWithContext(context.Background(), "POST", c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("%w: 创建请求: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", apiKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// 响应体读掉以便连接复用，但绝不进入错误消息
		io.Copy(io.Discard, resp.Body)
		logger.Warn("AI 端点返回 HTTP %d", resp.StatusCode)
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrHTTP, resp.StatusCode, httpErrorHint(resp.StatusCode))
	}

	var apiResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("%w: 解析响应: %v", ErrSerialization, err)
	}

	// 2xx 但信封中带逻辑错误
	if apiResp.Error != nil && apiResp.Error.Message != "" {
		return "", fmt.Errorf("%w: %s", ErrProvider, apiResp.Error.Message)
	}

	if len(apiResp.Choices) == 0 || apiResp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}

	return apiResp.Choices[0].Message.Content, nil
}

// appendContext 有任何可用字段时在提示词后追加可读的环境信息块
func appendContext(prompt string, info models.ContextInfo) string {
	if info.IsEmpty() {
		return prompt
	}

	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\n当前环境信息:")
	if info.WifiSSID != "" {
		sb.WriteString(fmt.Sprintf("\n- WiFi: %s", info.WifiSSID))
	}
	if info.Location != nil {
		sb.WriteString(fmt.Sprintf("\n- 位置: %.4f, %.4f", info.Location.Latitude, info.Location.Longitude))
	}
	return sb.String()
}

// mimeForPath 按扩展名推断 MIME 类型
func mimeForPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return "image/png"
	}
	return "image/jpeg"
}

// SidecarPath 返回产物对应的 sidecar 路径（同名主干 + .json）
func SidecarPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".json"
}

// writeSidecar 把分析结果写到产物旁边
// 重跑同一张产物的分析会覆盖旧的 sidecar
func writeSidecar(imagePath string, result *models.AnalysisResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: 编码 sidecar: %v", ErrSerialization, err)
	}

	sidecar := SidecarPath(imagePath)
	if err := os.WriteFile(sidecar, data, 0644); err != nil {
		return fmt.Errorf("%w: 写入 sidecar %s: %v", ErrIO, sidecar, err)
	}
	return nil
}
