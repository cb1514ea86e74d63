package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPLoader HTTP 接口制品加载器
type HTTPLoader struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPLoader 创建 HTTP 接口制品加载器
//
// 用法：
//
//	loader := artifact.NewHTTPLoader(5 * time.Second)
//	data, err := loader.Load(ctx, "http://registry.example.com/aluminium/v3/categorical_encoder.json")
func NewHTTPLoader(timeout time.Duration) *HTTPLoader {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPLoader{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// NewHTTPLoaderWithClient 使用自定义 HTTP 客户端创建加载器
func NewHTTPLoaderWithClient(client *http.Client) *HTTPLoader {
	return &HTTPLoader{
		client:  client,
		timeout: client.Timeout,
	}
}

// Load 从 HTTP 接口加载制品
func (l *HTTPLoader) Load(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, wrapLoadError(url, fmt.Errorf("创建 HTTP 请求失败: %w", err))
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, wrapLoadError(url, fmt.Errorf("HTTP 请求失败: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, wrapLoadError(url, fmt.Errorf("HTTP 请求失败: status=%d, body=%s", resp.StatusCode, string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapLoadError(url, fmt.Errorf("读取响应失败: %w", err))
	}
	return data, nil
}
