package service

import (
	"context"
	"fmt"

	"github.com/rushteam/imputekit/core"
)

// NewMLService 根据配置创建 MLService 实例（工厂方法）。
// 返回 core.MLService 接口。
func NewMLService(config *ServiceConfig) (core.MLService, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	switch config.Type {
	case ServiceTypeKServe, "":
		return NewKServeClient(*config, nil), nil

	default:
		return nil, fmt.Errorf("unsupported service type: %s", config.Type)
	}
}

// ValidateConfig 验证服务配置
func ValidateConfig(config *ServiceConfig) error {
	if config == nil {
		return fmt.Errorf("service config is required")
	}
	if config.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if !hasHTTPPrefix(config.Endpoint) {
		return fmt.Errorf("endpoint %q must start with http:// or https://", config.Endpoint)
	}
	if config.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	if config.Protocol != "" && config.Protocol != KServeV1 && config.Protocol != KServeV2 {
		return fmt.Errorf("unsupported kserve protocol %q", config.Protocol)
	}
	return nil
}

// hasHTTPPrefix 检查是否包含 HTTP 前缀
func hasHTTPPrefix(s string) bool {
	return len(s) > 7 && (s[:7] == "http://" || (len(s) > 8 && s[:8] == "https://"))
}

// TestConnection 测试服务连接
func TestConnection(ctx context.Context, svc core.MLService) error {
	if svc == nil {
		return fmt.Errorf("service is nil")
	}
	return svc.Health(ctx)
}
