package service

// ServiceType 服务类型
type ServiceType string

const (
	ServiceTypeKServe ServiceType = "kserve" // KServe / Open Inference Protocol
)

// ServiceConfig 远程模型服务配置，对应模型制品中的 service 段：
//
//	{
//	  "format": "kserve",
//	  "feature_names": [...],
//	  "service": {"endpoint": "http://kserve:8080", "model_name": "aluminium-inputs", "protocol": "v2"}
//	}
type ServiceConfig struct {
	// Type 服务类型，默认 kserve
	Type ServiceType `json:"type" yaml:"type"`

	// Endpoint 服务根地址，如 "http://localhost:8080"
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// ModelName 模型名称
	ModelName string `json:"model_name" yaml:"model_name"`

	// ModelVersion 模型版本
	ModelVersion string `json:"model_version" yaml:"model_version"`

	// Protocol KServe 协议版本：v1 / v2
	Protocol string `json:"protocol" yaml:"protocol"`

	// InputName / OutputName V2 协议输入输出张量名称
	InputName  string `json:"input_name" yaml:"input_name"`
	OutputName string `json:"output_name" yaml:"output_name"`

	// Timeout 超时时间（秒）
	Timeout int `json:"timeout" yaml:"timeout"`

	// Auth 认证信息（可选）
	Auth *AuthConfig `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	Type     string `json:"type" yaml:"type"` // "basic", "bearer", "api_key"
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Token    string `json:"token" yaml:"token"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}
