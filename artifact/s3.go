package artifact

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Client S3 兼容协议客户端接口（不直接依赖具体 SDK，支持依赖注入）
// S3 兼容协议支持 AWS S3、阿里云 OSS、腾讯云 COS、MinIO 等
type S3Client interface {
	// GetObject 获取对象内容
	// bucket 是存储桶名称
	// key 是对象键（文件路径）
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// S3Config S3 兼容存储连接配置
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Validate 校验配置
func (c S3Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("s3 endpoint is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("s3 access key and secret key are required")
	}
	return nil
}

// MinIOClient 基于 minio-go 的 S3Client 实现
type MinIOClient struct {
	client *minio.Client
}

// NewMinIOClient 创建 MinIO/S3 客户端
func NewMinIOClient(cfg S3Config) (*MinIOClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIOClient{client: client}, nil
}

// GetObject 读取对象；先 Stat 以便对象不存在时立即报错
func (c *MinIOClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if _, err := c.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		return nil, err
	}
	return c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// S3Loader S3 兼容协议制品加载器
// 支持 AWS S3、阿里云 OSS、腾讯云 COS、MinIO 等所有 S3 兼容的对象存储服务
type S3Loader struct {
	client S3Client
	bucket string
}

// NewS3Loader 创建 S3 兼容协议制品加载器
//
// 用法：
//
//	client, _ := artifact.NewMinIOClient(cfg)
//	loader := artifact.NewS3Loader(client, "models")
//	data, err := loader.Load(ctx, "aluminium/v3/multioutput_xgboost_model.json")
func NewS3Loader(client S3Client, bucket string) *S3Loader {
	return &S3Loader{
		client: client,
		bucket: bucket,
	}
}

// Load 从 S3 兼容存储加载制品
func (l *S3Loader) Load(ctx context.Context, key string) ([]byte, error) {
	source := fmt.Sprintf("s3://%s/%s", l.bucket, key)
	if l.client == nil {
		return nil, wrapLoadError(source, fmt.Errorf("S3 客户端未设置"))
	}

	reader, err := l.client.GetObject(ctx, l.bucket, key)
	if err != nil {
		return nil, wrapLoadError(source, fmt.Errorf("从 S3 兼容存储获取对象失败: %w", err))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, wrapLoadError(source, fmt.Errorf("读取 S3 兼容存储对象失败: %w", err))
	}
	return data, nil
}

var _ S3Client = (*MinIOClient)(nil)
