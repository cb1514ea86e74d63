package artifact

import (
	"context"
	"net/url"
	"os"
	"strings"

	"github.com/rushteam/imputekit/core"
)

// Loader 制品加载器接口
// 支持从不同来源读取制品原始字节（本地文件、HTTP 接口、S3 兼容存储、Redis 等）
type Loader interface {
	// Load 加载制品
	// source 是数据源标识（文件路径、URL、S3 key、Redis key 等）
	Load(ctx context.Context, source string) ([]byte, error)
}

// LoaderFunc 将普通函数适配为 Loader
type LoaderFunc func(ctx context.Context, source string) ([]byte, error)

func (f LoaderFunc) Load(ctx context.Context, source string) ([]byte, error) { return f(ctx, source) }

// FileLoader 本地文件制品加载器
type FileLoader struct{}

// NewFileLoader 创建本地文件制品加载器
func NewFileLoader() *FileLoader {
	return &FileLoader{}
}

// Load 从本地文件加载制品
func (l *FileLoader) Load(_ context.Context, filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, wrapLoadError(filePath, err)
	}
	return data, nil
}

// wrapLoadError 将读取失败统一为 SchemaError：制品缺失或不可读时服务不能启动
func wrapLoadError(source string, err error) error {
	if de := core.AsDomainError(err); de != nil {
		return err
	}
	return core.NewSchemaError(core.ModuleArtifact, "load artifact %s: %v", source, err)
}

// splitURI 返回 scheme 与解析后的 URL；普通路径返回空 scheme
func splitURI(uri string) (string, *url.URL, error) {
	if !strings.Contains(uri, "://") {
		return "", nil, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", nil, core.NewSchemaError(core.ModuleArtifact, "invalid artifact uri %q: %v", uri, err)
	}
	return strings.ToLower(u.Scheme), u, nil
}
