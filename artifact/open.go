package artifact

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rushteam/imputekit/core"
)

// Resolver 根据 URI 的 scheme 选择 Loader：
//
//	/srv/models/encoder.json、file:///srv/models/encoder.json  -> FileLoader
//	http(s)://registry/aluminium/encoder.json                  -> HTTPLoader
//	s3://bucket/aluminium/v3/model.json                        -> S3Loader
//	redis://host:6379/0/aluminium:encoder                      -> RedisLoader
type Resolver struct {
	httpClient *http.Client
	s3         S3Client
	redis      redis.UniversalClient
}

// ResolverOption 配置 Resolver
type ResolverOption func(*Resolver)

// WithHTTPClient 设置 http(s) 制品使用的客户端
func WithHTTPClient(client *http.Client) ResolverOption {
	return func(r *Resolver) {
		r.httpClient = client
	}
}

// WithS3Client 设置 s3:// 制品使用的客户端
func WithS3Client(client S3Client) ResolverOption {
	return func(r *Resolver) {
		r.s3 = client
	}
}

// WithRedisClient 设置 redis:// 制品使用的客户端；未设置时按 URI 临时建立连接
func WithRedisClient(client redis.UniversalClient) ResolverOption {
	return func(r *Resolver) {
		r.redis = client
	}
}

// NewResolver 创建 Resolver
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	if r.httpClient == nil {
		r.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return r
}

// Open 读取 uri 指向的制品
func (r *Resolver) Open(ctx context.Context, uri string) ([]byte, error) {
	scheme, u, err := splitURI(uri)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case "":
		return NewFileLoader().Load(ctx, uri)
	case "file":
		return NewFileLoader().Load(ctx, u.Path)
	case "http", "https":
		return NewHTTPLoaderWithClient(r.httpClient).Load(ctx, uri)
	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, core.NewSchemaError(core.ModuleArtifact, "s3 uri %q must be s3://bucket/key", uri)
		}
		if r.s3 == nil {
			return nil, core.NewSchemaError(core.ModuleArtifact, "s3 uri %q requires an s3 client", uri)
		}
		return NewS3Loader(r.s3, u.Host).Load(ctx, key)
	case "redis", "rediss":
		return r.openRedis(ctx, uri, u)
	default:
		return nil, core.NewSchemaError(core.ModuleArtifact, "unsupported artifact scheme %q", scheme)
	}
}

// openRedis 解析 redis://[user:pass@]host:port/db/key
func (r *Resolver) openRedis(ctx context.Context, uri string, u *url.URL) ([]byte, error) {
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, core.NewSchemaError(core.ModuleArtifact, "redis uri %q must be redis://host:port/db/key", uri)
	}
	db, err := strconv.Atoi(parts[0])
	if err != nil || db < 0 {
		return nil, core.NewSchemaError(core.ModuleArtifact, "redis uri %q has invalid db %q", uri, parts[0])
	}
	key := parts[1]

	if r.redis != nil {
		return NewRedisLoader(r.redis).Load(ctx, key)
	}

	opts := &redis.Options{Addr: u.Host, DB: db}
	if u.User != nil {
		opts.Username = u.User.Username()
		opts.Password, _ = u.User.Password()
	}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{ServerName: u.Hostname(), MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	defer client.Close()
	return NewRedisLoader(client).Load(ctx, key)
}

var defaultResolver = NewResolver()

// Open 使用默认 Resolver 读取制品（不支持 s3://，需要 S3 时请使用 NewResolver(WithS3Client(...))）
func Open(ctx context.Context, uri string) ([]byte, error) {
	return defaultResolver.Open(ctx, uri)
}
