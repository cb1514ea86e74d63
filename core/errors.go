package core

import (
	"errors"
	"fmt"
)

// ErrorKind 是推理链路的错误分类，调用方据此分支，而不是依赖错误字符串。
type ErrorKind string

const (
	KindSchema      ErrorKind = "SchemaError"      // 制品/Schema 缺失或格式错误
	KindEncoding    ErrorKind = "EncodingError"    // 输入类别无法被已拟合的编码器表示
	KindShape       ErrorKind = "ShapeError"       // 阶段之间向量/输出长度不一致
	KindPrediction  ErrorKind = "PredictionError"  // 模型输出非有限值或其他非法输出
	KindUnavailable ErrorKind = "UnavailableError" // 制品尚未加载
	KindCanceled    ErrorKind = "CanceledError"    // 调用方在预测开始前取消
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有推理链路错误都使用此类型，Kind 决定错误分类
//   - Code/Module 用于日志和监控打点
//   - Field/Value 仅在 EncodingError 时填充，指出出错的字段与取值
type DomainError struct {
	Kind    ErrorKind // 错误分类
	Code    string    // 错误代码（如 "INVALID_INPUT"）
	Message string    // 错误消息
	Module  string    // 模块名称（如 "feature", "model"）
	Field   string    // 出错字段（可选）
	Value   string    // 出错取值（可选）

	cause error
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is 让 errors.Is 按 Kind 比较，例如 errors.Is(err, ErrUnavailable)。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// IsDomainError 检查错误是否为 DomainError 类型
func IsDomainError(err error) bool {
	return AsDomainError(err) != nil
}

// AsDomainError 获取 DomainError（支持被 %w 包装的错误），如果不是则返回 nil
func AsDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(kind ErrorKind, module, code, message string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInvalidSchema = "INVALID_SCHEMA" // Schema 无效
	ErrorCodeUnknownValue  = "UNKNOWN_VALUE"  // 未见过的类别
	ErrorCodeMismatch      = "SHAPE_MISMATCH" // 维度不匹配
	ErrorCodeNonFinite     = "NON_FINITE"     // NaN / Inf
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误
	ErrorCodeCanceled      = "CANCELED"       // 请求已取消
)

// 模块名称常量
const (
	ModuleStore    = "store"    // 存储模块
	ModuleFeature  = "feature"  // 特征编码/对齐
	ModuleModel    = "model"    // 模型
	ModuleService  = "service"  // 远程模型服务
	ModuleArtifact = "artifact" // 制品加载
	ModulePipeline = "pipeline" // 请求编排
)

// NewSchemaError 创建 SchemaError（制品/Schema 配置错误）
func NewSchemaError(module, format string, args ...any) *DomainError {
	return NewDomainError(KindSchema, module, ErrorCodeInvalidSchema, fmt.Sprintf(format, args...))
}

// NewEncodingError 创建 EncodingError，指出无法编码的字段与取值
func NewEncodingError(field, value string) *DomainError {
	e := NewDomainError(KindEncoding, ModuleFeature, ErrorCodeUnknownValue,
		fmt.Sprintf("found unknown category %q in field %q during encoding", value, field))
	e.Field = field
	e.Value = value
	return e
}

// NewShapeError 创建 ShapeError
func NewShapeError(module, what string, want, got int) *DomainError {
	return NewDomainError(KindShape, module, ErrorCodeMismatch,
		fmt.Sprintf("%s shape mismatch: expected %d, got %d", what, want, got))
}

// NewPredictionError 创建 PredictionError
func NewPredictionError(format string, args ...any) *DomainError {
	return NewDomainError(KindPrediction, ModuleModel, ErrorCodeNonFinite, fmt.Sprintf(format, args...))
}

// WrapPredictionError 将非领域错误（例如远程服务的网络错误）包装为 PredictionError
func WrapPredictionError(module string, err error) *DomainError {
	if de := AsDomainError(err); de != nil {
		return de
	}
	e := NewDomainError(KindPrediction, module, ErrorCodeInternalError, err.Error())
	e.cause = err
	return e
}

var (
	// ErrUnavailable 表示制品尚未加载，立即返回而不重试
	ErrUnavailable = NewDomainError(KindUnavailable, ModulePipeline, ErrorCodeUnavailable, "model artifacts are not loaded")

	// ErrCanceled 表示请求在预测开始前被取消
	ErrCanceled = NewDomainError(KindCanceled, ModulePipeline, ErrorCodeCanceled, "request canceled before prediction")
)

// 错误检查函数

func isKind(err error, kind ErrorKind) bool {
	de := AsDomainError(err)
	return de != nil && de.Kind == kind
}

// IsSchemaError 检查错误是否为 SchemaError
func IsSchemaError(err error) bool { return isKind(err, KindSchema) }

// IsEncodingError 检查错误是否为 EncodingError
func IsEncodingError(err error) bool { return isKind(err, KindEncoding) }

// IsShapeError 检查错误是否为 ShapeError
func IsShapeError(err error) bool { return isKind(err, KindShape) }

// IsPredictionError 检查错误是否为 PredictionError
func IsPredictionError(err error) bool { return isKind(err, KindPrediction) }

// IsUnavailable 检查错误是否为制品不可用
func IsUnavailable(err error) bool { return isKind(err, KindUnavailable) }

// IsNotFound 检查错误是否为 NOT_FOUND（存储层使用）
func IsNotFound(err error) bool {
	de := AsDomainError(err)
	return de != nil && de.Code == ErrorCodeNotFound
}
