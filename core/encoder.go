package core

// CategoricalEncoder 是已拟合类别编码器的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（feature）实现
//   - Encode 产出的 key 由编码器自身的命名机制决定（FeatureNamesOut），不是 Pipeline 常量
//   - 纯函数：只依赖制品和输入，没有副作用，可被并发调用
//
// 实现：
//   - feature.OneHotEncoder 实现此接口
//   - feature.OrdinalEncoder 实现此接口
type CategoricalEncoder interface {
	// Encode 对描述符做一次编码；未见类别按编码器的 handle_unknown 策略处理
	Encode(desc ProcessDescriptor) (map[string]float64, error)

	// FeatureNamesOut 返回编码器可能产出的全部特征名（按编码器自身顺序）
	FeatureNamesOut() []string

	// Fields 返回编码器读取的输入字段
	Fields() []string

	// Version 返回制品版本（用于日志与缓存 key）
	Version() string
}
