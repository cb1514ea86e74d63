package core

// AluminiumOutputs 是铝工艺输入预测的输出字段（顺序即模型输出顺序）。
// 模型制品未声明 output_names 时以此为准。
var AluminiumOutputs = []string{
	"electricity_MJ",
	"natural_gas_MJ",
	"diesel_MJ",
	"heavy_oil_MJ",
	"coal_MJ",
	"bauxite_input_kg",
	"alumina_input_kg",
	"scrap_input_kg",
	"total_energy_MJ",
}

// Schema 是不可变的有序名称序列。
//
// 用作两类 Schema：
//   - FeatureSchema：模型训练时的特征顺序，模型按位置而不是按名字读取特征
//   - OutputSchema：模型输出的字段顺序
//
// Schema 只在制品加载时构建，请求期间只读。
type Schema struct {
	names []string
	index map[string]int
}

// FeatureSchema 与 OutputSchema 仅用于增强可读性
type (
	FeatureSchema = Schema
	OutputSchema  = Schema
)

// NewSchema 构建 Schema；names 为空、包含空名或重复名时返回 SchemaError。
// 传入的切片会被复制，调用方之后修改它不会影响 Schema。
func NewSchema(names []string) (Schema, error) {
	if len(names) == 0 {
		return Schema{}, NewSchemaError(ModuleModel, "schema is empty")
	}
	cp := make([]string, len(names))
	index := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			return Schema{}, NewSchemaError(ModuleModel, "schema has an empty name at position %d", i)
		}
		if j, dup := index[n]; dup {
			return Schema{}, NewSchemaError(ModuleModel, "schema has duplicate name %q at positions %d and %d", n, j, i)
		}
		cp[i] = n
		index[n] = i
	}
	return Schema{names: cp, index: index}, nil
}

// MustSchema 与 NewSchema 相同，但出错时 panic（仅用于常量/测试）
func MustSchema(names []string) Schema {
	s, err := NewSchema(names)
	if err != nil {
		panic(err)
	}
	return s
}

// Len 返回名称数量
func (s Schema) Len() int { return len(s.names) }

// Empty 表示 Schema 未初始化或为空
func (s Schema) Empty() bool { return len(s.names) == 0 }

// Names 返回名称副本
func (s Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// At 返回位置 i 的名称
func (s Schema) At(i int) string { return s.names[i] }

// Index 返回名称所在位置
func (s Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Contains 检查名称是否在 Schema 中
func (s Schema) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Equal 比较两个 Schema 的名称与顺序
func (s Schema) Equal(other Schema) bool {
	if len(s.names) != len(other.names) {
		return false
	}
	for i := range s.names {
		if s.names[i] != other.names[i] {
			return false
		}
	}
	return true
}
