package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		// outputs: 输出名 -> 预测值
		cel.Variable("outputs", cel.MapType(cel.StringType, cel.DoubleType)),
		// input: 描述字段名 -> 取值（metal/route/stage/region）
		cel.Variable("input", cel.MapType(cel.StringType, cel.StringType)),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// Rule 是一条输出合理性规则，表达式返回 true 时命中。
//
// 表达式语法（CEL 标准语法）：
//   - 单个输出：outputs["electricity_MJ"] > 20000.0
//   - 任一输出：outputs.exists(k, outputs[k] < 0.0)
//   - 结合输入：input.route == "recycling" && outputs["bauxite_input_kg"] > 0.0
type Rule struct {
	Name    string `mapstructure:"name" json:"name" yaml:"name"`
	Expr    string `mapstructure:"expr" json:"expr" yaml:"expr"`
	Message string `mapstructure:"message" json:"message" yaml:"message"`
}

// NegativeOutputRule 任一预测为负时命中
var NegativeOutputRule = Rule{
	Name:    "negative_output",
	Expr:    `outputs.exists(k, outputs[k] < 0.0)`,
	Message: "one or more predicted inputs are negative",
}

// DefaultRules 默认启用的规则
func DefaultRules() []Rule {
	return []Rule{NegativeOutputRule}
}

// Eval 是编译后的规则，可被多个 goroutine 并发执行。
type Eval struct {
	Rule
	prg cel.Program
}

// Compile 编译规则；表达式必须返回 bool
func Compile(rule Rule) (*Eval, error) {
	if rule.Name == "" {
		return nil, fmt.Errorf("rule name is required")
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	// 编译表达式
	ast, issues := env.Compile(rule.Expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("rule %s compile error: %v", rule.Name, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %s must return bool, got %s", rule.Name, ast.OutputType())
	}

	// 创建程序
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("rule %s program error: %v", rule.Name, err)
	}
	return &Eval{Rule: rule, prg: prg}, nil
}

// CompileAll 按顺序编译一组规则，任一失败即返回
func CompileAll(rules []Rule) ([]*Eval, error) {
	out := make([]*Eval, 0, len(rules))
	for _, r := range rules {
		e, err := Compile(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Evaluate 执行规则
func (e *Eval) Evaluate(outputs map[string]float64, input map[string]string) (bool, error) {
	if outputs == nil {
		outputs = map[string]float64{}
	}
	if input == nil {
		input = map[string]string{}
	}
	out, _, err := e.prg.Eval(map[string]interface{}{
		"outputs": outputs,
		"input":   input,
	})
	if err != nil {
		// 访问不存在的 key 会报错，表达式应先用 "x" in outputs 检查
		return false, fmt.Errorf("rule %s eval error: %v", e.Name, err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %s must return boolean, got %T", e.Name, out.Value())
	}
	return result, nil
}
