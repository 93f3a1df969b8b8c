// Package convert 提供宽松的数值类型转换，兼容策略输出里混杂的
// 字符串/整型/json.Number 数字。
package convert

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ToFloat64 尽力转换为 float64，不支持的类型与解析失败返回 0。
func ToFloat64(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	default:
		return 0
	}
}

// ToInt ToFloat64 的取整版本。
func ToInt(v any) int {
	return int(ToFloat64(v))
}
