package coordinator

import (
	"github.com/jeremywohl/flatten"
)

// leaf 包装列表，使其在展开时被当作叶子节点
type leaf struct {
	v []interface{}
}

// Flatten 把嵌套的 map 展开为单层 map，键以下划线连接
// 例如 {"a": {"b": 1}} -> {"a_b": 1}。列表保持原样，不会按下标展开。
// 不会修改输入。
func Flatten(tree map[string]interface{}) map[string]interface{} {
	if len(tree) == 0 {
		return map[string]interface{}{}
	}

	flat, err := flatten.Flatten(shield(tree), "", flatten.UnderscoreStyle)
	if err != nil {
		// 只有非 map/slice 的顶层输入才会出错，这里不可能发生
		return map[string]interface{}{}
	}

	for k, v := range flat {
		if l, ok := v.(leaf); ok {
			flat[k] = l.v
		}
	}
	return flat
}

// shield 复制树并把所有 []interface{} 包装为 leaf
func shield(tree map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(tree))
	for k, v := range tree {
		switch val := v.(type) {
		case map[string]interface{}:
			// 空 map 没有叶子，不产生键
			if sub := shield(val); len(sub) > 0 {
				out[k] = sub
			}
		case []interface{}:
			out[k] = leaf{v: val}
		default:
			out[k] = v
		}
	}
	return out
}
