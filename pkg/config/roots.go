package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// LoadRoots 读取 roots 文件（YAML 或 JSON），返回保持文件顺序的路由映射
//
// 参数：
//
//	name: roots 文件路径
//	basePath: 相对根目录的解析基准
//
// 返回：
//
//	*orderedmap.OrderedMap: URL 路径 -> 绝对根目录
//	error: 文件不可读、格式错误或路由不以 "/" 开头
//
// 示例：
//
//	/yui3: static/yui3
//	/css: /var/www/css
func LoadRoots(name string, basePath string) (*orderedmap.OrderedMap[string, string], error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read roots file: %w", err)
	}

	raw := orderedmap.New[string, string]()
	if err := yaml.Unmarshal(data, raw); err != nil {
		return nil, fmt.Errorf("parse roots file %s: %w", name, err)
	}

	roots := orderedmap.New[string, string](orderedmap.WithCapacity[string, string](raw.Len()))
	for pair := raw.Oldest(); pair != nil; pair = pair.Next() {
		if !strings.HasPrefix(pair.Key, "/") {
			return nil, fmt.Errorf("roots file %s: route %q must start with /", name, pair.Key)
		}
		roots.Set(pair.Key, resolveRoot(basePath, pair.Value))
	}

	return roots, nil
}

func resolveRoot(basePath, root string) string {
	if filepath.IsAbs(root) {
		return filepath.Clean(root)
	}
	return filepath.Join(basePath, root)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
