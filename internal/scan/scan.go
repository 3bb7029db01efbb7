package scan

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/avcast/internal/domain"
)

// ScanItems 列出 <root>/out/ 下的条目目录（只看一层），并应用目录排除规则。
//
// 规则：
// - 隐藏目录（以 '.' 开头）和普通文件跳过
// - excludeDirs：来自配置文件，均视为相对 root 的路径（若是绝对路径，则按绝对路径处理）
// - <root>/out 不存在时返回空列表（新库尚未整理过）
//
// 扫描阶段只做 ReadDir，不读文件内容。
func ScanItems(root string, excludeDirs []string) ([]domain.ItemDir, error) {
	root = filepath.Clean(root)
	outDir := filepath.Join(root, "out")
	excluded := buildExcluded(root, excludeDirs)

	entries, err := os.ReadDir(outDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.ItemDir{}, nil
		}
		return nil, err
	}

	items := make([]domain.ItemDir, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		abs := filepath.Join(outDir, name)
		if isExcluded(abs, excluded) {
			continue
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			return nil, err
		}
		items = append(items, domain.ItemDir{AbsPath: abs, RelPath: rel, Name: name})
	}

	// 强制稳定输出，避免不同文件系统的 ReadDir 顺序差异。
	sort.Slice(items, func(i, j int) bool { return items[i].RelPath < items[j].RelPath })
	return items, nil
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, len(excludeDirs))
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(filepath.Separator))
}
