package app

import (
	"errors"
	"sort"

	"github.com/John-Robertt/avcast/internal/code"
	"github.com/John-Robertt/avcast/internal/domain"
)

// KindDuplicate 表示多个目录解析出同一个 CODE（例如 CAWD-895 与 cawd_895 并存）。
const KindDuplicate = "duplicate"

// GroupByCode 为每个条目目录解析 CODE。
//
//   - items 稳定排序：按 Code 字典序
//   - 同一 CODE 对应多个目录时，目录名与 CODE 完全一致的优先；否则取 RelPath 最小的。
//     其余目录作为 duplicate 进入 unmatched，由用户手工合并
func GroupByCode(dirs []domain.ItemDir) (items []domain.WorkItem, unmatched []domain.Unmatched, err error) {
	byCode := make(map[domain.Code][]domain.ItemDir, len(dirs))
	unmatched = make([]domain.Unmatched, 0, 8)

	for _, d := range dirs {
		c, e := code.Extract(d)
		if e != nil {
			var ue *code.UnmatchedError
			if errors.As(e, &ue) {
				u := domain.Unmatched{Dir: d, Kind: ue.Kind}
				if len(ue.Candidates) > 0 {
					u.Candidates = append([]domain.Code(nil), ue.Candidates...)
				}
				unmatched = append(unmatched, u)
				continue
			}
			return nil, nil, e
		}
		byCode[c] = append(byCode[c], d)
	}

	items = make([]domain.WorkItem, 0, len(byCode))
	for c, ds := range byCode {
		sort.Slice(ds, func(i, j int) bool {
			ei, ej := ds[i].Name == string(c), ds[j].Name == string(c)
			if ei != ej {
				return ei
			}
			return ds[i].RelPath < ds[j].RelPath
		})
		items = append(items, domain.WorkItem{Code: c, Dir: ds[0]})
		for _, d := range ds[1:] {
			unmatched = append(unmatched, domain.Unmatched{Dir: d, Kind: KindDuplicate, Candidates: []domain.Code{c}})
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Code < items[j].Code })
	sort.SliceStable(unmatched, func(i, j int) bool { return unmatched[i].Dir.RelPath < unmatched[j].Dir.RelPath })
	return items, unmatched, nil
}
