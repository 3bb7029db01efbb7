package planner

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/John-Robertt/avcast/internal/domain"
	"github.com/John-Robertt/avcast/internal/infra/fsx"
)

// ActorsDir 是 Kodi 约定的演员头像目录名（位于条目目录内）。
const ActorsDir = ".actors"

// kodiMovieNFO 是 Kodi 的通用 NFO 名；没有 <CODE>.nfo 时使用它。
const kodiMovieNFO = "movie.nfo"

// ReadItemState 读取条目目录的现状（只做 ReadDir，不读文件内容）。
// 条目目录不存在时返回空状态且不报错；.actors 被同名文件占位时返回 PathTypeConflictError。
func ReadItemState(dir domain.ItemDir, code domain.Code) (domain.ItemState, error) {
	st := domain.ItemState{
		Dir:         dir.AbsPath,
		NFOName:     code.NFOName(),
		ActorImages: map[string]struct{}{},
	}

	entries, err := os.ReadDir(dir.AbsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return domain.ItemState{}, err
	}

	names := make(map[string]os.DirEntry, len(entries))
	for _, e := range entries {
		names[e.Name()] = e
	}

	switch {
	case isFile(names[st.NFOName]):
		st.HasNFO = true
	case isFile(names[kodiMovieNFO]):
		st.NFOName = kodiMovieNFO
		st.HasNFO = true
	}

	if e, ok := names[ActorsDir]; ok {
		if !e.IsDir() {
			return domain.ItemState{}, &fsx.PathTypeConflictError{Path: filepath.Join(dir.AbsPath, ActorsDir), Want: "dir", Got: "file"}
		}
		imgs, err := os.ReadDir(filepath.Join(dir.AbsPath, ActorsDir))
		if err != nil {
			return domain.ItemState{}, err
		}
		for _, e := range imgs {
			if e.Type().IsRegular() {
				st.ActorImages[e.Name()] = struct{}{}
			}
		}
	}

	return st, nil
}

// PlanItem 基于 ItemState 生成确定性的执行计划（不做任何写入）。
//
// offline=true 时只在本地重排/清理已有演员表，不访问 provider。
func PlanItem(providerRequested string, dir domain.ItemDir, code domain.Code, st domain.ItemState, offline bool) domain.ItemPlan {
	return domain.ItemPlan{
		Code:              code,
		Item:              dir,
		ProviderRequested: providerRequested,
		State:             st,
		NeedScrape:        !offline,
		NeedNFO:           !st.HasNFO,
	}
}

// SortPlans 显式保证稳定顺序（而不是依赖调用方的遍历顺序）。
func SortPlans(plans []domain.ItemPlan) {
	sort.Slice(plans, func(i, j int) bool { return plans[i].Code < plans[j].Code })
}

func isFile(e os.DirEntry) bool {
	return e != nil && e.Type().IsRegular()
}
