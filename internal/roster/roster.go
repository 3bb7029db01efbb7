// Package roster 维护一个条目的演员列表，并实现“合并式更新”。
//
// 匹配规则（两段式线性查找）：
// 1) 先按非空 ID 精确匹配
// 2) 再按名字匹配（忽略大小写）
//
// 演员列表通常只有几个到几十个人，线性扫描足够，也最容易保证正确。
// Roster 不是并发安全的：同一个 Roster 只能由一个 goroutine 使用。
package roster

import (
	"bytes"
	"slices"

	"github.com/John-Robertt/avcast/internal/domain"
)

// Roster 独占持有其中的演员记录；零值可直接使用（空列表）。
type Roster struct {
	actors []*domain.Actor
}

// MergeStats 统计一次 SetActors 的结果。
type MergeStats struct {
	Added   int // 新建的记录
	Updated int // 被合并更新的旧记录
	Removed int // 未被匹配而删除的旧记录
}

// New 以 Load 语义构造 Roster（列表内的重复会被折叠）。
func New(actors ...domain.Actor) *Roster {
	r := &Roster{}
	r.Load(actors)
	return r
}

// AddActor 加入一位演员：能匹配到旧记录就原地合并，否则追加到末尾。
//
// Order 为 0 且列表非空时，Order 取“最后一条记录的 Order + 1”。
// 注意这一步发生在匹配之前，因此匹配成功时旧记录的 Order 也会被更新为该值。
// 返回被更新或新建的记录。
func (r *Roster) AddActor(a domain.Actor) *domain.Actor {
	if a.Order == 0 && len(r.actors) > 0 {
		a.Order = r.actors[len(r.actors)-1].Order + 1
	}

	if i := find(r.actors, a, nil); i >= 0 {
		merge(r.actors[i], a)
		return r.actors[i]
	}

	rec := newRecord(a)
	r.actors = append(r.actors, rec)
	return rec
}

// SetActors 用 list 整体替换列表（合并语义）。
//
// - 每个传入演员只会匹配“尚未被匹配过”的旧记录（两个传入项不会合并到同一条旧记录）
// - 匹配成功：旧记录按合并规则更新，并放到传入项所在的位置
// - 匹配失败：新建记录
// - 从未被匹配的旧记录全部删除
//
// list 内部的重复不会互相折叠：两个都匹配不到旧记录的同名传入项会各自新建。
func (r *Roster) SetActors(list []domain.Actor) MergeStats {
	var st MergeStats

	used := make([]bool, len(r.actors))
	next := make([]*domain.Actor, 0, len(list))
	for _, a := range list {
		if i := find(r.actors, a, used); i >= 0 {
			merge(r.actors[i], a)
			used[i] = true
			next = append(next, r.actors[i])
			st.Updated++
			continue
		}
		next = append(next, newRecord(a))
		st.Added++
	}

	for _, u := range used {
		if !u {
			st.Removed++
		}
	}
	r.actors = next
	return st
}

// Load 清空后逐个 AddActor：用于从 NFO 等本地来源建立初始列表，顺便折叠重复项。
func (r *Roster) Load(list []domain.Actor) {
	r.RemoveAll()
	for _, a := range list {
		r.AddActor(a)
	}
}

// Match 按与合并相同的规则查找记录（只读，不修改列表）；找不到返回 nil。
func (r *Roster) Match(a domain.Actor) *domain.Actor {
	if i := find(r.actors, a, nil); i >= 0 {
		return r.actors[i]
	}
	return nil
}

// RemoveActor 按指针身份删除记录；不在列表内时什么也不做。
func (r *Roster) RemoveActor(a *domain.Actor) {
	if a == nil {
		return
	}
	if i := slices.Index(r.actors, a); i >= 0 {
		r.actors = slices.Delete(r.actors, i, i+1)
	}
}

// RemoveAll 删除全部记录。
func (r *Roster) RemoveAll() {
	clear(r.actors)
	r.actors = r.actors[:0]
}

// ClearImages 清空所有未受保护记录的头像图片（文字信息保留）。
func (r *Roster) ClearImages() {
	for _, a := range r.actors {
		if !a.PreserveImage {
			a.Image = nil
		}
	}
}

func (r *Roster) HasActors() bool { return len(r.actors) > 0 }

func (r *Roster) Len() int { return len(r.actors) }

// Actors 返回当前记录（可修改视图）。切片本身不应被调用方增删。
func (r *Roster) Actors() []*domain.Actor {
	return r.actors
}

// View 返回当前记录的只读快照（深拷贝，包括图片字节）。
func (r *Roster) View() []domain.Actor {
	out := make([]domain.Actor, 0, len(r.actors))
	for _, a := range r.actors {
		c := *a
		c.Image = bytes.Clone(a.Image)
		out = append(out, c)
	}
	return out
}

// find 返回匹配记录的下标；used 非 nil 时跳过已被占用的记录。
func find(actors []*domain.Actor, a domain.Actor, used []bool) int {
	free := func(i int) bool { return used == nil || !used[i] }

	if a.ID != "" {
		for i, x := range actors {
			if free(i) && x.ID == a.ID {
				return i
			}
		}
	}
	for i, x := range actors {
		if free(i) && x.SameName(a.Name) {
			return i
		}
	}
	return -1
}

// merge 把传入记录合并到已有记录。
//
// - Name/Role/Thumb 直接覆盖；Order 仅在传入值非 0 时覆盖
// - PreserveImage 只增不减：一旦为 true 就保持
// - 图片仅在“传入图片非空且合并后 PreserveImage=false”时覆盖，并标记 ImageHasChanged
func merge(dst *domain.Actor, src domain.Actor) {
	dst.Name = src.Name
	dst.Role = src.Role
	dst.Thumb = src.Thumb
	if src.Order != 0 {
		dst.Order = src.Order
	}
	dst.PreserveImage = dst.PreserveImage || src.PreserveImage

	if len(src.Image) > 0 && !dst.PreserveImage {
		dst.Image = bytes.Clone(src.Image)
		dst.ImageHasChanged = true
	}
}

func newRecord(a domain.Actor) *domain.Actor {
	c := a
	c.Image = bytes.Clone(a.Image)
	return &c
}
