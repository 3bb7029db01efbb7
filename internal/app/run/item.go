package run

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/John-Robertt/avcast/internal/app/planner"
	"github.com/John-Robertt/avcast/internal/config"
	"github.com/John-Robertt/avcast/internal/domain"
	"github.com/John-Robertt/avcast/internal/infra/cache"
	"github.com/John-Robertt/avcast/internal/infra/fsx"
	"github.com/John-Robertt/avcast/internal/infra/httpx"
	"github.com/John-Robertt/avcast/internal/infra/imgx"
	"github.com/John-Robertt/avcast/internal/nfo"
	"github.com/John-Robertt/avcast/internal/provider"
	"github.com/John-Robertt/avcast/internal/roster"
)

// execOne 同步一个条目的演员表。
//
// 顺序：读本地 NFO 与头像 → (refresh) 清图 → 抓取 → 下载头像 → 合并 → 排除 → 写回。
// 写回时先写头像、最后写 NFO；dry-run 到“生成 NFO”为止，不落盘。
func (env *execEnv) execOne(ctx context.Context, p domain.ItemPlan) domain.ItemResult {
	eff := env.eff
	item := newItem(string(p.Code), p.Item.RelPath, p.ProviderRequested)
	item.Status = domain.StatusProcessed
	fail := func(code, msg string) domain.ItemResult {
		item.Status = domain.StatusFailed
		item.ErrorCode = code
		item.ErrorMsg = msg
		return item
	}

	if err := ctx.Err(); err != nil {
		return fail(domain.ErrCodeIOFailed, fmt.Sprintf("已取消：%v", err))
	}

	r := &roster.Roster{}
	var (
		doc      *nfo.Document
		baseline []byte
	)
	if p.State.HasNFO {
		b, err := os.ReadFile(filepath.Join(p.State.Dir, p.State.NFOName))
		if err != nil {
			return fail(ioErrorCode(err), fmt.Sprintf("读取 NFO 失败：%v", err))
		}
		if doc, err = nfo.Decode(b); err != nil {
			return fail(domain.ErrCodeNFOInvalid, fmt.Sprintf("%s 无法解析：%v", p.State.NFOName, err))
		}
		r.Load(doc.Actors())
		// baseline 用同一套编码规则生成，避免把纯格式差异当成变更。
		if baseline, err = doc.Encode(); err != nil {
			return fail(domain.ErrCodeNFOInvalid, fmt.Sprintf("%s 无法重新编码：%v", p.State.NFOName, err))
		}
		item.ImageFailures += attachLocalImages(r, p.State, eff.PreserveLocalImages)
	}
	item.ActorsBefore = r.Len()

	if eff.RefreshImages {
		r.ClearImages()
	}

	var (
		meta     domain.MovieMeta
		incoming []domain.Actor
	)
	if p.NeedScrape {
		res, err := env.scrape(ctx, p)
		item.Attempts = provider.ReportAttempts(res.Attempts)
		if err != nil {
			fillProviderError(&item, err)
			return item
		}
		meta = res.Meta
		item.ProviderUsed = res.Used
		item.Website = res.Website
		incoming = slices.Clone(meta.Actors)
	}

	if env.imageClient != nil && len(incoming) > 0 {
		item.ImageFailures += env.fetchImages(ctx, p.Code, r, incoming, meta.Website)
	}

	before := snapshot(r)
	// provider 没给出任何演员时不合并：replace 会把本地演员表清空，这通常是站点缺数据而不是真的没人。
	if len(incoming) > 0 {
		item.MergeMode = eff.MergeMode
		if eff.MergeMode == config.MergeAppend {
			for _, a := range incoming {
				r.AddActor(a)
			}
		} else {
			r.SetActors(incoming)
		}
	}
	excludeActors(r, eff.ExcludeActors)
	item.Changes = castChanges(before, r)
	for _, c := range item.Changes {
		switch c.Op {
		case domain.ChangeAdded:
			item.Added++
		case domain.ChangeUpdated:
			item.Updated++
		case domain.ChangeRemoved:
			item.Removed++
		}
	}
	item.ActorsAfter = r.Len()

	// 原本没有演员、合并后仍然没有：不生成也不改写 NFO。
	if item.ActorsBefore == 0 && !r.HasActors() {
		item.Status = domain.StatusSkipped
		return item
	}

	var (
		out []byte
		err error
	)
	if doc != nil {
		doc.SetActors(r.View())
		out, err = doc.Encode()
	} else {
		// 没有 NFO 时演员只可能来自抓取结果。
		meta.Code = p.Code
		meta.Actors = r.View()
		out, err = nfo.Encode(meta)
	}
	if err != nil {
		return fail(domain.ErrCodeIOFailed, fmt.Sprintf("生成 NFO 失败：%v", err))
	}

	images := changedImages(r)
	if doc != nil && bytes.Equal(out, baseline) && len(images) == 0 {
		item.Status = domain.StatusSkipped
		return item
	}

	if !eff.Apply {
		return item
	}

	if len(images) > 0 {
		actorsDir := filepath.Join(p.State.Dir, planner.ActorsDir)
		if err := fsx.EnsureDir(actorsDir); err != nil {
			return fail(ioErrorCode(err), fmt.Sprintf("创建 %s 失败：%v", planner.ActorsDir, err))
		}
		for _, a := range images {
			if err := fsx.WriteFileAtomicReplace(actorsDir, a.ImageFileName(), a.Image); err != nil {
				return fail(ioErrorCode(err), fmt.Sprintf("写入头像 %s 失败：%v", a.ImageFileName(), err))
			}
			item.ImagesWritten++
			item.ImageBytes += int64(len(a.Image))
		}
	}

	if doc != nil {
		if err := fsx.WriteFileAtomicReplace(p.State.Dir, p.State.NFOName, out); err != nil {
			return fail(ioErrorCode(err), fmt.Sprintf("写入 NFO 失败：%v", err))
		}
		return item
	}

	if err := fsx.EnsureDir(p.State.Dir); err != nil {
		return fail(ioErrorCode(err), err.Error())
	}
	if err := fsx.WriteFileAtomicNoOverwrite(p.State.Dir, p.Code.NFOName(), out); err != nil && !errors.Is(err, os.ErrExist) {
		return fail(ioErrorCode(err), fmt.Sprintf("写入 NFO 失败：%v", err))
	}
	return item
}

// scrape 先按 fallback 顺序查 provider 缓存（JSON），都未命中再走网络；apply 时写回缓存。
// 缓存按实际成功的 provider 存放，因此 fallback 得到的结果下次也能命中。
func (env *execEnv) scrape(ctx context.Context, p domain.ItemPlan) (provider.Result, error) {
	if res, ok := env.cachedMeta(p); ok {
		return res, nil
	}

	res, err := provider.FetchParse(ctx, env.reg, p.ProviderRequested, p.Code, env.metaClient)
	if err != nil {
		return res, err
	}
	if !env.store.ReadOnly {
		_ = env.store.WriteProvider(res.Used, p.Code, cache.KindHTML, res.HTML)
		if b, e := json.Marshal(res.Meta); e == nil {
			_ = env.store.WriteProvider(res.Used, p.Code, cache.KindJSON, b)
		}
	}
	return res, nil
}

func (env *execEnv) cachedMeta(p domain.ItemPlan) (provider.Result, bool) {
	order, err := provider.FallbackOrder(p.ProviderRequested)
	if err != nil {
		return provider.Result{}, false
	}
	for _, name := range order {
		b, ok, err := env.store.ReadProvider(name, p.Code, cache.KindJSON)
		if err != nil || !ok {
			continue
		}
		var meta domain.MovieMeta
		if json.Unmarshal(b, &meta) != nil {
			// 坏缓存：忽略。
			continue
		}
		return provider.Result{
			Meta:     meta,
			Used:     name,
			Website:  meta.Website,
			Attempts: []provider.Attempt{{Provider: name, Stage: provider.StageCache}},
		}, true
	}
	return provider.Result{}, false
}

// fetchImages 为传入演员填充头像字节，返回失败张数（失败不影响条目状态）。
//
// 以下情况不下载：没有 thumb；被排除的演员；匹配到的旧记录头像受保护；
// 旧记录已有头像且 thumb 未变化。
func (env *execEnv) fetchImages(ctx context.Context, code domain.Code, r *roster.Roster, incoming []domain.Actor, referer string) int {
	failures := 0
	for i := range incoming {
		a := &incoming[i]
		if a.Thumb == "" || len(a.Image) > 0 || isExcluded(a.Name, env.eff.ExcludeActors) {
			continue
		}
		if m := r.Match(*a); m != nil && (m.PreserveImage || (len(m.Image) > 0 && m.Thumb == a.Thumb)) {
			continue
		}
		b, err := env.actorImage(ctx, a.Thumb, referer)
		env.obs.OnImage(code, a.Name, int64(len(b)), describeImageError(err))
		if err != nil {
			failures++
			continue
		}
		a.Image = b
		// 新建记录直接沿用该标记；合并时由合并规则重新决定。
		a.ImageHasChanged = true
	}
	return failures
}

func (env *execEnv) actorImage(ctx context.Context, thumb, referer string) ([]byte, error) {
	if b, ok, err := env.store.ReadActorImage(thumb); err == nil && ok {
		return b, nil
	}
	raw, err := httpx.Download(ctx, env.imageClient, thumb, httpx.DownloadOptions{
		Referer:  referer,
		MaxBytes: env.eff.MaxImageBytes,
	})
	if err != nil {
		return nil, err
	}
	b, err := imgx.NormalizeActorJPEG(raw)
	if err != nil {
		return nil, err
	}
	if !env.store.ReadOnly {
		_ = env.store.WriteActorImage(thumb, b)
	}
	return b, nil
}

// attachLocalImages 把 .actors/ 下已有的头像挂到对应记录上，返回读取失败的张数。
func attachLocalImages(r *roster.Roster, st domain.ItemState, preserve bool) int {
	failures := 0
	for _, a := range r.Actors() {
		name := localImageName(st.ActorImages, a.ImageFileName())
		if name == "" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(st.Dir, planner.ActorsDir, name))
		if err != nil {
			failures++
			continue
		}
		a.Image = b
		a.PreserveImage = preserve
	}
	return failures
}

// localImageName 在 .actors/ 中查找头像文件；先精确匹配，再忽略大小写。
func localImageName(images map[string]struct{}, want string) string {
	if want == "" {
		return ""
	}
	if _, ok := images[want]; ok {
		return want
	}
	for name := range images {
		if strings.EqualFold(name, want) {
			return name
		}
	}
	return ""
}

func excludeActors(r *roster.Roster, names []string) {
	for _, a := range slices.Clone(r.Actors()) {
		if isExcluded(a.Name, names) {
			r.RemoveActor(a)
		}
	}
}

func isExcluded(name string, names []string) bool {
	a := domain.Actor{Name: name}
	for _, n := range names {
		if a.SameName(n) {
			return true
		}
	}
	return false
}

// rosterSnapshot 记录合并前的记录指针与当时的值。
// Roster 合并时原地更新匹配到的记录，因此指针可用来区分新增、更新与删除。
type rosterSnapshot struct {
	order []*domain.Actor
	vals  map[*domain.Actor]domain.Actor
}

func snapshot(r *roster.Roster) rosterSnapshot {
	s := rosterSnapshot{
		order: slices.Clone(r.Actors()),
		vals:  make(map[*domain.Actor]domain.Actor, r.Len()),
	}
	for _, a := range s.order {
		s.vals[a] = *a
	}
	return s
}

// castChanges 按当前顺序列出新增与更新，再按原顺序列出被删除的演员。
func castChanges(before rosterSnapshot, r *roster.Roster) []domain.ActorChange {
	out := []domain.ActorChange{}
	kept := make(map[*domain.Actor]bool, r.Len())
	for _, a := range r.Actors() {
		old, ok := before.vals[a]
		if !ok {
			out = append(out, domain.ActorChange{Op: domain.ChangeAdded, Name: a.Name, Image: a.ImageHasChanged})
			continue
		}
		kept[a] = true
		if actorChanged(old, *a) {
			out = append(out, domain.ActorChange{Op: domain.ChangeUpdated, Name: a.Name, Image: a.ImageHasChanged})
		}
	}
	for _, a := range before.order {
		if !kept[a] {
			out = append(out, domain.ActorChange{Op: domain.ChangeRemoved, Name: before.vals[a].Name})
		}
	}
	return out
}

// actorChanged 只比较会写进 NFO 的字段；role 为空时 NFO 写名字，按写出的值比较。
func actorChanged(old, cur domain.Actor) bool {
	if cur.ImageHasChanged && !old.ImageHasChanged {
		return true
	}
	return old.Name != cur.Name ||
		old.Thumb != cur.Thumb ||
		old.ID != cur.ID ||
		old.Order != cur.Order ||
		nfoRole(old) != nfoRole(cur)
}

func nfoRole(a domain.Actor) string {
	if r := strings.TrimSpace(a.Role); r != "" {
		return r
	}
	return strings.TrimSpace(a.Name)
}

// changedImages 返回需要写回磁盘的头像记录（按列表顺序）。
func changedImages(r *roster.Roster) []*domain.Actor {
	var out []*domain.Actor
	for _, a := range r.Actors() {
		if a.ImageHasChanged && len(a.Image) > 0 && a.ImageFileName() != "" {
			out = append(out, a)
		}
	}
	return out
}
