package run

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/avcast/internal/app"
	"github.com/John-Robertt/avcast/internal/app/planner"
	"github.com/John-Robertt/avcast/internal/config"
	"github.com/John-Robertt/avcast/internal/domain"
	"github.com/John-Robertt/avcast/internal/infra/cache"
	"github.com/John-Robertt/avcast/internal/infra/httpx"
	"github.com/John-Robertt/avcast/internal/provider"
	"github.com/John-Robertt/avcast/internal/scan"
)

// Execute 执行一次同步（dry-run/apply），并返回对外稳定的 RunReport。
// 错误尽量降级为 item 级失败（单条失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, reg provider.Registry) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, reg, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, reg provider.Registry, obs Observer) domain.RunReport {
	if obs == nil {
		obs = nopObserver{}
	}
	obs.OnStart(eff)

	rr := domain.RunReport{
		RunID:     uuid.Must(uuid.NewV7()).String(),
		Path:      eff.Path,
		DryRun:    !eff.Apply,
		StartedAt: time.Now().UTC(),
		Items:     make([]domain.ItemResult, 0, 128),
	}
	abort := func(code, msg string) domain.RunReport {
		rr.Items = append(rr.Items, syntheticFailed(code, msg))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	env := &execEnv{
		eff:   eff,
		reg:   reg,
		obs:   obs,
		store: cache.New(eff.Path, !eff.Apply),
	}
	if !eff.Offline {
		mc, err := httpx.NewMetaClient(eff.ProxyURL)
		if err != nil {
			return abort(domain.ErrCodeConfigInvalid, fmt.Sprintf("proxy.url 无效：%v", err))
		}
		env.metaClient = mc
	}
	// 头像只在 apply 时下载；dry-run 不碰图片站点。
	if eff.Apply && !eff.Offline {
		ic, err := httpx.NewImageClient(eff.ProxyURL, eff.ImageProxy, eff.ImageRPS)
		if err != nil {
			return abort(domain.ErrCodeConfigInvalid, err.Error())
		}
		env.imageClient = ic
	}

	scanStarted := time.Now()
	dirs, err := scan.ScanItems(eff.Path, eff.ExcludeDirs)
	if err != nil {
		return abort(domain.ErrCodeIOFailed, fmt.Sprintf("扫描失败：%v", err))
	}
	scanDur := time.Since(scanStarted)

	groupStarted := time.Now()
	items, unmatched, err := app.GroupByCode(dirs)
	if err != nil {
		return abort(domain.ErrCodeIOFailed, fmt.Sprintf("解析 CODE 失败：%v", err))
	}
	groupDur := time.Since(groupStarted)

	obs.OnPhase(Phase{Name: PhaseScan, Dur: scanDur, Dirs: len(dirs), Unmatched: len(unmatched)})
	obs.OnPhase(Phase{Name: PhaseGroup, Dur: groupDur, Codes: len(items)})

	for _, u := range unmatched {
		rr.Items = append(rr.Items, unmatchedItem(u))
	}

	planStarted := time.Now()
	plans := make([]domain.ItemPlan, 0, len(items))
	for _, it := range items {
		st, e := planner.ReadItemState(it.Dir, it.Code)
		if e != nil {
			rr.Items = append(rr.Items, failedPlanItem(eff.Provider, it, e))
			continue
		}
		plans = append(plans, planner.PlanItem(eff.Provider, it.Dir, it.Code, st, eff.Offline))
	}
	planner.SortPlans(plans)
	planned := Phase{Name: PhasePlan, Dur: time.Since(planStarted), Items: len(plans)}
	for i := range plans {
		if plans[i].NeedScrape {
			planned.NeedScrape++
		}
		if plans[i].NeedNFO {
			planned.NeedNFO++
		}
		planned.LocalImages += len(plans[i].State.ActorImages)
	}
	obs.OnPhase(planned)

	// 执行阶段：按 CODE 并发（worker pool），item 内串行；每个 worker 独占自己条目的 Roster。
	workers := max(eff.Concurrency, 1)
	obs.OnPhase(Phase{Name: PhaseExec, Items: len(plans), Workers: workers})

	type execResult struct {
		res domain.ItemResult
		dur time.Duration
	}

	jobs := make(chan domain.ItemPlan)
	results := make(chan execResult, len(plans))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				started := time.Now()
				r := env.execOne(ctx, p)
				results <- execResult{res: r, dur: time.Since(started)}
			}
		}()
	}

	go func() {
		for _, p := range plans {
			jobs <- p
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	done := 0
	for it := range results {
		done++
		rr.Items = append(rr.Items, it.res)
		obs.OnItemDone(done, len(plans), it.res, it.dur)
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

// execEnv 是所有 worker 共享的只读依赖（http.Client 与 cache.Store 都可并发使用）。
type execEnv struct {
	eff         config.EffectiveConfig
	reg         provider.Registry
	obs         Observer
	metaClient  *http.Client
	imageClient *http.Client
	store       cache.Store
}

func unmatchedItem(u domain.Unmatched) domain.ItemResult {
	item := newItem("", u.Dir.RelPath, "")
	item.Status = domain.StatusUnmatched
	item.ErrorCode = domain.ErrCodeUnmatchedCode
	for _, c := range u.Candidates {
		item.Candidates = append(item.Candidates, string(c))
	}

	switch u.Kind {
	case "ambiguous":
		item.ErrorMsg = fmt.Sprintf("目录名包含多个不同 CODE（ambiguous）：%v；请重命名目录使其只包含一个 CODE", item.Candidates)
	case app.KindDuplicate:
		item.ErrorCode = domain.ErrCodeTargetConflict
		item.ErrorMsg = fmt.Sprintf("目录与另一个条目解析出相同 CODE：%v；请手工合并后删除多余目录", item.Candidates)
	default:
		item.ErrorMsg = "无法从目录名解析出 CODE；请确保目录名包含类似 CAWD-895 的片段"
	}
	return item
}

func failedPlanItem(providerRequested string, it domain.WorkItem, err error) domain.ItemResult {
	item := newItem(string(it.Code), it.Dir.RelPath, providerRequested)
	item.Status = domain.StatusFailed
	item.ErrorCode = ioErrorCode(err)
	item.ErrorMsg = fmt.Sprintf("读取条目状态失败：%v", err)
	return item
}

func syntheticFailed(code, msg string) domain.ItemResult {
	item := newItem("", "", "")
	item.Status = domain.StatusFailed
	item.ErrorCode = code
	item.ErrorMsg = msg
	return item
}

func newItem(code, dir, providerRequested string) domain.ItemResult {
	return domain.ItemResult{
		Code:              code,
		Dir:               dir,
		ProviderRequested: providerRequested,
		Candidates:        []string{},
		Attempts:          []domain.ProviderAttempt{},
		Changes:           []domain.ActorChange{},
	}
}
