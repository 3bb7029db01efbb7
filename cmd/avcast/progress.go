package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/John-Robertt/avcast/internal/app/run"
	"github.com/John-Robertt/avcast/internal/config"
	"github.com/John-Robertt/avcast/internal/domain"
	"github.com/John-Robertt/avcast/internal/provider"
)

var _ run.Observer = (*castUI)(nil)

// castUI 把同步事件渲染成终端进度：每个条目一行结果，后跟逐个演员的变化。
// 只在交互终端启用；stdout 的 JSON 不经过这里。
type castUI struct {
	w io.Writer

	mu       sync.Mutex
	started  time.Time
	lastLine time.Time

	total   int
	done    int
	updated int
	skipped int
	failed  int

	images     int
	imageBytes int64
	imageFails int

	// idle 内没有任何输出时，ticker 补一行进度。
	idle    time.Duration
	every   time.Duration
	stop    chan struct{}
	ticking bool
}

func newCastUI(w io.Writer) *castUI {
	return &castUI{
		w:     w,
		idle:  6 * time.Second,
		every: 2 * time.Second,
	}
}

func (u *castUI) OnStart(eff config.EffectiveConfig) {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := time.Now()
	u.started = now

	mode := "dry-run（只预览，不写 NFO、不下载头像）"
	if eff.Apply {
		mode = "apply"
	}
	source := providerChain(eff.Provider)
	if eff.Offline {
		source = "offline（只整理本地演员表）"
	}

	fmt.Fprintf(u.w, "[%s] avcast sync\n", now.Format("15:04:05"))
	rows := [][2]string{
		{"path", eff.Path},
		{"config", orNone(eff.ConfigFile)},
		{"mode", mode},
		{"source", source},
		{"merge", eff.MergeMode},
		{"local images", "preserve=" + onOff(eff.PreserveLocalImages) + " refresh=" + onOff(eff.RefreshImages)},
		{"downloads", fmt.Sprintf("max=%s rps=%s proxy=%s", humanize.Bytes(uint64(max(eff.MaxImageBytes, 0))), formatRPS(eff.ImageRPS), imageProxy(eff))},
		{"exclude", orNone(strings.Join(eff.ExcludeActors, ", "))},
		{"skip dirs", orNone(strings.Join(eff.ExcludeDirs, ", "))},
		{"workers", fmt.Sprint(eff.Concurrency)},
	}
	if eff.JavDBBaseURL != "" {
		rows = append(rows, [2]string{"javdb", truncate(eff.JavDBBaseURL, 120)})
	}
	for _, r := range rows {
		fmt.Fprintf(u.w, "  %-12s %s\n", r[0], r[1])
	}
	fmt.Fprintln(u.w)
	u.lastLine = time.Now()
}

func (u *castUI) OnPhase(p run.Phase) {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch p.Name {
	case run.PhaseScan:
		fmt.Fprintf(u.w, "扫描: %d 个目录，%d 个无法识别 CODE (%s)\n", p.Dirs, p.Unmatched, seconds(p.Dur))
	case run.PhaseGroup:
		fmt.Fprintf(u.w, "分组: %d 个 CODE (%s)\n", p.Codes, seconds(p.Dur))
	case run.PhasePlan:
		fmt.Fprintf(u.w, "规划: %d 个条目，需抓取 %d，缺 NFO %d，本地头像 %d 张 (%s)\n",
			p.Items, p.NeedScrape, p.NeedNFO, p.LocalImages, seconds(p.Dur))
	case run.PhaseExec:
		u.total = p.Items
		fmt.Fprintf(u.w, "执行: %d 个 worker\n\n", p.Workers)
		if u.total > 0 && !u.ticking {
			u.startTickerLocked()
		}
	}
	u.lastLine = time.Now()
}

func (u *castUI) OnImage(code domain.Code, actor string, size int64, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err == nil {
		u.images++
		u.imageBytes += size
		return
	}
	u.imageFails++
	fmt.Fprintf(u.w, "  ! %s %s 头像获取失败：%s\n", code, actor, truncate(err.Error(), 120))
	u.lastLine = time.Now()
}

func (u *castUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.done, u.total = idx, total
	head := fmt.Sprintf("[%d/%d] %s", idx, total, res.Code)

	switch res.Status {
	case domain.StatusProcessed:
		u.updated++
		fmt.Fprintf(u.w, "%s 更新 %s%s%s (%s)\n", head, formatCast(res), viaNote(res), formatFallbackNote(res), seconds(dur))
		for _, c := range res.Changes {
			fmt.Fprintln(u.w, formatChange(c))
		}
	case domain.StatusSkipped:
		u.skipped++
		why := "演员表无变化"
		if res.ActorsAfter == 0 {
			why = "没有演员"
		}
		fmt.Fprintf(u.w, "%s 跳过（%s） (%s)\n", head, why, seconds(dur))
	default:
		u.failed++
		chain := formatAttemptChain(res.Attempts)
		if chain != "" {
			chain = " attempts=" + chain
		}
		fmt.Fprintf(u.w, "%s 失败 %s: %s%s (%s)\n", head, res.ErrorCode, truncate(res.ErrorMsg, 160), chain, seconds(dur))
	}
	u.lastLine = time.Now()

	if u.ticking && u.done >= u.total {
		close(u.stop)
		u.ticking = false
	}
}

func (u *castUI) startTickerLocked() {
	u.stop = make(chan struct{})
	u.ticking = true
	stop := u.stop

	go func() {
		t := time.NewTicker(u.every)
		defer t.Stop()
		for {
			select {
			case now := <-t.C:
				u.mu.Lock()
				u.tickLocked(now)
				u.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

// tickLocked 在长时间没有输出时打印一行进度（含头像下载计数）。
func (u *castUI) tickLocked(now time.Time) {
	if u.total == 0 || u.done >= u.total || now.Sub(u.lastLine) <= u.idle {
		return
	}
	fmt.Fprintf(u.w, "进度: %d/%d 更新 %d 跳过 %d 失败 %d | 头像 %d (%s) 失败 %d | %s\n",
		u.done, u.total, u.updated, u.skipped, u.failed,
		u.images, humanize.Bytes(uint64(u.imageBytes)), u.imageFails,
		clock(now.Sub(u.started)),
	)
	u.lastLine = now
}

// formatCast 描述一个条目的演员表变化，删除数的含义随合并方式不同：
// replace 时是未再出现的旧演员，append/离线时只可能来自 exclude_actors。
func formatCast(res domain.ItemResult) string {
	mode := res.MergeMode
	if mode == "" {
		mode = "local"
	}
	s := fmt.Sprintf("%s %d->%d +%d ~%d", mode, res.ActorsBefore, res.ActorsAfter, res.Added, res.Updated)
	if res.MergeMode == config.MergeReplace {
		s += fmt.Sprintf(" -%d", res.Removed)
	} else if res.Removed > 0 {
		s += fmt.Sprintf(" excluded=%d", res.Removed)
	}
	if res.ImagesWritten > 0 {
		s += fmt.Sprintf(" images=%d (%s)", res.ImagesWritten, humanize.Bytes(uint64(max(res.ImageBytes, 0))))
	}
	if res.ImageFailures > 0 {
		s += fmt.Sprintf(" image_failures=%d", res.ImageFailures)
	}
	return s
}

func formatChange(c domain.ActorChange) string {
	mark := "?"
	switch c.Op {
	case domain.ChangeAdded:
		mark = "+"
	case domain.ChangeUpdated:
		mark = "~"
	case domain.ChangeRemoved:
		mark = "-"
	}
	line := "    " + mark + " " + c.Name
	if c.Image {
		line += " [头像]"
	}
	return line
}

func viaNote(res domain.ItemResult) string {
	if res.ProviderUsed == "" {
		return ""
	}
	for _, a := range res.Attempts {
		if a.Stage == provider.StageCache {
			return " via " + res.ProviderUsed + "(cache)"
		}
	}
	return " via " + res.ProviderUsed
}

// formatFallbackNote 只解释首选 provider 为什么没被采用。
func formatFallbackNote(res domain.ItemResult) string {
	req := strings.ToLower(strings.TrimSpace(res.ProviderRequested))
	used := strings.ToLower(strings.TrimSpace(res.ProviderUsed))
	if req == "" || used == "" || req == used {
		return ""
	}
	for _, a := range res.Attempts {
		if !strings.EqualFold(a.Provider, req) || a.ErrorCode == "" {
			continue
		}
		msg := a.ErrorCode
		if m := strings.TrimSpace(a.ErrorMsg); m != "" {
			msg += ": " + m
		}
		return " fallback(" + req + " " + truncate(msg, 90) + ")"
	}
	return " fallback(" + req + ")"
}

// formatAttemptChain 形如 "javbus:fetch:fetch_failed;javdb:parse:parse_failed"。
func formatAttemptChain(attempts []domain.ProviderAttempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		s := a.Provider + ":" + a.Stage
		if a.ErrorCode != "" {
			s += ":" + a.ErrorCode
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ";")
}

func formatRPS(rps float64) string {
	if rps <= 0 {
		return "unlimited"
	}
	return humanize.FtoaWithDigits(rps, 2) + "/s"
}

func imageProxy(eff config.EffectiveConfig) string {
	if eff.ProxyURL == "" {
		return "off"
	}
	if !eff.ImageProxy {
		return "direct (" + redactProxy(eff.ProxyURL) + " 仅用于元数据)"
	}
	return redactProxy(eff.ProxyURL)
}

// redactProxy 去掉代理地址中的账号密码。
func redactProxy(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return truncate(raw, 60)
	}
	if u.User != nil {
		return u.Scheme + "://***@" + u.Host
	}
	return u.Scheme + "://" + u.Host
}

func providerChain(requested string) string {
	if strings.EqualFold(strings.TrimSpace(requested), "javdb") {
		return "javdb -> javbus"
	}
	return "javbus -> javdb"
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 3 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", max(d, 0).Seconds())
}

func clock(d time.Duration) string {
	sec := int(max(d, 0).Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, sec%3600/60, sec%60)
}
