package run

import (
	"time"

	"github.com/John-Robertt/avcast/internal/config"
	"github.com/John-Robertt/avcast/internal/domain"
)

// Observer 接收一次同步过程中的事件；run 包自身不向终端输出任何内容。
//
// OnImage 与 OnItemDone 由 worker 调用，实现必须并发安全。
type Observer interface {
	OnStart(eff config.EffectiveConfig)
	OnPhase(p Phase)
	// OnImage 在一次头像获取结束时调用；err 非 nil 表示失败（只计数，不影响条目状态）。
	OnImage(code domain.Code, actor string, size int64, err error)
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
}

// 阶段名。
const (
	PhaseScan  = "scan"
	PhaseGroup = "group"
	PhasePlan  = "plan"
	PhaseExec  = "exec"
)

// Phase 是某个阶段结束时的统计；只有与该阶段相关的字段有值。
type Phase struct {
	Name string
	Dur  time.Duration

	Dirs      int // scan
	Unmatched int // scan
	Codes     int // group

	Items       int // plan/exec
	NeedScrape  int // plan
	NeedNFO     int // plan
	LocalImages int // plan
	Workers     int // exec
}

type nopObserver struct{}

func (nopObserver) OnStart(config.EffectiveConfig)                        {}
func (nopObserver) OnPhase(Phase)                                         {}
func (nopObserver) OnImage(domain.Code, string, int64, error)             {}
func (nopObserver) OnItemDone(int, int, domain.ItemResult, time.Duration) {}
