package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
	StatusUnmatched = "unmatched"
)

const (
	ErrCodeUnmatchedCode     = "unmatched_code"
	ErrCodeFetchFailed       = "fetch_failed"
	ErrCodeParseFailed       = "parse_failed"
	ErrCodeNFOInvalid        = "nfo_invalid"
	ErrCodeTargetConflict    = "target_conflict"
	ErrCodeIOFailed          = "io_failed"
	ErrCodeConfigNotFound    = "config_not_found"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeConfigMissingPath = "config_missing_path"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Path   string `json:"path"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Unmatched int `json:"unmatched"`

	ActorsAdded   int   `json:"actors_added"`
	ActorsRemoved int   `json:"actors_removed"`
	ImagesWritten int   `json:"images_written"`
	ImageBytes    int64 `json:"image_bytes"`
}

type ItemResult struct {
	Code              string `json:"code"`
	Dir               string `json:"dir"`
	ProviderRequested string `json:"provider_requested"`
	ProviderUsed      string `json:"provider_used"`
	Website           string `json:"website"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Candidates []string          `json:"candidates"`
	Attempts   []ProviderAttempt `json:"attempts"`

	ActorsBefore  int   `json:"actors_before"`
	ActorsAfter   int   `json:"actors_after"`
	Added         int   `json:"added"`
	Updated       int   `json:"updated"`
	Removed       int   `json:"removed"`
	ImagesWritten int   `json:"images_written"`
	ImageBytes    int64 `json:"image_bytes"`
	ImageFailures int   `json:"image_failures"`

	// MergeMode 为本条目实际使用的合并方式（replace|append）；未执行合并的条目为空。
	MergeMode string        `json:"merge_mode"`
	Changes   []ActorChange `json:"changes"`
}

const (
	ChangeAdded   = "added"
	ChangeUpdated = "updated"
	ChangeRemoved = "removed"
)

// ActorChange 描述一次同步中单个演员的变化；Image 表示该演员的头像会写入 .actors/。
type ActorChange struct {
	Op    string `json:"op"`
	Name  string `json:"name"`
	Image bool   `json:"image,omitempty"`
}

// ProviderAttempt 是对外可见的 provider 尝试记录（用于解释回退原因）。
type ProviderAttempt struct {
	Provider  string `json:"provider"`
	Stage     string `json:"stage"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 code 字典序；code=="" 的条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Code
		b := r.Items[j].Code
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		case StatusUnmatched:
			s.Unmatched++
		}
		s.ActorsAdded += it.Added
		s.ActorsRemoved += it.Removed
		s.ImagesWritten += it.ImagesWritten
		s.ImageBytes += it.ImageBytes
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
