package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/John-Robertt/avcast/internal/domain"
)

const (
	StageFetch = "fetch"
	StageParse = "parse"
	StageOK    = "ok"
	// StageCache 表示命中本地 provider 缓存，没有访问网络。
	StageCache = "cache"
)

// Attempt 记录一次 provider 尝试（用于解释 fallback/降级原因）。
type Attempt struct {
	Provider string
	Stage    string
	Err      error // nil when Stage==StageOK
}

// Result 是一次成功抓取+解析的产物。
type Result struct {
	Meta     domain.MovieMeta
	Used     string // 最终成功的 provider name
	Website  string // 详情页 URL
	HTML     []byte // 原始 HTML（用于 cache）
	Attempts []Attempt
}

// FetchParse 按“requested -> fallback”顺序抓取并解析元数据。
// 失败时 Result.Attempts 仍然有效（解释每个 provider 为何失败）。
func FetchParse(ctx context.Context, reg Registry, requested string, code domain.Code, c *http.Client) (Result, error) {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if requested == "" {
		return Result{}, fmt.Errorf("provider_requested 不能为空")
	}
	if code == "" {
		return Result{}, fmt.Errorf("code 不能为空")
	}

	order, err := FallbackOrder(requested)
	if err != nil {
		return Result{}, err
	}

	var (
		res     Result
		lastErr error
	)
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		p, ok := reg.Get(name)
		if !ok {
			lastErr = fmt.Errorf("provider 未注册：%q", name)
			res.Attempts = append(res.Attempts, Attempt{Provider: name, Stage: StageFetch, Err: lastErr})
			continue
		}

		h, pageURL, ferr := p.Fetch(ctx, code, c)
		if ferr != nil {
			lastErr = &Error{Provider: name, Stage: StageFetch, Err: ferr}
			res.Attempts = append(res.Attempts, Attempt{Provider: name, Stage: StageFetch, Err: ferr})
			continue
		}

		m, perr := p.Parse(code, h, pageURL)
		if perr != nil {
			lastErr = &Error{Provider: name, Stage: StageParse, Err: perr}
			res.Attempts = append(res.Attempts, Attempt{Provider: name, Stage: StageParse, Err: perr})
			continue
		}

		m.Website = pageURL
		res.Attempts = append(res.Attempts, Attempt{Provider: name, Stage: StageOK})
		res.Meta, res.Used, res.Website, res.HTML = m, name, pageURL, h
		return res, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("无可用 provider")
	}
	return res, lastErr
}

// ReportAttempts 把内部尝试记录转换为 report 中的稳定结构。
func ReportAttempts(attempts []Attempt) []domain.ProviderAttempt {
	out := make([]domain.ProviderAttempt, 0, len(attempts))
	for _, a := range attempts {
		pa := domain.ProviderAttempt{Provider: a.Provider, Stage: a.Stage}
		if a.Err != nil {
			pa.ErrorCode = domain.ErrCodeFetchFailed
			if a.Stage == StageParse {
				pa.ErrorCode = domain.ErrCodeParseFailed
			}
			pa.ErrorMsg = a.Err.Error()
		}
		out = append(out, pa)
	}
	return out
}

// Error 是 provider 阶段的可追溯错误。
// 上层可以据此把失败归类为 fetch_failed / parse_failed，并写入 report。
type Error struct {
	Provider string
	Stage    string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider=%s stage=%s: %v", e.Provider, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Stage 从 err 中取出失败阶段；不是 *Error 时返回空串。
func Stage(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return ""
}

// FallbackOrder 返回 requested 起始的 provider 尝试顺序。
func FallbackOrder(requested string) ([]string, error) {
	switch requested {
	case "javbus":
		return []string{"javbus", "javdb"}, nil
	case "javdb":
		return []string{"javdb", "javbus"}, nil
	default:
		return nil, fmt.Errorf("未知 provider：%q", requested)
	}
}
