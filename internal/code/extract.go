package code

import (
	"regexp"
	"sort"
	"strings"

	"github.com/John-Robertt/avcast/internal/domain"
)

// 允许的 CODE 变体：字母段 + 分隔符变体 + 数字段。
// 分隔符至少出现一次，避免把 "SAMPLE123" 这类噪音误判成 CODE。
var candidateRE = regexp.MustCompile(`(?i)([a-z]{2,6})[\s._-]+([0-9]{2,5})`)

const (
	KindNoMatch   = "no_match"
	KindAmbiguous = "ambiguous"
)

type UnmatchedError struct {
	Kind string
	// Candidates 仅在 ambiguous 时返回（已排序）。
	Candidates []domain.Code
}

func (e *UnmatchedError) Error() string {
	switch e.Kind {
	case KindNoMatch:
		return "无法从目录名解析出 CODE"
	case KindAmbiguous:
		parts := make([]string, 0, len(e.Candidates))
		for _, c := range e.Candidates {
			parts = append(parts, string(c))
		}
		return "目录名包含多个不同 CODE（ambiguous）：" + strings.Join(parts, ", ")
	default:
		return "unmatched"
	}
}

// Extract 从条目目录名中提取唯一 CODE（cawd_895 → CAWD-895）。
// 失败时返回 *UnmatchedError（no_match / ambiguous）。
func Extract(dir domain.ItemDir) (domain.Code, error) {
	cands := Candidates(dir.Name)
	switch len(cands) {
	case 0:
		return "", &UnmatchedError{Kind: KindNoMatch}
	case 1:
		return cands[0], nil
	default:
		return "", &UnmatchedError{Kind: KindAmbiguous, Candidates: cands}
	}
}

// Candidates 返回 s 中出现的所有规范化 CODE（去重、排序）。
// 也用于 CLI 的 show 子命令解析用户输入。
func Candidates(s string) []domain.Code {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	seen := map[domain.Code]struct{}{}
	for _, m := range candidateRE.FindAllStringSubmatch(s, -1) {
		if c, ok := domain.ParseCode(strings.ToUpper(m[1]) + "-" + m[2]); ok {
			seen[c] = struct{}{}
		}
	}

	out := make([]domain.Code, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
