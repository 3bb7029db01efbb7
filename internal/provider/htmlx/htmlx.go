// Package htmlx 收拢各 provider 共用的 HTML 文本清洗小工具。
package htmlx

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ResolveURL 把页面内的相对链接解析为绝对 URL；"//host/x" 视为 https。
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}

func NormSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

// NormHeader 用于匹配“日期:”“演員：”这类信息栏标题。
func NormHeader(s string) string {
	s = NormSpace(s)
	s = strings.TrimSuffix(s, ":")
	s = strings.TrimSuffix(s, "：")
	return strings.TrimSpace(s)
}

// NormList 去空白、去重，保持输入顺序。
func NormList(in []string) []string {
	m := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := m[s]; ok {
			continue
		}
		m[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// FirstInt 提取第一段连续数字（"155分鐘" -> 155）；没有数字返回 0。
func FirstInt(s string) int {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, _ := strconv.Atoi(b.String())
	return n
}

// YearFromRelease 从 "2006-01-02" 形式的日期取年份；无法解析返回 0。
func YearFromRelease(release string) int {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(release))
	if err != nil {
		return 0
	}
	return t.Year()
}
