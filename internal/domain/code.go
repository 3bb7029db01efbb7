package domain

import (
	"regexp"
	"strings"
)

// Code 是条目的唯一主键（规范化后形如 CAWD-895），同时也是 out/ 下的目录名与 NFO 文件名。
type Code string

var codeRE = regexp.MustCompile(`^[A-Z]{2,6}-[0-9]{2,5}$`)

// ParseCode 校验规范化后的 CODE 字符串（大写 + '-' 分隔）。
func ParseCode(s string) (Code, bool) {
	s = strings.TrimSpace(s)
	if !codeRE.MatchString(s) {
		return "", false
	}
	return Code(s), true
}

// NFOName 返回条目 NFO 的文件名。
func (c Code) NFOName() string { return string(c) + ".nfo" }
