package domain

import (
	"strconv"
	"strings"
)

// Actor 是一位演员记录（名字、角色、头像地址、站点 ID、展示顺序与可选的头像图片）。
//
// 约束：
// - ID 允许为空；为空时只能靠名字（忽略大小写）识别同一个人
// - Order 为 0 表示“未设置”（加入 roster 时追加到末尾）
// - PreserveImage 表示头像由用户本地维护，抓取到的图片不得覆盖
// - ImageHasChanged 只由合并规则设置，用于决定是否需要把图片写回磁盘
type Actor struct {
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
	Thumb string `json:"thumb,omitempty"`
	ID    string `json:"id,omitempty"`
	Order int    `json:"order,omitempty"`

	Image           []byte `json:"-"`
	PreserveImage   bool   `json:"-"`
	ImageHasChanged bool   `json:"-"`
}

// SameName 判断名字是否相同（忽略大小写）。
func (a Actor) SameName(name string) bool {
	return strings.EqualFold(a.Name, name)
}

// Format 返回多行的调试文本（人读，不是机器格式）。
func (a Actor) Format() string {
	const nl = "\n"
	var b strings.Builder
	b.WriteString("Actor" + nl)
	b.WriteString("  Name:  " + a.Name + nl)
	b.WriteString("  Role:  " + a.Role + nl)
	b.WriteString("  Thumb: " + a.Thumb + nl)
	b.WriteString("  ID:    " + a.ID + nl)
	b.WriteString("  Order: " + strconv.Itoa(a.Order) + nl)
	return b.String()
}

func (a Actor) String() string { return a.Format() }

// ImageFileName 返回 Kodi 约定的 .actors/ 下的头像文件名（例如 "Yua_Mikami.jpg"）。
// 名字为空（或清洗后为空）时返回空串。
func (a Actor) ImageFileName() string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, a.Name)
	name = strings.Join(strings.Fields(name), "_")
	name = strings.Trim(name, ".")
	if name == "" {
		return ""
	}
	return name + ".jpg"
}
