package nfo

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/John-Robertt/avcast/internal/domain"
)

const (
	// DefaultCountry / DefaultMPAA 不对外暴露配置；保持最小但够用。
	DefaultCountry = "JP"
	DefaultMPAA    = "R18+"
)

// 约定：输出带 standalone="yes" 的 XML 头，便于与常见刮削器产物兼容。
const header = `<?xml version="1.0" encoding="UTF-8" standalone="yes" ?>` + "\n"

type movie struct {
	XMLName xml.Name `xml:"movie"`

	Title     string `xml:"title"`
	SortTitle string `xml:"sorttitle"`
	Num       string `xml:"num"`

	Studio string `xml:"studio,omitempty"`
	Set    string `xml:"set,omitempty"`

	Release   string `xml:"release,omitempty"`
	Premiered string `xml:"premiered,omitempty"`
	Year      int    `xml:"year,omitempty"`
	Runtime   int    `xml:"runtime,omitempty"`

	MPAA    string `xml:"mpaa,omitempty"`
	Country string `xml:"country,omitempty"`

	Poster string `xml:"poster,omitempty"`
	Thumb  string `xml:"thumb,omitempty"`
	Fanart string `xml:"fanart,omitempty"`

	Rating     float64 `xml:"rating"`
	UserRating int     `xml:"userrating"`
	Votes      int     `xml:"votes"`

	Actors []actor  `xml:"actor,omitempty"`
	Tags   []string `xml:"tag,omitempty"`
	Genres []string `xml:"genre,omitempty"`

	Cover   string `xml:"cover,omitempty"`
	Website string `xml:"website,omitempty"`

	// Extra 保存本包不认识的元素（其它刮削器/媒体库写入的字段），重写时原样带回。
	Extra []element `xml:",any"`
}

type actor struct {
	Name    string `xml:"name"`
	Role    string `xml:"role,omitempty"`
	Order   int    `xml:"order"`
	Thumb   string `xml:"thumb,omitempty"`
	Profile string `xml:"profile,omitempty"`

	// Extra 保存 <actor> 下本包不认识的子元素（如 <type>、<sortorder>）。
	Extra []element `xml:",any"`
}

type element struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
}

// Encode 把 MovieMeta 转成 Kodi/Jellyfin/Emby 可读取的 NFO（XML）。
//
// 规则：
// - 字段缺失允许为空；但输出结构尽量稳定（去空白、去重、保持输入顺序）
// - title 为空时回退到 CODE（避免生成空 title）
// - actor 的 role 为空时回退为名字；profile 写入站点 ID（演员详情页 URL）
func Encode(meta domain.MovieMeta) ([]byte, error) {
	code := strings.TrimSpace(string(meta.Code))
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = code
	} else if code != "" && !strings.HasPrefix(title, code) {
		// 约定：title 以 CODE 开头（更利于媒体库识别与展示）。
		title = code + " " + title
	}

	names := meta.ActorNames()
	m := movie{
		Title:     title,
		SortTitle: code,
		Num:       code,

		Studio: strings.TrimSpace(meta.Studio),
		Set:    strings.TrimSpace(meta.Series),

		Release:   strings.TrimSpace(meta.Release),
		Premiered: strings.TrimSpace(meta.Release),
		Year:      meta.Year,
		Runtime:   meta.RuntimeM,

		MPAA:    DefaultMPAA,
		Country: DefaultCountry,

		Poster: "poster.jpg",
		Thumb:  "poster.jpg",
		Fanart: "fanart.jpg",

		// tags/genres 追加演员名（便于媒体库按人名过滤）。
		Tags:   normList(append(append([]string(nil), meta.Tags...), names...)),
		Genres: normList(append(append([]string(nil), meta.Genres...), names...)),

		Cover:   strings.TrimSpace(meta.CoverURL),
		Website: strings.TrimSpace(meta.Website),
	}
	m.Actors = toElements(dedupActors(meta.Actors))

	return marshal(m)
}

// Document 是一个已解析的 NFO；只改写演员部分，其它字段原样保留。
type Document struct {
	m movie
}

// Decode 解析已有的 NFO 文本。
func Decode(b []byte) (*Document, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, fmt.Errorf("nfo: decode: 内容为空")
	}
	var m movie
	if err := xml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("nfo: decode: %w", err)
	}
	return &Document{m: m}, nil
}

// Num 返回 NFO 中记录的 CODE（<num>）。
func (d *Document) Num() string { return strings.TrimSpace(d.m.Num) }

// Actors 把 <actor> 元素转换为演员记录（ID 取自 <profile>）。
func (d *Document) Actors() []domain.Actor {
	if len(d.m.Actors) == 0 {
		return nil
	}
	out := make([]domain.Actor, 0, len(d.m.Actors))
	for _, a := range d.m.Actors {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		out = append(out, domain.Actor{
			Name:  name,
			Role:  strings.TrimSpace(a.Role),
			Thumb: strings.TrimSpace(a.Thumb),
			ID:    strings.TrimSpace(a.Profile),
			Order: a.Order,
		})
	}
	return out
}

// SetActors 替换全部 <actor> 元素（顺序与传入一致）。
// 与旧元素同一演员（先按 profile，再按忽略大小写的名字）时，带回旧元素中不认识的子元素。
func (d *Document) SetActors(actors []domain.Actor) {
	old := d.m.Actors
	next := toElements(actors)
	for i := range next {
		if j := findElement(old, next[i]); j >= 0 {
			next[i].Extra = old[j].Extra
		}
	}
	d.m.Actors = next
}

func findElement(list []actor, a actor) int {
	if a.Profile != "" {
		for i := range list {
			if strings.TrimSpace(list[i].Profile) == a.Profile {
				return i
			}
		}
	}
	for i := range list {
		if strings.EqualFold(strings.TrimSpace(list[i].Name), a.Name) {
			return i
		}
	}
	return -1
}

func (d *Document) Encode() ([]byte, error) {
	return marshal(d.m)
}

func marshal(m movie) ([]byte, error) {
	b, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(header), b...), nil
}

func toElements(actors []domain.Actor) []actor {
	if len(actors) == 0 {
		return nil
	}
	out := make([]actor, 0, len(actors))
	for _, a := range actors {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		role := strings.TrimSpace(a.Role)
		if role == "" {
			role = name
		}
		out = append(out, actor{
			Name:    name,
			Role:    role,
			Order:   a.Order,
			Thumb:   strings.TrimSpace(a.Thumb),
			Profile: strings.TrimSpace(a.ID),
		})
	}
	return out
}

// dedupActors 去掉空名字与重复名字（忽略大小写，保留首次出现）。
func dedupActors(in []domain.Actor) []domain.Actor {
	out := make([]domain.Actor, 0, len(in))
	for _, a := range in {
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			continue
		}
		dup := false
		for _, x := range out {
			if x.SameName(a.Name) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, a)
		}
	}
	return out
}

func normList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
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
	if len(out) == 0 {
		return nil
	}
	return out
}
