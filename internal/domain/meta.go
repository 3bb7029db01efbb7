package domain

// MovieMeta 是 provider 解析得到的结构化元数据。
//
// 约束：
// - Website 必须写入最终成功 provider 的详情页 URL（也是来源标记）
// - Actors 按站点展示顺序给出；Order 从 1 开始
type MovieMeta struct {
	Code     Code
	Title    string
	Studio   string
	Series   string
	Release  string // ISO date, e.g. "2025-11-27"
	Year     int
	RuntimeM int

	Actors []Actor
	Genres []string
	Tags   []string

	Website   string
	CoverURL  string
	FanartURL string
}

// ActorNames 返回演员名字列表（保持顺序）。
func (m MovieMeta) ActorNames() []string {
	if len(m.Actors) == 0 {
		return nil
	}
	out := make([]string, 0, len(m.Actors))
	for _, a := range m.Actors {
		out = append(out, a.Name)
	}
	return out
}
