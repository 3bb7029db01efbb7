package domain

// ItemDir 描述 out/ 下的一个条目目录（只做 stat，不读内容）。
//
// 不变量：AbsPath 必须是 clean + absolute。
type ItemDir struct {
	AbsPath string
	RelPath string
	Name    string // 目录名，例如 "CAWD-895"
}

// ItemState 描述条目目录的现状（只做 ReadDir，不读文件内容）。
type ItemState struct {
	Dir string
	// NFOName 是实际使用的 NFO 文件名：优先 <CODE>.nfo，其次 movie.nfo。
	NFOName string
	HasNFO  bool

	// ActorImages 是 .actors/ 下已有的文件名集合。
	ActorImages map[string]struct{}
}

// ItemPlan 是对某个 CODE 的最小执行计划。
type ItemPlan struct {
	Code              Code
	Item              ItemDir
	ProviderRequested string
	State             ItemState

	NeedScrape bool
	// NeedNFO 为 true 表示目录里还没有 NFO，需要按抓取结果新建。
	NeedNFO bool
}

// Unmatched 描述无法解析出唯一 CODE 的条目目录。
type Unmatched struct {
	Dir        ItemDir
	Kind       string // "no_match" | "ambiguous" | "duplicate"
	Candidates []Code
}

// WorkItem 是解析出 CODE 的条目目录。
type WorkItem struct {
	Code Code
	Dir  ItemDir
}
