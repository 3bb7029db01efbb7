package roster

import (
	"testing"

	"github.com/John-Robertt/avcast/internal/domain"
)

func TestAddActor_NameMatchIgnoresCase(t *testing.T) {
	r := New(domain.Actor{Name: "Bob", Order: 2})

	r.AddActor(domain.Actor{Name: "bob", Image: []byte("X")})

	if r.Len() != 1 {
		t.Fatalf("期望合并为 1 条记录，实际 %d", r.Len())
	}
	got := r.Actors()[0]
	if string(got.Image) != "X" || !got.ImageHasChanged {
		t.Fatalf("期望图片被更新且 ImageHasChanged=true：%+v", got)
	}
	if got.Name != "bob" {
		t.Fatalf("期望名字被覆盖为传入值，实际 %q", got.Name)
	}
}

func TestAddActor_PreservedImageNotOverwritten(t *testing.T) {
	r := New(domain.Actor{ID: "1", Name: "Alice", Order: 1, PreserveImage: true, Image: []byte("A")})

	r.AddActor(domain.Actor{ID: "1", Name: "Alice", Image: []byte("B")})

	got := r.Actors()[0]
	if string(got.Image) != "A" {
		t.Fatalf("受保护图片不应被覆盖，实际 %q", got.Image)
	}
	if got.ImageHasChanged {
		t.Fatalf("ImageHasChanged 不应被设置")
	}
	if !got.PreserveImage {
		t.Fatalf("PreserveImage 应保持 true")
	}
}

func TestAddActor_PreserveIsMonotonic(t *testing.T) {
	r := New(domain.Actor{ID: "1", Name: "Alice"})

	r.AddActor(domain.Actor{ID: "1", Name: "Alice", PreserveImage: true, Image: []byte("keep")})
	// 传入 PreserveImage=true：合并后保护生效，图片同样不能被写入。
	if got := r.Actors()[0]; !got.PreserveImage || len(got.Image) != 0 || got.ImageHasChanged {
		t.Fatalf("合并后应受保护且图片未变：%+v", got)
	}

	for _, img := range []string{"x", "y"} {
		r.AddActor(domain.Actor{ID: "1", Name: "Alice", PreserveImage: false, Image: []byte(img)})
	}
	if got := r.Actors()[0]; !got.PreserveImage || len(got.Image) != 0 {
		t.Fatalf("PreserveImage 一旦为 true 应保持：%+v", got)
	}
}

func TestAddActor_IDBeforeName(t *testing.T) {
	r := New(
		domain.Actor{ID: "a", Name: "Same", Order: 1},
		domain.Actor{ID: "b", Name: "Other", Order: 2},
	)

	// ID 命中第二条，即使名字与第一条相同。
	r.AddActor(domain.Actor{ID: "b", Name: "same", Role: "r"})

	if r.Len() != 2 {
		t.Fatalf("期望 2 条记录，实际 %d", r.Len())
	}
	if r.Actors()[0].Name != "Same" || r.Actors()[1].Role != "r" || r.Actors()[1].Name != "same" {
		t.Fatalf("ID 匹配优先级不正确：%+v %+v", *r.Actors()[0], *r.Actors()[1])
	}
}

func TestAddActor_UnknownIDFallsBackToName(t *testing.T) {
	r := New(domain.Actor{ID: "a", Name: "Carol", Order: 1})

	r.AddActor(domain.Actor{ID: "zzz", Name: "CAROL", Order: 5})

	if r.Len() != 1 {
		t.Fatalf("ID 未命中时应回退到名字匹配，实际 %d 条", r.Len())
	}
	got := r.Actors()[0]
	if got.ID != "a" {
		t.Fatalf("合并不应改写 ID，实际 %q", got.ID)
	}
	if got.Order != 5 {
		t.Fatalf("传入 Order 非 0 时应覆盖，实际 %d", got.Order)
	}
}

func TestAddActor_OrderDefaults(t *testing.T) {
	var r Roster

	r.AddActor(domain.Actor{Name: "first"})
	if got := r.Actors()[0].Order; got != 0 {
		t.Fatalf("空列表时 Order 应保持 0，实际 %d", got)
	}

	r.AddActor(domain.Actor{Name: "second", Order: 7})
	r.AddActor(domain.Actor{Name: "third"})
	if got := r.Actors()[2].Order; got != 8 {
		t.Fatalf("期望追加的 Order=8，实际 %d", got)
	}
}

func TestAddActor_EmptyImageKeepsExisting(t *testing.T) {
	r := New(domain.Actor{Name: "Dan", Image: []byte("old")})

	r.AddActor(domain.Actor{Name: "Dan", Role: "new role"})

	got := r.Actors()[0]
	if string(got.Image) != "old" || got.ImageHasChanged {
		t.Fatalf("传入图片为空时不应改动图片：%+v", got)
	}
	if got.Role != "new role" {
		t.Fatalf("role 应被覆盖：%q", got.Role)
	}
}

func TestAddActor_CopiesImage(t *testing.T) {
	img := []byte("abc")
	var r Roster
	r.AddActor(domain.Actor{Name: "Eve", Image: img})

	img[0] = 'X'
	if string(r.Actors()[0].Image) != "abc" {
		t.Fatalf("Roster 应持有自己的图片副本")
	}
}

func TestSetActors_EmptyListClears(t *testing.T) {
	r := New(domain.Actor{Name: "a"}, domain.Actor{Name: "b"})

	st := r.SetActors(nil)

	if r.HasActors() {
		t.Fatalf("期望清空，实际 %d 条", r.Len())
	}
	if st.Removed != 2 || st.Added != 0 || st.Updated != 0 {
		t.Fatalf("统计不正确：%+v", st)
	}
}

func TestSetActors_SameIDTwiceOnlyFirstMatches(t *testing.T) {
	r := New(domain.Actor{ID: "1", Name: "Alice", Order: 1})
	old := r.Actors()[0]

	st := r.SetActors([]domain.Actor{
		{ID: "1", Name: "Alice", Role: "first"},
		{ID: "1", Name: "Alice", Role: "second"},
	})

	if r.Len() != 2 {
		t.Fatalf("期望 2 条记录，实际 %d", r.Len())
	}
	if r.Actors()[0] != old || old.Role != "first" {
		t.Fatalf("第一个传入项应合并到旧记录：%+v", *r.Actors()[0])
	}
	if r.Actors()[1] == old || r.Actors()[1].Role != "second" {
		t.Fatalf("第二个传入项应新建记录：%+v", *r.Actors()[1])
	}
	if st.Updated != 1 || st.Added != 1 || st.Removed != 0 {
		t.Fatalf("统计不正确：%+v", st)
	}
}

func TestSetActors_OrderFollowsIncomingAndDropsUnmatched(t *testing.T) {
	r := New(
		domain.Actor{ID: "a", Name: "A", Order: 1, Image: []byte("imgA")},
		domain.Actor{ID: "b", Name: "B", Order: 2},
		domain.Actor{ID: "c", Name: "C", Order: 3},
	)
	oldA := r.Actors()[0]

	st := r.SetActors([]domain.Actor{
		{ID: "c", Name: "C", Order: 1},
		{Name: "D"},
		{Name: "a"}, // 名字回退匹配
	})

	names := []string{}
	for _, a := range r.Actors() {
		names = append(names, a.Name)
	}
	if len(names) != 3 || names[0] != "C" || names[1] != "D" || names[2] != "a" {
		t.Fatalf("结果顺序应跟随传入列表：%v", names)
	}
	if r.Actors()[2] != oldA {
		t.Fatalf("A 应复用旧记录")
	}
	if string(oldA.Image) != "imgA" || oldA.Order != 1 {
		t.Fatalf("传入 Order=0 与空图片时不应覆盖旧值：%+v", *oldA)
	}
	if st.Updated != 2 || st.Added != 1 || st.Removed != 1 {
		t.Fatalf("统计不正确：%+v", st)
	}
}

func TestSetActors_IncomingDuplicatesNotFolded(t *testing.T) {
	var r Roster

	r.SetActors([]domain.Actor{{Name: "Zed"}, {Name: "zed"}})

	if r.Len() != 2 {
		t.Fatalf("传入列表内部的重复不做折叠，期望 2 条，实际 %d", r.Len())
	}
}

func TestSetActors_RespectsPreserve(t *testing.T) {
	r := New(domain.Actor{Name: "P", PreserveImage: true, Image: []byte("local")})

	r.SetActors([]domain.Actor{{Name: "P", Image: []byte("remote")}})

	got := r.Actors()[0]
	if string(got.Image) != "local" || got.ImageHasChanged {
		t.Fatalf("SetActors 同样不能覆盖受保护图片：%+v", got)
	}
}

func TestRemoveActor(t *testing.T) {
	r := New(domain.Actor{Name: "a"}, domain.Actor{Name: "b"}, domain.Actor{Name: "c"})
	b := r.Actors()[1]

	r.RemoveActor(b)
	if r.Len() != 2 || r.Actors()[0].Name != "a" || r.Actors()[1].Name != "c" {
		t.Fatalf("删除结果不正确：%v", r.View())
	}

	// 不在列表内：no-op。
	r.RemoveActor(b)
	r.RemoveActor(&domain.Actor{Name: "a"})
	r.RemoveActor(nil)
	if r.Len() != 2 {
		t.Fatalf("删除非成员应为 no-op，实际 %d 条", r.Len())
	}
}

func TestRemoveAllAndHasActors(t *testing.T) {
	r := New(domain.Actor{Name: "a"})
	if !r.HasActors() {
		t.Fatalf("期望 HasActors=true")
	}
	r.RemoveAll()
	if r.HasActors() || r.Len() != 0 {
		t.Fatalf("RemoveAll 后应为空")
	}
	r.AddActor(domain.Actor{Name: "b"})
	if r.Len() != 1 || r.Actors()[0].Order != 0 {
		t.Fatalf("RemoveAll 后应可继续使用：%v", r.View())
	}
}

func TestClearImages(t *testing.T) {
	r := New(
		domain.Actor{Name: "keep", PreserveImage: true, Image: []byte("k")},
		domain.Actor{Name: "drop", Image: []byte("d")},
	)

	r.ClearImages()

	if string(r.Actors()[0].Image) != "k" {
		t.Fatalf("受保护图片不应被清空")
	}
	if len(r.Actors()[1].Image) != 0 {
		t.Fatalf("未受保护图片应被清空")
	}
	if r.Actors()[1].Name != "drop" {
		t.Fatalf("文字信息应保留")
	}
}

func TestLoad_FoldsDuplicates(t *testing.T) {
	r := New(
		domain.Actor{ID: "1", Name: "A"},
		domain.Actor{ID: "1", Name: "A2"},
		domain.Actor{Name: "b"},
		domain.Actor{Name: "B"},
	)
	if r.Len() != 2 {
		t.Fatalf("Load 应折叠重复项，实际 %d 条：%v", r.Len(), r.View())
	}
}

func TestMatchAndView(t *testing.T) {
	r := New(domain.Actor{ID: "x", Name: "Xavier", Image: []byte("img")})

	if r.Match(domain.Actor{Name: "XAVIER"}) == nil {
		t.Fatalf("期望按名字命中")
	}
	if r.Match(domain.Actor{ID: "x"}) == nil {
		t.Fatalf("期望按 ID 命中")
	}
	if r.Match(domain.Actor{Name: "nobody"}) != nil {
		t.Fatalf("不期望命中")
	}

	v := r.View()
	v[0].Name = "changed"
	v[0].Image[0] = 'X'
	if r.Actors()[0].Name != "Xavier" || string(r.Actors()[0].Image) != "img" {
		t.Fatalf("View 应返回深拷贝")
	}
}
