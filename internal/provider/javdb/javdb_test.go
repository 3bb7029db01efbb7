package javdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/John-Robertt/avcast/internal/domain"
)

const searchHTML = `<div class="movie-list">
  <div class="item"><a class="box" href="/v/other"><div class="video-title"><strong>SNOS-0520</strong></div></a></div>
  <div class="item"><a class="box" href="/v/ve39eW"><div class="video-title"><strong>snos-052</strong></div></a></div>
</div>`

const detailHTML = `<html><body>
<h2 class="title"><strong class="current-title">翻訳タイトル</strong><span class="origin-title">原題</span></h2>
<div class="column-video-cover"><a data-fancybox="gallery" href="https://c0.jdbstatic.com/covers/ve/ve39eW.jpg"></a></div>
<nav class="panel movie-panel-info">
  <div class="panel-block"><strong>日期:</strong> <span class="value">2024-03-05</span></div>
  <div class="panel-block"><strong>時長:</strong> <span class="value">120 分鍾</span></div>
  <div class="panel-block"><strong>片商:</strong> <span class="value"><a href="/makers/x">S1</a></span></div>
  <div class="panel-block"><strong>演員:</strong> <span class="value">
    <a href="/actors/Ab12">河北彩花</a><strong class="symbol female">♀</strong>
    <a href="/actors/Zz99">男優</a><strong class="symbol male">♂</strong>
    <a href="/actors/Ab12">河北彩花</a>
  </span></div>
  <div class="panel-block"><strong>類別:</strong> <span class="value"><a href="/tags?c1=1">巨乳</a>, <a href="/tags?c1=2">単体作品</a></span></div>
</nav></body></html>`

func TestFindDetailHref(t *testing.T) {
	code, _ := domain.ParseCode("SNOS-052")
	href, err := findDetailHref([]byte(searchHTML), code)
	if err != nil {
		t.Fatalf("findDetailHref 失败：%v", err)
	}
	if href != "/v/ve39eW" {
		t.Fatalf("期望 href=/v/ve39eW，实际=%q", href)
	}

	other, _ := domain.ParseCode("ABP-001")
	if _, err := findDetailHref([]byte(searchHTML), other); err == nil {
		t.Fatalf("期望未找到时报错")
	}
}

func TestParse_Actors(t *testing.T) {
	code, _ := domain.ParseCode("SNOS-052")
	meta, err := Provider{}.Parse(code, []byte(detailHTML), "https://javdb.com/v/ve39eW")
	if err != nil {
		t.Fatalf("Parse 失败：%v", err)
	}

	if meta.Title != "原題" || meta.Year != 2024 || meta.RuntimeM != 120 || meta.Studio != "S1" {
		t.Fatalf("基础字段不符合预期：%+v", meta)
	}
	if len(meta.Tags) != 2 || meta.CoverURL == "" || meta.FanartURL != meta.CoverURL {
		t.Fatalf("tags/cover 不符合预期：%+v", meta)
	}
	if len(meta.Actors) != 2 {
		t.Fatalf("期望 2 个演员（去重），实际：%+v", meta.Actors)
	}
	if a := meta.Actors[0]; a.Name != "河北彩花" || a.ID != "https://javdb.com/actors/Ab12" || a.Order != 1 || a.Thumb != "" {
		t.Fatalf("actor[0] 不符合预期：%+v", a)
	}
	if a := meta.Actors[1]; a.Name != "男優" || a.Order != 2 {
		t.Fatalf("actor[1] 不符合预期：%+v", a)
	}
}

func TestParse_RejectsNonDetailPage(t *testing.T) {
	code, _ := domain.ParseCode("SNOS-052")
	if _, err := (Provider{}).Parse(code, []byte("<html><body>blocked</body></html>"), "https://javdb.com/v/x"); err == nil {
		t.Fatalf("期望非详情页解析失败")
	}
}

func TestFetch_SearchThenDetail(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/search":
			if r.URL.Query().Get("q") != "SNOS-052" {
				http.Error(w, "bad q", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(searchHTML))
		case "/v/ve39eW":
			_, _ = w.Write([]byte(detailHTML))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	code, _ := domain.ParseCode("SNOS-052")
	b, pageURL, err := Provider{BaseURL: srv.URL + "/"}.Fetch(context.Background(), code, srv.Client())
	if err != nil {
		t.Fatalf("Fetch 失败：%v", err)
	}
	if pageURL != srv.URL+"/v/ve39eW" {
		t.Fatalf("pageURL 不一致：%q", pageURL)
	}
	if !strings.Contains(string(b), "origin-title") {
		t.Fatalf("未返回详情页内容")
	}
	if len(paths) != 2 {
		t.Fatalf("期望 2 次请求（搜索 + 详情），实际 %v", paths)
	}
}
