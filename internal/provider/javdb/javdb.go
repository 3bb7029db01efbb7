package javdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/avcast/internal/domain"
	providerx "github.com/John-Robertt/avcast/internal/provider"
	"github.com/John-Robertt/avcast/internal/provider/htmlx"
)

// Provider 实现 JavDB 的页面抓取与解析。
//
// JavDB 需要先搜索再进入详情页；详情页只给出演员名字与演员页链接，不带头像。
type Provider struct {
	// BaseURL 允许指定可用的镜像域名；为空时使用 https://javdb.com。
	BaseURL string
}

func (Provider) Name() string { return "javdb" }

func (p Provider) baseURL() string {
	u := strings.TrimSpace(p.BaseURL)
	if u == "" {
		return "https://javdb.com"
	}
	return strings.TrimRight(u, "/")
}

// Fetch 先搜索再进入详情页：<base>/search?q=<CODE>&f=all
func (p Provider) Fetch(ctx context.Context, code domain.Code, c *http.Client) ([]byte, string, error) {
	if c == nil {
		return nil, "", errors.New("http client 不能为空")
	}
	if code == "" {
		return nil, "", errors.New("code 不能为空")
	}

	base := p.baseURL()
	searchHTML, err := fetchURL(ctx, c, base+"/search?q="+url.QueryEscape(string(code))+"&f=all")
	if err != nil {
		return nil, "", err
	}

	href, err := findDetailHref(searchHTML, code)
	if err != nil {
		return nil, "", err
	}

	pageURL := htmlx.ResolveURL(base+"/", href)
	b, err := fetchURL(ctx, c, pageURL)
	return b, pageURL, err
}

// Parse 把详情页 HTML 解析为 MovieMeta。
func (Provider) Parse(code domain.Code, html []byte, pageURL string) (domain.MovieMeta, error) {
	if code == "" {
		return domain.MovieMeta{}, errors.New("code 不能为空")
	}
	if len(html) == 0 {
		return domain.MovieMeta{}, errors.New("html 为空")
	}
	if strings.TrimSpace(pageURL) == "" {
		return domain.MovieMeta{}, errors.New("pageURL 不能为空")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return domain.MovieMeta{}, err
	}

	// 优先原标题（origin-title，goquery 不执行 CSS，display:none 也能读到），其次 current-title。
	title := htmlx.NormSpace(doc.Find("h2.title span.origin-title").First().Text())
	if title == "" {
		title = htmlx.NormSpace(doc.Find("h2.title strong.current-title").First().Text())
	}
	if title == "" && doc.Find("nav.movie-panel-info").Length() == 0 {
		return domain.MovieMeta{}, errors.New("未找到详情信息栏（疑似返回了非详情页内容）")
	}

	meta := domain.MovieMeta{
		Code:    code,
		Title:   title,
		Website: strings.TrimSpace(pageURL),
	}

	doc.Find("nav.movie-panel-info .panel-block").Each(func(_ int, s *goquery.Selection) {
		value := s.Find("span.value")
		switch htmlx.NormHeader(s.Find("strong").First().Text()) {
		case "日期", "Date":
			meta.Release = strings.TrimSpace(value.First().Text())
		case "時長", "时长", "Length", "Duration":
			meta.RuntimeM = htmlx.FirstInt(value.First().Text())
		case "片商", "Maker", "Studio", "Manufacturer", "Label":
			meta.Studio = strings.TrimSpace(value.Find("a").First().Text())
		case "系列", "Series":
			meta.Series = strings.TrimSpace(value.Find("a").First().Text())
		case "演員", "演员", "Actor", "Actors", "Actress", "Cast":
			meta.Actors = parseActors(value, pageURL)
		case "類別", "类别", "Tag", "Tags", "Genre", "Genres", "Category", "Categories":
			var tags []string
			value.Find("a").Each(func(_ int, a *goquery.Selection) {
				tags = append(tags, a.Text())
			})
			meta.Tags = htmlx.NormList(tags)
			meta.Genres = meta.Tags
		}
	})
	meta.Year = htmlx.YearFromRelease(meta.Release)

	if href, ok := doc.Find(".column-video-cover a[data-fancybox='gallery']").First().Attr("href"); ok {
		meta.CoverURL = strings.TrimSpace(href)
	}
	if meta.CoverURL == "" {
		meta.CoverURL = strings.TrimSpace(doc.Find(".column-video-cover img.video-cover").First().AttrOr("src", ""))
	}
	meta.FanartURL = meta.CoverURL

	return meta, nil
}

// parseActors 读取演员栏：每个 a 是一位演员，href=/actors/<id>。
// 名字后面的 strong.symbol（♀/♂）是独立节点，不会混进 a 的文本。
func parseActors(value *goquery.Selection, pageURL string) []domain.Actor {
	var out []domain.Actor
	value.Find("a").Each(func(_ int, a *goquery.Selection) {
		name := htmlx.NormSpace(a.Text())
		if name == "" {
			return
		}
		profile := htmlx.ResolveURL(pageURL, a.AttrOr("href", ""))
		for _, x := range out {
			if x.SameName(name) || (profile != "" && x.ID == profile) {
				return
			}
		}
		out = append(out, domain.Actor{Name: name, ID: profile, Order: len(out) + 1})
	})
	return out
}

func findDetailHref(searchHTML []byte, code domain.Code) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(searchHTML))
	if err != nil {
		return "", err
	}

	want := strings.ToUpper(string(code))

	var href string
	doc.Find("div.movie-list div.item a.box").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		got := strings.ToUpper(strings.TrimSpace(s.Find("div.video-title strong").First().Text()))
		if got != want {
			return true
		}
		href = strings.TrimSpace(s.AttrOr("href", ""))
		return false
	})
	if href == "" {
		return "", fmt.Errorf("搜索结果中未找到匹配的详情页：%s", want)
	}
	return href, nil
}

func fetchURL(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &providerx.HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}
	return io.ReadAll(resp.Body)
}
