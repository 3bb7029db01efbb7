package javbus

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/avcast/internal/domain"
	providerx "github.com/John-Robertt/avcast/internal/provider"
	"github.com/John-Robertt/avcast/internal/provider/htmlx"
)

// Provider 实现 JavBus 详情页的抓取与解析（重点是演员列表与头像）。
type Provider struct{}

func (Provider) Name() string { return "javbus" }

// Fetch 直接进入详情页：https://www.javbus.com/<CODE>
func (Provider) Fetch(ctx context.Context, code domain.Code, c *http.Client) ([]byte, string, error) {
	if c == nil {
		return nil, "", errors.New("http client 不能为空")
	}
	if code == "" {
		return nil, "", errors.New("code 不能为空")
	}

	pageURL := "https://www.javbus.com/" + url.PathEscape(string(code))
	// 未通过“成年确认”时站点常返回 302 -> /doc/driver-verify，但 302 的 body 往往仍是完整详情页。
	// 因此禁用重定向，直接读取 302 的 body。
	c2 := *c
	c2.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	b, err := fetchURL(ctx, &c2, pageURL)
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

	// 识别码必须存在且匹配（避免把验证页/拦截页当成成功解析）。
	id := findInfoValueAny(doc, []string{"識別碼", "识别码", "ID"})
	if id == "" {
		return domain.MovieMeta{}, errors.New("未找到識別碼（疑似返回了验证页/非详情页内容）")
	}
	if !strings.EqualFold(id, string(code)) {
		return domain.MovieMeta{}, errors.New("識別碼不匹配（疑似跳转/返回了其它页面）")
	}

	title := htmlx.NormSpace(doc.Find("h3").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, string(code)))

	release := findInfoValueAny(doc, []string{"發行日期", "发行日期", "Release Date", "発売日"})
	studio := findInfoValueAny(doc, []string{"發行商", "发行商", "Label", "Publisher"})
	if studio == "" {
		studio = findInfoValueAny(doc, []string{"製作商", "制作商", "Studio", "Maker", "Manufacturer"})
	}
	series := findInfoValueAny(doc, []string{"系列", "Series"})

	var genres []string
	doc.Find("span.genre a[href*='/genre/']").Each(func(_ int, s *goquery.Selection) {
		genres = append(genres, s.Text())
	})
	genres = htmlx.NormList(genres)

	coverURL := ""
	if href, ok := doc.Find("a.bigImage").First().Attr("href"); ok {
		coverURL = htmlx.ResolveURL(pageURL, href)
	}

	return domain.MovieMeta{
		Code:      code,
		Title:     title,
		Studio:    studio,
		Series:    series,
		Release:   release,
		Year:      htmlx.YearFromRelease(release),
		RuntimeM:  htmlx.FirstInt(findInfoValueAny(doc, []string{"長度", "长度", "Length", "時長", "时长", "Duration"})),
		Actors:    parseActors(doc, pageURL),
		Genres:    genres,
		Tags:      genres,
		Website:   strings.TrimSpace(pageURL),
		CoverURL:  coverURL,
		FanartURL: coverURL,
	}, nil
}

// parseActors 从演员栏提取名字、详情页 URL（作为 ID）与头像。
//
// 页面结构：
// - 信息栏：div.star-name a[href=/star/<id>]
// - 头像瀑布流：a.avatar-box[href=/star/<id>] img[src][title=<name>]
//
// 信息栏缺失时退回头像瀑布流；头像是站点占位图（nowprinting）时视为无头像。
func parseActors(doc *goquery.Document, pageURL string) []domain.Actor {
	thumbs := make(map[string]string, 8)
	var fallback []domain.Actor
	doc.Find("a.avatar-box").Each(func(_ int, s *goquery.Selection) {
		img := s.Find("img").First()
		name := htmlx.NormSpace(img.AttrOr("title", ""))
		if name == "" {
			name = htmlx.NormSpace(s.Find("span").First().Text())
		}
		if name == "" {
			return
		}
		thumb := htmlx.ResolveURL(pageURL, img.AttrOr("src", ""))
		if isPlaceholder(thumb) {
			thumb = ""
		}
		profile := htmlx.ResolveURL(pageURL, s.AttrOr("href", ""))
		if thumb != "" {
			thumbs[strings.ToLower(name)] = thumb
			if profile != "" {
				thumbs[profile] = thumb
			}
		}
		fallback = append(fallback, domain.Actor{Name: name, ID: profile, Thumb: thumb})
	})

	var out []domain.Actor
	doc.Find("div.star-name a").Each(func(_ int, s *goquery.Selection) {
		name := htmlx.NormSpace(s.Text())
		if name == "" {
			return
		}
		profile := htmlx.ResolveURL(pageURL, s.AttrOr("href", ""))
		thumb := thumbs[profile]
		if thumb == "" {
			thumb = thumbs[strings.ToLower(name)]
		}
		out = append(out, domain.Actor{Name: name, ID: profile, Thumb: thumb})
	})
	if len(out) == 0 {
		out = fallback
	}
	return numberActors(out)
}

// numberActors 去掉重复（同 ID 或同名），并按出现顺序编号（Order 从 1 开始）。
func numberActors(in []domain.Actor) []domain.Actor {
	out := make([]domain.Actor, 0, len(in))
	for _, a := range in {
		dup := false
		for _, x := range out {
			if (a.ID != "" && a.ID == x.ID) || x.SameName(a.Name) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		a.Order = len(out) + 1
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isPlaceholder(u string) bool {
	low := strings.ToLower(u)
	return strings.Contains(low, "nowprinting") || strings.HasSuffix(low, "/printing.gif")
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

	// 先读 body：302（body=详情页）的情况必须拿到内容才能判断。
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	loc := strings.TrimSpace(resp.Header.Get("Location"))
	if resp.StatusCode >= 300 && resp.StatusCode < 400 && strings.Contains(loc, "/doc/driver-verify") {
		if bytes.Contains(b, []byte("id=\"ageVerify\"")) || bytes.Contains(b, []byte("/doc/driver-verify")) {
			return nil, &providerx.BlockedError{URL: loc, Reason: "driver-verify"}
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, &providerx.HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: loc}
	}
	if len(b) == 0 {
		return nil, errors.New("empty response body")
	}
	return b, nil
}

func findInfoValueAny(doc *goquery.Document, headers []string) string {
	set := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		set[htmlx.NormHeader(h)] = struct{}{}
	}

	var out string
	doc.Find("div.movie div.info p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rawHeader := htmlx.NormSpace(s.Find("span.header").First().Text())
		if _, ok := set[htmlx.NormHeader(rawHeader)]; !ok {
			return true
		}
		// 优先取 a 文本（厂牌/系列）；否则取移除 header 后的剩余文本（日期/长度）。
		if a := strings.TrimSpace(s.Find("a").First().Text()); a != "" {
			out = a
			return false
		}
		out = strings.TrimSpace(strings.TrimPrefix(htmlx.NormSpace(s.Text()), rawHeader))
		return false
	})
	return out
}
