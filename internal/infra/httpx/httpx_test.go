package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewMetaClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewMetaClient("http://127.0.0.1:8080")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy == nil {
		t.Fatalf("期望启用代理，但 Proxy=nil")
	}
	if !tr.Base.DisableKeepAlives || !tr.DisableKeepAlives {
		t.Fatalf("代理模式应禁用 keep-alive")
	}
	if tr.Limiter != nil {
		t.Fatalf("meta client 不应限速")
	}
}

func TestNewMetaClient_NoProxyKeepsDefault(t *testing.T) {
	c, err := NewMetaClient("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr := c.Transport.(*Transport)
	if tr.Base.Proxy != nil {
		t.Fatalf("不期望启用代理，但 Proxy!=nil")
	}
	if tr.Base.DisableKeepAlives {
		t.Fatalf("不期望禁用 keep-alive，但 Base.DisableKeepAlives=true")
	}
}

func TestNewImageClient_ProxyAndLimiter(t *testing.T) {
	c1, err := NewImageClient("http://127.0.0.1:8080", false, 2)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr1 := c1.Transport.(*Transport)
	if tr1.Base.Proxy != nil {
		t.Fatalf("image_proxy=false 时不应走代理")
	}
	if tr1.Limiter == nil || tr1.Limiter.Limit() != 2 {
		t.Fatalf("期望 2 rps 的限速器，实际 %+v", tr1.Limiter)
	}

	c2, err := NewImageClient("http://127.0.0.1:8080", true, 0)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr2 := c2.Transport.(*Transport)
	if tr2.Base.Proxy == nil || !tr2.Base.DisableKeepAlives {
		t.Fatalf("image_proxy=true 时应走代理且禁用 keep-alive")
	}
	if tr2.Limiter != nil {
		t.Fatalf("rps=0 时不应限速")
	}

	if _, err := NewImageClient("", true, 1); err == nil {
		t.Fatalf("image_proxy=true 且无代理时应报错")
	}
}

func TestNewMetaClient_InvalidProxyURL(t *testing.T) {
	if _, err := NewMetaClient("http://[::1"); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.jpg":
			if r.Header.Get("User-Agent") == "" {
				http.Error(w, "no ua", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte("12345"))
		case "/big.jpg":
			_, _ = w.Write([]byte(strings.Repeat("x", 100)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewImageClient("", false, 0)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	ctx := context.Background()

	b, err := Download(ctx, c, srv.URL+"/ok.jpg", DownloadOptions{MaxBytes: 5})
	if err != nil || string(b) != "12345" {
		t.Fatalf("下载结果不符合预期：b=%q err=%v", b, err)
	}

	_, err = Download(ctx, c, srv.URL+"/big.jpg", DownloadOptions{MaxBytes: 10})
	var tl *TooLargeError
	if !errors.As(err, &tl) {
		t.Fatalf("期望 TooLargeError，实际：%T %v", err, err)
	}

	_, err = Download(ctx, c, srv.URL+"/none.jpg", DownloadOptions{})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("期望 404 StatusError，实际：%T %v", err, err)
	}

	if _, err := Download(ctx, nil, srv.URL+"/ok.jpg", DownloadOptions{}); err == nil {
		t.Fatalf("nil client 应报错")
	}
}

func TestIsJavbusURL(t *testing.T) {
	cases := map[string]bool{
		"https://www.javbus.com/pics/actress/a.jpg": true,
		"https://javbus.com/x":                      true,
		"https://notjavbus.com/x":                   false,
		"https://c0.jdbstatic.com/avatars/a.jpg":    false,
	}
	for in, want := range cases {
		if got := isJavbusURL(in); got != want {
			t.Fatalf("isJavbusURL(%q)=%v，期望 %v", in, got, want)
		}
	}
}
