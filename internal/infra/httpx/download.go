package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// StatusError 表示下载返回了非 2xx。
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// TooLargeError 表示响应体超过 MaxBytes。
type TooLargeError struct {
	URL      string
	MaxBytes int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("图片超过大小上限（%d 字节）：%s", e.MaxBytes, e.URL)
}

// DownloadOptions 控制单次下载。
type DownloadOptions struct {
	// Referer 为详情页 URL；javbus 的图片要求带上。
	Referer string
	// MaxBytes<=0 表示不限制。
	MaxBytes int64
}

// Download 下载 u 的完整内容。
//
// 站点特例（Referer/Cookie）集中在这里，provider 和执行流程不用关心。
func Download(ctx context.Context, c *http.Client, u string, opt DownloadOptions) ([]byte, error) {
	if c == nil {
		return nil, errors.New("image client 为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if isJavbusURL(u) {
		if ref := strings.TrimSpace(opt.Referer); ref != "" {
			req.Header.Set("Referer", ref)
		}
		req.Header.Set("Cookie", "age=verified")
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode}
	}

	if opt.MaxBytes <= 0 {
		return io.ReadAll(resp.Body)
	}
	if resp.ContentLength > opt.MaxBytes {
		return nil, &TooLargeError{URL: u, MaxBytes: opt.MaxBytes}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, opt.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > opt.MaxBytes {
		return nil, &TooLargeError{URL: u, MaxBytes: opt.MaxBytes}
	}
	return b, nil
}

func isJavbusURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(strings.TrimSpace(u.Host))
	return host == "javbus.com" || strings.HasSuffix(host, ".javbus.com")
}
