package run

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/John-Robertt/avcast/internal/domain"
	"github.com/John-Robertt/avcast/internal/infra/fsx"
	"github.com/John-Robertt/avcast/internal/infra/httpx"
	"github.com/John-Robertt/avcast/internal/provider"
)

const verifyHint = "当前不支持绕过；建议配置 proxy.url 或改用另一 provider"

// statusHints 是常见 HTTP 状态码对应的处理建议。
var statusHints = map[int]string{
	403: "可能触发反爬，建议降低并发或配置 proxy.url",
	404: "该 CODE 可能不存在或已下架",
	429: "请求过快被限流，建议降低并发或稍后重试",
}

func ioErrorCode(err error) string {
	if fsx.IsPathTypeConflict(err) {
		return domain.ErrCodeTargetConflict
	}
	return domain.ErrCodeIOFailed
}

// fillProviderError 把抓取链最终的错误写进条目；parse 阶段的失败单独归类。
func fillProviderError(item *domain.ItemResult, err error) {
	item.Status = domain.StatusFailed
	item.ErrorCode = domain.ErrCodeFetchFailed

	var pe *provider.Error
	if !errors.As(err, &pe) {
		item.ErrorMsg = err.Error()
		return
	}
	if pe.Stage == provider.StageParse {
		item.ErrorCode = domain.ErrCodeParseFailed
		item.ErrorMsg = fmt.Sprintf("%s 解析失败（页面里找不到演员信息，站点结构可能变化或返回了非详情页）：%v", pe.Provider, pe.Err)
		return
	}
	item.ErrorMsg = pe.Provider + " " + describeFetchError(pe.Provider, pe.Err)
}

func describeFetchError(providerName string, err error) string {
	if err == nil {
		return "抓取失败"
	}

	var be *provider.BlockedError
	if errors.As(err, &be) {
		if be.Reason == "driver-verify" {
			return "被站点引导到验证页（driver-verify）；" + verifyHint
		}
		return fmt.Sprintf("被站点拦截（%s）；建议配置 proxy.url 或稍后重试", be.Reason)
	}

	var hs *provider.HTTPStatusError
	if errors.As(err, &hs) {
		loc := strings.TrimSpace(hs.Location)
		if strings.Contains(loc, "driver-verify") {
			return "被站点跳转到验证页（driver-verify）；" + verifyHint
		}
		if hint, ok := statusHints[hs.StatusCode]; ok {
			return fmt.Sprintf("返回 HTTP %d（%s）", hs.StatusCode, hint)
		}
		if loc != "" {
			return fmt.Sprintf("返回 HTTP %d，跳转到 %s", hs.StatusCode, loc)
		}
		return fmt.Sprintf("返回 HTTP %d", hs.StatusCode)
	}

	if msg, ok := describeNetError(err); ok {
		if providerName == "javdb" && strings.HasPrefix(msg, "连接失败") {
			return msg + "；也可在配置文件里设置 javdb_base_url 指向可用域名"
		}
		return msg
	}
	return fmt.Sprintf("抓取失败：%v", err)
}

// describeImageError 为头像下载失败补上可读的原因，原错误仍可通过 errors.As 取出。
func describeImageError(err error) error {
	if err == nil {
		return nil
	}

	var tl *httpx.TooLargeError
	if errors.As(err, &tl) {
		return fmt.Errorf("超过 max_image_bytes（%s）：%w", humanize.Bytes(uint64(max(tl.MaxBytes, 0))), err)
	}
	var se *httpx.StatusError
	if errors.As(err, &se) {
		if hint, ok := statusHints[se.StatusCode]; ok && se.StatusCode != 404 {
			return fmt.Errorf("HTTP %d（%s）：%w", se.StatusCode, hint, err)
		}
		return fmt.Errorf("HTTP %d，头像地址失效：%w", se.StatusCode, err)
	}
	if errors.Is(err, image.ErrFormat) {
		return fmt.Errorf("不是可识别的图片（可能是占位页）：%w", err)
	}
	if msg, ok := describeNetError(err); ok {
		return fmt.Errorf("%s：%w", msg, err)
	}
	return err
}

func describeNetError(err error) (string, bool) {
	low := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(low, "timeout"):
		return "超时，建议检查网络或代理后重试", true
	case strings.Contains(low, "tls") || strings.Contains(low, "handshake") || strings.Contains(low, "ssl"):
		return "连接失败（TLS/SSL 握手异常），建议配置 proxy.url 或稍后重试", true
	}
	return "", false
}
