package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有配置文件。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = "config_missing_path"
)

const (
	DefaultProvider    = "javbus"
	DefaultConcurrency = 4
	DefaultMergeMode   = MergeReplace
	// DefaultMaxImageBytes 是单张头像的默认大小上限（5MB）。
	DefaultMaxImageBytes = 5 * humanize.MByte
	DefaultImageRPS      = 2.0
)

// 合并模式：replace 以 provider 为准整体替换（旧记录按规则保留信息），append 只增补。
const (
	MergeReplace = "replace"
	MergeAppend  = "append"
)

// ProxyEnv 在配置文件未给出 proxy.url 时提供代理地址（可写在 cwd/.env 中）。
const ProxyEnv = "AVCAST_PROXY_URL"

// fileNames 是配置文件的发现顺序；同一目录下第一个存在的生效。
var fileNames = []string{"avcast.json", "avcast.yaml", "avcast.yml"}

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 config.apply=true。
type CLIArgs struct {
	Path string

	Provider    string
	ProviderSet bool

	Apply    bool
	ApplySet bool

	Offline    bool
	OfflineSet bool
}

// FileConfig 对应 avcast.json / avcast.yaml 的解析结构。
type FileConfig struct {
	Path         string       `json:"path" yaml:"path"`
	Provider     string       `json:"provider" yaml:"provider"`
	Apply        *bool        `json:"apply" yaml:"apply"`
	Offline      *bool        `json:"offline" yaml:"offline"`
	Concurrency  int          `json:"concurrency" yaml:"concurrency"`
	Proxy        *ProxyConfig `json:"proxy" yaml:"proxy"`
	ImageProxy   bool         `json:"image_proxy" yaml:"image_proxy"`
	ExcludeDirs  []string     `json:"exclude_dirs" yaml:"exclude_dirs"`
	JavDBBaseURL string       `json:"javdb_base_url" yaml:"javdb_base_url"`

	MergeMode           string   `json:"merge_mode" yaml:"merge_mode"`
	PreserveLocalImages *bool    `json:"preserve_local_images" yaml:"preserve_local_images"`
	RefreshImages       bool     `json:"refresh_images" yaml:"refresh_images"`
	ExcludeActors       []string `json:"exclude_actors" yaml:"exclude_actors"`
	MaxImageBytes       ByteSize `json:"max_image_bytes" yaml:"max_image_bytes"`
	ImageRPS            *float64 `json:"image_rps" yaml:"image_rps"`
}

type ProxyConfig struct {
	URL string `json:"url" yaml:"url"`
}

// ByteSize 接受数字（字节数）或人类可读字符串（"5MB"、"512 KiB"）。
type ByteSize int64

func (s *ByteSize) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		return s.parse(str)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("max_image_bytes 无效：%s", b)
	}
	*s = ByteSize(n)
	return nil
}

func (s *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("max_image_bytes 必须是标量（第 %d 行）", node.Line)
	}
	return s.parse(node.Value)
}

func (s *ByteSize) parse(str string) error {
	str = strings.TrimSpace(str)
	if str == "" {
		*s = 0
		return nil
	}
	n, err := humanize.ParseBytes(str)
	if err != nil {
		return fmt.Errorf("max_image_bytes 无效：%w", err)
	}
	if n > math.MaxInt64 {
		return fmt.Errorf("max_image_bytes 过大：%q", str)
	}
	*s = ByteSize(n)
	return nil
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path string
	// ConfigFile 是实际读取的配置文件；没有读取时为空。
	ConfigFile string

	Provider string
	Apply    bool
	Offline  bool

	Concurrency int
	ProxyURL    string
	ImageProxy  bool
	ExcludeDirs []string

	// JavDBBaseURL 允许在 javdb.com 不可达时切换到镜像域名（仅配置文件可设）。
	JavDBBaseURL string

	MergeMode           string
	PreserveLocalImages bool
	RefreshImages       bool
	ExcludeActors       []string
	MaxImageBytes       int64
	ImageRPS            float64
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数、环境变量合并为最终配置。
//
// 发现规则：
// 1) CLI 提供 path：在 <path> 下按 avcast.json → avcast.yaml → avcast.yml 查找（可选）
// 2) CLI 未提供 path：在 <cwd> 下按同样顺序查找（必选），且其中必须包含 path
//
// 覆盖优先级：
// - path：CLI path > config path
// - provider：CLI > config > 默认 javbus
// - apply / offline：CLI > config > 默认 false
// - proxy.url：config > 环境变量 AVCAST_PROXY_URL（含 cwd/.env）
// - 其他字段：仅由 config 控制
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	env, err := loadEnv(cwdAbs)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: filepath.Join(cwdAbs, ".env"), Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		absPath := absCleanFrom(cwdAbs, cli.Path)
		fc, cfgPath, err := findFileConfig(absPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		return merge(absPath, cli, fc, cfgPath, env)
	}

	fc, cfgPath, err := findFileConfig(cwdAbs)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if cfgPath == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: filepath.Join(cwdAbs, fileNames[0]), Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	return merge(absCleanFrom(cwdAbs, fc.Path), cli, fc, cfgPath, env)
}

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string, env map[string]string) (EffectiveConfig, error) {
	invalid := func(err error) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	provider := DefaultProvider
	if cli.ProviderSet {
		provider = cli.Provider
	} else if strings.TrimSpace(fc.Provider) != "" {
		provider = fc.Provider
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if err := validateProvider(provider); err != nil {
		return invalid(err)
	}

	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	offline := false
	if cli.OfflineSet {
		offline = cli.Offline
	} else if fc.Offline != nil {
		offline = *fc.Offline
	}

	// 范围 [1, 32]；超出截断。
	concurrency := fc.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	concurrency = max(1, min(concurrency, 32))

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL == "" {
		proxyURL = strings.TrimSpace(env[ProxyEnv])
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return invalid(fmt.Errorf("proxy.url 无效：%w", err))
		}
	}
	if fc.ImageProxy && proxyURL == "" {
		return invalid(fmt.Errorf("image_proxy=true 但 proxy.url 为空"))
	}

	javdbBaseURL := strings.TrimSpace(fc.JavDBBaseURL)
	if javdbBaseURL != "" {
		u, err := url.Parse(javdbBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid(fmt.Errorf("javdb_base_url 无效：%q", javdbBaseURL))
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return invalid(fmt.Errorf("javdb_base_url 必须是 http/https：%q", javdbBaseURL))
		}
	}

	mergeMode := strings.ToLower(strings.TrimSpace(fc.MergeMode))
	switch mergeMode {
	case "":
		mergeMode = DefaultMergeMode
	case MergeReplace, MergeAppend:
	default:
		return invalid(fmt.Errorf("merge_mode 只能是 replace 或 append，实际是 %q", fc.MergeMode))
	}

	preserve := true
	if fc.PreserveLocalImages != nil {
		preserve = *fc.PreserveLocalImages
	}

	maxBytes := int64(fc.MaxImageBytes)
	if maxBytes < 0 {
		return invalid(fmt.Errorf("max_image_bytes 不能为负数"))
	}
	if maxBytes == 0 {
		maxBytes = DefaultMaxImageBytes
	}

	rps := DefaultImageRPS
	if fc.ImageRPS != nil {
		rps = *fc.ImageRPS
	}
	if rps < 0 || math.IsNaN(rps) || math.IsInf(rps, 0) {
		return invalid(fmt.Errorf("image_rps 无效：%v", rps))
	}

	return EffectiveConfig{
		Path:                absPath,
		ConfigFile:          cfgPath,
		Provider:            provider,
		Apply:               apply,
		Offline:             offline,
		Concurrency:         concurrency,
		ProxyURL:            proxyURL,
		ImageProxy:          fc.ImageProxy,
		ExcludeDirs:         append([]string(nil), fc.ExcludeDirs...),
		JavDBBaseURL:        javdbBaseURL,
		MergeMode:           mergeMode,
		PreserveLocalImages: preserve,
		RefreshImages:       fc.RefreshImages,
		ExcludeActors:       cleanNames(fc.ExcludeActors),
		MaxImageBytes:       maxBytes,
		ImageRPS:            rps,
	}, nil
}

func validateProvider(p string) error {
	switch p {
	case "javbus", "javdb":
		return nil
	case "":
		return fmt.Errorf("provider 不能为空")
	default:
		return fmt.Errorf("provider 只能是 javbus 或 javdb，实际是 %q", p)
	}
}

func cleanNames(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// findFileConfig 在 dir 下按 fileNames 顺序查找配置文件。
// 都不存在时返回空路径且不报错；解析失败时返回该文件路径和错误。
func findFileConfig(dir string) (FileConfig, string, error) {
	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		fc, exists, err := readFileConfig(path)
		if err != nil {
			return FileConfig{}, path, err
		}
		if exists {
			return fc, path, nil
		}
	}
	return FileConfig{}, "", nil
}

// readFileConfig 读取并解析单个配置文件（按扩展名选择 JSON 或 YAML）。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return FileConfig{}, true, err
		}
	default:
		if err := json.Unmarshal(b, &fc); err != nil {
			return FileConfig{}, true, err
		}
	}
	return fc, true, nil
}

// loadEnv 读取 cwd/.env（可选），再用进程环境变量覆盖同名项。
// 不修改进程环境，避免测试之间互相污染。
func loadEnv(dir string) (map[string]string, error) {
	env := map[string]string{}
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err == nil {
		m, err := godotenv.Read(path)
		if err != nil {
			return nil, err
		}
		env = m
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if v, ok := os.LookupEnv(ProxyEnv); ok {
		env[ProxyEnv] = v
	}
	return env, nil
}
