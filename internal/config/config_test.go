package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEffective_ConfigNotFound(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadEffective_ConfigMissingPath(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "avcast.json"), []byte(`{"provider":"javdb"}`))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeMissingPath {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeMissingPath, err, Code(err))
	}
}

func TestLoadEffective_ApplyAndOfflineCLIOverride(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "avcast.json"), []byte(`{"path":"library","apply":true,"offline":true}`))

	eff, err := LoadEffective(cwd, CLIArgs{
		ApplySet:   true, // --apply=false
		OfflineSet: true, // --offline=false
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Apply || eff.Offline {
		t.Fatalf("期望 apply=false offline=false，实际 apply=%v offline=%v", eff.Apply, eff.Offline)
	}

	wantPath := filepath.Join(cwd, "library")
	if eff.Path != wantPath {
		t.Fatalf("期望 path=%q，实际=%q", wantPath, eff.Path)
	}
	if eff.ConfigFile != filepath.Join(cwd, "avcast.json") {
		t.Fatalf("ConfigFile 不符合预期：%q", eff.ConfigFile)
	}
}

func TestLoadEffective_ProviderMergeOrder(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "avcast.json"), []byte(`{"path":"p","provider":"javdb"}`))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Provider != "javdb" {
		t.Fatalf("期望 provider=javdb，实际=%q", eff.Provider)
	}

	eff2, err := LoadEffective(cwd, CLIArgs{Provider: "javbus", ProviderSet: true})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff2.Provider != "javbus" {
		t.Fatalf("期望 provider=javbus，实际=%q", eff2.Provider)
	}
}

func TestLoadEffective_CLIPath_Defaults(t *testing.T) {
	cwd := t.TempDir()
	root := filepath.Join(cwd, "root")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	clearProxyEnv(t)

	eff, err := LoadEffective(cwd, CLIArgs{Path: root})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Path != root || eff.ConfigFile != "" {
		t.Fatalf("path/ConfigFile 不符合预期：%q %q", eff.Path, eff.ConfigFile)
	}
	if eff.Provider != DefaultProvider || eff.Concurrency != DefaultConcurrency {
		t.Fatalf("默认值不符合预期：%+v", eff)
	}
	if eff.MergeMode != MergeReplace || !eff.PreserveLocalImages || eff.RefreshImages {
		t.Fatalf("合并相关默认值不符合预期：%+v", eff)
	}
	if eff.MaxImageBytes != DefaultMaxImageBytes || eff.ImageRPS != DefaultImageRPS {
		t.Fatalf("图片相关默认值不符合预期：max=%d rps=%v", eff.MaxImageBytes, eff.ImageRPS)
	}
	if eff.ProxyURL != "" {
		t.Fatalf("不期望代理：%q", eff.ProxyURL)
	}
}

func TestLoadEffective_YAMLConfig(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "avcast.yaml"), []byte(`
path: lib
provider: javdb
concurrency: 64
merge_mode: append
preserve_local_images: false
refresh_images: true
exclude_actors:
  - " 素人 "
  - ""
max_image_bytes: 512 KiB
image_rps: 0.5
`))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ConfigFile != filepath.Join(cwd, "avcast.yaml") {
		t.Fatalf("ConfigFile 不符合预期：%q", eff.ConfigFile)
	}
	if eff.Provider != "javdb" || eff.Concurrency != 32 {
		t.Fatalf("provider/concurrency 不符合预期：%q %d", eff.Provider, eff.Concurrency)
	}
	if eff.MergeMode != MergeAppend || eff.PreserveLocalImages || !eff.RefreshImages {
		t.Fatalf("合并相关字段不符合预期：%+v", eff)
	}
	if len(eff.ExcludeActors) != 1 || eff.ExcludeActors[0] != "素人" {
		t.Fatalf("exclude_actors 不符合预期：%q", eff.ExcludeActors)
	}
	if eff.MaxImageBytes != 512*1024 || eff.ImageRPS != 0.5 {
		t.Fatalf("图片相关字段不符合预期：max=%d rps=%v", eff.MaxImageBytes, eff.ImageRPS)
	}
}

func TestLoadEffective_JSONTakesPrecedenceOverYAML(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "avcast.json"), []byte(`{"path":"a","max_image_bytes":1024}`))
	writeFile(t, filepath.Join(cwd, "avcast.yml"), []byte("path: b\n"))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Path != filepath.Join(cwd, "a") || eff.MaxImageBytes != 1024 {
		t.Fatalf("应读取 avcast.json：path=%q max=%d", eff.Path, eff.MaxImageBytes)
	}
}

func TestLoadEffective_ProxyFromDotEnv(t *testing.T) {
	cwd := t.TempDir()
	clearProxyEnv(t)
	writeFile(t, filepath.Join(cwd, ".env"), []byte("AVCAST_PROXY_URL=http://127.0.0.1:7890\n"))
	writeFile(t, filepath.Join(cwd, "avcast.json"), []byte(`{"path":"p","image_proxy":true}`))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ProxyURL != "http://127.0.0.1:7890" || !eff.ImageProxy {
		t.Fatalf("期望从 .env 读取代理：%+v", eff)
	}

	// 配置文件里的 proxy.url 优先。
	writeFile(t, filepath.Join(cwd, "avcast.json"), []byte(`{"path":"p","proxy":{"url":"http://10.0.0.1:1080"}}`))
	eff, err = LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ProxyURL != "http://10.0.0.1:1080" {
		t.Fatalf("配置文件代理应优先：%q", eff.ProxyURL)
	}
}

func TestLoadEffective_Invalid(t *testing.T) {
	cases := map[string]string{
		"provider":        `{"path":"p","provider":"nope"}`,
		"image_proxy":     `{"path":"p","image_proxy":true}`,
		"proxy_url":       `{"path":"p","proxy":{"url":"http://[::1"}}`,
		"merge_mode":      `{"path":"p","merge_mode":"union"}`,
		"max_image_bytes": `{"path":"p","max_image_bytes":"lots"}`,
		"image_rps":       `{"path":"p","image_rps":-1}`,
		"javdb_base_url":  `{"path":"p","javdb_base_url":"ftp://javdb.example"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			cwd := t.TempDir()
			clearProxyEnv(t)
			writeFile(t, filepath.Join(cwd, "avcast.json"), []byte(body))

			_, err := LoadEffective(cwd, CLIArgs{})
			if Code(err) != ErrCodeInvalid {
				t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
			}
		})
	}
}

func TestLoadEffective_CLIPath_InvalidConfig(t *testing.T) {
	cwd := t.TempDir()
	root := filepath.Join(cwd, "root")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	writeFile(t, filepath.Join(root, "avcast.yaml"), []byte("path: [\n"))

	_, err := LoadEffective(cwd, CLIArgs{Path: root})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}

// clearProxyEnv 保证进程环境里的代理变量不影响断言。
func clearProxyEnv(t *testing.T) {
	t.Helper()
	t.Setenv(ProxyEnv, "")
	_ = os.Unsetenv(ProxyEnv)
}
