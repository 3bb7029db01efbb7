package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/avcast/internal/domain"
)

const sampleNFO = `<?xml version="1.0" encoding="UTF-8" standalone="yes" ?>
<movie>
  <title>CAWD-895 T</title>
  <num>CAWD-895</num>
  <actor>
    <name>Aoi</name>
    <order>1</order>
    <profile>https://www.javbus.com/star/a1</profile>
  </actor>
  <actor>
    <name>aoi</name>
    <order>2</order>
  </actor>
  <actor>
    <name>Mei</name>
    <order>3</order>
  </actor>
</movie>
`

func setupLibrary(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "out", "CAWD-895")
	if err := os.MkdirAll(filepath.Join(dir, ".actors"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "CAWD-895.nfo"), []byte(sampleNFO), 0o644); err != nil {
		t.Fatalf("写入 NFO 失败：%v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".actors", "Mei.jpg"), bytes.Repeat([]byte{1}, 2048), 0o644); err != nil {
		t.Fatalf("写入头像失败：%v", err)
	}
	return root
}

func TestCLI_Sync_NoTTY_StdoutOnlyRunReportJSON(t *testing.T) {
	root := setupLibrary(t)

	var stdout, stderr bytes.Buffer
	// --offline：不访问真实站点。
	code := realMain(context.Background(), []string{"sync", root, "--offline"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d\nstderr=%s", code, stderr.String())
	}

	var rr domain.RunReport
	if err := json.Unmarshal(stdout.Bytes(), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout.String())
	}
	if rr.RunID == "" || !rr.DryRun || len(rr.Items) != 1 {
		t.Fatalf("report 不符合预期：%+v", rr)
	}
	if strings.Contains(stdout.String(), "配置（生效）") || strings.Contains(stdout.String(), "进度:") {
		t.Fatalf("stdout 不应包含进度/配置输出：%q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "完成：processed=") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr.String())
	}

	// dry-run：NFO 不变，且不写 report.json。
	b, _ := os.ReadFile(filepath.Join(root, "out", "CAWD-895", "CAWD-895.nfo"))
	if string(b) != sampleNFO {
		t.Fatalf("dry-run 不应改写 NFO")
	}
	if _, err := os.Stat(filepath.Join(root, "cache", "report.json")); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应写 report.json，Stat err=%v", err)
	}
}

func TestCLI_Sync_ApplyWritesReport(t *testing.T) {
	root := setupLibrary(t)

	var stdout, stderr bytes.Buffer
	code := realMain(context.Background(), []string{"sync", root, "--offline", "--apply"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d\nstderr=%s", code, stderr.String())
	}
	if _, err := os.Stat(filepath.Join(root, "cache", "report.json")); err != nil {
		t.Fatalf("apply 应写出 report.json：%v", err)
	}

	// 重复的 Aoi 在加载时被折叠，写回后只剩两位演员。
	b, _ := os.ReadFile(filepath.Join(root, "out", "CAWD-895", "CAWD-895.nfo"))
	if n := strings.Count(strings.ToLower(string(b)), "<name>aoi</name>"); n != 1 {
		t.Fatalf("期望 Aoi 只出现一次，实际 %d：\n%s", n, b)
	}
}

func TestCLI_Show(t *testing.T) {
	root := setupLibrary(t)

	var stdout, stderr bytes.Buffer
	code := realMain(context.Background(), []string{"show", root, "cawd_895"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d\nstderr=%s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "CAWD-895 (") || !strings.Contains(out, "actors=2") {
		t.Fatalf("缺少条目头：\n%s", out)
	}
	if !strings.Contains(out, "Actor\n  Name:  Mei\n") {
		t.Fatalf("缺少 Mei 的演员块：\n%s", out)
	}
	if !strings.Contains(out, "Image: Mei.jpg (2.0 kB)") {
		t.Fatalf("缺少头像信息：\n%s", out)
	}

	stdout.Reset()
	if code := realMain(context.Background(), []string{"show", root, "ABP-123"}, &stdout, &stderr); code != 1 {
		t.Fatalf("不存在的条目应返回 1，实际 %d", code)
	}
}

func TestParseSyncArgs(t *testing.T) {
	sa, err := parseSyncArgs([]string{"lib", "--provider", "javdb", "--apply=false", "--offline"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if sa.Path != "lib" || sa.Provider != "javdb" || !sa.ProviderSet || sa.Apply || !sa.ApplySet || !sa.Offline || !sa.OfflineSet {
		t.Fatalf("解析结果不符合预期：%+v", sa)
	}

	bad := [][]string{
		{"--provider"},
		{"--provider=nope"},
		{"--apply=yes"},
		{"--offline=1"},
		{"a", "b"},
		{"--unknown"},
	}
	for _, args := range bad {
		if _, err := parseSyncArgs(args); err == nil {
			t.Fatalf("%q 应报错", args)
		}
	}
}

func TestRealMain_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := realMain(context.Background(), []string{"run"}, &stdout, &stderr); code != 2 {
		t.Fatalf("未知命令应返回 2，实际 %d", code)
	}
}
