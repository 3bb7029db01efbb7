package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/John-Robertt/avcast/internal/app/run"
	"github.com/John-Robertt/avcast/internal/config"
	"github.com/John-Robertt/avcast/internal/domain"
	"github.com/John-Robertt/avcast/internal/infra/fsx"
	"github.com/John-Robertt/avcast/internal/provider"
	"github.com/John-Robertt/avcast/internal/provider/javbus"
	"github.com/John-Robertt/avcast/internal/provider/javdb"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := realMain(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func realMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || isHelp(args[0]) {
		printUsage(stdout)
		return 0
	}

	switch args[0] {
	case "sync":
		return syncCmd(ctx, args[1:], stdout, stderr)
	case "show":
		return showCmd(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "未知命令：%q\n\n", args[0])
		printUsage(stderr)
		return 2
	}
}

func syncCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	for _, a := range args {
		if isHelp(a) {
			printSyncUsage(stdout)
			return 0
		}
	}

	sa, err := parseSyncArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
		printSyncUsage(stderr)
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Path:        sa.Path,
		Provider:    sa.Provider,
		ProviderSet: sa.ProviderSet,
		Apply:       sa.Apply,
		ApplySet:    sa.ApplySet,
		Offline:     sa.Offline,
		OfflineSet:  sa.OfflineSet,
	})
	if err != nil {
		emitReport(stdout, stderr, reportForConfigError(cwdAbs, sa, err))
		return 1
	}

	reg, err := newRegistry(eff)
	if err != nil {
		fmt.Fprintf(stderr, "初始化 provider registry 失败：%v\n", err)
		return 1
	}

	progressW, interactive := pickProgressWriter(stdout, stderr)
	var obs run.Observer
	if interactive {
		obs = newCastUI(progressW)
	}

	rr := run.ExecuteWithObserver(ctx, eff, reg, obs)

	// apply：写入 <path>/cache/report.json；dry-run 不落盘。
	if eff.Apply {
		if err := writeReportFile(eff.Path, rr); err != nil {
			fmt.Fprintf(stderr, "写入 report.json 失败：%v\n", err)
			emitReport(stdout, stderr, rr)
			return 1
		}
	}

	emitReport(stdout, stderr, rr)
	if interactive && eff.Apply {
		fmt.Fprintf(progressW, "report: %s\n", filepath.Join(eff.Path, "cache", "report.json"))
	}
	if rr.Summary.Failed == 0 && rr.Summary.Unmatched == 0 {
		return 0
	}
	return 1
}

func newRegistry(eff config.EffectiveConfig) (provider.Registry, error) {
	return provider.NewRegistry(
		javbus.Provider{},
		javdb.Provider{BaseURL: eff.JavDBBaseURL},
	)
}

type syncArgs struct {
	Path        string
	Provider    string
	ProviderSet bool
	Apply       bool
	ApplySet    bool
	Offline     bool
	OfflineSet  bool
}

func parseSyncArgs(args []string) (syncArgs, error) {
	sa := syncArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--provider":
			if i+1 >= len(args) {
				return syncArgs{}, fmt.Errorf("--provider 需要一个值")
			}
			i++
			sa.Provider = args[i]
			sa.ProviderSet = true
		case strings.HasPrefix(a, "--provider="):
			sa.Provider = strings.TrimPrefix(a, "--provider=")
			sa.ProviderSet = true
		case a == "--apply":
			sa.Apply, sa.ApplySet = true, true
		case strings.HasPrefix(a, "--apply="):
			v, err := parseBoolFlag("--apply", strings.TrimPrefix(a, "--apply="))
			if err != nil {
				return syncArgs{}, err
			}
			sa.Apply, sa.ApplySet = v, true
		case a == "--offline":
			sa.Offline, sa.OfflineSet = true, true
		case strings.HasPrefix(a, "--offline="):
			v, err := parseBoolFlag("--offline", strings.TrimPrefix(a, "--offline="))
			if err != nil {
				return syncArgs{}, err
			}
			sa.Offline, sa.OfflineSet = v, true
		case strings.HasPrefix(a, "-"):
			return syncArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if sa.Path != "" {
				return syncArgs{}, fmt.Errorf("重复的 path：%q 与 %q", sa.Path, a)
			}
			sa.Path = a
		}
	}

	if sa.ProviderSet {
		switch sa.Provider {
		case "javbus", "javdb":
		case "":
			return syncArgs{}, fmt.Errorf("--provider 不能为空")
		default:
			return syncArgs{}, fmt.Errorf("--provider 只能是 javbus 或 javdb，实际是 %q", sa.Provider)
		}
	}

	return sa, nil
}

func parseBoolFlag(name, v string) (bool, error) {
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%s 只能是 true 或 false，实际是 %q", name, v)
	}
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  avcast sync [path] [--provider javbus|javdb] [--apply[=true|false]] [--offline[=true|false]]
  avcast show [path] CODE

命令：
  sync   同步 out/ 下各条目的演员表与头像（默认 dry-run）
  show   打印一个条目当前的演员表

使用 "avcast sync --help" 查看详细说明。
`)
}

func printSyncUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  avcast sync [path] [--provider javbus|javdb] [--apply[=true|false]] [--offline[=true|false]]

参数：
  --provider  首选 provider：javbus|javdb（未指定则读配置文件；最终默认 javbus）
  --apply     写回 NFO 与 .actors/ 头像（默认 dry-run）；支持 --apply=false 覆盖配置中的 apply=true
  --offline   不访问 provider，只按 exclude_actors 整理本地演员表
  -h, --help  显示帮助
`)
}

func summaryLine(rr domain.RunReport) string {
	s := rr.Summary
	return fmt.Sprintf("完成：processed=%d skipped=%d failed=%d unmatched=%d actors=+%d/-%d images=%d (%s)",
		s.Processed, s.Skipped, s.Failed, s.Unmatched,
		s.ActorsAdded, s.ActorsRemoved, s.ImagesWritten, humanize.Bytes(uint64(max(s.ImageBytes, 0))),
	)
}

func emitReport(stdout, stderr io.Writer, rr domain.RunReport) {
	if isTTY(stdout) {
		fmt.Fprintln(stdout, summaryLine(rr))
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed && it.Status != domain.StatusUnmatched {
				continue
			}
			key := it.Code
			if key == "" {
				key = it.Dir
			}
			if key == "" {
				key = "<unknown>"
			}
			fmt.Fprintf(stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	// stdout 非 TTY：stdout 只输出一个 RunReport JSON（日志/摘要走 stderr）。
	_ = json.NewEncoder(stdout).Encode(rr)
	fmt.Fprintln(stderr, summaryLine(rr))
}

func reportForConfigError(cwdAbs string, sa syncArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Path:       cwdAbs,
		DryRun:     !(sa.ApplySet && sa.Apply),
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:     domain.StatusFailed,
			ErrorCode:  config.Code(err),
			ErrorMsg:   err.Error(),
			Candidates: []string{},
			Attempts:   []domain.ProviderAttempt{},
			Changes:    []domain.ActorChange{},
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(root string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Join(root, "cache"), "report.json", b)
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// pickProgressWriter：进度只在交互终端启用；优先 stderr，不污染 stdout JSON。
func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	if isTTY(stderr) {
		return stderr, true
	}
	if isTTY(stdout) {
		return stdout, true
	}
	return nil, false
}
