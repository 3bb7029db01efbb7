package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/John-Robertt/avcast/internal/app"
	"github.com/John-Robertt/avcast/internal/app/planner"
	"github.com/John-Robertt/avcast/internal/code"
	"github.com/John-Robertt/avcast/internal/config"
	"github.com/John-Robertt/avcast/internal/domain"
	"github.com/John-Robertt/avcast/internal/nfo"
	"github.com/John-Robertt/avcast/internal/roster"
	"github.com/John-Robertt/avcast/internal/scan"
)

// showCmd 打印一个条目的演员表（只读）。
func showCmd(args []string, stdout, stderr io.Writer) int {
	var path, raw string
	switch len(args) {
	case 1:
		raw = args[0]
	case 2:
		path, raw = args[0], args[1]
	default:
		fmt.Fprintln(stderr, "用法：avcast show [path] CODE")
		return 2
	}
	if isHelp(raw) {
		fmt.Fprintln(stdout, "用法：avcast show [path] CODE")
		return 0
	}

	cands := code.Candidates(raw)
	if len(cands) != 1 {
		fmt.Fprintf(stderr, "无法识别 CODE：%q\n", raw)
		return 2
	}
	want := cands[0]

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	eff, err := config.LoadEffective(cwd, config.CLIArgs{Path: path})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	dirs, err := scan.ScanItems(eff.Path, eff.ExcludeDirs)
	if err != nil {
		fmt.Fprintf(stderr, "扫描失败：%v\n", err)
		return 1
	}
	items, _, err := app.GroupByCode(dirs)
	if err != nil {
		fmt.Fprintf(stderr, "解析 CODE 失败：%v\n", err)
		return 1
	}

	for _, it := range items {
		if it.Code != want {
			continue
		}
		if err := printRoster(stdout, it); err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", want, err)
			return 1
		}
		return 0
	}
	fmt.Fprintf(stderr, "未找到条目：%s\n", want)
	return 1
}

func printRoster(w io.Writer, it domain.WorkItem) error {
	st, err := planner.ReadItemState(it.Dir, it.Code)
	if err != nil {
		return err
	}
	if !st.HasNFO {
		return fmt.Errorf("目录中没有 NFO")
	}
	b, err := os.ReadFile(filepath.Join(st.Dir, st.NFOName))
	if err != nil {
		return err
	}
	doc, err := nfo.Decode(b)
	if err != nil {
		return err
	}

	r := roster.New(doc.Actors()...)
	fmt.Fprintf(w, "%s (%s) actors=%d\n", it.Code, it.Dir.RelPath, r.Len())
	for _, a := range r.View() {
		fmt.Fprint(w, a.Format())
		img := "none"
		if name := a.ImageFileName(); name != "" {
			if fi, err := os.Stat(filepath.Join(st.Dir, planner.ActorsDir, name)); err == nil {
				img = fmt.Sprintf("%s (%s)", name, humanize.Bytes(uint64(fi.Size())))
			}
		}
		fmt.Fprintf(w, "  Image: %s\n", img)
	}
	return nil
}
