package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Ankitzoro/imdb-top250-scraper/internal/app/run"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/config"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/domain"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Out:          ra.Out,
		Threshold:    ra.Threshold,
		ThresholdSet: ra.ThresholdSet,
	})
	if err != nil {
		rr := reportForConfigError(ra, err)
		emitReport(rr, nil)
		return 1
	}

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr, records := run.Execute(context.Background(), eff, obs)

	emitReport(rr, records)
	if rr.OK() && rr.Summary.Extracted > 0 {
		return 0
	}
	return 1
}

type runArgs struct {
	Out          string
	Threshold    int
	ThresholdSet bool
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--threshold":
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("--threshold 需要一个值")
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil {
				return runArgs{}, fmt.Errorf("--threshold 必须是整数，实际是 %q", args[i])
			}
			ra.Threshold = n
			ra.ThresholdSet = true
		case strings.HasPrefix(a, "--threshold="):
			v := strings.TrimPrefix(a, "--threshold=")
			n, err := strconv.Atoi(v)
			if err != nil {
				return runArgs{}, fmt.Errorf("--threshold 必须是整数，实际是 %q", v)
			}
			ra.Threshold = n
			ra.ThresholdSet = true
		case strings.HasPrefix(a, "-"):
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ra.Out != "" {
				return runArgs{}, fmt.Errorf("重复的输出路径：%q 与 %q", ra.Out, a)
			}
			ra.Out = a
		}
	}
	return ra, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  imdbtop run [out.csv] [--threshold n]

命令：
  run    抓取榜单并导出 CSV

使用 "imdbtop run --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  imdbtop run [out.csv] [--threshold n]

参数：
  out.csv      输出文件路径（未指定则读 imdbtop.json；最终默认 imdb_top250_movies.csv）
  --threshold  策略产出可被采纳的最小条数（默认 200）
  -h, --help   显示帮助

其余配置（base_url / 超时 / 重试 / 礼貌延迟 / 代理）仅通过 imdbtop.json 控制。
`)
}

// emitReport 输出最终结果。
//
// 契约（与进度输出共同约束）：
// - stdout 是 TTY：打印人类可读摘要（榜单预览 + 统计）
// - stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（摘要走 stderr）
func emitReport(rr domain.RunReport, records []domain.Record) {
	if isTTY(os.Stdout) {
		printSummary(os.Stdout, rr, records)
		return
	}

	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintf(os.Stderr, "完成：extracted=%d/%d strategy=%s\n",
		rr.Summary.Extracted, rr.Summary.Expect, rr.Summary.Strategy)
}

// printSummary 打印抓取结果摘要（预览前 15 条 + 平均分 + 年份范围）。
func printSummary(w io.Writer, rr domain.RunReport, records []domain.Record) {
	if !rr.OK() {
		fmt.Fprintf(w, "失败（%s）：%s\n", rr.ErrorCode, rr.ErrorMsg)
		return
	}

	fmt.Fprintf(w, "完成：%d/%d 条记录 → %s（strategy=%s）\n",
		rr.Summary.Extracted, rr.Summary.Expect, rr.Out, rr.Summary.Strategy)
	for _, warn := range rr.Warnings {
		fmt.Fprintf(w, "警告：%s\n", warn)
	}

	if len(records) == 0 {
		return
	}

	n := len(records)
	if n > 15 {
		n = 15
	}
	fmt.Fprintf(w, "\n前 %d 条：\n", n)
	for _, r := range records[:n] {
		year := "----"
		if r.Year != 0 {
			year = strconv.Itoa(r.Year)
		}
		rating := "N/A"
		if r.Rating != 0 {
			rating = strconv.FormatFloat(r.Rating, 'f', 1, 64)
		}
		fmt.Fprintf(w, "%3d. %s (%s) - %s/10\n", r.Rank, r.Title, year, rating)
	}

	var ratingSum float64
	ratingN := 0
	yearMin, yearMax := 0, 0
	for _, r := range records {
		if r.Rating != 0 {
			ratingSum += r.Rating
			ratingN++
		}
		if r.Year != 0 {
			if yearMin == 0 || r.Year < yearMin {
				yearMin = r.Year
			}
			if r.Year > yearMax {
				yearMax = r.Year
			}
		}
	}
	if ratingN > 0 {
		fmt.Fprintf(w, "\n平均评分：%.2f\n", ratingSum/float64(ratingN))
	}
	if yearMin != 0 {
		fmt.Fprintf(w, "年份范围：%d - %d\n", yearMin, yearMax)
	}
}

func reportForConfigError(ra runArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Out:        ra.Out,
		StartedAt:  now,
		FinishedAt: now,
		ErrorCode:  config.Code(err),
		ErrorMsg:   err.Error(),
	}
	if rr.ErrorCode == "" {
		rr.ErrorCode = domain.ErrCodeConfigInvalid
	}
	rr.Finalize()
	return rr
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}
