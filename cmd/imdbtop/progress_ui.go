package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Ankitzoro/imdb-top250-scraper/internal/app/run"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/config"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/domain"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/strategy"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端的进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
type progressUI struct {
	w io.Writer

	mu        sync.Mutex
	startedAt time.Time
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.startedAt = now

	fmt.Fprintf(p.w, "[%s] imdbtop run\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  out: %s\n", eff.Out)
	fmt.Fprintf(p.w, "  base_url: %s\n", eff.BaseURL)
	fmt.Fprintf(p.w, "  threshold: %d / expect: %d\n", eff.Threshold, eff.Expect)
	fmt.Fprintf(p.w, "  timeout: %v / retry_max: %d\n", eff.Timeout, eff.RetryMax)
	fmt.Fprintf(p.w, "  politeness: [%v, %v]\n", eff.DelayMin, eff.DelayMax)
	if eff.ProxyURL != "" {
		fmt.Fprintf(p.w, "  proxy: %s\n", truncate(eff.ProxyURL, 120))
	}
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%s] %s%s (%s)\n",
		time.Now().Format("15:04:05"), name, formatFields(fields), formatDur(dur))
}

func (p *progressUI) OnStrategyDone(endpoint string, a strategy.Attempt) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch a.Outcome {
	case domain.AttemptOK:
		fmt.Fprintf(p.w, "[%s]   策略 %s：命中 %d 条（采纳）\n", time.Now().Format("15:04:05"), a.Strategy, a.Count)
	case domain.AttemptShort:
		fmt.Fprintf(p.w, "[%s]   策略 %s：仅 %d 条（未过线，继续）\n", time.Now().Format("15:04:05"), a.Strategy, a.Count)
	case domain.AttemptError:
		fmt.Fprintf(p.w, "[%s]   策略 %s：出错（%v），继续\n", time.Now().Format("15:04:05"), a.Strategy, a.Err)
	default:
		fmt.Fprintf(p.w, "[%s]   策略 %s：无产出，继续\n", time.Now().Format("15:04:05"), a.Strategy)
	}
}

func (p *progressUI) OnFinish(rr domain.RunReport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Duration(0)
	if !p.startedAt.IsZero() {
		elapsed = time.Since(p.startedAt)
	}
	if rr.OK() {
		fmt.Fprintf(p.w, "[%s] 完成：%d/%d 条（%s）\n",
			time.Now().Format("15:04:05"), rr.Summary.Extracted, rr.Summary.Expect, formatDur(elapsed))
		return
	}
	fmt.Fprintf(p.w, "[%s] 失败（%s）：%s（%s）\n",
		time.Now().Format("15:04:05"), rr.ErrorCode, rr.ErrorMsg, formatDur(elapsed))
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}

func formatDur(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
