package run

import (
	"context"
	"fmt"
	"time"

	"github.com/Ankitzoro/imdb-top250-scraper/internal/config"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/domain"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/export"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/infra/httpx"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/normalize"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/strategy"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/strategy/altpage"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/strategy/embedded"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/strategy/selector"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/strategy/table"
)

// Execute 执行一次完整流水线：预热 → 抓取入口 → 策略链 → 规范化 → 导出。
//
// 错误按“尽量下沉吸收”的原则处理：单个入口/策略失败只记录 attempt 与
// warning，流程继续；只有“零记录”与“导出 I/O 失败”是终态错误。
// 拿到的记录少于 expect 只是 warning，不是失败。
//
// 除返回的 RunReport 外，同时返回最终记录序列（供 CLI 做摘要展示；
// stdout 的 JSON 契约只包含 report）。
func Execute(ctx context.Context, eff config.EffectiveConfig, obs Observer) (domain.RunReport, []domain.Record) {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		Out:       eff.Out,
		StartedAt: started,
		Summary:   domain.ReportSummary{Expect: eff.Expect},
	}

	finish := func(records []domain.Record, errCode, errMsg string) (domain.RunReport, []domain.Record) {
		rr.ErrorCode = errCode
		rr.ErrorMsg = errMsg
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		if obs != nil {
			obs.OnFinish(rr)
		}
		return rr, records
	}

	client, err := httpx.New(httpx.Options{
		Timeout:  eff.Timeout,
		RetryMax: eff.RetryMax,
		DelayMin: eff.DelayMin,
		DelayMax: eff.DelayMax,
		ProxyURL: eff.ProxyURL,
	})
	if err != nil {
		return finish(nil, domain.ErrCodeConfigInvalid, err.Error())
	}

	// 会话预热：访问站点首页拿 cookie，失败不致命（只是降低后续被拦截概率）。
	warmStarted := time.Now()
	_, warmErr := client.Get(ctx, eff.BaseURL+"/")
	if obs != nil {
		obs.OnPhaseDone("warmup", map[string]any{"ok": warmErr == nil}, time.Since(warmStarted))
	}

	alt := newAltpage(client, eff)
	chain := []strategy.Strategy{table.Strategy{}, embedded.Strategy{}, alt, selector.Strategy{}}
	endpoints := []string{
		eff.BaseURL + "/chart/top/",
		eff.BaseURL + "/chart/top/?view=simple",
	}

	var (
		best         []domain.Candidate
		bestStrategy string
		bestEndpoint string
		fetchFailed  int
	)

	for _, u := range endpoints {
		fetchStarted := time.Now()
		body, err := client.Get(ctx, u)
		if err != nil {
			fetchFailed++
			rr.Warnings = append(rr.Warnings, fmt.Sprintf("入口抓取失败：%v", err))
			if obs != nil {
				obs.OnPhaseDone("fetch", map[string]any{"url": u, "ok": false}, time.Since(fetchStarted))
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if obs != nil {
			obs.OnPhaseDone("fetch", map[string]any{"url": u, "bytes": len(body)}, time.Since(fetchStarted))
		}

		cands, winner, attempts := strategy.Run(ctx, chain, strategy.Page{URL: u, Body: body}, eff.Threshold)
		for _, a := range attempts {
			rr.Attempts = append(rr.Attempts, toReportAttempt(u, a))
			if obs != nil {
				obs.OnStrategyDone(u, a)
			}
		}

		if len(cands) >= eff.Threshold {
			best, bestStrategy, bestEndpoint = cands, winner, u
			break
		}
		if len(cands) > len(best) {
			best, bestStrategy, bestEndpoint = cands, winner, u
		}
	}

	// 入口全部抓取失败时策略链从未运行：替代入口策略自带抓取，
	// 单独运行它是最后的恢复机会。
	if fetchFailed == len(endpoints) && ctx.Err() == nil {
		cands, winner, attempts := strategy.Run(ctx, []strategy.Strategy{alt}, strategy.Page{}, eff.Threshold)
		for _, a := range attempts {
			rr.Attempts = append(rr.Attempts, toReportAttempt("", a))
			if obs != nil {
				obs.OnStrategyDone("", a)
			}
		}
		if len(cands) > len(best) {
			best, bestStrategy, bestEndpoint = cands, winner, ""
		}
	}

	if len(best) == 0 {
		if fetchFailed == len(endpoints) {
			return finish(nil, domain.ErrCodeFetchFailed, "所有入口 URL 抓取失败（重试已耗尽）")
		}
		return finish(nil, domain.ErrCodeNoRecords, "所有策略均未产出可用记录（站点结构可能已变化）")
	}

	normStarted := time.Now()
	records := normalize.Records(best, normalize.Options{
		Base:   eff.BaseURL,
		Expect: eff.Expect,
	})
	if obs != nil {
		obs.OnPhaseDone("normalize", map[string]any{
			"in":  len(best),
			"out": len(records),
		}, time.Since(normStarted))
	}
	if len(records) == 0 {
		return finish(nil, domain.ErrCodeNoRecords, "规范化后没有任何有效记录（候选缺少标题）")
	}

	rr.Summary.Extracted = len(records)
	rr.Summary.Strategy = bestStrategy
	rr.Summary.Endpoint = bestEndpoint
	if len(records) < eff.Expect {
		rr.Warnings = append(rr.Warnings, fmt.Sprintf("仅恢复 %d/%d 条记录（站点动态加载限制；可稍后重试）", len(records), eff.Expect))
	}

	exportStarted := time.Now()
	if err := export.Write(records, eff.Out); err != nil {
		return finish(nil, domain.ErrCodeExportFailed, err.Error())
	}
	if obs != nil {
		obs.OnPhaseDone("export", map[string]any{
			"out":  eff.Out,
			"rows": len(records),
		}, time.Since(exportStarted))
	}

	return finish(records, "", "")
}

// newAltpage 组装替代入口策略：移动端、旧版/分页参数变体、搜索端点。
func newAltpage(client *httpx.Client, eff config.EffectiveConfig) altpage.Strategy {
	return altpage.Strategy{
		Client: client,
		Endpoints: []altpage.Endpoint{
			{URL: eff.MobileBaseURL + "/chart/top/", Mobile: true},
			{URL: eff.BaseURL + "/chart/top/?ref_=nv_mv_250_6"},
			// 分页参数变体：部分站点形态按这些参数返回完整列表。
			{URL: fmt.Sprintf("%s/chart/top/?start=1&count=%d", eff.BaseURL, eff.Expect)},
			{URL: fmt.Sprintf("%s/chart/top/?page=1&per_page=%d", eff.BaseURL, eff.Expect)},
			{URL: fmt.Sprintf("%s/chart/top/?offset=0&limit=%d", eff.BaseURL, eff.Expect)},
			{URL: eff.BaseURL + "/search/title/?groups=top_250&sort=user_rating,desc"},
		},
		Parsers:   []strategy.Strategy{table.Strategy{}, embedded.Strategy{}, selector.Strategy{}},
		Threshold: eff.Threshold,
	}
}

func toReportAttempt(endpoint string, a strategy.Attempt) domain.StrategyAttempt {
	out := domain.StrategyAttempt{
		Endpoint: endpoint,
		Strategy: a.Strategy,
		Outcome:  a.Outcome,
		Count:    a.Count,
	}
	if a.Err != nil {
		out.ErrorMsg = a.Err.Error()
	}
	return out
}
