// Package altpage 实现“替代入口”策略：主页面解析不出结果时，改抓移动端/
// 旧版路径等预期返回更简单标记的 URL 变体，再对其套用一组解析器。
//
// 这是链条中唯一会触网的策略：client 由上层注入，重试/退避/礼貌延迟
// 仍然由 httpx 层统一控制。
package altpage

import (
	"context"

	"github.com/Ankitzoro/imdb-top250-scraper/internal/domain"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/infra/httpx"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/strategy"
)

// Endpoint 是一个待尝试的 URL 变体。
type Endpoint struct {
	URL string
	// Mobile 为 true 时使用移动端画像抓取（m.imdb.com 要求移动 UA）。
	Mobile bool
}

type Strategy struct {
	Client    *httpx.Client
	Endpoints []Endpoint
	// Parsers 是对重抓内容套用的解析器（table/embedded/selector 的纯解析复用）。
	Parsers []strategy.Strategy
	// Threshold：任一变体的产出过线即短路返回。
	Threshold int
}

func (Strategy) Name() string { return "altpage" }

func (s Strategy) Extract(ctx context.Context, _ strategy.Page) strategy.Result {
	var best []domain.Candidate
	var lastErr error

	for _, ep := range s.Endpoints {
		var body []byte
		var err error
		if ep.Mobile {
			body, err = s.Client.GetMobile(ctx, ep.URL)
		} else {
			body, err = s.Client.Get(ctx, ep.URL)
		}
		if err != nil {
			// 单个变体抓取失败只记录诊断，继续下一个。
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		page := strategy.Page{URL: ep.URL, Body: body}
		for _, p := range s.Parsers {
			r := p.Extract(ctx, page)
			if len(r.Candidates) > len(best) {
				best = r.Candidates
			}
			if len(best) >= s.Threshold {
				return strategy.Result{Candidates: best}
			}
		}
	}

	if len(best) == 0 {
		return strategy.Result{Err: lastErr}
	}
	return strategy.Result{Candidates: best}
}
