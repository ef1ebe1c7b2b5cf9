// Package selector 实现“启发式选择器”策略：作为最后手段，按候选 CSS
// 选择器逐个尝试（当前站点类名 + 通用列表项模式），采纳产出最多的那组。
package selector

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Ankitzoro/imdb-top250-scraper/internal/domain"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/strategy"
)

// goodEnough：某个选择器产出超过该数即不再尝试后续选择器。
const goodEnough = 50

// 候选选择器按“命中概率”排序：新版站点类名在前，通用兜底在后。
var containerSelectors = []string{
	"li.ipc-metadata-list-summary-item",
	"tr[data-testid]",
	"li.titleColumn",
	".lister-item",
	".cli-item",
}

var titleSelectors = []string{
	"h3.ipc-title__text",
	"td.titleColumn a",
	`a[href*="/title/tt"]`,
	".cli-title a",
}

var yearSelectors = []string{
	".cli-title-metadata-item",
	".secondaryInfo",
}

var ratingSelectors = []string{
	".ipc-rating-star--rating",
	".ratingColumn strong",
	"strong",
	".cli-rating",
}

type Strategy struct{}

func (Strategy) Name() string { return "selector" }

func (Strategy) Extract(_ context.Context, page strategy.Page) strategy.Result {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return strategy.Result{Err: err}
	}

	var best []domain.Candidate
	for _, sel := range containerSelectors {
		elems := doc.Find(sel)
		if elems.Length() == 0 {
			continue
		}

		var out []domain.Candidate
		elems.Each(func(i int, e *goquery.Selection) {
			if c, ok := fromElement(e, i+1); ok {
				out = append(out, c)
			}
		})

		if len(out) > len(best) {
			best = out
		}
		if len(best) > goodEnough {
			break
		}
	}
	return strategy.Result{Candidates: best}
}

var leadingRankRE = regexp.MustCompile(`^\s*(\d+)\.`)

// fromElement 对单个容器做通用字段提取（兼容多种结构，字段缺失不致命）。
func fromElement(e *goquery.Selection, pos int) (domain.Candidate, bool) {
	title := ""
	for _, sel := range titleSelectors {
		t := strings.TrimSpace(e.Find(sel).First().Text())
		t = leadingRankRE.ReplaceAllString(t, "")
		t = strings.TrimSpace(t)
		if len(t) > 1 {
			title = t
			break
		}
	}
	if title == "" {
		return domain.Candidate{}, false
	}

	year := ""
	for _, sel := range yearSelectors {
		if t := strings.TrimSpace(e.Find(sel).First().Text()); t != "" {
			year = t
			break
		}
	}

	rating := ""
	for _, sel := range ratingSelectors {
		if t := strings.TrimSpace(e.Find(sel).First().Text()); t != "" {
			rating = t
			break
		}
	}

	href, _ := e.Find(`a[href*="/title/tt"]`).First().Attr("href")

	// 序号优先取元素自身文本前缀（"12. …"），取不到退回位置序。
	rank := strconv.Itoa(pos)
	if m := leadingRankRE.FindStringSubmatch(strings.TrimSpace(e.Text())); m != nil {
		rank = m[1]
	}

	return domain.Candidate{
		RankText:   rank,
		Title:      title,
		YearText:   year,
		RatingText: rating,
		Href:       strings.TrimSpace(href),
	}, true
}
