// Package table 实现“结构化表格”策略：优先匹配旧版榜单的
// tbody.lister-list 表格，按行取 rank/title/year/rating/链接。
package table

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

type Strategy struct{}

func (Strategy) Name() string { return "table" }

// Extract 依次尝试三种表格形态：
// 1) 旧版 lister-list 表格（行列布局可预测）
// 2) 新版 ipc-metadata-list-summary-item 容器
// 3) 任意“看起来像电影行”的 <tr>（兜底）
func (Strategy) Extract(_ context.Context, page strategy.Page) strategy.Result {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return strategy.Result{Err: err}
	}

	out := fromListerRows(doc)
	if len(out) == 0 {
		out = fromSummaryItems(doc)
	}
	if len(out) == 0 {
		out = fromAnyRows(doc)
	}
	return strategy.Result{Candidates: out}
}

func fromListerRows(doc *goquery.Document) []domain.Candidate {
	var out []domain.Candidate
	doc.Find("tbody.lister-list tr").Each(func(i int, row *goquery.Selection) {
		titleCell := row.Find("td.titleColumn").First()
		if titleCell.Length() == 0 {
			return
		}
		link := titleCell.Find("a").First()
		title := strings.TrimSpace(link.Text())
		if title == "" {
			return
		}

		// 旧版表格的序号在 titleColumn 文本前缀（"1. Title"）。
		rank := leadingRank(titleCell.Text())
		if rank == "" {
			rank = strconv.Itoa(i + 1)
		}

		href, _ := link.Attr("href")
		out = append(out, domain.Candidate{
			RankText:   rank,
			Title:      title,
			YearText:   strings.TrimSpace(titleCell.Find("span.secondaryInfo").First().Text()),
			RatingText: strings.TrimSpace(row.Find("td.ratingColumn strong").First().Text()),
			Href:       strings.TrimSpace(href),
		})
	})
	return out
}

func fromSummaryItems(doc *goquery.Document) []domain.Candidate {
	var out []domain.Candidate
	doc.Find("li.ipc-metadata-list-summary-item").Each(func(i int, item *goquery.Selection) {
		raw := strings.TrimSpace(item.Find("h3.ipc-title__text").First().Text())
		rank, title := splitRankTitle(raw)
		if title == "" {
			return
		}
		if rank == "" {
			rank = strconv.Itoa(i + 1)
		}

		href, _ := item.Find("a.ipc-title-link-wrapper").First().Attr("href")
		out = append(out, domain.Candidate{
			RankText:   rank,
			Title:      title,
			YearText:   strings.TrimSpace(item.Find("span.cli-title-metadata-item").First().Text()),
			RatingText: strings.TrimSpace(item.Find("span.ipc-rating-star--rating").First().Text()),
			Href:       strings.TrimSpace(href),
		})
	})
	return out
}

var (
	titleHrefRE = regexp.MustCompile(`/title/tt\d+/`)
	parenYearRE = regexp.MustCompile(`\((\d{4})\)`)
)

func fromAnyRows(doc *goquery.Document) []domain.Candidate {
	var out []domain.Candidate
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		link := movieLink(row)
		if link == nil {
			return
		}
		title := strings.TrimSpace(link.Text())
		if title == "" {
			return
		}

		rowText := row.Text()
		year := ""
		if m := parenYearRE.FindStringSubmatch(rowText); m != nil {
			year = m[1]
		}
		rating := strings.TrimSpace(row.Find("strong").First().Text())
		if rating == "" {
			rating = strings.TrimSpace(row.Find("span.ipc-rating-star--rating").First().Text())
		}
		if rating == "" && year == "" {
			// 没有任何评分/年份迹象：大概率不是电影行。
			return
		}

		href, _ := link.Attr("href")
		out = append(out, domain.Candidate{
			RankText:   strconv.Itoa(len(out) + 1),
			Title:      title,
			YearText:   year,
			RatingText: rating,
			Href:       strings.TrimSpace(href),
		})
	})
	return out
}

func movieLink(row *goquery.Selection) *goquery.Selection {
	var found *goquery.Selection
	row.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok || !titleHrefRE.MatchString(href) {
			return true
		}
		found = a
		return false
	})
	return found
}

var leadingRankRE = regexp.MustCompile(`^\s*(\d+)\.`)

func leadingRank(s string) string {
	if m := leadingRankRE.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// splitRankTitle 把 "1. The Shawshank Redemption" 拆为序号与标题。
func splitRankTitle(s string) (rank, title string) {
	if m := leadingRankRE.FindStringSubmatch(s); m != nil {
		return m[1], strings.TrimSpace(s[len(m[0]):])
	}
	return "", strings.TrimSpace(s)
}
