// Package embedded 实现“内嵌数据”策略：不解析可见 DOM，而是扫描页面内
// script 标签里的序列化数据（JSON-LD 结构化数据，或前端框架注入的状态对象），
// 从中取出榜单条目。
package embedded

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Ankitzoro/imdb-top250-scraper/internal/domain"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/strategy"
)

const (
	// ldAccept：JSON-LD 条目达到该数量即直接采纳，不再做状态对象扫描。
	ldAccept = 100
	// blobAccept：状态对象里至少匹配到这么多标题才认为“撞到了数据块”
	//（更少的匹配大概率是推荐位等噪音）。
	blobAccept = 50
)

type Strategy struct{}

func (Strategy) Name() string { return "embedded" }

func (Strategy) Extract(_ context.Context, page strategy.Page) strategy.Result {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return strategy.Result{Err: err}
	}

	ld := fromJSONLD(doc)
	if len(ld) >= ldAccept {
		return strategy.Result{Candidates: ld}
	}

	blob := fromStateBlob(doc)
	if len(blob) > len(ld) {
		return strategy.Result{Candidates: blob}
	}
	return strategy.Result{Candidates: ld}
}

// ldItemList 只建模需要的字段；其余内容忽略（站点随时会加字段）。
type ldItemList struct {
	ItemListElement []struct {
		Position int `json:"position"`
		Item     struct {
			Name            string `json:"name"`
			URL             string `json:"url"`
			DatePublished   string `json:"datePublished"`
			AggregateRating struct {
				RatingValue json.Number `json:"ratingValue"`
			} `json:"aggregateRating"`
		} `json:"item"`
	} `json:"itemListElement"`
}

var yearRE = regexp.MustCompile(`\d{4}`)

func fromJSONLD(doc *goquery.Document) []domain.Candidate {
	var out []domain.Candidate
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var list ldItemList
		// 单个 script 解析失败不影响其他：JSON-LD 常混杂多种 @type。
		if err := json.Unmarshal([]byte(s.Text()), &list); err != nil {
			return
		}
		for _, el := range list.ItemListElement {
			name := strings.TrimSpace(el.Item.Name)
			if name == "" {
				continue
			}
			rank := el.Position
			if rank <= 0 {
				rank = len(out) + 1
			}
			out = append(out, domain.Candidate{
				RankText:   strconv.Itoa(rank),
				Title:      name,
				YearText:   yearRE.FindString(el.Item.DatePublished),
				RatingText: el.Item.AggregateRating.RatingValue.String(),
				Href:       strings.TrimSpace(el.Item.URL),
			})
		}
	})
	return out
}

// 状态对象里的常见字段模式（前端框架注入的数据块）。
var (
	titleREs = []*regexp.Regexp{
		regexp.MustCompile(`"titleText"\s*:\s*"((?:[^"\\]|\\.)*)"`),
		regexp.MustCompile(`"primaryText"\s*:\s*"((?:[^"\\]|\\.)*)"`),
	}
	releaseYearRE = regexp.MustCompile(`"releaseYear"\s*:\s*(\d{4})`)
	ratingValueRE = regexp.MustCompile(`"ratingValue"\s*:\s*(\d+\.?\d*)`)
)

func fromStateBlob(doc *goquery.Document) []domain.Candidate {
	var best []domain.Candidate
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		if !strings.Contains(text, "titleText") && !strings.Contains(text, "primaryText") {
			return
		}
		if got := scanBlob(text); len(got) > len(best) {
			best = got
		}
	})
	return best
}

func scanBlob(text string) []domain.Candidate {
	for _, re := range titleREs {
		ms := re.FindAllStringSubmatch(text, -1)
		if len(ms) < blobAccept {
			continue
		}

		years := releaseYearRE.FindAllStringSubmatch(text, -1)
		ratings := ratingValueRE.FindAllStringSubmatch(text, -1)

		out := make([]domain.Candidate, 0, len(ms))
		for i, m := range ms {
			c := domain.Candidate{
				RankText: strconv.Itoa(i + 1),
				Title:    unescapeJSON(m[1]),
			}
			if i < len(years) {
				c.YearText = years[i][1]
			}
			if i < len(ratings) {
				c.RatingText = ratings[i][1]
			}
			out = append(out, c)
		}
		return out
	}
	return nil
}

// unescapeJSON 还原标题里的 JSON 转义（&、\" 等）。失败时原样返回。
func unescapeJSON(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
