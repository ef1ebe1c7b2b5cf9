// Package normalize 把各策略异构的候选字段收敛为统一的 Record 形态：
// 类型收敛、默认值回填、相对链接解析、去重与排序。
package normalize

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Ankitzoro/imdb-top250-scraper/internal/domain"
)

// Options 是一次规范化的显式输入（不读任何全局状态）。
type Options struct {
	// Base 是相对链接的解析基准（榜单站点根地址）。
	Base string
	// Expect 是结果上限（榜单固定长度）。
	Expect int
	// Now 用于年份合法区间上界；零值时取当前时间（测试可固定）。
	Now time.Time
}

// Records 执行规范化流水线。
//
// 规则（顺序即语义）：
// 1) 逐条收敛类型：rank/year 取数字串，rating 容忍 "9.3" 与 "9.3/10"，
//    非法值回退为零值而不是丢弃整条
// 2) 丢弃无标题的候选（Title 是唯一必填字段）
// 3) 去重：先按标题、再按 rank，首见者保留
// 4) 按 rank 升序排序（无 rank 的排最后），截断到 Expect
// 5) 重编 rank 为 1..N（对间隙/重复的 best-effort 清理，保证序列连续）
func Records(cands []domain.Candidate, opts Options) []domain.Record {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	maxYear := now.Year() + 1

	out := make([]domain.Record, 0, len(cands))
	seenTitle := make(map[string]struct{}, len(cands))
	seenRank := make(map[int]struct{}, len(cands))

	for _, c := range cands {
		title := cleanTitle(c.Title)
		if title == "" || title == "Unknown" {
			continue
		}
		if _, ok := seenTitle[title]; ok {
			continue
		}

		rank := firstInt(c.RankText)
		if rank > 0 {
			if _, ok := seenRank[rank]; ok {
				continue
			}
			seenRank[rank] = struct{}{}
		}

		year := firstYear(c.YearText)
		if year < domain.MinYear || year > maxYear {
			year = 0
		}
		rating := parseRating(c.RatingText)
		if rating < 0 || rating > 10 {
			rating = 0
		}

		seenTitle[title] = struct{}{}
		out = append(out, domain.Record{
			Rank:   rank,
			Title:  title,
			Year:   year,
			Rating: rating,
			URL:    resolveURL(opts.Base, c.Href),
		})
	}

	// 稳定排序：rank 相同/缺失时保持首见顺序。
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Rank, out[j].Rank
		if a <= 0 {
			return false
		}
		if b <= 0 {
			return true
		}
		return a < b
	})

	if opts.Expect > 0 && len(out) > opts.Expect {
		out = out[:opts.Expect]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// cleanTitle 去掉序号前缀（"1. Title"）并折叠空白。
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i > 0 && allDigits(s[:i]) {
		s = s[i+1:]
	}
	return strings.Join(strings.Fields(s), " ")
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// firstInt 取文本中第一段连续数字（剥离脚注标记、千分位等杂质）。
func firstInt(s string) int {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == ',' && b.Len() > 0 {
			// 千分位逗号：跳过继续拼。
			continue
		}
		if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, _ := strconv.Atoi(b.String())
	return n
}

// firstYear 取文本中第一段 4 位数字（"(1994)" / "1994" / "1994 2h 22m"）。
func firstYear(s string) int {
	run := 0
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if run == 0 {
				start = i
			}
			run++
			if run == 4 {
				// 确认是恰好 4 位（后一位不能还是数字）。
				if i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9' {
					run = 0
					continue
				}
				n, _ := strconv.Atoi(s[start : i+1])
				return n
			}
			continue
		}
		run = 0
	}
	return 0
}

// parseRating 解析评分文本，容忍 "9.3" 与 "9.3/10"；无法解析回退为 0。
func parseRating(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// resolveURL 把相对链接解析为绝对 URL（"//"、绝对、相对三种形态）。
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}
