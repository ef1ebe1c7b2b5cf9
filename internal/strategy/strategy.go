package strategy

import (
	"context"

	"github.com/Ankitzoro/imdb-top250-scraper/internal/domain"
)

// Page 是一次抓取的原始结果（strategy 的唯一输入）。
type Page struct {
	// URL 是该内容的来源地址（用于 attempt 追溯）。
	URL  string
	Body []byte
}

// Result 是单个策略的产出。
//
// 契约：策略对畸形输入“永不抛出”，解析失败降级为空结果；Err 仅作诊断，
// 链条会把带 Err 的结果当作空处理，而不是中断。用类型化结果而不是
// 控制流异常，保证策略列表可组合、可单独测试。
type Result struct {
	Candidates []domain.Candidate
	Err        error
}

// Strategy 是一次自包含的解析尝试。
//
// 约束：
// - 除 altpage 外，Extract 必须是纯函数：相同输入 => 相同输出
// - 不做重试、不做限速（由 httpx 层统一实现）
type Strategy interface {
	Name() string
	Extract(ctx context.Context, page Page) Result
}

// Attempt 记录一次策略尝试（用于解释 fallback/降级原因）。
type Attempt struct {
	Strategy string
	Outcome  string // domain.AttemptOK / AttemptShort / AttemptEmpty / AttemptError
	Count    int
	Err      error
}

// Run 按固定顺序尝试策略，直到某个策略的产出达到 threshold。
//
// 命名策略：first-acceptable-result。一旦有策略过线，其产出即最终结果，
// 不与其他策略的部分结果做合并/并集（这是刻意的设计简化，不是缺陷）。
// 全部策略耗尽仍未过线时，返回“产出最多”的那个（best-effort 部分结果）。
func Run(ctx context.Context, strategies []Strategy, page Page, threshold int) (best []domain.Candidate, winner string, attempts []Attempt) {
	for _, s := range strategies {
		r := s.Extract(ctx, page)

		switch {
		case r.Err != nil && len(r.Candidates) == 0:
			attempts = append(attempts, Attempt{Strategy: s.Name(), Outcome: domain.AttemptError, Err: r.Err})
			continue
		case len(r.Candidates) == 0:
			attempts = append(attempts, Attempt{Strategy: s.Name(), Outcome: domain.AttemptEmpty})
			continue
		case len(r.Candidates) >= threshold:
			attempts = append(attempts, Attempt{Strategy: s.Name(), Outcome: domain.AttemptOK, Count: len(r.Candidates)})
			return r.Candidates, s.Name(), attempts
		}

		attempts = append(attempts, Attempt{Strategy: s.Name(), Outcome: domain.AttemptShort, Count: len(r.Candidates)})
		if len(r.Candidates) > len(best) {
			best = r.Candidates
			winner = s.Name()
		}
	}
	return best, winner, attempts
}
