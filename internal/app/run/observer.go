package run

import (
	"time"

	"github.com/Ankitzoro/imdb-top250-scraper/internal/config"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/domain"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/strategy"
)

// Observer 用于把“运行进度/阶段/策略结果”从核心执行流程中解耦出来。
//
// 约束：run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
type Observer interface {
	// OnStart 在 Execute 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnStrategyDone 在某个策略尝试结束时调用（用于逐条解释 fallback 过程）。
	OnStrategyDone(endpoint string, a strategy.Attempt)
	// OnFinish 在 Execute 结束时调用（无论成败），携带最终报告。
	OnFinish(rr domain.RunReport)
}
