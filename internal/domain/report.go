package domain

import (
	"time"
)

const (
	// ErrCodeFetchFailed 表示所有入口 URL 的抓取都以终态失败结束。
	ErrCodeFetchFailed = "fetch_failed"
	// ErrCodeNoRecords 表示抓取成功但没有任何策略产出可用记录。
	ErrCodeNoRecords = "no_records"
	// ErrCodeExportFailed 表示写出 CSV 失败（致命）。
	ErrCodeExportFailed = "export_failed"
	// ErrCodeConfigInvalid 表示配置无效（与 config 包的 error_code 对齐）。
	ErrCodeConfigInvalid = "config_invalid"
)

const (
	// AttemptOK：策略产出达到阈值，被采纳为最终结果。
	AttemptOK = "ok"
	// AttemptShort：策略有产出但未达阈值（可能作为兜底被采纳）。
	AttemptShort = "short"
	// AttemptEmpty：策略无任何产出。
	AttemptEmpty = "empty"
	// AttemptError：策略内部解析/抓取出错（按契约降级为空，不中断链条）。
	AttemptError = "error"
)

// RunReport 是对外稳定输出（stdout JSON）的结构。
type RunReport struct {
	Out string `json:"out"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary  ReportSummary     `json:"summary"`
	Attempts []StrategyAttempt `json:"attempts"`
	Warnings []string          `json:"warnings"`

	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

type ReportSummary struct {
	Extracted int `json:"extracted"`
	Expect    int `json:"expect"`

	// Strategy / Endpoint 记录最终胜出的策略与入口 URL（可解释性：为什么是这批数据）。
	Strategy string `json:"strategy"`
	Endpoint string `json:"endpoint"`
}

// StrategyAttempt 记录一次策略尝试（用于解释 fallback/降级原因）。
type StrategyAttempt struct {
	Endpoint string `json:"endpoint"`
	Strategy string `json:"strategy"`
	Outcome  string `json:"outcome"` // ok / short / empty / error
	Count    int    `json:"count"`
	ErrorMsg string `json:"error_msg,omitempty"`
}

// OK 表示运行没有以终态错误结束（记录不足 expect 只是 warning，不是失败）。
func (r *RunReport) OK() bool { return r.ErrorCode == "" }

// Finalize 做两件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) 切片字段保证非 nil（JSON 输出稳定为 [] 而不是 null）
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Attempts == nil {
		r.Attempts = []StrategyAttempt{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
}
