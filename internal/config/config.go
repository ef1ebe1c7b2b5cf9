package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// DefaultOut 是输出文件的最终默认值（当 CLI 与配置文件都未指定时）。
	DefaultOut = "imdb_top250_movies.csv"
	// DefaultBaseURL / DefaultMobileBaseURL 是榜单站点的桌面/移动端入口。
	DefaultBaseURL       = "https://www.imdb.com"
	DefaultMobileBaseURL = "https://m.imdb.com"

	// DefaultExpect 是榜单的固定长度。
	DefaultExpect = 250
	// DefaultThreshold 是“策略产出可被采纳”的最小条数（expect 的大部分）。
	DefaultThreshold = 200

	// DefaultRetryMax 表示最大重试次数（不含首次尝试）。2 表示最多 3 次尝试。
	DefaultRetryMax = 2

	defaultTimeout  = 15 * time.Second
	defaultDelayMin = 1 * time.Second
	defaultDelayMax = 2 * time.Second
)

// CLIArgs 只包含 CLI 暴露的入口（out/threshold），并保留“是否显式指定”的信息，
// 保证覆盖优先级可实现（CLI > config > 默认）。
type CLIArgs struct {
	Out string

	Threshold    int
	ThresholdSet bool
}

// FileConfig 对应 imdbtop.json 的解析结构（全部字段可选）。
type FileConfig struct {
	Out           string       `json:"out"`
	BaseURL       string       `json:"base_url"`
	MobileBaseURL string       `json:"mobile_base_url"`
	Threshold     int          `json:"threshold"`
	Expect        int          `json:"expect"`
	TimeoutSecs   int          `json:"timeout_seconds"`
	RetryMax      *int         `json:"retry_max"`
	DelayMinMs    int          `json:"delay_min_ms"`
	DelayMaxMs    int          `json:"delay_max_ms"`
	Proxy         *ProxyConfig `json:"proxy"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，
// 不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Out string

	BaseURL       string
	MobileBaseURL string

	Threshold int
	Expect    int

	Timeout  time.Duration
	RetryMax int
	DelayMin time.Duration
	DelayMax time.Duration

	ProxyURL string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
	}
	return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取 <cwd>/imdbtop.json（可选），再与 CLI 参数合并为最终配置。
//
// 覆盖优先级（固定）：
// - out：CLI out > config out > 默认 imdb_top250_movies.csv
// - threshold：CLI > config > 默认 200
// - 其他字段：仅由 config 控制（CLI 不暴露）
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cfgPath := filepath.Join(cwd, "imdbtop.json")
	fc, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	return merge(cli, fc, cfgPath)
}

func merge(cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	out := DefaultOut
	if strings.TrimSpace(fc.Out) != "" {
		out = strings.TrimSpace(fc.Out)
	}
	if strings.TrimSpace(cli.Out) != "" {
		out = strings.TrimSpace(cli.Out)
	}

	expect := fc.Expect
	if expect == 0 {
		expect = DefaultExpect
	}
	if expect < 1 {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("expect 必须 >= 1，实际是 %d", expect)}
	}

	threshold := DefaultThreshold
	if fc.Threshold != 0 {
		threshold = fc.Threshold
	}
	if cli.ThresholdSet {
		threshold = cli.Threshold
	}
	if threshold < 1 || threshold > expect {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("threshold 必须在 [1, %d] 内，实际是 %d", expect, threshold)}
	}

	baseURL, err := normBaseURL(fc.BaseURL, DefaultBaseURL)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("base_url 无效：%w", err)}
	}
	mobileURL, err := normBaseURL(fc.MobileBaseURL, DefaultMobileBaseURL)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("mobile_base_url 无效：%w", err)}
	}

	timeout := defaultTimeout
	if fc.TimeoutSecs != 0 {
		if fc.TimeoutSecs < 1 {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("timeout_seconds 必须 >= 1，实际是 %d", fc.TimeoutSecs)}
		}
		timeout = time.Duration(fc.TimeoutSecs) * time.Second
	}

	retryMax := DefaultRetryMax
	if fc.RetryMax != nil {
		if *fc.RetryMax < 0 {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("retry_max 不能为负，实际是 %d", *fc.RetryMax)}
		}
		retryMax = *fc.RetryMax
	}

	delayMin := defaultDelayMin
	if fc.DelayMinMs != 0 {
		delayMin = time.Duration(fc.DelayMinMs) * time.Millisecond
	}
	delayMax := defaultDelayMax
	if fc.DelayMaxMs != 0 {
		delayMax = time.Duration(fc.DelayMaxMs) * time.Millisecond
	}
	if delayMin < 0 || delayMax < delayMin {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("礼貌延迟区间无效：[%v, %v]", delayMin, delayMax)}
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("proxy.url 无效：%w", err)}
		}
	}

	return EffectiveConfig{
		Out:           out,
		BaseURL:       baseURL,
		MobileBaseURL: mobileURL,
		Threshold:     threshold,
		Expect:        expect,
		Timeout:       timeout,
		RetryMax:      retryMax,
		DelayMin:      delayMin,
		DelayMax:      delayMax,
		ProxyURL:      proxyURL,
	}, nil
}

func normBaseURL(raw, def string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("必须是 http/https：%q", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("缺少 host：%q", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

// readFileConfig 读取并解析 JSON 配置文件；文件不存在不算错误（全部字段有默认值）。
func readFileConfig(path string) (FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, err
	}
	var fc FileConfig
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, err
	}
	return fc, nil
}
