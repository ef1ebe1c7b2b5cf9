package httpx

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"
)

const (
	// backoffBase / backoffCap：重试前延迟 base × 2^n，封顶 cap。
	backoffBase = 1 * time.Second
	backoffCap  = 4 * time.Second

	// maxBodyBytes 限制响应体大小（榜单页远小于此；防御异常响应）。
	maxBodyBytes = 10 << 20
)

// Options 把“超时/重试/礼貌延迟/代理”收敛为显式配置，不留全局可变状态。
type Options struct {
	// Timeout 是单次尝试的固定上限；超时视为可重试失败。
	Timeout time.Duration
	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int
	// DelayMin/DelayMax 是相邻请求之间的礼貌延迟区间（区间内随机）。
	DelayMin time.Duration
	DelayMax time.Duration
	// ProxyURL 非空时所有请求走代理。
	ProxyURL string
}

// FetchError 把网络错误、超时、非 2xx 状态统一收敛为单一失败形态，
// 并携带尝试次数与原因（耗尽重试后整体上抛，不在中途外露）。
type FetchError struct {
	URL      string
	Attempts int
	Status   int // 最后一次收到的 HTTP 状态码；0 表示未到达状态行
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("抓取失败（%d 次尝试后）：%s：HTTP %d", e.Attempts, e.URL, e.Status)
	}
	return fmt.Sprintf("抓取失败（%d 次尝试后）：%s：%v", e.Attempts, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client 把“浏览器化 header + UA 池 + 有界重试（指数退避）+ 礼貌延迟 + 内容解码”
// 固化为统一策略。strategy 只负责“定位页面 + 解析 HTML”，不关心网络细节。
type Client struct {
	hc       *http.Client
	retryMax int

	// limiter 提供请求间的最小间隔（DelayMin），jitter 在其上追加随机量，
	// 让实际间隔落在 [DelayMin, DelayMax] 内。
	limiter *rate.Limiter
	jitter  time.Duration

	ua *uaPool

	mu  sync.Mutex
	rnd *rand.Rand

	// sleep 可替换，让测试能观测退避序列而不真实等待。
	sleep func(ctx context.Context, d time.Duration) error
}

// New 构造抓取用的 HTTP client。
//
// 规则：
// - 每个请求随机桌面 UA（GetMobile 使用固定移动端 UA）
// - 携带 cookie jar：会话预热拿到的 cookie 会被后续请求复用
// - Accept-Encoding 显式声明 gzip/deflate/br，响应体手动解码
func New(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	if opts.DelayMin < 0 || opts.DelayMax < opts.DelayMin {
		return nil, fmt.Errorf("礼貌延迟区间无效：[%v, %v]", opts.DelayMin, opts.DelayMax)
	}

	base := &http.Transport{
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
	}
	if strings.TrimSpace(opts.ProxyURL) != "" {
		u, err := url.Parse(strings.TrimSpace(opts.ProxyURL))
		if err != nil {
			return nil, fmt.Errorf("proxy.url 无效：%w", err)
		}
		base.Proxy = http.ProxyURL(u)
		// proxy 模式强制每请求新连接（代理池轮换依赖该行为）。
		base.DisableKeepAlives = true
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if opts.DelayMin > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.DelayMin), 1)
	}

	return &Client{
		hc: &http.Client{
			Transport: base,
			Jar:       jar,
			Timeout:   opts.Timeout,
		},
		retryMax: opts.RetryMax,
		limiter:  limiter,
		jitter:   opts.DelayMax - opts.DelayMin,
		ua:       globalUA,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:    sleepCtx,
	}, nil
}

// Get 以桌面浏览器画像抓取 u，返回已解码的响应体。
func (c *Client) Get(ctx context.Context, u string) ([]byte, error) {
	return c.get(ctx, u, false)
}

// GetMobile 以移动端画像抓取 u（m.imdb.com 等移动站点需要移动 UA 才会返回简化页面）。
func (c *Client) GetMobile(ctx context.Context, u string) ([]byte, error) {
	return c.get(ctx, u, true)
}

func (c *Client) get(ctx context.Context, u string, mobile bool) ([]byte, error) {
	// 礼貌延迟：对“新请求”生效一次；重试间隔由退避单独控制。
	if err := c.politeWait(ctx); err != nil {
		return nil, err
	}

	attempts := 0
	var lastErr error
	lastStatus := 0

	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, backoffDelay(attempt-1)); err != nil {
				break
			}
		}
		attempts++

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, &FetchError{URL: u, Attempts: attempts, Err: err}
		}
		c.setHeaders(req, mobile)

		resp, err := c.hc.Do(req)
		if err != nil {
			// 网络错误/超时：可重试。ctx 已取消则不再重试（更可解释）。
			lastErr = err
			lastStatus = 0
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			body, err := readBody(resp)
			if err != nil {
				return nil, &FetchError{URL: u, Attempts: attempts, Err: err}
			}
			return body, nil
		}

		lastStatus = resp.StatusCode
		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		// 429/5xx 通常是限流或瞬时故障：可重试；其余状态码直接终态。
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			break
		}
	}

	return nil, &FetchError{URL: u, Attempts: attempts, Status: lastStatus, Err: lastErr}
}

func (c *Client) politeWait(ctx context.Context) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if c.jitter > 0 {
		c.mu.Lock()
		d := time.Duration(c.rnd.Int63n(int64(c.jitter)))
		c.mu.Unlock()
		return c.sleep(ctx, d)
	}
	return nil
}

// setHeaders 设置浏览器化的固定 header 集（降低被站点拦截的概率）。
func (c *Client) setHeaders(req *http.Request, mobile bool) {
	if mobile {
		req.Header.Set("User-Agent", mobileUA)
	} else {
		req.Header.Set("User-Agent", c.randomUA())
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Cache-Control", "max-age=0")
}

func (c *Client) randomUA() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ua.uas[c.rnd.Intn(len(c.ua.uas))]
}

func backoffDelay(n int) time.Duration {
	d := backoffBase << uint(n)
	if d > backoffCap {
		return backoffCap
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readBody 按 Content-Encoding 解码响应体（显式声明了 br，必须能解回来）。
func readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip 解码失败：%w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	b, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxBodyBytes {
		return nil, errors.New("响应体超过大小上限")
	}
	return b, nil
}

type uaPool struct {
	uas []string
}

const mobileUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 14_7_1 like Mac OS X) AppleWebKit/605.1.15"

var globalUA = &uaPool{
	// 尽量保持 UA 列表短小但多样；未来可扩充（不对外暴露配置）。
	uas: []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	},
}
