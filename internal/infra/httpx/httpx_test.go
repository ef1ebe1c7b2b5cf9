package httpx

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

// newTestClient 构造无礼貌延迟的 client，并把 sleep 替换为记录器。
func newTestClient(t *testing.T, retryMax int) (*Client, *[]time.Duration) {
	t.Helper()
	c, err := New(Options{Timeout: 5 * time.Second, RetryMax: retryMax})
	if err != nil {
		t.Fatalf("构造 client 失败：%v", err)
	}
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestGet_RetriesWithExponentialBackoff(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, slept := newTestClient(t, 2)
	_, err := c.Get(context.Background(), srv.URL)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("期望 *FetchError，实际=%T %v", err, err)
	}
	if fe.Attempts != 3 {
		t.Fatalf("期望 3 次尝试（首次 + 2 次重试），实际 %d", fe.Attempts)
	}
	if fe.Status != http.StatusInternalServerError {
		t.Fatalf("期望记录最后一次状态码 500，实际 %d", fe.Status)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("服务端应收到 3 次请求，实际 %d", got)
	}

	// 退避序列：1s、2s（base × 2^n）。
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("退避次数不符：%v", *slept)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Fatalf("第 %d 次退避期望 %v，实际 %v", i+1, d, (*slept)[i])
		}
	}
}

func TestGet_TerminalStatusDoesNotRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c, slept := newTestClient(t, 2)
	_, err := c.Get(context.Background(), srv.URL)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("期望 *FetchError，实际=%T", err)
	}
	if fe.Attempts != 1 || fe.Status != http.StatusNotFound {
		t.Fatalf("404 应直接终态：%+v", fe)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("不应重试：服务端收到 %d 次请求", got)
	}
	if len(*slept) != 0 {
		t.Fatalf("不应有退避等待：%v", *slept)
	}
}

func TestGet_RecoversAfterTransientFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, 2)
	body, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("第二次尝试应成功：%v", err)
	}
	if string(body) != "recovered" {
		t.Fatalf("响应体不符：%q", body)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("期望 2 次请求，实际 %d", got)
	}
}

func TestGet_DecodesGzipBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Write([]byte("gzip 内容"))
		gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c, _ := newTestClient(t, 0)
	body, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if string(body) != "gzip 内容" {
		t.Fatalf("gzip 解码不符：%q", body)
	}
}

func TestGet_DecodesBrotliBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		bw.Write([]byte("brotli 内容"))
		bw.Close()
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c, _ := newTestClient(t, 0)
	body, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if string(body) != "brotli 内容" {
		t.Fatalf("brotli 解码不符：%q", body)
	}
}

func TestGet_SendsBrowserHeaders(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept-Language")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, 0)
	if _, err := c.Get(context.Background(), srv.URL); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	if !strings.Contains(gotUA, "Mozilla/5.0") {
		t.Fatalf("期望浏览器化 UA，实际=%q", gotUA)
	}
	found := false
	for _, ua := range globalUA.uas {
		if ua == gotUA {
			found = true
		}
	}
	if !found {
		t.Fatalf("UA 不在桌面池内：%q", gotUA)
	}
	if gotAccept == "" {
		t.Fatalf("应携带 Accept-Language")
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	for n, want := range []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second} {
		if got := backoffDelay(n); got != want {
			t.Fatalf("backoffDelay(%d) 期望 %v，实际 %v", n, want, got)
		}
	}
}

func TestNew_RejectsInvalidDelayRange(t *testing.T) {
	if _, err := New(Options{DelayMin: 2 * time.Second, DelayMax: 1 * time.Second}); err == nil {
		t.Fatalf("DelayMax < DelayMin 应报错")
	}
}
