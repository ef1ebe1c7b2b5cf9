package run

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ankitzoro/imdb-top250-scraper/internal/config"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/domain"
)

// classicHTML 生成旧版 lister-list 表格页面（n 行）。
func classicHTML(n int) string {
	var b strings.Builder
	b.WriteString("<html><body><table><tbody class=\"lister-list\">\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<tr><td class="titleColumn">%d. <a href="/title/tt%07d/">Movie %d</a> <span class="secondaryInfo">(%d)</span></td><td class="ratingColumn"><strong>8.8</strong></td></tr>`+"\n", i, i, i, 1900+(i%100))
	}
	b.WriteString("</tbody></table></body></html>")
	return b.String()
}

// jsonLDHTML 生成只含 JSON-LD 结构化数据、没有任何表格标记的页面。
func jsonLDHTML(t *testing.T, n int) string {
	t.Helper()

	type item struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	type element struct {
		Position int  `json:"position"`
		Item     item `json:"item"`
	}
	elements := make([]element, 0, n)
	for i := 1; i <= n; i++ {
		elements = append(elements, element{
			Position: i,
			Item:     item{Name: fmt.Sprintf("LD %d", i), URL: fmt.Sprintf("/title/tt%07d/", i)},
		})
	}
	b, err := json.Marshal(map[string]any{"@type": "ItemList", "itemListElement": elements})
	if err != nil {
		t.Fatalf("构造 JSON-LD 失败：%v", err)
	}
	return `<html><head><script type="application/ld+json">` + string(b) + `</script></head><body><p>无表格</p></body></html>`
}

// testConfig 返回指向测试服务器、无延迟、不重试的配置。
func testConfig(srvURL, out string) config.EffectiveConfig {
	return config.EffectiveConfig{
		Out:           out,
		BaseURL:       srvURL,
		MobileBaseURL: srvURL,
		Threshold:     200,
		Expect:        250,
		Timeout:       5 * time.Second,
		RetryMax:      0,
	}
}

func TestExecute_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, "<html>home</html>")
		case "/chart/top/":
			fmt.Fprint(w, classicHTML(250))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "top250.csv")
	rr, records := Execute(context.Background(), testConfig(srv.URL, out), nil)

	if !rr.OK() {
		t.Fatalf("期望运行成功：code=%q msg=%q", rr.ErrorCode, rr.ErrorMsg)
	}
	if rr.Summary.Extracted != 250 || len(records) != 250 {
		t.Fatalf("期望 250 条记录，实际 summary=%d records=%d", rr.Summary.Extracted, len(records))
	}
	if rr.Summary.Strategy != "table" {
		t.Fatalf("期望 table 策略胜出，实际=%q", rr.Summary.Strategy)
	}
	if rr.Summary.Endpoint != srv.URL+"/chart/top/" {
		t.Fatalf("入口不符：%q", rr.Summary.Endpoint)
	}
	if len(rr.Attempts) != 1 || rr.Attempts[0].Outcome != domain.AttemptOK {
		t.Fatalf("attempt 轨迹不符：%+v", rr.Attempts)
	}
	if rr.FinishedAt.Before(rr.StartedAt) {
		t.Fatalf("时间戳倒置：%v / %v", rr.StartedAt, rr.FinishedAt)
	}

	// 记录应已规范化：rank 连续、链接补全为绝对地址。
	first := records[0]
	if first.Rank != 1 || first.Title != "Movie 1" || first.Year != 1901 || first.Rating != 8.8 {
		t.Fatalf("首条不符：%+v", first)
	}
	if first.URL != srv.URL+"/title/tt0000001/" {
		t.Fatalf("链接未补全：%q", first.URL)
	}

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("读回 CSV 失败：%v", err)
	}
	if got := strings.Count(string(b), "\n"); got != 251 {
		t.Fatalf("期望 1 行表头 + 250 行数据，实际 %d 行", got)
	}
}

func TestExecute_FallsBackToEmbedded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/chart/top/" {
			fmt.Fprint(w, jsonLDHTML(t, 250))
			return
		}
		fmt.Fprint(w, "<html>home</html>")
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "top250.csv")
	rr, records := Execute(context.Background(), testConfig(srv.URL, out), nil)

	if !rr.OK() {
		t.Fatalf("期望运行成功：code=%q msg=%q", rr.ErrorCode, rr.ErrorMsg)
	}
	if rr.Summary.Strategy != "embedded" {
		t.Fatalf("期望 embedded 策略胜出，实际=%q", rr.Summary.Strategy)
	}
	if len(records) != 250 {
		t.Fatalf("期望 250 条记录，实际 %d", len(records))
	}
	// fallback 轨迹：table 先空手而归，embedded 过线。
	if len(rr.Attempts) != 2 || rr.Attempts[0].Strategy != "table" || rr.Attempts[0].Outcome != domain.AttemptEmpty {
		t.Fatalf("attempt 轨迹不符：%+v", rr.Attempts)
	}
	if rr.Attempts[1].Strategy != "embedded" || rr.Attempts[1].Outcome != domain.AttemptOK {
		t.Fatalf("attempt 轨迹不符：%+v", rr.Attempts)
	}
}

func TestExecute_NoRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><body><p>什么都没有</p></body></html>")
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "top250.csv")
	rr, records := Execute(context.Background(), testConfig(srv.URL, out), nil)

	if rr.OK() {
		t.Fatalf("期望失败")
	}
	if rr.ErrorCode != domain.ErrCodeNoRecords {
		t.Fatalf("期望 error_code=%s，实际=%q", domain.ErrCodeNoRecords, rr.ErrorCode)
	}
	if len(records) != 0 {
		t.Fatalf("失败时不应有记录：%d", len(records))
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("失败时不应产出文件")
	}
}

func TestExecute_AllFetchesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "top250.csv")
	rr, _ := Execute(context.Background(), testConfig(srv.URL, out), nil)

	if rr.ErrorCode != domain.ErrCodeFetchFailed {
		t.Fatalf("期望 error_code=%s，实际=%q（%s）", domain.ErrCodeFetchFailed, rr.ErrorCode, rr.ErrorMsg)
	}
	if len(rr.Warnings) == 0 {
		t.Fatalf("每个入口失败都应留下 warning")
	}
}

func TestExecute_RecoversViaAlternateEndpointsWhenPrimariesFail(t *testing.T) {
	// 入口页全部被拒（403）但搜索端点可用：替代入口策略必须仍然运行，
	// 而不是直接报 fetch_failed。
	var searchHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search/title/" {
			searchHits.Add(1)
			fmt.Fprint(w, classicHTML(250))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "top250.csv")
	rr, records := Execute(context.Background(), testConfig(srv.URL, out), nil)

	if !rr.OK() {
		t.Fatalf("期望经替代入口恢复成功：code=%q msg=%q", rr.ErrorCode, rr.ErrorMsg)
	}
	if rr.Summary.Strategy != "altpage" {
		t.Fatalf("期望 altpage 策略胜出，实际=%q", rr.Summary.Strategy)
	}
	if len(records) != 250 || rr.Summary.Extracted != 250 {
		t.Fatalf("期望 250 条记录，实际 records=%d summary=%d", len(records), rr.Summary.Extracted)
	}
	if searchHits.Load() == 0 {
		t.Fatalf("搜索端点应被访问到")
	}
	// 两个入口的失败都应留痕。
	if len(rr.Warnings) < 2 {
		t.Fatalf("入口失败应留下 warning：%v", rr.Warnings)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("恢复成功后应写出 CSV：%v", err)
	}
}

func TestExecute_ExportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/chart/top/" {
			fmt.Fprint(w, classicHTML(250))
			return
		}
		fmt.Fprint(w, "<html>home</html>")
	}))
	defer srv.Close()

	// 把输出路径指向“普通文件下的子路径”，触发导出 I/O 失败。
	blocker := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("准备失败：%v", err)
	}
	out := filepath.Join(blocker, "top250.csv")

	rr, _ := Execute(context.Background(), testConfig(srv.URL, out), nil)
	if rr.ErrorCode != domain.ErrCodeExportFailed {
		t.Fatalf("期望 error_code=%s，实际=%q", domain.ErrCodeExportFailed, rr.ErrorCode)
	}
}

func TestNewAltpage_EndpointVariants(t *testing.T) {
	eff := testConfig("https://www.example.com", "out.csv")
	eff.MobileBaseURL = "https://m.example.com"

	alt := newAltpage(nil, eff)
	if len(alt.Endpoints) != 6 {
		t.Fatalf("期望 6 个替代端点，实际 %d", len(alt.Endpoints))
	}
	if !alt.Endpoints[0].Mobile || !strings.HasPrefix(alt.Endpoints[0].URL, "https://m.example.com/") {
		t.Fatalf("首个端点应是移动端：%+v", alt.Endpoints[0])
	}

	joined := ""
	for _, ep := range alt.Endpoints {
		joined += ep.URL + "\n"
	}
	// 分页参数变体与搜索端点都应在列表中。
	for _, want := range []string{
		"start=1&count=250",
		"page=1&per_page=250",
		"offset=0&limit=250",
		"/search/title/?groups=top_250",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("端点列表缺少 %q：\n%s", want, joined)
		}
	}
}

func TestExecute_ShortResultIsWarningNotError(t *testing.T) {
	// 两个入口都只有 230 行（低于 expect 但过 threshold）：成功 + warning。
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/chart/top") {
			fmt.Fprint(w, classicHTML(230))
			return
		}
		fmt.Fprint(w, "<html>home</html>")
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "top250.csv")
	rr, records := Execute(context.Background(), testConfig(srv.URL, out), nil)

	if !rr.OK() {
		t.Fatalf("过线但未满应算成功：code=%q", rr.ErrorCode)
	}
	if len(records) != 230 {
		t.Fatalf("期望 230 条，实际 %d", len(records))
	}
	found := false
	for _, wmsg := range rr.Warnings {
		if strings.Contains(wmsg, "230/250") {
			found = true
		}
	}
	if !found {
		t.Fatalf("应有 230/250 的 warning：%v", rr.Warnings)
	}
}
