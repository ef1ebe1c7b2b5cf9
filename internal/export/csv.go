package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/Ankitzoro/imdb-top250-scraper/internal/domain"
	"github.com/Ankitzoro/imdb-top250-scraper/internal/infra/fsx"
)

// Header 是输出文件的固定列头（顺序即列序）。
var Header = []string{"rank", "title", "year", "rating", "url"}

// Error 是导出阶段的可追溯错误（I/O 失败是致命的，终止本次运行）。
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("写出 %q 失败：%v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Write 把记录序列按 rank 顺序写为 CSV（UTF-8，固定列头，覆盖已存在文件）。
//
// 缺失字段（year/rating 为零值）输出为空串，而不是 0：读侧更容易区分
// “缺失”与“真实为 0”。
func Write(records []domain.Record, path string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Header); err != nil {
		return &Error{Path: path, Err: err}
	}
	for _, r := range records {
		row := []string{
			strconv.Itoa(r.Rank),
			r.Title,
			yearField(r.Year),
			ratingField(r.Rating),
			r.URL,
		}
		if err := w.Write(row); err != nil {
			return &Error{Path: path, Err: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &Error{Path: path, Err: err}
	}

	if err := fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), buf.Bytes()); err != nil {
		return &Error{Path: path, Err: err}
	}
	return nil
}

func yearField(y int) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(y)
}

func ratingField(r float64) string {
	if r == 0 {
		return ""
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}
