package domain

// MinYear 是年份的合法下界（电影史的起点附近；更早的值视为脏数据）。
const MinYear = 1870

// Record 是规范化后的单条榜单条目（对外稳定形态）。
//
// 约束：
// - 生成后不可变；序列按 Rank 升序
// - Title 是唯一必填字段，其余字段缺失时回退为零值
type Record struct {
	Rank   int     `json:"rank"`
	Title  string  `json:"title"`
	Year   int     `json:"year"`
	Rating float64 `json:"rating"`
	URL    string  `json:"url"`
}

// Candidate 是 strategy 产出的原始候选：字段保留页面上的文本形态，
// 统一由 normalize 做类型收敛（strategy 只负责“定位”，不负责“清洗”）。
type Candidate struct {
	RankText   string // 例如 "1." / "1" / ""
	Title      string
	YearText   string // 例如 "(1994)" / "1994" / ""
	RatingText string // 例如 "9.3" / "9.3/10" / "N/A" / ""
	Href       string // 可能是相对路径，normalize 时解析为绝对 URL
}
