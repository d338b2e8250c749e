package cninfo

import (
	"regexp"
	"strings"
	"time"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
)

// Classification is the report type and fiscal year derived from a title
type Classification struct {
	Type       models.ReportType
	FiscalYear int
	// Main is false for summaries, translations, corrections and notices
	// about a report rather than the report itself
	Main bool
}

// Registry listing categories for A-share periodic reports
const (
	CategoryAnnual = "category_ndbg_szsh"
	CategorySemi   = "category_bndbg_szsh"
	CategoryQ1     = "category_yjdbg_szsh"
	CategoryQ3     = "category_sjdbg_szsh"
)

// CategoryFor returns the listing category for a periodic report type
func CategoryFor(t models.ReportType) string {
	switch t {
	case models.ReportTypeAnnual:
		return CategoryAnnual
	case models.ReportTypeSemiAnnual:
		return CategorySemi
	case models.ReportTypeQ1:
		return CategoryQ1
	case models.ReportTypeQ3:
		return CategoryQ3
	}
	return ""
}

// Keyword table. Titles are matched in lower case, simplified and traditional
// forms are both listed since HK filings use traditional characters.
var (
	notMainKeywords = []string{
		"摘要", "英文", "summary", "english",
		"更正", "修订", "修訂", "更新前", "取消", "补充", "補充",
		"提示性", "审计报告", "審計報告", "意见", "意見", "说明会", "說明會",
	}
	// Notices are non-main unless the title also names the report itself,
	// as in "2023年年度报告（公告编号：2024-012）"
	noticeKeywords = []string{"公告", "通告", "通函", "announcement", "notice", "circular"}
	reportKeywords = []string{"报告", "報告", "report"}
	q1Keywords   = []string{"一季度", "first quarter"}
	q3Keywords   = []string{"三季度", "third quarter"}
	semiKeywords = []string{
		"半年度报告", "半年度報告", "半年报", "半年報",
		"中期报告", "中期報告", "interim report",
	}
	annualKeywords = []string{
		"年度报告", "年度報告", "年报", "年報", "annual report",
	}
)

var (
	arabicYear  = regexp.MustCompile(`(19|20)\d{2}`)
	chineseYear = regexp.MustCompile(`([〇零一二三四五六七八九]{4})\s*年`)
)

var chineseDigits = map[rune]int{
	'〇': 0, '零': 0, '一': 1, '二': 2, '三': 3,
	'四': 4, '五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

// Classify derives the report type and fiscal year of an announcement from its
// title, falling back to the publish date when the title carries no year.
func Classify(title string, published time.Time) Classification {
	lower := strings.ToLower(title)

	c := Classification{Type: models.ReportTypeOther}
	switch {
	case containsAny(lower, q1Keywords):
		c.Type = models.ReportTypeQ1
	case containsAny(lower, q3Keywords):
		c.Type = models.ReportTypeQ3
	case containsAny(lower, semiKeywords):
		c.Type = models.ReportTypeSemiAnnual
	case containsAny(lower, annualKeywords):
		c.Type = models.ReportTypeAnnual
	}

	c.Main = c.Type != models.ReportTypeOther && !containsAny(lower, notMainKeywords) &&
		(!containsAny(lower, noticeKeywords) || containsAny(lower, reportKeywords))
	c.FiscalYear = fiscalYear(title, c.Type, published)

	return c
}

// ClassifyAnnouncement sets ReportType and FiscalYear on ann. Non-main
// periodic documents are classified as Other.
func ClassifyAnnouncement(ann models.AnnouncementMetadata) models.AnnouncementMetadata {
	c := Classify(ann.Title, ann.PublishDate)
	ann.FiscalYear = c.FiscalYear
	ann.ReportType = c.Type
	if !c.Main {
		ann.ReportType = models.ReportTypeOther
	}
	return ann
}

func fiscalYear(title string, t models.ReportType, published time.Time) int {
	if m := arabicYear.FindString(title); m != "" {
		return atoi(m)
	}
	if m := chineseYear.FindStringSubmatch(title); m != nil {
		year := 0
		for _, r := range m[1] {
			year = year*10 + chineseDigits[r]
		}
		if year >= 1900 {
			return year
		}
	}
	if published.IsZero() {
		return 0
	}
	if t == models.ReportTypeAnnual {
		return published.Year() - 1
	}
	return published.Year()
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
