package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ReportType classifies a disclosure
type ReportType string

const (
	ReportTypeAnnual     ReportType = "annual"
	ReportTypeQ1         ReportType = "q1"
	ReportTypeSemiAnnual ReportType = "semi"
	ReportTypeQ3         ReportType = "q3"
	ReportTypeOther      ReportType = "other"
)

// IsValid checks if the ReportType is a known type
func (r ReportType) IsValid() bool {
	switch r {
	case ReportTypeAnnual, ReportTypeQ1, ReportTypeSemiAnnual, ReportTypeQ3, ReportTypeOther:
		return true
	}
	return false
}

// IsPeriodic reports whether r is one of the in-year reports (Q1, semi-annual, Q3)
func (r ReportType) IsPeriodic() bool {
	return r == ReportTypeQ1 || r == ReportTypeSemiAnnual || r == ReportTypeQ3
}

// Order returns the sort position of the type in result listings
func (r ReportType) Order() int {
	switch r {
	case ReportTypeAnnual:
		return 0
	case ReportTypeSemiAnnual:
		return 1
	case ReportTypeQ3:
		return 2
	case ReportTypeQ1:
		return 3
	}
	return 4
}

// Label returns the Chinese display name
func (r ReportType) Label() string {
	switch r {
	case ReportTypeAnnual:
		return "年度报告"
	case ReportTypeQ1:
		return "一季度报告"
	case ReportTypeSemiAnnual:
		return "半年度报告"
	case ReportTypeQ3:
		return "三季度报告"
	}
	return "公告"
}

// ParseReportTypes parses a comma separated list such as "annual,q1,semi,q3"
func ParseReportTypes(s string) (ReportTypeSet, error) {
	set := ReportTypeSet{}
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		switch part {
		case "all":
			for _, t := range AllReportTypes() {
				set[t] = struct{}{}
			}
			continue
		case "semiannual", "semi-annual", "interim":
			part = string(ReportTypeSemiAnnual)
		case "recent", "news":
			part = string(ReportTypeOther)
		}
		t := ReportType(part)
		if !t.IsValid() {
			return nil, fmt.Errorf("unknown report type: %q", part)
		}
		set[t] = struct{}{}
	}
	return set, nil
}

// AllReportTypes returns every ReportType
func AllReportTypes() []ReportType {
	return []ReportType{
		ReportTypeAnnual,
		ReportTypeQ1,
		ReportTypeSemiAnnual,
		ReportTypeQ3,
		ReportTypeOther,
	}
}

// ReportTypeSet is a set of report types
type ReportTypeSet map[ReportType]struct{}

// NewReportTypeSet builds a set from the given types
func NewReportTypeSet(types ...ReportType) ReportTypeSet {
	set := make(ReportTypeSet, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}

// DefaultReportTypes returns the periodic report types plus recent announcements
func DefaultReportTypes() ReportTypeSet {
	return NewReportTypeSet(AllReportTypes()...)
}

// Has reports whether t is in the set
func (s ReportTypeSet) Has(t ReportType) bool {
	_, ok := s[t]
	return ok
}

// HasPeriodic reports whether any of Q1, semi-annual or Q3 is in the set
func (s ReportTypeSet) HasPeriodic() bool {
	return s.Has(ReportTypeQ1) || s.Has(ReportTypeSemiAnnual) || s.Has(ReportTypeQ3)
}

// Slice returns the members in display order
func (s ReportTypeSet) Slice() []ReportType {
	out := make([]ReportType, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order() < out[j].Order() })
	return out
}

// AnnouncementMetadata describes one registry announcement
type AnnouncementMetadata struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	PublishDate time.Time  `json:"publish_date"`
	ReportType  ReportType `json:"report_type"`
	FiscalYear  int        `json:"fiscal_year"`
	DownloadURL string     `json:"download_url"`
	AdjunctType string     `json:"adjunct_type,omitempty"`
	SecCode     string     `json:"sec_code,omitempty"`
	SecName     string     `json:"sec_name,omitempty"`
}

// Key returns the deduplication key: whitespace-free title plus publish date
func (a AnnouncementMetadata) Key() string {
	title := strings.Join(strings.Fields(a.Title), "")
	return title + "|" + a.PublishDate.Format("2006-01-02")
}

// IsPDF reports whether the announcement's attachment is a PDF
func (a AnnouncementMetadata) IsPDF() bool {
	if a.AdjunctType != "" {
		return strings.EqualFold(a.AdjunctType, "PDF")
	}
	return strings.HasSuffix(strings.ToLower(a.DownloadURL), ".pdf")
}

// DownloadJob holds the fetch parameters for one analysis request
type DownloadJob struct {
	Stock          StockRecord   `json:"stock"`
	YearWindow     []int         `json:"year_window"`
	RequestedTypes ReportTypeSet `json:"-"`
}

// InWindow reports whether year is inside the job's year window
func (j DownloadJob) InWindow(year int) bool {
	for _, y := range j.YearWindow {
		if y == year {
			return true
		}
	}
	return false
}

// FirstYear returns the earliest year of the window, or 0 when empty
func (j DownloadJob) FirstYear() int {
	first := 0
	for _, y := range j.YearWindow {
		if first == 0 || y < first {
			first = y
		}
	}
	return first
}

// YearWindowEnding returns the n years before current plus current itself.
// Annual reports for year current-1 publish during current, periodic reports
// for current publish during current.
func YearWindowEnding(current, n int) []int {
	years := make([]int, 0, n+1)
	for y := current - n; y <= current; y++ {
		years = append(years, y)
	}
	return years
}

// LocalFile is a downloaded file in a run's staging directory
type LocalFile struct {
	Path         string               `json:"path"`
	Size         int64                `json:"size"`
	Announcement AnnouncementMetadata `json:"announcement"`
}

// FailedDownload records a file that could not be downloaded
type FailedDownload struct {
	Announcement AnnouncementMetadata `json:"announcement"`
	Error        string               `json:"error"`
}

// Fetch completion states
const (
	FetchStatusComplete = "complete"
	FetchStatusPartial  = "partial"
	FetchStatusEmpty    = "empty"
)

// FetchResult is the outcome of a fetch
type FetchResult struct {
	Selected []AnnouncementMetadata `json:"selected"`
	Files    []LocalFile            `json:"files"`
	Failed   []FailedDownload       `json:"failed"`
	Recent   []AnnouncementMetadata `json:"recent,omitempty"`
}

// Status returns complete when every selected file downloaded, partial when
// some failed and empty when none succeeded
func (r *FetchResult) Status() string {
	switch {
	case len(r.Files) == 0:
		return FetchStatusEmpty
	case len(r.Failed) > 0:
		return FetchStatusPartial
	}
	return FetchStatusComplete
}
