package cninfo

import (
	"sort"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
)

// SelectPolicy bounds the selection
type SelectPolicy struct {
	AnnualYears int // Distinct fiscal years of annual reports kept
	RecentLimit int // Other announcements kept from the recent listing
}

// DefaultSelectPolicy keeps five annual years and five recent announcements
func DefaultSelectPolicy() SelectPolicy {
	return SelectPolicy{AnnualYears: 5, RecentLimit: 5}
}

// Select applies the report selection policy to classified announcements.
//
//   - Annual: the AnnualYears most recent distinct fiscal years, one report each.
//   - Q1, semi-annual, Q3: only the most recent fiscal year in which any of the
//     three exists, at most one report per type.
//   - Other: the RecentLimit most recently published PDFs from recent.
//
// Announcements are deduplicated by title and date, filtered to the job's
// requested types (and, for periodic reports, its year window) and returned
// in a deterministic order.
func Select(periodic, recent []models.AnnouncementMetadata, job models.DownloadJob, policy SelectPolicy) []models.AnnouncementMetadata {
	seen := make(map[string]struct{})
	var selected []models.AnnouncementMetadata

	candidates := dedupe(periodic, seen)
	if job.RequestedTypes.Has(models.ReportTypeAnnual) {
		selected = append(selected, selectAnnual(candidates, job, policy.AnnualYears)...)
	}
	if job.RequestedTypes.HasPeriodic() {
		selected = append(selected, selectPeriodic(candidates, job)...)
	}

	for _, a := range selected {
		seen[a.Key()] = struct{}{}
	}
	if job.RequestedTypes.Has(models.ReportTypeOther) && policy.RecentLimit > 0 {
		selected = append(selected, selectRecent(dedupe(recent, seen), policy.RecentLimit)...)
	}

	sortSelection(selected)
	return selected
}

// dedupe drops announcements whose key is already in seen and records the rest
func dedupe(anns []models.AnnouncementMetadata, seen map[string]struct{}) []models.AnnouncementMetadata {
	local := make(map[string]struct{}, len(anns))
	out := make([]models.AnnouncementMetadata, 0, len(anns))
	for _, a := range anns {
		key := a.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		if _, ok := local[key]; ok {
			continue
		}
		local[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

func selectAnnual(anns []models.AnnouncementMetadata, job models.DownloadJob, years int) []models.AnnouncementMetadata {
	byYear := make(map[int]models.AnnouncementMetadata)
	for _, a := range anns {
		if a.ReportType != models.ReportTypeAnnual || !job.InWindow(a.FiscalYear) {
			continue
		}
		if current, ok := byYear[a.FiscalYear]; !ok || preferred(a, current) {
			byYear[a.FiscalYear] = a
		}
	}

	fiscalYears := make([]int, 0, len(byYear))
	for y := range byYear {
		fiscalYears = append(fiscalYears, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(fiscalYears)))
	if len(fiscalYears) > years {
		fiscalYears = fiscalYears[:years]
	}

	out := make([]models.AnnouncementMetadata, 0, len(fiscalYears))
	for _, y := range fiscalYears {
		out = append(out, byYear[y])
	}
	return out
}

func selectPeriodic(anns []models.AnnouncementMetadata, job models.DownloadJob) []models.AnnouncementMetadata {
	latest := 0
	for _, a := range anns {
		if a.ReportType.IsPeriodic() && job.RequestedTypes.Has(a.ReportType) && job.InWindow(a.FiscalYear) && a.FiscalYear > latest {
			latest = a.FiscalYear
		}
	}
	if latest == 0 {
		return nil
	}

	byType := make(map[models.ReportType]models.AnnouncementMetadata)
	for _, a := range anns {
		if !a.ReportType.IsPeriodic() || !job.RequestedTypes.Has(a.ReportType) || a.FiscalYear != latest {
			continue
		}
		if current, ok := byType[a.ReportType]; !ok || preferred(a, current) {
			byType[a.ReportType] = a
		}
	}

	out := make([]models.AnnouncementMetadata, 0, len(byType))
	for _, a := range byType {
		out = append(out, a)
	}
	return out
}

// selectRecent ignores the year window, the recent listing is already bounded by date
func selectRecent(anns []models.AnnouncementMetadata, limit int) []models.AnnouncementMetadata {
	out := make([]models.AnnouncementMetadata, 0, limit)
	for _, a := range anns {
		if a.ReportType == models.ReportTypeOther && a.IsPDF() {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return preferred(out[i], out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// preferred reports whether a should be chosen over b for the same slot:
// PDFs first, then the most recently published, then the higher ID
func preferred(a, b models.AnnouncementMetadata) bool {
	if a.IsPDF() != b.IsPDF() {
		return a.IsPDF()
	}
	if !a.PublishDate.Equal(b.PublishDate) {
		return a.PublishDate.After(b.PublishDate)
	}
	return a.ID > b.ID
}

func sortSelection(anns []models.AnnouncementMetadata) {
	sort.SliceStable(anns, func(i, j int) bool {
		a, b := anns[i], anns[j]
		if a.ReportType.Order() != b.ReportType.Order() {
			return a.ReportType.Order() < b.ReportType.Order()
		}
		if a.FiscalYear != b.FiscalYear {
			return a.FiscalYear > b.FiscalYear
		}
		if !a.PublishDate.Equal(b.PublishDate) {
			return a.PublishDate.After(b.PublishDate)
		}
		return a.ID < b.ID
	})
}
