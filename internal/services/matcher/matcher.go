// Package matcher ranks stock directory records against a code, name or pinyin query.
package matcher

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/interfaces"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
)

// Score weights
const (
	scoreCodeExact    = 1000
	scoreCodePrefix   = 500
	scoreNameExact    = 800
	scoreNamePrefix   = 400
	scoreNameContains = 300
	scorePinyinExact  = 400
	scorePinyinPrefix = 200
)

const DefaultLimit = 10

// Match is a scored candidate
type Match struct {
	Record models.StockRecord `json:"record"`
	Score  int                `json:"score"`
	Exact  bool               `json:"exact"` // Code or name matched the whole query
}

// Matcher implements interfaces.StockMatcher over a directory
type Matcher struct {
	directory interfaces.StockDirectory
	limit     int
	threshold int
}

// New creates a matcher. limit is the default result cap, threshold the minimum
// score Resolve accepts for a non-exact top candidate.
func New(directory interfaces.StockDirectory, limit, threshold int) *Matcher {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Matcher{
		directory: directory,
		limit:     limit,
		threshold: threshold,
	}
}

// Search returns up to limit records, best first. limit <= 0 uses the default.
func (m *Matcher) Search(query string, limit int) []models.StockRecord {
	matches := m.Rank(query, limit)
	out := make([]models.StockRecord, len(matches))
	for i, match := range matches {
		out[i] = match.Record
	}
	return out
}

// Rank scores every record and returns up to limit matches, best first
func (m *Matcher) Rank(query string, limit int) []Match {
	if limit <= 0 {
		limit = m.limit
	}

	q := normalize(query)
	if q == "" {
		return []Match{}
	}
	numeric := isNumeric(q)

	matches := make([]Match, 0, 16)
	for _, rec := range m.directory.Records() {
		score, exact := scoreRecord(rec, q, numeric)
		if score > 0 {
			matches = append(matches, Match{Record: rec, Score: score, Exact: exact})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		la, lb := utf8.RuneCountInString(a.Record.Name), utf8.RuneCountInString(b.Record.Name)
		if la != lb {
			return la < lb
		}
		pa, pb := a.Record.Market.Priority(), b.Record.Market.Priority()
		if pa != pb {
			return pa < pb
		}
		return a.Record.Code < b.Record.Code
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Resolve picks the top candidate when it is exact, or when it clears the
// threshold and is strictly ahead of the runner-up
func (m *Matcher) Resolve(query string) (models.StockRecord, error) {
	matches := m.Rank(query, m.limit)
	if len(matches) == 0 {
		return models.StockRecord{}, &models.UnresolvedStockError{Query: query}
	}

	top := matches[0]
	if top.Exact {
		return top.Record, nil
	}
	if top.Score >= m.threshold && (len(matches) == 1 || top.Score > matches[1].Score) {
		return top.Record, nil
	}

	candidates := make([]models.StockRecord, len(matches))
	for i, match := range matches {
		candidates[i] = match.Record
	}
	return models.StockRecord{}, &models.UnresolvedStockError{Query: query, Candidates: candidates}
}

func scoreRecord(rec models.StockRecord, q string, numeric bool) (int, bool) {
	code := strings.ToLower(rec.Code)
	if code == q {
		return scoreCodeExact, true
	}

	score := 0
	if strings.HasPrefix(code, q) {
		score = scoreCodePrefix - len(code)
	}
	if numeric {
		return score, false
	}

	exact := false
	name := strings.ToLower(rec.Name)
	switch {
	case name == q:
		score = max(score, scoreNameExact)
		exact = true
	case strings.HasPrefix(name, q):
		score = max(score, scoreNamePrefix)
	case strings.Contains(name, q):
		score = max(score, scoreNameContains)
	}

	if rec.Pinyin != "" {
		switch {
		case rec.Pinyin == q:
			score += scorePinyinExact
		case strings.HasPrefix(rec.Pinyin, q):
			score += scorePinyinPrefix
		}
	}

	return score, exact
}

func normalize(s string) string {
	s = strings.TrimSpace(s)
	// Full-width digits and letters are common from Chinese input methods
	s = strings.Map(func(r rune) rune {
		if r >= '０' && r <= '～' {
			return r - '０' + '0'
		}
		if r == '　' {
			return ' '
		}
		return r
	}, s)
	return strings.ToLower(strings.TrimSpace(s))
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
