// Package directory holds the static stock dataset used to resolve user queries.
// The dataset is loaded once and is read-only afterwards, so a Directory can be
// shared by concurrent requests without locking.
package directory

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
)

//go:embed assets/stocks.json
var embeddedDataset []byte

// datasetEntry is one stock in the dataset file, keyed by market then code
type datasetEntry struct {
	Name   string `json:"zwjc"`
	OrgID  string `json:"orgId"`
	Pinyin string `json:"pinyin"`
}

// Directory maps stock codes to records
type Directory struct {
	records []models.StockRecord
	byCode  map[string][]int
	seed    bool // Loaded from the embedded dataset
}

// New builds a directory from records. Records are sorted by market priority then code.
func New(records []models.StockRecord) *Directory {
	sorted := make([]models.StockRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := sorted[i].Market.Priority(), sorted[j].Market.Priority()
		if pi != pj {
			return pi < pj
		}
		return sorted[i].Code < sorted[j].Code
	})

	d := &Directory{
		records: sorted,
		byCode:  make(map[string][]int, len(sorted)),
	}
	for i, r := range sorted {
		d.byCode[r.Code] = append(d.byCode[r.Code], i)
	}
	return d
}

// RefreshHint tells the user how to replace the embedded seed dataset
const RefreshHint = "内置股票列表仅包含少量示例股票，请运行 `cninfo2nb directory refresh` 获取完整列表"

// Load reads the dataset at path, or the embedded seed dataset when path is empty
func Load(path string, logger arbor.ILogger) (*Directory, error) {
	data := embeddedDataset
	source := "embedded"
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read stock dataset %s: %w", path, err)
		}
		data = b
		source = path
	}

	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stock dataset %s: %w", source, err)
	}
	d.seed = path == ""
	if d.seed {
		logger.Warn().
			Int("stocks", d.Len()).
			Msg("Using embedded seed stock directory, run 'directory refresh' and set directory.path for the full registry list")
	}

	logger.Info().
		Str("source", source).
		Int("stocks", d.Len()).
		Msg("Stock directory loaded")

	return d, nil
}

// Parse decodes a dataset of the form {market: {code: {zwjc, orgId, pinyin}}}
func Parse(data []byte) (*Directory, error) {
	var raw map[string]map[string]datasetEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	records := make([]models.StockRecord, 0, 4096)
	for marketKey, stocks := range raw {
		market := models.ParseMarket(marketKey)
		for code, entry := range stocks {
			code = strings.TrimSpace(code)
			name := strings.TrimSpace(entry.Name)
			if code == "" || name == "" {
				continue
			}
			m := market
			if m == models.MarketSZSE || m == models.MarketSSE {
				m = models.AShareMarket(code)
			}
			records = append(records, models.StockRecord{
				Code:   code,
				Name:   name,
				Market: m,
				OrgID:  strings.TrimSpace(entry.OrgID),
				Pinyin: strings.ToLower(strings.TrimSpace(entry.Pinyin)),
			})
		}
	}
	return New(records), nil
}

// Len returns the number of records
func (d *Directory) Len() int {
	return len(d.records)
}

// IsSeed reports whether the directory came from the embedded seed dataset
func (d *Directory) IsSeed() bool {
	return d.seed
}

// Records returns the records in directory order. The slice must not be modified.
func (d *Directory) Records() []models.StockRecord {
	return d.records
}

// Lookup returns the record for code, preferring the higher priority market
// when a code is listed on several
func (d *Directory) Lookup(code string) (models.StockRecord, bool) {
	idx, ok := d.byCode[strings.TrimSpace(code)]
	if !ok || len(idx) == 0 {
		return models.StockRecord{}, false
	}
	return d.records[idx[0]], true
}

// Markets returns the record count per market
func (d *Directory) Markets() map[models.Market]int {
	counts := make(map[models.Market]int)
	for _, r := range d.records {
		counts[r.Market]++
	}
	return counts
}

// Marshal encodes records in the dataset format read by Parse
func Marshal(records []models.StockRecord) ([]byte, error) {
	out := make(map[string]map[string]datasetEntry)
	for _, r := range records {
		key := strings.ToLower(string(r.Market))
		if out[key] == nil {
			out[key] = make(map[string]datasetEntry)
		}
		out[key][r.Code] = datasetEntry{Name: r.Name, OrgID: r.OrgID, Pinyin: r.Pinyin}
	}
	return json.MarshalIndent(out, "", "  ")
}

// WriteFile writes records to path in the dataset format
func WriteFile(path string, records []models.StockRecord) error {
	data, err := Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode stock dataset: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write stock dataset: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace stock dataset: %w", err)
	}
	return nil
}
