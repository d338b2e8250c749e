package directory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
)

func TestLoad_Embedded(t *testing.T) {
	d, err := Load("", arbor.NewLogger())
	require.NoError(t, err)
	assert.Greater(t, d.Len(), 10)
	assert.True(t, d.IsSeed())

	rec, ok := d.Lookup("600519")
	require.True(t, ok)
	assert.Equal(t, "贵州茅台", rec.Name)
	assert.Equal(t, models.MarketSSE, rec.Market)
	assert.Equal(t, "gssh0600519", rec.OrgID)
	assert.Equal(t, "gzmt", rec.Pinyin)
}

func TestParse_InfersAShareMarketFromCode(t *testing.T) {
	data := []byte(`{
		"szse": {
			"600519": {"zwjc": "贵州茅台", "orgId": "gssh0600519", "pinyin": "GZMT"},
			"000001": {"zwjc": "平安银行", "orgId": "gssz0000001", "pinyin": "payh"},
			"": {"zwjc": "empty code"},
			"000003": {"zwjc": ""}
		},
		"hke": {
			"00700": {"zwjc": "腾讯控股", "orgId": "gshk0000700", "pinyin": "txkg"}
		}
	}`)

	d, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())

	moutai, ok := d.Lookup("600519")
	require.True(t, ok)
	assert.Equal(t, models.MarketSSE, moutai.Market)
	assert.Equal(t, "gzmt", moutai.Pinyin)

	pingan, _ := d.Lookup("000001")
	assert.Equal(t, models.MarketSZSE, pingan.Market)

	tencent, _ := d.Lookup("00700")
	assert.Equal(t, models.MarketHKE, tencent.Market)

	counts := d.Markets()
	assert.Equal(t, 1, counts[models.MarketSSE])
	assert.Equal(t, 1, counts[models.MarketSZSE])
	assert.Equal(t, 1, counts[models.MarketHKE])
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`{"szse": [`))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"), arbor.NewLogger())
	assert.Error(t, err)
}

func TestWriteFile_ReadBack(t *testing.T) {
	records := []models.StockRecord{
		{Code: "600519", Name: "贵州茅台", Market: models.MarketSSE, OrgID: "gssh0600519", Pinyin: "gzmt"},
		{Code: "00700", Name: "腾讯控股", Market: models.MarketHKE, OrgID: "gshk0000700", Pinyin: "txkg"},
	}
	path := filepath.Join(t.TempDir(), "stocks.json")
	require.NoError(t, WriteFile(path, records))

	d, err := Load(path, arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())
	assert.False(t, d.IsSeed())

	// Records are ordered by market priority
	assert.Equal(t, "600519", d.Records()[0].Code)
	assert.Equal(t, "00700", d.Records()[1].Code)
}
