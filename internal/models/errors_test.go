package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	listing := &ListingError{StockCode: "600519", Page: 2, Attempts: 3, Err: errors.New("503 Service Unavailable")}
	unresolved := &UnresolvedStockError{Query: "贵州", Candidates: []StockRecord{{Code: "600519", Name: "贵州茅台"}}}

	tests := []struct {
		name   string
		err    error
		is     error
		fatal  bool
		prefix string
	}{
		{name: "unresolved", err: unresolved, is: ErrUnresolvedStock, fatal: true, prefix: "未找到股票: "},
		{name: "listing", err: fmt.Errorf("periodic listing: %w", listing), is: ErrListingFetchExhausted, fatal: true, prefix: "公告列表获取失败: "},
		{name: "unsupported", err: fmt.Errorf("%w: US", ErrUnsupportedMarket), is: ErrUnsupportedMarket, fatal: true, prefix: "不支持的市场: "},
		{name: "no files", err: fmt.Errorf("%w: 5 selected", ErrNoFilesDownloaded), is: ErrNoFilesDownloaded, fatal: true, prefix: "未下载到任何报告: "},
		{name: "packaging", err: fmt.Errorf("%w: zip", ErrPackagingFailed), is: ErrPackagingFailed, fatal: true, prefix: "打包或上传失败: "},
		{name: "file", err: fmt.Errorf("%w: 404", ErrFileDownloadFailed), is: ErrFileDownloadFailed, fatal: false, prefix: "文件下载失败: "},
		{name: "cleanup", err: fmt.Errorf("%w: busy", ErrCleanupFailed), is: ErrCleanupFailed, fatal: false, prefix: "清理失败: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.is))
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
			assert.Equal(t, tt.prefix+tt.err.Error(), Describe(tt.err))
		})
	}
}

func TestListingError_KeepsCause(t *testing.T) {
	err := &ListingError{StockCode: "600519", Page: 1, Attempts: 1, Err: context.Canceled}
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, ErrListingFetchExhausted))
	assert.Contains(t, err.Error(), "600519")
}

func TestUnresolvedStockError_Message(t *testing.T) {
	assert.Contains(t, (&UnresolvedStockError{Query: "xyz"}).Error(), "no stock matches")
	ambiguous := &UnresolvedStockError{Query: "贵州", Candidates: []StockRecord{{Code: "600519", Name: "贵州茅台"}, {Code: "002424", Name: "贵州百灵"}}}
	assert.Contains(t, ambiguous.Error(), "ambiguous")
}

func TestDescribe_Plain(t *testing.T) {
	assert.Equal(t, "", Describe(nil))
	assert.Equal(t, "context canceled", Describe(context.Canceled))
	assert.False(t, IsFatal(nil))
}
