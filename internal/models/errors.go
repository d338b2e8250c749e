package models

import (
	"errors"
	"fmt"
	"strings"
)

// Pipeline error taxonomy. Callers test with errors.Is.
var (
	ErrUnresolvedStock       = errors.New("stock could not be resolved")
	ErrUnsupportedMarket     = errors.New("market not served by the disclosure registry")
	ErrListingFetchExhausted = errors.New("listing fetch exhausted retries")
	ErrFileDownloadFailed    = errors.New("file download failed")
	ErrNoFilesDownloaded     = errors.New("no files downloaded")
	ErrPackagingFailed       = errors.New("packaging failed")
	ErrCleanupFailed         = errors.New("cleanup failed")
)

// ErrRunNotFound is returned by run history lookups for unknown IDs
var ErrRunNotFound = errors.New("run not found")

// UnresolvedStockError carries the candidates found for an ambiguous query
type UnresolvedStockError struct {
	Query      string
	Candidates []StockRecord
}

func (e *UnresolvedStockError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("no stock matches %q", e.Query)
	}
	names := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		names = append(names, c.String())
	}
	return fmt.Sprintf("%q is ambiguous, candidates: %s", e.Query, strings.Join(names, ", "))
}

func (e *UnresolvedStockError) Unwrap() error {
	return ErrUnresolvedStock
}

// ListingError is returned when a registry listing query fails after retries
type ListingError struct {
	StockCode string
	Page      int
	Attempts  int
	Err       error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("listing for %s page %d failed after %d attempts: %v", e.StockCode, e.Page, e.Attempts, e.Err)
}

// Unwrap exposes both the taxonomy sentinel and the last network error
func (e *ListingError) Unwrap() []error {
	return []error{ErrListingFetchExhausted, e.Err}
}

// IsFatal reports whether err ends a run
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrFileDownloadFailed) && !errors.Is(err, ErrCleanupFailed)
}

// Describe renders err for users: the taxonomy label followed by the cause chain
func Describe(err error) string {
	if err == nil {
		return ""
	}
	label := ""
	switch {
	case errors.Is(err, ErrUnresolvedStock):
		label = "未找到股票"
	case errors.Is(err, ErrUnsupportedMarket):
		label = "不支持的市场"
	case errors.Is(err, ErrListingFetchExhausted):
		label = "公告列表获取失败"
	case errors.Is(err, ErrNoFilesDownloaded):
		label = "未下载到任何报告"
	case errors.Is(err, ErrPackagingFailed):
		label = "打包或上传失败"
	case errors.Is(err, ErrCleanupFailed):
		label = "清理失败"
	case errors.Is(err, ErrFileDownloadFailed):
		label = "文件下载失败"
	}
	if label == "" {
		return err.Error()
	}
	return label + ": " + err.Error()
}
