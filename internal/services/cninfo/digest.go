package cninfo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
)

// DigestFileName returns the digest file name for stockName on day now
func DigestFileName(stockName string, now time.Time) string {
	return fmt.Sprintf("%s_最新公告摘要_%s.md", SafeName(stockName), now.Format("20060102"))
}

// WriteDigest writes a markdown list of recent announcements into dir and
// returns the file path
func WriteDigest(dir, stockName string, recent []models.AnnouncementMetadata, now time.Time) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s 最新公告与资信摘要\n\n", stockName)
	fmt.Fprintf(&b, "生成日期: %s\n\n", now.Format("2006-01-02 15:04:05"))
	b.WriteString("## 最近公告列表\n\n")

	if len(recent) == 0 {
		b.WriteString("暂无最近六个月的重大公告。\n")
	}
	for _, a := range recent {
		date := ""
		if !a.PublishDate.IsZero() {
			date = a.PublishDate.Format("2006-01-02")
		}
		title := a.Title
		if title == "" {
			title = "无标题"
		}
		fmt.Fprintf(&b, "- **[%s]** %s  \n  [链接](%s)\n", date, title, a.DownloadURL)
	}
	b.WriteString("\n\n---\n*注：本摘要为自动生成的公告列表，供辅助分析使用。*\n")

	path := filepath.Join(dir, DigestFileName(stockName, now))
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write digest: %w", err)
	}
	return path, nil
}
