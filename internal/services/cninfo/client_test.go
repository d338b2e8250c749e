package cninfo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
)

var moutai = models.StockRecord{Code: "600519", Name: "贵州茅台", Market: models.MarketSSE, OrgID: "gssh0600519"}

func testClient(baseURL string) *Client {
	return NewClient(
		WithBaseURL(baseURL),
		WithStaticURL(baseURL),
		WithLogger(arbor.NewLogger()),
		WithRateLimit(1000),
		WithRetry(2, time.Millisecond, 5*time.Millisecond),
		WithTimeout(5*time.Second),
	)
}

func announcementJSON(id, title string, published time.Time) string {
	return fmt.Sprintf(`{"announcementId":%q,"announcementTitle":%q,"announcementTime":%d,"adjunctUrl":"finalpage/%s.PDF","adjunctType":"PDF","secCode":"600519","secName":"贵州茅台"}`,
		id, title, published.UnixMilli(), id)
}

func TestQuery_Form(t *testing.T) {
	q := Query{
		Stock:      moutai,
		Categories: []string{CategoryAnnual, CategoryQ1},
		Start:      time.Date(2019, 1, 1, 0, 0, 0, 0, chinaTZ),
		End:        time.Date(2025, 6, 30, 0, 0, 0, 0, chinaTZ),
	}
	form := q.Form(2, 30)

	assert.Equal(t, "2", form.Get("pageNum"))
	assert.Equal(t, "30", form.Get("pageSize"))
	assert.Equal(t, "sse", form.Get("column"))
	assert.Equal(t, "fulltext", form.Get("tabName"))
	assert.Equal(t, "600519,gssh0600519", form.Get("stock"))
	assert.Equal(t, "category_ndbg_szsh;category_yjdbg_szsh", form.Get("category"))
	assert.Equal(t, "2019-01-01~2025-06-30", form.Get("seDate"))
	assert.Equal(t, "true", form.Get("isHLtitle"))
	assert.Contains(t, form, "plate")
	assert.Contains(t, form, "trade")
}

func TestList_Paginates(t *testing.T) {
	published := time.Date(2024, 4, 2, 18, 0, 0, 0, chinaTZ)
	var requests int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, queryPath, r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "600519,gssh0600519", r.PostForm.Get("stock"))
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))

		page, _ := strconv.Atoi(r.PostForm.Get("pageNum"))
		hasMore := page < 3
		fmt.Fprintf(w, `{"hasMore":%t,"totalAnnouncement":3,"announcements":[%s]}`,
			hasMore, announcementJSON(fmt.Sprintf("12%02d", page), "贵州茅台<em>2023</em>年年度报告", published))
	}))
	defer srv.Close()

	anns, err := testClient(srv.URL).List(context.Background(), Query{Stock: moutai}, 0)
	require.NoError(t, err)
	require.Len(t, anns, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))

	first := anns[0]
	assert.Equal(t, "1201", first.ID)
	assert.Equal(t, "贵州茅台2023年年度报告", first.Title)
	assert.Equal(t, srv.URL+"/finalpage/1201.PDF", first.DownloadURL)
	assert.True(t, first.PublishDate.Equal(published))
	assert.True(t, first.IsPDF())
}

func TestList_StopsAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		page := r.PostForm.Get("pageNum")
		fmt.Fprintf(w, `{"hasMore":true,"announcements":[%s,%s]}`,
			announcementJSON(page+"1", "公告一", time.Now()),
			announcementJSON(page+"2", "公告二", time.Now()))
	}))
	defer srv.Close()

	anns, err := testClient(srv.URL).List(context.Background(), Query{Stock: moutai}, 3)
	require.NoError(t, err)
	assert.Len(t, anns, 3)
}

func TestList_StopsAtMaxPages(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		fmt.Fprintf(w, `{"hasMore":true,"announcements":[%s]}`, announcementJSON(strconv.Itoa(int(n)), "公告", time.Now()))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	WithPaging(30, 4)(c)

	anns, err := c.List(context.Background(), Query{Stock: moutai}, 0)
	require.NoError(t, err)
	assert.Len(t, anns, 4)
	assert.Equal(t, int32(4), atomic.LoadInt32(&requests))
}

func TestQueryPage_RetriesThenSucceeds(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"hasMore":false,"announcements":[%s]}`, announcementJSON("1", "2023年年度报告", time.Now()))
	}))
	defer srv.Close()

	page, err := testClient(srv.URL).QueryPage(context.Background(), Query{Stock: moutai}, 1)
	require.NoError(t, err)
	assert.Len(t, page.Announcements, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestQueryPage_ExhaustsRetries(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).List(context.Background(), Query{Stock: moutai}, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrListingFetchExhausted))

	var listingErr *models.ListingError
	require.True(t, errors.As(err, &listingErr))
	assert.Equal(t, 3, listingErr.Attempts)
	assert.Equal(t, 1, listingErr.Page)
	assert.Equal(t, "600519", listingErr.StockCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestQueryPage_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>blocked</html>"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).QueryPage(context.Background(), Query{Stock: moutai}, 1)
	assert.True(t, errors.Is(err, models.ErrListingFetchExhausted))
}

func TestQueryPage_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(srv.URL).QueryPage(ctx, Query{Stock: moutai}, 1)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/finalpage/1.PDF" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("%PDF-1.4 body"))
	}))
	defer srv.Close()

	c := testClient(srv.URL)

	var buf bytes.Buffer
	n, err := c.Download(context.Background(), "finalpage/1.PDF", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(13), n)
	assert.Equal(t, "%PDF-1.4 body", buf.String())

	_, err = c.Download(context.Background(), srv.URL+"/missing.PDF", &buf)
	assert.Error(t, err)
}

func TestFetchStockList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/new/data/szse_stock.json":
			w.Write([]byte(`{"stockList":[
				{"orgId":"gssh0600519","category":"A股","code":"600519","pinyin":"GZMT","zwjc":"贵州茅台"},
				{"orgId":"gssz0000001","category":"A股","code":"000001","pinyin":"payh","zwjc":"平安银行"},
				{"orgId":"x","category":"A股","code":"","zwjc":"空"}
			]}`))
		case "/new/data/hke_stock.json":
			w.Write([]byte(`{"stockList":[{"orgId":"gshk0000700","category":"港股","code":"00700","pinyin":"txkg","zwjc":"腾讯控股"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	records, err := testClient(srv.URL).FetchStockList(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	byCode := map[string]models.StockRecord{}
	for _, r := range records {
		byCode[r.Code] = r
	}
	assert.Equal(t, models.MarketSSE, byCode["600519"].Market)
	assert.Equal(t, "gzmt", byCode["600519"].Pinyin)
	assert.Equal(t, models.MarketSZSE, byCode["000001"].Market)
	assert.Equal(t, models.MarketHKE, byCode["00700"].Market)
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "贵州茅台2023年年度报告", want: "贵州茅台2023年年度报告"},
		{in: "<em>贵州茅台</em>2023年年度报告", want: "贵州茅台2023年年度报告"},
		{in: "  2024年  第一季度报告 ", want: "2024年 第一季度报告"},
		{in: "A&amp;B 公告", want: "A&B 公告"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanTitle(tt.in))
		})
	}
}
