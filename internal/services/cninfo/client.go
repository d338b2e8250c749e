// Package cninfo fetches periodic report disclosures from the CNinfo registry
// (cninfo.com.cn): paginated listing queries, title classification, the
// report selection policy and bounded parallel PDF downloads.
package cninfo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jaytaylor/html2text"
	"github.com/ternarybob/arbor"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
)

const (
	DefaultBaseURL      = "http://www.cninfo.com.cn"
	DefaultStaticURL    = "http://static.cninfo.com.cn"
	DefaultTimeout      = 60 * time.Second
	DefaultPageSize     = 30
	DefaultMaxPages     = 20
	DefaultRetryMax     = 2 // 3 attempts in total
	DefaultRetryWaitMin = 2 * time.Second
	DefaultRetryWaitMax = 10 * time.Second
	DefaultRateLimit    = 4 // requests per second
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:110.0) Gecko/20100101 Firefox/110.0"

	queryPath  = "/new/hisAnnouncement/query"
	refererURL = "http://www.cninfo.com.cn/new/commonUrl/pageOfSearch?url=disclosure/list/search&lastPage=index"

	maxListingBody = 16 << 20
)

type attemptsKey struct{}

// Client talks to the registry listing API and the static PDF host
type Client struct {
	baseURL   string
	staticURL string
	userAgent string
	pageSize  int
	maxPages  int
	retryMax  int
	timeout   time.Duration
	waitMin   time.Duration
	waitMax   time.Duration
	limiter   *rate.Limiter
	logger    arbor.ILogger
	http      *retryablehttp.Client
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the listing API host
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithStaticURL sets the PDF host
func WithStaticURL(staticURL string) ClientOption {
	return func(c *Client) {
		c.staticURL = strings.TrimRight(staticURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the request rate shared by listing and download calls
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithTimeout sets the per-attempt HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithRetry sets the retry count (after the first attempt) and the backoff bounds
func WithRetry(retryMax int, waitMin, waitMax time.Duration) ClientOption {
	return func(c *Client) {
		c.retryMax = retryMax
		c.waitMin = waitMin
		c.waitMax = waitMax
	}
}

// WithPaging sets the page size and the maximum pages read per query
func WithPaging(pageSize, maxPages int) ClientOption {
	return func(c *Client) {
		if pageSize > 0 {
			c.pageSize = pageSize
		}
		if maxPages > 0 {
			c.maxPages = maxPages
		}
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// NewClient creates a registry client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		staticURL: DefaultStaticURL,
		userAgent: DefaultUserAgent,
		pageSize:  DefaultPageSize,
		maxPages:  DefaultMaxPages,
		retryMax:  DefaultRetryMax,
		timeout:   DefaultTimeout,
		waitMin:   DefaultRetryWaitMin,
		waitMax:   DefaultRetryWaitMax,
		limiter:   rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:    arbor.NewLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	jar, _ := cookiejar.New(nil)

	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = c.retryMax
	rc.RetryWaitMin = c.waitMin
	rc.RetryWaitMax = c.waitMax
	rc.HTTPClient.Timeout = c.timeout
	rc.HTTPClient.Jar = jar
	rc.RequestLogHook = c.logAttempt
	c.http = rc

	return c
}

// Attempts returns the attempts allowed per request
func (c *Client) Attempts() int {
	return c.retryMax + 1
}

// StandardClient exposes the retrying transport as a plain http.Client
func (c *Client) StandardClient() *http.Client {
	return c.http.StandardClient()
}

func (c *Client) logAttempt(_ retryablehttp.Logger, req *http.Request, attempt int) {
	if counter, ok := req.Context().Value(attemptsKey{}).(*int32); ok {
		atomic.StoreInt32(counter, int32(attempt+1))
	}
	if attempt > 0 {
		c.logger.Warn().
			Str("url", req.URL.String()).
			Int("attempt", attempt+1).
			Int("max_attempts", c.retryMax+1).
			Msg("Retrying registry request")
	}
}

func (c *Client) setHeaders(req *retryablehttp.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.5")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Origin", DefaultBaseURL)
	req.Header.Set("Referer", refererURL)
}

// do waits for the limiter and sends req, recording the attempt count in attempts
func (c *Client) do(ctx context.Context, req *retryablehttp.Request, attempts *int32) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	ctx = context.WithValue(ctx, attemptsKey{}, attempts)
	return c.http.Do(req.WithContext(ctx))
}

// Page is one page of listing results
type Page struct {
	Number        int
	HasMore       bool
	Total         int
	Announcements []models.AnnouncementMetadata
}

// QueryPage fetches a single listing page. Failures after retries return a *models.ListingError.
func (c *Client) QueryPage(ctx context.Context, q Query, page int) (*Page, error) {
	var attempts int32
	fail := func(err error) (*Page, error) {
		n := int(atomic.LoadInt32(&attempts))
		if n == 0 {
			n = 1
		}
		return nil, &models.ListingError{StockCode: q.Stock.Code, Page: page, Attempts: n, Err: err}
	}

	form := q.Form(page, c.pageSize)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queryPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fail(fmt.Errorf("failed to create listing request: %w", err))
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	resp, err := c.do(ctx, req, &attempts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("listing returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBody))
	if err != nil {
		return fail(fmt.Errorf("failed to read listing response: %w", err))
	}
	if !gjson.ValidBytes(body) {
		return fail(fmt.Errorf("listing response is not JSON"))
	}

	return parsePage(body, page, c.staticURL), nil
}

func parsePage(body []byte, number int, staticURL string) *Page {
	result := gjson.ParseBytes(body)
	page := &Page{
		Number:  number,
		HasMore: result.Get("hasMore").Bool(),
		Total:   int(result.Get("totalAnnouncement").Int()),
	}

	result.Get("announcements").ForEach(func(_, a gjson.Result) bool {
		adjunct := a.Get("adjunctUrl").String()
		if adjunct == "" {
			return true
		}
		ann := models.AnnouncementMetadata{
			ID:          a.Get("announcementId").String(),
			Title:       cleanTitle(a.Get("announcementTitle").String()),
			DownloadURL: resolveURL(staticURL, adjunct),
			AdjunctType: a.Get("adjunctType").String(),
			SecCode:     a.Get("secCode").String(),
			SecName:     cleanTitle(a.Get("secName").String()),
		}
		if ms := a.Get("announcementTime").Int(); ms > 0 {
			ann.PublishDate = time.UnixMilli(ms).In(chinaTZ)
		}
		page.Announcements = append(page.Announcements, ann)
		return true
	})

	return page
}

// List pages through the query until the registry reports no more results,
// maxPages is reached, or limit announcements were read (limit <= 0 means no limit)
func (c *Client) List(ctx context.Context, q Query, limit int) ([]models.AnnouncementMetadata, error) {
	var all []models.AnnouncementMetadata

	for page := 1; page <= c.maxPages; page++ {
		p, err := c.QueryPage(ctx, q, page)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Announcements...)

		c.logger.Debug().
			Str("code", q.Stock.Code).
			Int("page", page).
			Int("announcements", len(p.Announcements)).
			Bool("has_more", p.HasMore).
			Msg("Listing page fetched")

		if limit > 0 && len(all) >= limit {
			return all[:limit], nil
		}
		if !p.HasMore || len(p.Announcements) == 0 {
			return all, nil
		}
	}

	c.logger.Warn().
		Str("code", q.Stock.Code).
		Int("max_pages", c.maxPages).
		Msg("Listing truncated at page limit")

	return all, nil
}

// Download streams the file at fileURL into w and returns the bytes written.
// Relative adjunct paths are resolved against the static host.
func (c *Client) Download(ctx context.Context, fileURL string, w io.Writer) (int64, error) {
	var attempts int32
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, resolveURL(c.staticURL, fileURL), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "application/pdf,*/*")

	resp, err := c.do(ctx, req, &attempts)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read file content: %w", err)
	}
	return n, nil
}

// FetchStockList downloads the registry's own stock lists and returns them as
// directory records. A-share codes are split into SSE and SZSE by prefix.
func (c *Client) FetchStockList(ctx context.Context) ([]models.StockRecord, error) {
	sources := []struct {
		path   string
		market models.Market
	}{
		{path: "/new/data/szse_stock.json", market: models.MarketSZSE},
		{path: "/new/data/hke_stock.json", market: models.MarketHKE},
	}

	var records []models.StockRecord
	for _, src := range sources {
		var attempts int32
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+src.path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create stock list request: %w", err)
		}
		c.setHeaders(req)

		resp, err := c.do(ctx, req, &attempts)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch stock list %s: %w", src.path, err)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read stock list %s: %w", src.path, err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("stock list %s returned status %d", src.path, resp.StatusCode)
		}

		before := len(records)
		gjson.GetBytes(body, "stockList").ForEach(func(_, s gjson.Result) bool {
			code := strings.TrimSpace(s.Get("code").String())
			name := strings.TrimSpace(s.Get("zwjc").String())
			if code == "" || name == "" {
				return true
			}
			records = append(records, models.StockRecord{
				Code:   code,
				Name:   name,
				Market: stockListMarket(src.market, code, s.Get("category").String()),
				OrgID:  s.Get("orgId").String(),
				Pinyin: strings.ToLower(s.Get("pinyin").String()),
			})
			return true
		})

		c.logger.Info().
			Str("source", src.path).
			Int("stocks", len(records)-before).
			Msg("Stock list fetched")
	}

	return records, nil
}

func stockListMarket(source models.Market, code, category string) models.Market {
	if source == models.MarketHKE {
		return models.MarketHKE
	}
	switch {
	case strings.Contains(category, "基金"):
		return models.MarketFund
	case strings.Contains(category, "债"):
		return models.MarketBond
	}
	return models.AShareMarket(code)
}

// Query is one listing query against the registry
type Query struct {
	Stock      models.StockRecord
	Categories []string
	SearchKey  string
	Start      time.Time
	End        time.Time
}

// Form builds the form body for page
func (q Query) Form(page, pageSize int) url.Values {
	form := url.Values{}
	form.Set("pageNum", strconv.Itoa(page))
	form.Set("pageSize", strconv.Itoa(pageSize))
	form.Set("column", q.Stock.Market.Column())
	form.Set("tabName", "fulltext")
	form.Set("plate", "")
	form.Set("stock", q.Stock.Code+","+q.Stock.OrgID)
	form.Set("searchkey", q.SearchKey)
	form.Set("secid", "")
	form.Set("category", strings.Join(q.Categories, ";"))
	form.Set("trade", "")
	seDate := ""
	if !q.Start.IsZero() && !q.End.IsZero() {
		seDate = q.Start.Format("2006-01-02") + "~" + q.End.Format("2006-01-02")
	}
	form.Set("seDate", seDate)
	form.Set("sortName", "")
	form.Set("sortType", "")
	form.Set("isHLtitle", "true")
	return form
}

var highlightTags = strings.NewReplacer("<em>", "", "</em>", "", "<EM>", "", "</EM>", "")

// cleanTitle strips highlight markup such as <em>, decodes any remaining HTML
// and collapses whitespace
func cleanTitle(s string) string {
	s = highlightTags.Replace(s)
	if strings.ContainsAny(s, "<&") {
		if text, err := html2text.FromString(s); err == nil {
			s = text
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

func resolveURL(staticURL, adjunct string) string {
	if strings.HasPrefix(adjunct, "http://") || strings.HasPrefix(adjunct, "https://") {
		return adjunct
	}
	return staticURL + "/" + strings.TrimLeft(adjunct, "/")
}

var chinaTZ = time.FixedZone("CST", 8*60*60)
