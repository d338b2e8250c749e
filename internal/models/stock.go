package models

import "strings"

// Market identifies the exchange partition a stock is listed on
type Market string

const (
	MarketSZSE Market = "SZSE"
	MarketSSE  Market = "SSE"
	MarketHKE  Market = "HKE"
	MarketBond Market = "BOND"
	MarketFund Market = "FUND"
	MarketUS   Market = "US"
)

// ParseMarket maps dataset keys ("szse", "hke", ...) to a Market
func ParseMarket(s string) Market {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "szse", "sz":
		return MarketSZSE
	case "sse", "sh":
		return MarketSSE
	case "hke", "hk":
		return MarketHKE
	case "bond":
		return MarketBond
	case "fund":
		return MarketFund
	case "us":
		return MarketUS
	}
	return Market(strings.ToUpper(strings.TrimSpace(s)))
}

// Priority orders markets when match scores tie. Lower sorts first.
func (m Market) Priority() int {
	switch m {
	case MarketSSE:
		return 0
	case MarketSZSE:
		return 1
	case MarketHKE:
		return 2
	case MarketBond:
		return 3
	case MarketFund:
		return 4
	case MarketUS:
		return 5
	}
	return 9
}

// Column returns the registry "column" query parameter for the market.
// Returns "" for markets the registry does not serve.
func (m Market) Column() string {
	switch m {
	case MarketSSE:
		return "sse"
	case MarketHKE:
		return "hke"
	case MarketSZSE, MarketBond, MarketFund:
		return "szse"
	}
	return ""
}

// AShareMarket infers the A-share exchange from the code prefix
func AShareMarket(code string) Market {
	if strings.HasPrefix(code, "6") || strings.HasPrefix(code, "9") {
		return MarketSSE
	}
	return MarketSZSE
}

// StockRecord is one entry of the stock directory
type StockRecord struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Market Market `json:"market"`
	OrgID  string `json:"org_id,omitempty"`
	Pinyin string `json:"pinyin,omitempty"`
}

// String returns "code name" for display
func (s StockRecord) String() string {
	return s.Code + " " + s.Name
}
