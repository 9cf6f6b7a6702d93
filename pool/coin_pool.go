// Package pool grounds rotation.Scorer's one real implementation in the
// teacher's API->cache->default fallback shape. The coin-scoring analytics
// themselves (AI500 ranking, OI Top growth detection) are out of scope
// (SPEC_FULL.md §4.10) — this is deliberately the minimal surface that
// shape needs, not the teacher's full multi-endpoint fetch machinery.
package pool

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"nofx/logger"
)

var defaultMainstreamCoins = []string{
	"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT", "DOGEUSDT", "ADAUSDT", "HYPEUSDT",
}

// CoinInfo is one AI500-ranked coin.
type CoinInfo struct {
	Pair        string  `json:"pair"`
	Score       float64 `json:"score"`
	IsAvailable bool    `json:"-"`
}

// OIPosition is one open-interest-growth Top-20 entry.
type OIPosition struct {
	Symbol         string  `json:"symbol"`
	OIDeltaPercent float64 `json:"oi_delta_percent"`
}

type coinPoolAPIResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Coins []CoinInfo `json:"coins"`
	} `json:"data"`
}

type oiTopAPIResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Positions []OIPosition `json:"positions"`
	} `json:"data"`
}

// source is one API->cache->default fallback endpoint (AI500 or OI Top).
type source struct {
	name      string
	apiURL    string
	timeout   time.Duration
	cacheFile string
}

var (
	coinPoolSource = &source{name: "AI500 coin pool", timeout: 30 * time.Second, cacheFile: filepath.Join("coin_pool_cache", "latest.json")}
	oiTopSource    = &source{name: "OI Top", timeout: 30 * time.Second, cacheFile: filepath.Join("coin_pool_cache", "oi_top_latest.json")}
	useDefaultCoins bool
)

// SetCoinPoolAPI points the AI500 scorer at a real endpoint; left unset, the
// default mainstream coin list is used.
func SetCoinPoolAPI(apiURL string) { coinPoolSource.apiURL = apiURL }

// SetOITopAPI points the OI Top growth scorer at a real endpoint; left
// unset, OI Top data is skipped entirely.
func SetOITopAPI(apiURL string) { oiTopSource.apiURL = apiURL }

// SetUseDefaultCoins forces the default mainstream coin list regardless of
// whether an AI500 API URL is configured.
func SetUseDefaultCoins(v bool) { useDefaultCoins = v }

// SetDefaultCoins overrides the built-in mainstream coin fallback list.
func SetDefaultCoins(coins []string) {
	if len(coins) > 0 {
		defaultMainstreamCoins = coins
		logger.Infof("default coin pool set (%d coins): %v", len(coins), coins)
	}
}

// fetchJSON retries an HTTP GET against src up to 3 times, decodes the body
// into out, and caches the raw response for the next cold start. On
// exhausted retries it falls back to the last cached response.
func fetchJSON(src *source, out any) error {
	client := &http.Client{Timeout: src.timeout}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if attempt > 1 {
			logger.Infof("retrying %s fetch (%d/3)", src.name, attempt)
			time.Sleep(2 * time.Second)
		}

		body, err := requestOnce(client, src)
		if err != nil {
			lastErr = err
			continue
		}
		if err := json.Unmarshal(body, out); err != nil {
			lastErr = fmt.Errorf("parse %s response: %w", src.name, err)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(src.cacheFile), 0755); err == nil {
			_ = os.WriteFile(src.cacheFile, body, 0644)
		}
		return nil
	}

	logger.Infof("%s API unreachable (%v), falling back to cache", src.name, lastErr)
	cached, err := os.ReadFile(src.cacheFile)
	if err != nil {
		return fmt.Errorf("%s: no API and no cache available: %w", src.name, lastErr)
	}
	return json.Unmarshal(cached, out)
}

func requestOnce(client *http.Client, src *source) ([]byte, error) {
	resp, err := client.Get(src.apiURL)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", src.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", src.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d: %s", src.name, resp.StatusCode, body)
	}
	return body, nil
}

// GetCoinPool returns the AI500 coin list, falling back to the default
// mainstream coins when no API URL is configured or the fetch fails.
func GetCoinPool() ([]CoinInfo, error) {
	if useDefaultCoins || strings.TrimSpace(coinPoolSource.apiURL) == "" {
		return convertSymbolsToCoins(defaultMainstreamCoins), nil
	}

	var resp coinPoolAPIResponse
	if err := fetchJSON(coinPoolSource, &resp); err != nil || !resp.Success || len(resp.Data.Coins) == 0 {
		logger.Infof("coin pool fetch failed (%v), falling back to default mainstream coins", err)
		return convertSymbolsToCoins(defaultMainstreamCoins), nil
	}

	coins := resp.Data.Coins
	for i := range coins {
		coins[i].IsAvailable = true
	}
	return coins, nil
}

// GetTopRatedCoins returns up to limit available coin symbols, highest
// score first.
func GetTopRatedCoins(limit int) ([]string, error) {
	coins, err := GetCoinPool()
	if err != nil {
		return nil, err
	}

	available := make([]CoinInfo, 0, len(coins))
	for _, c := range coins {
		if c.IsAvailable {
			available = append(available, c)
		}
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("no available coins")
	}

	sort.Slice(available, func(i, j int) bool { return available[i].Score > available[j].Score })

	if limit > len(available) {
		limit = len(available)
	}
	symbols := make([]string, 0, limit)
	for _, c := range available[:limit] {
		symbols = append(symbols, normalizeSymbol(c.Pair))
	}
	return symbols, nil
}

func normalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !strings.HasSuffix(symbol, "USDT") {
		symbol += "USDT"
	}
	return symbol
}

func convertSymbolsToCoins(symbols []string) []CoinInfo {
	coins := make([]CoinInfo, 0, len(symbols))
	for _, s := range symbols {
		coins = append(coins, CoinInfo{Pair: s, IsAvailable: true})
	}
	return coins
}

// GetOITopPositions returns the open-interest-growth Top-20 list, or an
// empty list (not an error) when no API URL is configured or the fetch
// fails — OI Top data is an optional supplement to AI500 scoring.
func GetOITopPositions() ([]OIPosition, error) {
	if strings.TrimSpace(oiTopSource.apiURL) == "" {
		return nil, nil
	}

	var resp oiTopAPIResponse
	if err := fetchJSON(oiTopSource, &resp); err != nil || !resp.Success {
		logger.Infof("OI Top fetch failed (%v), skipping OI Top data", err)
		return nil, nil
	}
	return resp.Data.Positions, nil
}

// GetOITopSymbols returns the normalized symbols of GetOITopPositions.
func GetOITopSymbols() ([]string, error) {
	positions, err := GetOITopPositions()
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, normalizeSymbol(p.Symbol))
	}
	return symbols, nil
}

// MergedCoinPool is the AI500 + OI Top rotation candidate set, deduplicated.
type MergedCoinPool struct {
	AI500Coins []CoinInfo
	OITopCoins []OIPosition
	AllSymbols []string
}

// GetMergedCoinPool merges the top ai500Limit AI500 coins with the OI Top
// list, deduplicated by symbol.
func GetMergedCoinPool(ai500Limit int) (*MergedCoinPool, error) {
	ai500TopSymbols, err := GetTopRatedCoins(ai500Limit)
	if err != nil {
		logger.Infof("AI500 fetch failed: %v", err)
		ai500TopSymbols = nil
	}

	oiTopSymbols, err := GetOITopSymbols()
	if err != nil {
		logger.Infof("OI Top fetch failed: %v", err)
		oiTopSymbols = nil
	}

	seen := make(map[string]bool, len(ai500TopSymbols)+len(oiTopSymbols))
	var allSymbols []string
	for _, symbol := range ai500TopSymbols {
		seen[symbol] = true
		allSymbols = append(allSymbols, symbol)
	}
	for _, symbol := range oiTopSymbols {
		if !seen[symbol] {
			seen[symbol] = true
			allSymbols = append(allSymbols, symbol)
		}
	}

	ai500Coins, _ := GetCoinPool()
	oiTopPositions, _ := GetOITopPositions()

	logger.Infof("coin pool merge complete: AI500=%d OI_Top=%d total=%d",
		len(ai500TopSymbols), len(oiTopSymbols), len(allSymbols))

	return &MergedCoinPool{
		AI500Coins: ai500Coins,
		OITopCoins: oiTopPositions,
		AllSymbols: allSymbols,
	}, nil
}
