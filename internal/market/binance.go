package market

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/logger"
	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/types"
)

// 中文说明：
// 市场数据协作方：基于 go-binance 合约 SDK 构建候选币与市场状态快照。
// 解析引擎不做任何 I/O，快照在进入引擎前于此组装完毕。

// Config 数据源配置。
type Config struct {
	RESTBaseURL    string
	HTTPTimeout    time.Duration
	QuoteAsset     string
	CandidateLimit int
	Timeframes     []string
	KlineLimit     int
}

func (c Config) withDefaults() Config {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.QuoteAsset == "" {
		c.QuoteAsset = "USDT"
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = 20
	}
	if len(c.Timeframes) == 0 {
		c.Timeframes = []string{"1h", "4h"}
	}
	if c.KlineLimit <= 0 {
		c.KlineLimit = 200
	}
	return c
}

// Source 合约行情快照数据源。
type Source struct {
	cfg    Config
	client *futures.Client
}

// NewSource 创建数据源（只读接口，无需密钥）。
func NewSource(cfg Config) *Source {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	if base := strings.TrimSpace(final.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Source{cfg: final, client: client}
}

// Candidates 拉取 24h 行情并按成交额降序构建候选币列表。
func (s *Source) Candidates(ctx context.Context) ([]types.Candidate, error) {
	stats, err := s.client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("list 24h stats failed: %w", err)
	}
	out := make([]types.Candidate, 0, len(stats))
	for _, st := range stats {
		if st == nil || !strings.HasSuffix(st.Symbol, s.cfg.QuoteAsset) {
			continue
		}
		price := parseFloat(st.LastPrice)
		if price <= 0 {
			continue
		}
		out = append(out, types.Candidate{
			Symbol:         baseSymbol(st.Symbol, s.cfg.QuoteAsset),
			ContractSymbol: st.Symbol,
			LastPrice:      price,
			QuoteVolume24h: parseFloat(st.QuoteVolume),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].QuoteVolume24h > out[j].QuoteVolume24h
	})
	if len(out) > s.cfg.CandidateLimit {
		out = out[:s.cfg.CandidateLimit]
	}
	return out, nil
}

// Snapshot 为候选币构建只读市场状态：当前价、成交额与各时间级别 K 线。
func (s *Source) Snapshot(ctx context.Context, candidates []types.Candidate) (types.MarketState, error) {
	state := make(types.MarketState, len(candidates))
	for _, c := range candidates {
		entry := types.MarketEntry{
			Symbol:         c.Symbol,
			Price:          c.LastPrice,
			ContractSymbol: c.ContractSymbol,
			QuoteVolume:    c.QuoteVolume24h,
			Indicators:     make(map[string]types.TimeframeData, len(s.cfg.Timeframes)),
		}
		for _, tf := range s.cfg.Timeframes {
			klines, err := s.klines(ctx, c.ContractSymbol, tf)
			if err != nil {
				logger.Warnf("kline 拉取失败 symbol=%s timeframe=%s err=%v", c.ContractSymbol, tf, err)
				continue
			}
			entry.Indicators[tf] = types.TimeframeData{Klines: klines}
		}
		if stats, err := s.change24h(ctx, c.ContractSymbol); err == nil {
			entry.Change24h = stats
		}
		state[c.Symbol] = entry
	}
	return state, nil
}

func (s *Source) klines(ctx context.Context, contract, interval string) ([]types.Kline, error) {
	rows, err := s.client.NewKlinesService().
		Symbol(contract).
		Interval(interval).
		Limit(s.cfg.KlineLimit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Kline, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		out = append(out, types.Kline{
			OpenTime: time.UnixMilli(row.OpenTime),
			Open:     parseFloat(row.Open),
			High:     parseFloat(row.High),
			Low:      parseFloat(row.Low),
			Close:    parseFloat(row.Close),
			Volume:   parseFloat(row.Volume),
		})
	}
	return out, nil
}

func (s *Source) change24h(ctx context.Context, contract string) (float64, error) {
	stats, err := s.client.NewListPriceChangeStatsService().Symbol(contract).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(stats) == 0 || stats[0] == nil {
		return 0, fmt.Errorf("empty stats for %s", contract)
	}
	return parseFloat(stats[0].PriceChangePercent), nil
}

func baseSymbol(contract, quote string) string {
	base := strings.TrimSuffix(contract, quote)
	if base == "" {
		return contract
	}
	return base
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}
