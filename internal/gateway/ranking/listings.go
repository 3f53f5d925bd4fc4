package ranking

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"capfolio/internal/logger"
	"capfolio/internal/types"
)

const listingsTimeout = 15 * time.Second

// historyDays caps how much recorded history is attached per asset; the
// smoothing window is far shorter, the rest is slack for gap detection.
const historyDays = 100

// HistoryStore records one market-cap observation per asset per calendar day
// and returns the recorded series newest-first.
type HistoryStore interface {
	RecordCap(symbol string, day time.Time, cap decimal.Decimal) error
	CapHistory(symbol string, limit int) ([]types.CapPoint, error)
}

// ListingsClient fetches a CoinMarketCap-style listings endpoint and joins
// each entry with the locally recorded daily cap series.
type ListingsClient struct {
	endpoint string
	apiKey   string
	currency string
	limit    int
	history  HistoryStore
	client   *http.Client
}

func NewListingsClient(endpoint, apiKey, currency string, limit int, history HistoryStore) *ListingsClient {
	return &ListingsClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		currency: strings.ToUpper(strings.TrimSpace(currency)),
		limit:    limit,
		history:  history,
		client:   &http.Client{Timeout: listingsTimeout},
	}
}

func (c *ListingsClient) ListLatest(ctx context.Context) ([]types.RankedAsset, error) {
	body, err := c.fetch(ctx)
	if err != nil {
		return nil, &ProviderError{Provider: "listings", Err: err}
	}
	assets, err := c.parse(body)
	if err != nil {
		return nil, &ProviderError{Provider: "listings", Err: err}
	}
	c.attachHistory(assets)
	return assets, nil
}

func (c *ListingsClient) fetch(ctx context.Context) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("limit", fmt.Sprintf("%d", c.limit))
	q.Set("convert", c.currency)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *ListingsClient) parse(body []byte) ([]types.RankedAsset, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid json")
	}
	root := gjson.ParseBytes(body)
	if msg := root.Get("status.error_message"); msg.Exists() && msg.String() != "" {
		return nil, fmt.Errorf("api error: %s", msg.String())
	}
	data := root.Get("data")
	if !data.IsArray() {
		return nil, fmt.Errorf("response data is not an array")
	}

	capPath := "quote." + c.currency + ".market_cap"
	var assets []types.RankedAsset
	data.ForEach(func(_, item gjson.Result) bool {
		sym := strings.ToUpper(strings.TrimSpace(item.Get("symbol").String()))
		if sym == "" {
			return true
		}
		cap, err := decimal.NewFromString(item.Get(capPath).Raw)
		if err != nil || !cap.IsPositive() {
			cap = decimal.Zero
		}
		var tags []string
		item.Get("tags").ForEach(func(_, tag gjson.Result) bool {
			if t := strings.ToLower(strings.TrimSpace(tag.String())); t != "" {
				tags = append(tags, t)
			}
			return true
		})
		assets = append(assets, types.RankedAsset{
			Symbol:    sym,
			Tags:      tags,
			MarketCap: cap,
		})
		return true
	})
	if len(assets) == 0 {
		return nil, fmt.Errorf("no assets in response")
	}
	return assets, nil
}

// attachHistory records today's observation and loads the recorded series.
// History failures degrade to raw caps instead of failing the listing.
func (c *ListingsClient) attachHistory(assets []types.RankedAsset) {
	if c.history == nil {
		return
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	for i := range assets {
		a := &assets[i]
		if a.MarketCap.IsPositive() {
			if err := c.history.RecordCap(a.Symbol, today, a.MarketCap); err != nil {
				logger.Warnf("recording cap for %s failed: %v", a.Symbol, err)
			}
		}
		series, err := c.history.CapHistory(a.Symbol, historyDays)
		if err != nil {
			logger.Warnf("loading cap history for %s failed: %v", a.Symbol, err)
			continue
		}
		a.History = series
	}
}
