// Package binance adapts the Binance spot API to the exchange contract.
package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"capfolio/internal/decmath"
	"capfolio/internal/gateway/exchange"
	"capfolio/internal/logger"
	"capfolio/internal/pkg/symbol"
	"capfolio/internal/types"
)

// tradableTTL bounds how long the exchange-info symbol cache is reused.
const tradableTTL = 10 * time.Minute

type Options struct {
	APIKey        string
	APISecret     string
	QuoteSymbol   string
	MinOrderQuote decimal.Decimal
	TakerFee      decimal.Decimal
	MakerFee      decimal.Decimal
	Testnet       bool
}

type Exchange struct {
	client *binance.Client
	cons   exchange.Constants

	mu          sync.Mutex
	tradable    map[string]bool
	tradableExp time.Time
}

func New(opts Options) *Exchange {
	binance.UseTestnet = opts.Testnet
	return &Exchange{
		client: binance.NewClient(opts.APIKey, opts.APISecret),
		cons: exchange.Constants{
			QuoteSymbol:   strings.ToUpper(strings.TrimSpace(opts.QuoteSymbol)),
			MinOrderQuote: opts.MinOrderQuote,
			TakerFee:      opts.TakerFee,
			MakerFee:      opts.MakerFee,
		},
	}
}

func (e *Exchange) Name() string { return "binance" }

func (e *Exchange) Constants() exchange.Constants { return e.cons }

// GetBalance assembles the account snapshot valued at current prices, quote
// asset first. Holdings without a quote market cannot be valued and are
// skipped.
func (e *Exchange) GetBalance(ctx context.Context) (*types.Balance, error) {
	account, err := e.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching account failed: %w", err)
	}
	prices, err := e.priceMap(ctx)
	if err != nil {
		return nil, err
	}

	quote := e.cons.QuoteSymbol
	bal := &types.Balance{}
	quoteAsset := &types.Asset{Symbol: quote, Price: decimal.NewFromInt(1)}
	bal.Assets = append(bal.Assets, quoteAsset)

	for _, b := range account.Balances {
		free, _ := decimal.NewFromString(b.Free)
		locked, _ := decimal.NewFromString(b.Locked)
		amount := free.Add(locked)
		if !amount.IsPositive() {
			continue
		}
		sym := strings.ToUpper(b.Asset)
		if sym == quote {
			quoteAsset.Amount = amount
			quoteAsset.Available = free
			quoteAsset.AmountQuote = amount
			continue
		}
		price, ok := prices[sym+quote]
		if !ok {
			logger.Debugf("no %s market for %s, holding not valued", quote, sym)
			continue
		}
		bal.Assets = append(bal.Assets, &types.Asset{
			Symbol:      sym,
			Price:       price,
			Amount:      amount,
			Available:   free,
			AmountQuote: amount.Mul(price),
		})
	}

	total := decimal.Zero
	for _, a := range bal.Assets {
		total = total.Add(a.AmountQuote)
	}
	bal.AmountQuoteTotal = total
	if total.IsPositive() {
		for _, a := range bal.Assets {
			a.AllocationCurrent, _ = decimal.NewFromString(decmath.Allocation(a.AmountQuote.String(), total.String()))
		}
	}
	return bal, nil
}

// CancelAllOrders sweeps every open order whose base asset is not ignored.
func (e *Exchange) CancelAllOrders(ctx context.Context, ignore map[string]bool) ([]*types.Order, error) {
	open, err := e.client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing open orders failed: %w", err)
	}
	var canceled []*types.Order
	for _, o := range open {
		base := symbol.Parse(o.Symbol).Base
		if ignore[base] {
			continue
		}
		resp, err := e.client.NewCancelOrderService().
			Symbol(o.Symbol).
			OrderID(o.OrderID).
			Do(ctx)
		if err != nil {
			logger.Warnf("canceling order %d on %s failed: %v", o.OrderID, o.Symbol, err)
			continue
		}
		canceled = append(canceled, &types.Order{
			OrderID: strconv.FormatInt(resp.OrderID, 10),
			Market:  symbol.Market(base, e.cons.QuoteSymbol),
			Side:    mapSide(resp.Side),
			Status:  types.StatusCanceled,
		})
	}
	return canceled, nil
}

// Sell places a market sell sized in quote currency. available (base units)
// caps the request so the order can never exceed the spendable position.
func (e *Exchange) Sell(ctx context.Context, sym string, amountQuote decimal.Decimal, simulate bool, available, price decimal.Decimal) (*types.Order, error) {
	if price.IsPositive() && available.IsPositive() {
		maxQuote := available.Mul(price)
		if amountQuote.GreaterThan(maxQuote) {
			amountQuote = maxQuote
		}
	}
	return e.placeMarketOrder(ctx, sym, types.SideSell, amountQuote, simulate)
}

// Buy places a market buy sized in quote currency.
func (e *Exchange) Buy(ctx context.Context, sym string, amountQuote decimal.Decimal, simulate bool) (*types.Order, error) {
	return e.placeMarketOrder(ctx, sym, types.SideBuy, amountQuote, simulate)
}

func (e *Exchange) placeMarketOrder(ctx context.Context, sym string, side types.OrderSide, amountQuote decimal.Decimal, simulate bool) (*types.Order, error) {
	market := symbol.Market(sym, e.cons.QuoteSymbol)
	venueSymbol := symbol.Parse(market).Binance()
	binSide := binance.SideTypeBuy
	if side == types.SideSell {
		binSide = binance.SideTypeSell
	}
	svc := e.client.NewCreateOrderService().
		Symbol(venueSymbol).
		Side(binSide).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(amountQuote.String())

	order := &types.Order{
		Market:      market,
		Side:        side,
		AmountQuote: amountQuote,
	}
	if simulate {
		// Venue-side test order: validated and fee-relevant, never executed.
		if err := svc.Test(ctx); err != nil {
			applyAPIError(order, err)
			return order, nil
		}
		order.Status = types.StatusNew
		return order, nil
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		applyAPIError(order, err)
		return order, nil
	}
	order.OrderID = strconv.FormatInt(resp.OrderID, 10)
	order.Status = mapStatus(resp.Status)
	order.FilledAmount, _ = decimal.NewFromString(resp.ExecutedQuantity)
	order.FilledAmountQuote, _ = decimal.NewFromString(resp.CummulativeQuoteQuantity)
	for _, fill := range resp.Fills {
		fee, _ := decimal.NewFromString(fill.Commission)
		order.FeePaid = order.FeePaid.Add(fee)
	}
	return order, nil
}

func (e *Exchange) GetOrder(ctx context.Context, market, orderID string) (*types.Order, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("order id %q invalid: %w", orderID, err)
	}
	resp, err := e.client.NewGetOrderService().
		Symbol(symbol.Parse(market).Binance()).
		OrderID(id).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	order := &types.Order{
		OrderID: orderID,
		Market:  market,
		Side:    mapSide(resp.Side),
		Status:  mapStatus(resp.Status),
	}
	order.Amount, _ = decimal.NewFromString(resp.OrigQuantity)
	order.FilledAmount, _ = decimal.NewFromString(resp.ExecutedQuantity)
	order.FilledAmountQuote, _ = decimal.NewFromString(resp.CummulativeQuoteQuantity)
	return order, nil
}

func (e *Exchange) CancelOrder(ctx context.Context, market, orderID string) (*types.Order, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("order id %q invalid: %w", orderID, err)
	}
	resp, err := e.client.NewCancelOrderService().
		Symbol(symbol.Parse(market).Binance()).
		OrderID(id).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	return &types.Order{
		OrderID: strconv.FormatInt(resp.OrderID, 10),
		Market:  market,
		Side:    mapSide(resp.Side),
		Status:  types.StatusCanceled,
	}, nil
}

// IsTradable consults a cached exchange-info snapshot.
func (e *Exchange) IsTradable(ctx context.Context, market string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tradable == nil || time.Now().After(e.tradableExp) {
		info, err := e.client.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return false, fmt.Errorf("fetching exchange info failed: %w", err)
		}
		e.tradable = make(map[string]bool, len(info.Symbols))
		for _, s := range info.Symbols {
			e.tradable[s.Symbol] = s.Status == "TRADING"
		}
		e.tradableExp = time.Now().Add(tradableTTL)
	}
	return e.tradable[symbol.Parse(market).Binance()], nil
}

func (e *Exchange) priceMap(ctx context.Context) (map[string]decimal.Decimal, error) {
	list, err := e.client.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching prices failed: %w", err)
	}
	prices := make(map[string]decimal.Decimal, len(list))
	for _, p := range list {
		if d, err := decimal.NewFromString(p.Price); err == nil {
			prices[strings.ToUpper(p.Symbol)] = d
		}
	}
	return prices, nil
}

// applyAPIError records a placement failure on the order instead of failing
// the batch. Venue rejections keep their API code; transport failures carry
// the raw error text. Either way the caller gets the rejected order back.
func applyAPIError(order *types.Order, err error) {
	order.Status = types.StatusRejected
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		order.ErrorCode = int(apiErr.Code)
		order.Error = apiErr.Message
		return
	}
	order.Error = err.Error()
}

func mapSide(side binance.SideType) types.OrderSide {
	if side == binance.SideTypeSell {
		return types.SideSell
	}
	return types.SideBuy
}

func mapStatus(status binance.OrderStatusType) types.OrderStatus {
	switch status {
	case binance.OrderStatusTypeNew:
		return types.StatusNew
	case binance.OrderStatusTypeFilled:
		return types.StatusFilled
	case binance.OrderStatusTypePartiallyFilled:
		return types.StatusPartiallyFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypePendingCancel:
		return types.StatusCanceled
	case binance.OrderStatusTypeExpired:
		return types.StatusExpired
	case binance.OrderStatusTypeRejected:
		return types.StatusRejected
	default:
		return types.OrderStatus(strings.ToLower(string(status)))
	}
}
