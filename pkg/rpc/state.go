package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/worth-network/worthx/pkg/normalize"
)

var million = decimal.NewFromInt(1_000_000)

func (c *HTTPClient) dgpo(ctx context.Context) (*DynamicGlobalProperties, json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.call(ctx, methodGetDGPO, []any{}, &raw); err != nil {
		return nil, nil, err
	}
	var props DynamicGlobalProperties
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, nil, fmt.Errorf("decode dgpo: %w", err)
	}
	return &props, raw, nil
}

// HeadBlock returns the head block number.
func (c *HTTPClient) HeadBlock(ctx context.Context) (uint64, error) {
	props, _, err := c.dgpo(ctx)
	if err != nil {
		return 0, err
	}
	return props.HeadBlockNumber, nil
}

// LastIrreversible returns the last irreversible block number.
func (c *HTTPClient) LastIrreversible(ctx context.Context) (uint64, error) {
	props, _, err := c.dgpo(ctx)
	if err != nil {
		return 0, err
	}
	return props.LastIrreversibleBlockNum, nil
}

// GDGPExtended returns dgpo together with the derived vest and market prices.
func (c *HTTPClient) GDGPExtended(ctx context.Context) (*ChainProperties, error) {
	props, raw, err := c.dgpo(ctx)
	if err != nil {
		return nil, err
	}
	perMVest, err := worthPerMVest(props)
	if err != nil {
		return nil, err
	}
	usd, err := c.feedPrice(ctx)
	if err != nil {
		return nil, err
	}
	wbd, err := c.marketPrice(ctx)
	if err != nil {
		return nil, err
	}
	return &ChainProperties{
		DGPO:          raw,
		Head:          props.HeadBlockNumber,
		WorthPerMVest: perMVest,
		UsdPerWorth:   usd,
		WbdPerWorth:   wbd,
	}, nil
}

func worthPerMVest(props *DynamicGlobalProperties) (decimal.Decimal, error) {
	fund, err := normalize.AmountOf(props.TotalVestingFundWorth, normalize.WORTH)
	if err != nil {
		return decimal.Zero, fmt.Errorf("total_vesting_fund_worth: %w", err)
	}
	shares, err := normalize.AmountOf(props.TotalVestingShares, normalize.VESTS)
	if err != nil {
		return decimal.Zero, fmt.Errorf("total_vesting_shares: %w", err)
	}
	mvests := shares.Div(million)
	if mvests.IsZero() {
		return decimal.Zero, nil
	}
	return fund.Div(mvests).Round(6), nil
}

// feedPrice is the median feed: WBD per WORTH.
func (c *HTTPClient) feedPrice(ctx context.Context) (decimal.Decimal, error) {
	var feed struct {
		CurrentMedianHistory struct {
			Base  json.RawMessage `json:"base"`
			Quote json.RawMessage `json:"quote"`
		} `json:"current_median_history"`
	}
	if err := c.call(ctx, methodGetFeedHistory, []any{}, &feed); err != nil {
		return decimal.Zero, err
	}
	units := map[string]decimal.Decimal{}
	for _, raw := range []json.RawMessage{feed.CurrentMedianHistory.Base, feed.CurrentMedianHistory.Quote} {
		amt, sym, err := normalize.ParseAmount(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("feed history: %w", err)
		}
		units[sym] = amt
	}
	if units[normalize.WORTH].IsZero() {
		return decimal.Zero, nil
	}
	return units[normalize.WBD].Div(units[normalize.WORTH]).Round(6), nil
}

// marketPrice is the internal market midpoint between best ask and bid.
func (c *HTTPClient) marketPrice(ctx context.Context) (decimal.Decimal, error) {
	var book struct {
		Asks []struct {
			RealPrice string `json:"real_price"`
		} `json:"asks"`
		Bids []struct {
			RealPrice string `json:"real_price"`
		} `json:"bids"`
	}
	if err := c.call(ctx, methodGetOrderBook, []any{1}, &book); err != nil {
		return decimal.Zero, err
	}
	if len(book.Asks) == 0 || len(book.Bids) == 0 {
		return decimal.Zero, nil
	}
	ask, err := decimal.NewFromString(book.Asks[0].RealPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("order book ask: %w", err)
	}
	bid, err := decimal.NewFromString(book.Bids[0].RealPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("order book bid: %w", err)
	}
	return ask.Add(bid).Div(decimal.NewFromInt(2)).Round(6), nil
}
