package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/tradewatch/internal/model"
)

var (
	ErrNoEndpoint = errors.New("no endpoint for category")
	ErrNoData     = errors.New("response has no data field")
)

// endpoints maps every category to its poll path.
var endpoints = map[model.Category]string{
	model.LatestTrades:  "/latest",
	model.SellVolume:    "/sellvolume",
	model.SellValue:     "/sellvalue",
	model.BuyVolume:     "/buyvolume",
	model.BuyValue:      "/buyvalue",
	model.CountryVolume: "/countriesvolume",
	model.CurrencyPairs: "/currencypair",
	model.CountryCodes:  "/countrycodes",
}

const (
	PathMockTrade  = "/mocktrade"
	PathBulkTrades = "/bulktrades"
)

// Endpoint returns the poll path of a category.
func Endpoint(cat model.Category) (string, error) {
	path, ok := endpoints[cat]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoEndpoint, cat)
	}
	return path, nil
}

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

// FetchCategory loads the current payload of a category.
func (c *Client) FetchCategory(ctx context.Context, cat model.Category) (json.RawMessage, error) {
	path, err := Endpoint(cat)
	if err != nil {
		return nil, err
	}

	var resp dataResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", cat, err)
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil, fmt.Errorf("fetch %s: %w", cat, ErrNoData)
	}
	return resp.Data, nil
}

// PlaceRandomTrade asks the service to persist one random trade and returns it.
func (c *Client) PlaceRandomTrade(ctx context.Context) (model.Trade, error) {
	var resp struct {
		Event string      `json:"event"`
		Data  model.Trade `json:"data"`
	}
	if err := c.post(ctx, PathMockTrade, &resp); err != nil {
		return model.Trade{}, fmt.Errorf("place trade: %w", err)
	}
	return resp.Data, nil
}

// PlaceBulkTrades asks the service to persist a batch of random trades and
// returns how many were placed.
func (c *Client) PlaceBulkTrades(ctx context.Context) (int, error) {
	var n int
	if err := c.post(ctx, PathBulkTrades, &n); err != nil {
		return 0, fmt.Errorf("place bulk trades: %w", err)
	}
	return n, nil
}
