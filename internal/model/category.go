package model

import (
	"errors"
	"fmt"
)

// ErrUnknownCategory is returned when a name or tag does not map to a Category.
var ErrUnknownCategory = errors.New("unknown category")

// Category identifies one independently batched data stream.
type Category uint8

const (
	Unknown Category = iota
	LatestTrades
	SellVolume
	SellValue
	BuyVolume
	BuyValue
	CountryVolume
	CurrencyPairs
	CountryCodes
)

// categoryInfo is indexed by Category. A new category must be added here and to
// categories below; TestCategoryTablesExhaustive checks the other tables.
var categoryInfo = [...]struct {
	name  string
	event string
	title string
}{
	Unknown:       {"unknown", "", "Unknown"},
	LatestTrades:  {"latest_trades", "TRADE_PERSISTED", "Latest trades"},
	SellVolume:    {"sell_volume", "CURRENCIES_SOLD_VOLUME", "Currencies sold by volume"},
	SellValue:     {"sell_value", "CURRENCIES_SOLD_VALUE", "Currencies sold by value"},
	BuyVolume:     {"buy_volume", "CURRENCIES_BOUGHT_VOLUME", "Currencies bought by volume"},
	BuyValue:      {"buy_value", "CURRENCIES_BOUGHT_VALUE", "Currencies bought by value"},
	CountryVolume: {"country_volume", "COUNTRIES_VOLUME", "Sales volume by country"},
	CurrencyPairs: {"currency_pairs", "CURRENCY_PAIRS", "Currency pairs by volume"},
	CountryCodes:  {"country_codes", "COUNTRY_CODES", "Trading countries"},
}

var categories = [...]Category{
	LatestTrades,
	SellVolume,
	SellValue,
	BuyVolume,
	BuyValue,
	CountryVolume,
	CurrencyPairs,
	CountryCodes,
}

// BootstrapCount is the number of categories loaded once at dashboard start.
const BootstrapCount = 7

// bootstrapOrder is the order of the staggered initial loads.
var bootstrapOrder = [BootstrapCount]Category{
	CurrencyPairs,
	CountryVolume,
	SellVolume,
	SellValue,
	BuyVolume,
	BuyValue,
	CountryCodes,
}

// Categories returns every valid category in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories[:])
	return out
}

// BootstrapCategories returns the categories loaded at startup, in load order.
func BootstrapCategories() []Category {
	out := make([]Category, len(bootstrapOrder))
	copy(out, bootstrapOrder[:])
	return out
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c > Unknown && int(c) < len(categoryInfo)
}

// String returns the snake_case name used in config files and logs.
func (c Category) String() string {
	if int(c) < len(categoryInfo) {
		return categoryInfo[c].name
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// Event returns the push frame tag for c.
func (c Category) Event() string {
	if !c.Valid() {
		return ""
	}
	return categoryInfo[c].event
}

// Title returns a human readable panel title.
func (c Category) Title() string {
	if !c.Valid() {
		return categoryInfo[Unknown].title
	}
	return categoryInfo[c].title
}

// PollOnly reports whether c is never delivered over the push channel.
func (c Category) PollOnly() bool {
	return c == CountryCodes
}

// Incremental reports whether a pushed payload for c is a single new item
// rather than a full snapshot of the category.
func (c Category) Incremental() bool {
	return c == LatestTrades
}

// ParseEvent maps a push frame tag to its Category. Unrecognized tags map to Unknown.
func ParseEvent(tag string) Category {
	for _, c := range categories {
		if categoryInfo[c].event == tag {
			return c
		}
	}
	return Unknown
}

// ParseCategory maps a config name (e.g. "sell_volume") to its Category.
func ParseCategory(name string) (Category, error) {
	for _, c := range categories {
		if categoryInfo[c].name == name {
			return c, nil
		}
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
}
