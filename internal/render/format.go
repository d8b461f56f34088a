package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rickgao/tradewatch/internal/model"
)

var ErrNoFormatter = errors.New("no formatter for category")

type formatFunc func(p *message.Printer, payloads []json.RawMessage) (Fragment, error)

// formatters must have an entry for every model.Category.
var formatters = map[model.Category]formatFunc{
	model.LatestTrades:  formatTrades,
	model.SellVolume:    formatCurrencyVolumes,
	model.SellValue:     formatCurrencyValues,
	model.BuyVolume:     formatCurrencyVolumes,
	model.BuyValue:      formatCurrencyValues,
	model.CountryVolume: formatCountryVolumes,
	model.CurrencyPairs: formatCurrencyPairs,
	model.CountryCodes:  formatCountryCodes,
}

// Format is the default Formatter.
func Format(cat model.Category, payloads []json.RawMessage) (Fragment, error) {
	fn, ok := formatters[cat]
	if !ok {
		return Fragment{}, fmt.Errorf("%w: %s", ErrNoFormatter, cat)
	}
	frag, err := fn(message.NewPrinter(language.English), payloads)
	if err != nil {
		return Fragment{}, fmt.Errorf("format %s: %w", cat, err)
	}
	frag.Title = cat.Title()
	return frag, nil
}

// HasFormatter reports whether Format supports cat.
func HasFormatter(cat model.Category) bool {
	_, ok := formatters[cat]
	return ok
}

// Money formats an amount as "$1,234.56".
func Money(v float64) string {
	return message.NewPrinter(language.English).Sprintf("$%.2f", v)
}

// Count formats an integer with thousands separators.
func Count(v int64) string {
	return message.NewPrinter(language.English).Sprintf("%d", v)
}

// latest returns the last payload; aggregate lanes only care about the newest snapshot.
func latest(payloads []json.RawMessage) json.RawMessage {
	if len(payloads) == 0 {
		return nil
	}
	return payloads[len(payloads)-1]
}

func decodeLatest[T any](payloads []json.RawMessage) ([]T, error) {
	raw := latest(payloads)
	if raw == nil {
		return nil, nil
	}
	var rows []T
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// formatTrades renders every payload, newest first. A payload may be a
// single pushed trade or a polled list of trades.
func formatTrades(p *message.Printer, payloads []json.RawMessage) (Fragment, error) {
	var trades []model.Trade
	for _, raw := range payloads {
		var list []model.Trade
		if err := json.Unmarshal(raw, &list); err == nil {
			trades = append(trades, list...)
			continue
		}
		var one model.Trade
		if err := json.Unmarshal(raw, &one); err != nil {
			return Fragment{}, err
		}
		trades = append(trades, one)
	}

	frag := Fragment{
		Columns: []string{"Placed", "User", "Sell", "Buy", "Rate", "Country"},
		Rows:    make([][]string, 0, len(trades)),
	}
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		placed := ""
		if !t.TimePlaced.IsZero() {
			placed = t.TimePlaced.Format("02 Jan 15:04:05")
		}
		frag.Rows = append(frag.Rows, []string{
			placed,
			t.UserID,
			p.Sprintf("%.2f %s", t.AmountSell, t.CurrencyFrom),
			p.Sprintf("%.2f %s", t.AmountBuy, t.CurrencyTo),
			p.Sprintf("%.4f", t.Rate),
			t.OriginatingCountry,
		})
	}
	return frag, nil
}

func formatCurrencyVolumes(p *message.Printer, payloads []json.RawMessage) (Fragment, error) {
	rows, err := decodeLatest[model.CurrencyVolume](payloads)
	if err != nil {
		return Fragment{}, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Volume > rows[j].Volume })

	frag := Fragment{Columns: []string{"Currency", "Trades"}}
	for _, r := range rows {
		frag.Rows = append(frag.Rows, []string{r.Currency, p.Sprintf("%d", r.Volume)})
		frag.Series = append(frag.Series, Point{Label: r.Currency, Value: float64(r.Volume)})
	}
	return frag, nil
}

func formatCurrencyValues(p *message.Printer, payloads []json.RawMessage) (Fragment, error) {
	rows, err := decodeLatest[model.CurrencyValue](payloads)
	if err != nil {
		return Fragment{}, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Value > rows[j].Value })

	frag := Fragment{Columns: []string{"Currency", "Value"}}
	for _, r := range rows {
		frag.Rows = append(frag.Rows, []string{r.Currency, p.Sprintf("$%.2f", r.Value)})
		frag.Series = append(frag.Series, Point{Label: r.Currency, Value: r.Value})
	}
	return frag, nil
}

func formatCountryVolumes(p *message.Printer, payloads []json.RawMessage) (Fragment, error) {
	rows, err := decodeLatest[model.CountryVolumeRow](payloads)
	if err != nil {
		return Fragment{}, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Volume > rows[j].Volume })

	var total int64
	for _, r := range rows {
		total += r.Volume
	}

	frag := Fragment{Columns: []string{"Country", "Trades", "Share"}}
	for _, r := range rows {
		share := 0.0
		if total > 0 {
			share = float64(r.Volume) * 100 / float64(total)
		}
		frag.Rows = append(frag.Rows, []string{r.Country, p.Sprintf("%d", r.Volume), fmt.Sprintf("%.1f%%", share)})
		frag.Series = append(frag.Series, Point{Label: r.Country, Value: float64(r.Volume)})
	}
	return frag, nil
}

func formatCurrencyPairs(p *message.Printer, payloads []json.RawMessage) (Fragment, error) {
	rows, err := decodeLatest[model.CurrencyPair](payloads)
	if err != nil {
		return Fragment{}, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Volume > rows[j].Volume })

	frag := Fragment{Columns: []string{"Pair", "Trades"}}
	for _, r := range rows {
		frag.Rows = append(frag.Rows, []string{r.Label(), p.Sprintf("%d", r.Volume)})
		frag.Series = append(frag.Series, Point{Label: r.Label(), Value: float64(r.Volume)})
	}
	return frag, nil
}

func formatCountryCodes(_ *message.Printer, payloads []json.RawMessage) (Fragment, error) {
	codes, err := decodeLatest[string](payloads)
	if err != nil {
		return Fragment{}, err
	}
	sort.Strings(codes)

	frag := Fragment{Columns: []string{"Country"}}
	for _, c := range codes {
		frag.Rows = append(frag.Rows, []string{c})
	}
	return frag, nil
}
