package devfeed

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/tradewatch/internal/model"
)

var (
	currencies = []string{"EUR", "GBP", "USD", "JPY", "CHF", "AUD", "CAD"}
	countries  = []string{"IE", "GB", "FR", "DE", "US", "JP", "ES", "IT", "AU", "CA"}

	// Units of each currency per EUR.
	eurRates = map[string]float64{
		"EUR": 1,
		"GBP": 0.85,
		"USD": 1.08,
		"JPY": 161.2,
		"CHF": 0.95,
		"AUD": 1.64,
		"CAD": 1.47,
	}
)

// DefaultLatestSize is how many trades GET /latest returns.
const DefaultLatestSize = 50

// Generator places random trades and keeps the running aggregates.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time

	latest     []model.Trade
	latestSize int
	total      int64

	soldVolume   map[string]int64
	soldValue    map[string]float64
	boughtVolume map[string]int64
	boughtValue  map[string]float64
	countryVol   map[string]int64
	pairs        map[[2]string]int64
}

// NewGenerator creates a generator. The same seed yields the same trade sequence
// apart from user IDs and timestamps.
func NewGenerator(seed uint64) *Generator {
	return &Generator{
		rng:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:          time.Now,
		latestSize:   DefaultLatestSize,
		soldVolume:   make(map[string]int64),
		soldValue:    make(map[string]float64),
		boughtVolume: make(map[string]int64),
		boughtValue:  make(map[string]float64),
		countryVol:   make(map[string]int64),
		pairs:        make(map[[2]string]int64),
	}
}

// Place creates one random trade and folds it into the aggregates.
func (g *Generator) Place() model.Trade {
	g.mu.Lock()
	defer g.mu.Unlock()

	from := currencies[g.rng.IntN(len(currencies))]
	to := currencies[g.rng.IntN(len(currencies))]
	for to == from {
		to = currencies[g.rng.IntN(len(currencies))]
	}

	// Rate drifts up to 1% around the reference cross rate.
	rate := eurRates[to] / eurRates[from] * (0.99 + g.rng.Float64()*0.02)
	sell := math.Round((10+g.rng.Float64()*4990)*100) / 100
	now := g.now().UTC().Truncate(time.Second)

	t := model.Trade{
		UserID:             uuid.NewString(),
		CurrencyFrom:       from,
		CurrencyTo:         to,
		AmountSell:         sell,
		AmountBuy:          math.Round(sell*rate*100) / 100,
		Rate:               math.Round(rate*10000) / 10000,
		TimePlaced:         model.Timestamp{Time: now},
		OriginatingCountry: countries[g.rng.IntN(len(countries))],
		ReceptionDate:      model.Timestamp{Time: now},
	}

	g.latest = append(g.latest, t)
	if len(g.latest) > g.latestSize {
		g.latest = g.latest[len(g.latest)-g.latestSize:]
	}
	g.total++

	g.soldVolume[t.CurrencyFrom]++
	g.soldValue[t.CurrencyFrom] += t.AmountSell
	g.boughtVolume[t.CurrencyTo]++
	g.boughtValue[t.CurrencyTo] += t.AmountBuy
	g.countryVol[t.OriginatingCountry]++
	g.pairs[[2]string{t.CurrencyFrom, t.CurrencyTo}]++

	return t
}

// Total returns how many trades have been placed.
func (g *Generator) Total() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.total
}

// Payload returns the current data of a category, shaped as the REST and push
// channels send it.
func (g *Generator) Payload(cat model.Category) any {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch cat {
	case model.LatestTrades:
		out := make([]model.Trade, len(g.latest))
		copy(out, g.latest)
		return out
	case model.SellVolume:
		return volumes(g.soldVolume)
	case model.SellValue:
		return values(g.soldValue)
	case model.BuyVolume:
		return volumes(g.boughtVolume)
	case model.BuyValue:
		return values(g.boughtValue)
	case model.CountryVolume:
		out := make([]model.CountryVolumeRow, 0, len(g.countryVol))
		for c, v := range g.countryVol {
			out = append(out, model.CountryVolumeRow{Country: c, Volume: v})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Country < out[j].Country })
		return out
	case model.CurrencyPairs:
		out := make([]model.CurrencyPair, 0, len(g.pairs))
		for p, v := range g.pairs {
			out = append(out, model.CurrencyPair{CurrencyFrom: p[0], CurrencyTo: p[1], Volume: v})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Label() < out[j].Label() })
		return out
	case model.CountryCodes:
		out := make([]string, len(countries))
		copy(out, countries)
		return out
	default:
		return nil
	}
}

func volumes(m map[string]int64) []model.CurrencyVolume {
	out := make([]model.CurrencyVolume, 0, len(m))
	for c, v := range m {
		out = append(out, model.CurrencyVolume{Currency: c, Volume: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

func values(m map[string]float64) []model.CurrencyValue {
	out := make([]model.CurrencyValue, 0, len(m))
	for c, v := range m {
		out = append(out, model.CurrencyValue{Currency: c, Value: math.Round(v*100) / 100})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}
