package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Trade is a single persisted currency trade.
type Trade struct {
	UserID             string    `json:"userId"`
	CurrencyFrom       string    `json:"currencyFrom"`
	CurrencyTo         string    `json:"currencyTo"`
	AmountSell         float64   `json:"amountSell"`
	AmountBuy          float64   `json:"amountBuy"`
	Rate               float64   `json:"rate"`
	TimePlaced         Timestamp `json:"timePlaced"`
	OriginatingCountry string    `json:"originatingCountry"`
	ReceptionDate      Timestamp `json:"receptionDate,omitempty"`
}

// CurrencyVolume is one row of the sold/bought volume aggregates.
type CurrencyVolume struct {
	Currency string `json:"currency"`
	Volume   int64  `json:"volume"`
}

// CurrencyValue is one row of the sold/bought value aggregates.
type CurrencyValue struct {
	Currency string  `json:"currency"`
	Value    float64 `json:"value"`
}

// CountryVolumeRow is the number of trades originating from a country.
type CountryVolumeRow struct {
	Country string `json:"country"`
	Volume  int64  `json:"volume"`
}

// CurrencyPair is the number of trades for one from/to currency pair.
type CurrencyPair struct {
	CurrencyFrom string `json:"currencyFrom"`
	CurrencyTo   string `json:"currencyTo"`
	Volume       int64  `json:"volume"`
}

// Label returns the pair as "FROM-TO".
func (p CurrencyPair) Label() string {
	return p.CurrencyFrom + "-" + p.CurrencyTo
}

// TimePlacedLayout is the layout of trade placement times sent by the upstream.
const TimePlacedLayout = "02-Jan-06 15:04:05"

// Timestamp decodes either a plain "02-Jan-06 15:04:05" string or a
// {"$date": "<RFC3339>"} object, both of which the upstream emits.
type Timestamp struct {
	time.Time
}

type dateObject struct {
	Date string `json:"$date"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	var raw string
	if data[0] == '{' {
		var obj dateObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		raw = obj.Date
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}

	for _, layout := range []string{time.RFC3339Nano, TimePlacedLayout} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	_, err := time.Parse(time.RFC3339Nano, raw)
	return err
}

// MarshalJSON writes the {"$date": ...} form.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(dateObject{Date: t.UTC().Format(time.RFC3339Nano)})
}
