package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestCategoryTablesExhaustive(t *testing.T) {
	if len(categoryInfo) != len(categories)+1 {
		t.Fatalf("categoryInfo has %d entries, want %d", len(categoryInfo), len(categories)+1)
	}
	seen := make(map[string]bool)
	for _, c := range Categories() {
		if !c.Valid() {
			t.Errorf("%d: not valid", c)
		}
		if c.Event() == "" {
			t.Errorf("%s: missing event tag", c)
		}
		if seen[c.Event()] {
			t.Errorf("%s: duplicate event tag %q", c, c.Event())
		}
		seen[c.Event()] = true
		if got := ParseEvent(c.Event()); got != c {
			t.Errorf("ParseEvent(%q) = %s, want %s", c.Event(), got, c)
		}
		got, err := ParseCategory(c.String())
		if err != nil || got != c {
			t.Errorf("ParseCategory(%q) = %s, %v", c.String(), got, err)
		}
	}
}

func TestBootstrapCategories(t *testing.T) {
	cats := BootstrapCategories()
	if len(cats) != BootstrapCount {
		t.Fatalf("len = %d, want %d", len(cats), BootstrapCount)
	}
	if cats[0] != CurrencyPairs || cats[BootstrapCount-1] != CountryCodes {
		t.Errorf("unexpected order: %v", cats)
	}
	for _, c := range cats {
		if c == LatestTrades {
			t.Error("latest trades is not loaded at bootstrap")
		}
	}
}

func TestParseEvent_Unknown(t *testing.T) {
	if got := ParseEvent("FOO"); got != Unknown {
		t.Errorf("ParseEvent(FOO) = %s, want unknown", got)
	}
	if Unknown.Valid() {
		t.Error("Unknown should not be valid")
	}
	if Category(200).String() != "category(200)" {
		t.Errorf("String() = %q", Category(200).String())
	}
}

func TestParseCategory_Error(t *testing.T) {
	_, err := ParseCategory("bogus")
	if !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestCategoryFlags(t *testing.T) {
	if !CountryCodes.PollOnly() || SellVolume.PollOnly() {
		t.Error("only country codes are poll-only")
	}
	if !LatestTrades.Incremental() || BuyValue.Incremental() {
		t.Error("only latest trades are incremental")
	}
}

func TestTimestamp_Unmarshal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"plain string", `"16-Jun-12 13:40:18"`, time.Date(2012, 6, 16, 13, 40, 18, 0, time.UTC)},
		{"date object", `{"$date":"2015-03-01T10:00:00Z"}`, time.Date(2015, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"null", `null`, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			if err := json.Unmarshal([]byte(tt.input), &ts); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !ts.Equal(tt.want) {
				t.Errorf("got %v, want %v", ts.Time, tt.want)
			}
		})
	}

	var ts Timestamp
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Error("expected error for unparseable time")
	}
}

func TestTrade_Decode(t *testing.T) {
	raw := `{"userId":"134256","currencyFrom":"EUR","currencyTo":"GBP","amountSell":1000,"amountBuy":747.1,"rate":0.7471,"timePlaced":"24-Jan-15 10:27:44","originatingCountry":"FR"}`
	var tr Trade
	if err := json.Unmarshal([]byte(raw), &tr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tr.CurrencyFrom != "EUR" || tr.AmountBuy != 747.1 || tr.TimePlaced.Year() != 2015 {
		t.Errorf("unexpected trade: %+v", tr)
	}
	if (CurrencyPair{CurrencyFrom: "EUR", CurrencyTo: "GBP"}).Label() != "EUR-GBP" {
		t.Error("unexpected pair label")
	}
}

func TestCountryVolumeRow_Decode(t *testing.T) {
	var rows []CountryVolumeRow
	if err := json.Unmarshal([]byte(`[{"country":"FR","volume":12},{"country":"IE","volume":3}]`), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows) != 2 || rows[0].Country != "FR" || rows[1].Volume != 3 {
		t.Errorf("rows = %+v", rows)
	}
	if CountryVolume.String() != "country_volume" {
		t.Errorf("CountryVolume.String() = %q", CountryVolume.String())
	}
}
