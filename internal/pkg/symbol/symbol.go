// Package symbol normalizes market symbol handling between the internal
// BASE/QUOTE form and venue-native forms.
package symbol

import "strings"

type Symbol struct {
	Base  string
	Quote string
}

// Internal renders the canonical "BASE/QUOTE" form.
func (s Symbol) Internal() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

// Binance renders the concatenated venue form ("BTCUSDT").
func (s Symbol) Binance() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

// Market builds the internal market name for a base asset against a quote
// currency.
func Market(base, quote string) string {
	return Symbol{Base: normalize(base), Quote: normalize(quote)}.Internal()
}

// Parse accepts "BASE/QUOTE" or a concatenated venue symbol with a known
// quote suffix.
func Parse(s string) Symbol {
	s = normalize(s)
	if s == "" {
		return Symbol{}
	}
	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{Base: strings.TrimSpace(parts[0]), Quote: strings.TrimSpace(parts[1])}
	}
	quoteCurrencies := []string{"USDT", "BUSD", "USDC", "TUSD", "EUR", "BTC", "ETH", "BNB"}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{Base: s[:len(s)-len(quote)], Quote: quote}
		}
	}
	return Symbol{Base: s}
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
