// Package symbol converts between the engine's canonical symbol form and
// per-venue contract names. The engine keys everything by the concatenated
// upper-case pair (BTCUSDT); Binance and Bybit take that form directly,
// Gate names its futures contracts with an underscore (BTC_USDT).
package symbol

import "strings"

type Format string

const (
	FormatCanonical Format = "canonical"
	FormatBinance   Format = "binance"
	FormatGate      Format = "gate"
	FormatBybit     Format = "bybit"
)

// Converter renders canonical symbols for one venue and folds the venue's
// raw names back into canonical form.
type Converter interface {
	ToExchange(canonical string) string

	FromExchange(raw string) string

	Format() Format
}

// Symbol is one parsed base/quote pair.
type Symbol struct {
	Base  string
	Quote string
}

// Canonical is the concatenated form the engine persists and quotes by.
func (s Symbol) Canonical() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

// Underscored is the Gate futures contract form.
func (s Symbol) Underscored() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "_" + s.Quote
}

// Known quote currencies, checked in order so BTCUSDT splits at USDT and
// not at BTC.
var quoteCurrencies = []string{"USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB"}

// Parse splits any accepted spelling: canonical (BTCUSDT), slash or
// underscore separated (BTC/USDT, BTC_USDT), with an optional settlement
// suffix after a colon (BTC/USDT:USDT). Unrecognized input parses empty.
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}

	for _, sep := range []string{"/", "_"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			return Symbol{
				Base:  strings.TrimSpace(parts[0]),
				Quote: strings.TrimSpace(parts[1]),
			}
		}
	}

	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  strings.TrimSuffix(s, quote),
				Quote: quote,
			}
		}
	}

	return Symbol{}
}

// Normalize renders any spelling canonically. Input that does not parse
// into a known pair falls back to the trimmed upper-case original so odd
// venue listings stay addressable.
func Normalize(s string) string {
	if c := Parse(s).Canonical(); c != "" {
		return c
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// concatConverter covers the venues that accept the canonical form as is.
type concatConverter struct {
	format Format
}

func (c concatConverter) ToExchange(canonical string) string {
	return Normalize(canonical)
}

func (c concatConverter) FromExchange(raw string) string {
	return Normalize(raw)
}

func (c concatConverter) Format() Format {
	return c.format
}

// gateConverter inserts the underscore Gate contract names carry.
type gateConverter struct{}

func (gateConverter) ToExchange(canonical string) string {
	if u := Parse(canonical).Underscored(); u != "" {
		return u
	}
	return strings.ToUpper(strings.TrimSpace(canonical))
}

func (gateConverter) FromExchange(raw string) string {
	return Normalize(raw)
}

func (gateConverter) Format() Format {
	return FormatGate
}

var (
	Binance Converter = concatConverter{format: FormatBinance}
	Bybit   Converter = concatConverter{format: FormatBybit}
	Gate    Converter = gateConverter{}
)
