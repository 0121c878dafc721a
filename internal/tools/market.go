package tools

import (
	"context"
	"encoding/json"
	"strings"

	"aegis/internal/gateway"
	"aegis/pkg/errors"
)

// marketQuote is the wire shape of the market-data tool result.
type marketQuote struct {
	Ticker        string   `json:"ticker"`
	Price         float64  `json:"price"`
	ChangePercent float64  `json:"change_percent"`
	LatestNews    []string `json:"latest_news"`
}

// MarketDataDescriptor describes the real-time market data tool.
func MarketDataDescriptor() Descriptor {
	return Descriptor{
		Name:        NameMarketData,
		Description: "Gets the real-time market data for a given ticker.",
		Parameters: &gateway.ParameterSchema{
			Properties: map[string]gateway.Property{
				"ticker": {Type: "string", Description: "The stock ticker symbol (e.g., 'NVDA')."},
			},
			Required: []string{"ticker"},
		},
		Tier: TierSafe,
	}
}

// MarketDataHandler mocks a real-time financial data feed. NVDA carries a
// deliberately unconfirmed rumor headline so downstream verification has
// something to catch; unknown tickers return a zeroed generic payload rather
// than an error.
func MarketDataHandler(_ context.Context, args Args) (string, error) {
	a := args.(MarketDataArgs)
	ticker := strings.ToUpper(a.Ticker)

	quote := marketQuote{
		Ticker:        ticker,
		Price:         0.00,
		ChangePercent: 0.00,
		LatestNews:    []string{"Market data for this ticker is generic/mocked."},
	}

	if ticker == "NVDA" {
		quote = marketQuote{
			Ticker:        ticker,
			Price:         915.75,
			ChangePercent: -1.25,
			LatestNews: []string{
				"NVIDIA announces new AI chip architecture, Blackwell, promising 2x performance increase.",
				"Analysts raise price targets for NVDA following strong quarterly earnings report.",
				"Social media rumor about NVDA product recall circulates, but remains unconfirmed by official sources.",
			},
		}
	}

	payload, err := json.Marshal(quote)
	if err != nil {
		return "", errors.Wrap(err, "marshal market data")
	}
	return string(payload), nil
}
