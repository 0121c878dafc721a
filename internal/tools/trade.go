package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"aegis/internal/gateway"
	"aegis/pkg/errors"
	"aegis/pkg/logger"
)

// tradeConfirmation is the wire shape of the trade tool result.
type tradeConfirmation struct {
	Status         string `json:"status"`
	ConfirmationID string `json:"confirmation_id"`
	TickerID       string `json:"ticker_id"`
	Shares         int    `json:"shares"`
	OrderType      string `json:"order_type"`
}

// TradeDescriptor describes the trade-execution tool. It is the only
// SENSITIVE tool; guardrails must approve each call before execution.
func TradeDescriptor() Descriptor {
	return Descriptor{
		Name:        NameTrade,
		Description: "Executes a trade order. HIGH RISK.",
		Parameters: &gateway.ParameterSchema{
			Properties: map[string]gateway.Property{
				"ticker":     {Type: "string", Description: "The stock ticker"},
				"shares":     {Type: "integer", Description: "Number of shares"},
				"order_type": {Type: "string", Description: "Order type", Enum: []string{"BUY", "SELL"}},
			},
			Required: []string{"ticker", "shares", "order_type"},
		},
		Tier: TierSensitive,
	}
}

// ExecuteTradeHandler mocks a brokerage order submission. A real system would
// place the order with a broker API and spend real money.
func ExecuteTradeHandler(ctx context.Context, args Args) (string, error) {
	a := args.(TradeArgs)
	log := logger.Get().With("component", "tool", "tool", NameTrade)

	// Last line of defense: never execute past a cancelled context
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(errors.ErrCancelled, "trade execution aborted")
	}

	log.Warnf("HIGH RISK tool call: execute_trade ticker=%s shares=%d order_type=%s",
		a.Ticker, a.Shares, a.OrderType)

	confirmation := tradeConfirmation{
		Status:         "SUCCESS",
		ConfirmationID: fmt.Sprintf("trade_%d", time.Now().Unix()),
		TickerID:       strings.ToUpper(a.Ticker),
		Shares:         a.Shares,
		OrderType:      a.OrderType,
	}

	payload, err := json.Marshal(confirmation)
	if err != nil {
		return "", errors.Wrap(err, "marshal trade confirmation")
	}

	log.Infof("Simulated trade executed: %s", confirmation.ConfirmationID)
	return string(payload), nil
}
