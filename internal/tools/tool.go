package tools

import (
	"context"

	"aegis/internal/gateway"
)

// RiskTier classifies a tool by the harm its execution can cause.
type RiskTier string

const (
	// TierSafe marks read-only tools; guardrails auto-approve them
	TierSafe RiskTier = "SAFE"

	// TierSensitive marks state-changing tools; guardrails run the full
	// validation pipeline before execution
	TierSensitive RiskTier = "SENSITIVE"
)

// Tool names form a fixed, closed set loaded at startup.
const (
	NameResearch   = "query_10K_report"
	NameMarketData = "get_real_time_market_data"
	NameTrade      = "execute_trade"
)

// Descriptor describes a registered tool: its schema and risk tier.
// Immutable after startup.
type Descriptor struct {
	Name        string
	Description string
	Parameters  *gateway.ParameterSchema
	Tier        RiskTier
}

// Definition translates the descriptor into the gateway's function-calling form.
func (d Descriptor) Definition() gateway.ToolDefinition {
	return gateway.ToolDefinition{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  d.Parameters,
	}
}

// Handler executes a tool with already-validated typed arguments.
type Handler func(ctx context.Context, args Args) (string, error)

// Args is the closed set of typed tool arguments. Dispatch is by exhaustive
// type switch, not string-keyed coercion.
type Args interface {
	isArgs()
}

// ResearchArgs are the arguments for the 10-K research tool.
type ResearchArgs struct {
	Query string `mapstructure:"query"`
}

// MarketDataArgs are the arguments for the market-data tool.
type MarketDataArgs struct {
	Ticker string `mapstructure:"ticker"`
}

// TradeArgs are the arguments for the trade-execution tool.
type TradeArgs struct {
	Ticker    string `mapstructure:"ticker"`
	Shares    int    `mapstructure:"shares"`
	OrderType string `mapstructure:"order_type"`
}

func (ResearchArgs) isArgs()   {}
func (MarketDataArgs) isArgs() {}
func (TradeArgs) isArgs()      {}
