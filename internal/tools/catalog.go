package tools

// NewCatalog builds the agent's fixed tool set: two SAFE research/lookup
// tools and the SENSITIVE trade tool. The filings corpus is injected here so
// the research tool holds no ambient global state.
func NewCatalog(corpus string) *Registry {
	registry := NewRegistry()

	research := NewResearchTool(corpus)
	registry.Register(ResearchDescriptor(), research.Handle)
	registry.Register(MarketDataDescriptor(), MarketDataHandler)
	registry.Register(TradeDescriptor(), ExecuteTradeHandler)

	return registry
}
