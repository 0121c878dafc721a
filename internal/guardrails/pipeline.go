package guardrails

import (
	"context"
	"time"

	"aegis/internal/gateway"
	"aegis/internal/metrics"
	"aegis/internal/tools"
	"aegis/pkg/logger"
)

// Stage identifies a validation stage in the pipeline.
type Stage string

const (
	// StageRiskTier is the tier short-circuit: SAFE tools are auto-approved
	StageRiskTier Stage = "risk_tier"

	// StageFastFilter is the cheap in-scope / well-formedness classifier
	StageFastFilter Stage = "fast_filter"

	// StageGuardCheck is the specialized compliance/safety classifier
	StageGuardCheck Stage = "guard_check"

	// StageReasoningCheck verifies the action is grounded in confirmed data
	StageReasoningCheck Stage = "reasoning_check"
)

// Request is a single tool-call proposal under evaluation. It is consumed at
// most once; a denial is final for this request.
type Request struct {
	CorrelationID string
	Tool          tools.Descriptor
	Arguments     map[string]interface{}

	// History gives the reasoning stage the full conversation context
	History []gateway.Message
}

// Verdict is the pipeline's single, never-partial output. Failure
// distinguishes a stage error (which maps to deny, fail-closed) from a stage
// explicitly voting deny; operators observe the two differently.
type Verdict struct {
	Allowed bool
	Reason  string
	Stage   Stage
	Failure bool
}

// stageRunner evaluates one stage of the pipeline.
type stageRunner struct {
	name Stage
	run  func(ctx context.Context, req *Request) (bool, string, error)
}

// Config holds pipeline policy limits.
type Config struct {
	// MaxOrderShares is the largest order the guard stage approves
	MaxOrderShares int

	// StageTimeout bounds each individual stage
	StageTimeout time.Duration

	// Ceiling caps the whole pipeline run regardless of per-stage budgets;
	// it derives from the global LLM timeout setting
	Ceiling time.Duration
}

// Pipeline is the cascading validation state machine gating sensitive tool
// execution. Stages run strictly in order and short-circuit on first denial.
type Pipeline struct {
	gw     *gateway.Gateway
	cfg    Config
	stages []stageRunner
	log    *logger.Logger
}

// NewPipeline builds the fixed stage sequence: fast filter, guard check,
// reasoning verification.
func NewPipeline(gw *gateway.Gateway, cfg Config) *Pipeline {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 10 * time.Second
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = 30 * time.Second
	}
	if cfg.MaxOrderShares <= 0 {
		cfg.MaxOrderShares = 1000
	}

	p := &Pipeline{
		gw:  gw,
		cfg: cfg,
		log: logger.Get().With("component", "guardrails"),
	}
	p.stages = []stageRunner{
		{name: StageFastFilter, run: p.fastFilter},
		{name: StageGuardCheck, run: p.guardCheck},
		{name: StageReasoningCheck, run: p.reasoningCheck},
	}
	return p
}

// Evaluate runs the pipeline for one request and returns exactly one verdict.
// SAFE tools short-circuit to allow with no model calls. For SENSITIVE tools
// every stage must allow; any stage error denies (fail-closed).
func (p *Pipeline) Evaluate(ctx context.Context, req *Request) Verdict {
	if req.Tool.Tier == tools.TierSafe {
		metrics.GuardrailVerdicts.WithLabelValues(req.Tool.Name, "allowed").Inc()
		return Verdict{
			Allowed: true,
			Reason:  "read-only tool, auto-approved",
			Stage:   StageRiskTier,
		}
	}

	// Hard ceiling over the whole run; per-stage budgets nest inside it
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Ceiling)
	defer cancel()

	for _, stage := range p.stages {
		verdict, ok := p.runStage(ctx, stage, req)
		if !ok {
			metrics.GuardrailVerdicts.WithLabelValues(req.Tool.Name, "denied").Inc()
			return verdict
		}
	}

	metrics.GuardrailVerdicts.WithLabelValues(req.Tool.Name, "allowed").Inc()
	p.log.Infof("Request %s approved by all stages: tool=%s", req.CorrelationID, req.Tool.Name)
	return Verdict{
		Allowed: true,
		Reason:  "approved by all validation stages",
		Stage:   StageReasoningCheck,
	}
}

// runStage executes one stage under its own deadline. ok is true only when
// the stage explicitly allowed; the returned verdict is meaningful otherwise.
func (p *Pipeline) runStage(ctx context.Context, stage stageRunner, req *Request) (Verdict, bool) {
	if err := ctx.Err(); err != nil {
		// Budget exhausted or caller cancelled before this stage
		metrics.GuardrailEvaluations.WithLabelValues(string(stage.name), "failure").Inc()
		p.log.Errorf("Stage %s not evaluated for %s: %v", stage.name, req.CorrelationID, err)
		return Verdict{
			Allowed: false,
			Reason:  "pipeline aborted before stage " + string(stage.name),
			Stage:   stage.name,
			Failure: true,
		}, false
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()

	allow, reason, err := stage.run(stageCtx, req)
	if err != nil {
		// Fail closed: a stage error is a denial, logged as a failure
		metrics.GuardrailEvaluations.WithLabelValues(string(stage.name), "failure").Inc()
		p.log.Errorf("Stage %s failed for %s (denying, fail-closed): %v", stage.name, req.CorrelationID, err)
		return Verdict{
			Allowed: false,
			Reason:  "validation stage " + string(stage.name) + " failed: " + err.Error(),
			Stage:   stage.name,
			Failure: true,
		}, false
	}

	if !allow {
		metrics.GuardrailEvaluations.WithLabelValues(string(stage.name), "deny").Inc()
		p.log.Infof("Stage %s denied %s: %s", stage.name, req.CorrelationID, reason)
		return Verdict{
			Allowed: false,
			Reason:  reason,
			Stage:   stage.name,
		}, false
	}

	metrics.GuardrailEvaluations.WithLabelValues(string(stage.name), "allow").Inc()
	return Verdict{}, true
}
