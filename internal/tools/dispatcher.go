package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rahul/taskforge/internal/governance"
	"github.com/rahul/taskforge/internal/observability"
	"github.com/rahul/taskforge/internal/plan"
)

// Dispatcher invokes named tools and converts every failure mode (unknown
// tool, policy denial, execution error, even a panicking backend) into a
// failed ToolResult. Nothing propagates past this boundary, so the step
// evaluator can score all outcomes uniformly.
type Dispatcher struct {
	Registry *Registry
	Policy   governance.PolicyEngine
	Logger   *observability.Logger
}

func NewDispatcher(registry *Registry, policy governance.PolicyEngine, logger *observability.Logger) *Dispatcher {
	return &Dispatcher{
		Registry: registry,
		Policy:   policy,
		Logger:   logger,
	}
}

// Dispatch runs one tool invocation for a step.
func (d *Dispatcher) Dispatch(ctx context.Context, stepID, name, args string) (result plan.ToolResult) {
	result = plan.ToolResult{
		ID:     uuid.New().String(),
		Tool:   name,
		Args:   args,
		StepID: stepID,
	}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Sprintf("tool panicked: %v", r)
		}
		d.log(result)
	}()

	if d.Policy != nil {
		verdict, err := d.Policy.Evaluate(ctx, governance.Request{Tool: name, Arguments: args, StepID: stepID})
		if err == nil && verdict.Effect == governance.EffectDeny {
			result.Error = verdict.Reason
			if d.Logger != nil {
				d.Logger.LogPolicyCheck(stepID, name, string(verdict.Effect), verdict.Reason)
			}
			return result
		}
	}

	tool := d.Registry.Get(name)
	if tool == nil {
		result.Error = fmt.Sprintf("unknown tool: %s", name)
		return result
	}

	payload, err := tool.Execute(ctx, args)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.Result = payload
	return result
}

func (d *Dispatcher) log(r plan.ToolResult) {
	if d.Logger == nil {
		return
	}
	d.Logger.LogToolResult(r.StepID, r.Tool, r.Success, r.Error)
}
