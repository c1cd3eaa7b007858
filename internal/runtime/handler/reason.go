package handler

import (
	"context"

	"github.com/gjbm2/screen-machine/internal/cmn/logger"
	"github.com/gjbm2/screen-machine/internal/cmn/logger/tag"
	"github.com/gjbm2/screen-machine/internal/collab"
	"github.com/gjbm2/screen-machine/internal/core"
)

func init() {
	Register(core.ActionReason, handleReason)
}

// maxReasonHistory bounds the history_var ring.
const maxReasonHistory = 20

// handleReason delegates to the reasoner and stores its outputs into the
// named variables positionally. Collaborator failures synthesize a fallback
// result instead of propagating, so a flaky reasoner never stalls the loop.
func handleReason(ctx context.Context, env *Env, in core.Instruction) (Outcome, error) {
	req := collab.ReasonRequest{
		SystemPrompt: in.Str("system_prompt"),
		UserPrompt:   in.Str("user_prompt"),
	}
	if schema, ok := in.Get("schema"); ok {
		if m, isMap := schema.(map[string]any); isMap {
			req.Schema = m
		}
	}
	for _, img := range in.List("images") {
		if s, ok := img.(string); ok {
			req.Images = append(req.Images, s)
		}
	}

	var outputVars []string
	for _, v := range in.List("output_vars") {
		if s, ok := v.(string); ok {
			outputVars = append(outputVars, s)
		}
	}

	var res collab.ReasonResult
	err := env.Blocking(func() error {
		var err error
		res, err = env.Collab.Reasoner.Reason(ctx, req)
		return err
	})
	if err != nil {
		logger.Warn(ctx, "Reasoner failed, using fallback",
			tag.Destination(env.Destination), tag.Error(err))
		env.Log("reason failed, fallback applied: %v", err)
		res = fallbackResult(in, len(outputVars))
	}

	for i, name := range outputVars {
		if i < len(res.Outputs) {
			env.Context.SetVar(name, res.Outputs[i])
		}
	}

	if histVar := in.Str("history_var"); histVar != "" {
		appendReasonHistory(env.Context, histVar, res)
	}

	env.Log("reason produced %d output(s)", len(res.Outputs))
	return OutcomeContinue, nil
}

// fallbackResult builds the synthesized result used when the reasoner is
// unreachable. An explicit fallback field supplies the outputs; otherwise
// each output variable gets an empty string.
func fallbackResult(in core.Instruction, wantOutputs int) collab.ReasonResult {
	var outputs []string
	if fb, ok := in.Get("fallback"); ok {
		switch v := fb.(type) {
		case string:
			outputs = []string{v}
		case []any:
			for _, item := range v {
				if s, isStr := item.(string); isStr {
					outputs = append(outputs, s)
				}
			}
		}
	}
	for len(outputs) < wantOutputs {
		outputs = append(outputs, "")
	}
	return collab.ReasonResult{Outputs: outputs, Explanation: "fallback"}
}

// appendReasonHistory keeps a bounded FIFO of recent runs under histVar.
func appendReasonHistory(c *core.Context, histVar string, res collab.ReasonResult) {
	entry := map[string]any{
		"outputs":     res.Outputs,
		"explanation": res.Explanation,
	}

	var hist []any
	if existing, ok := c.Vars[histVar].([]any); ok {
		hist = existing
	}
	hist = append(hist, entry)
	if len(hist) > maxReasonHistory {
		hist = hist[len(hist)-maxReasonHistory:]
	}
	c.SetVar(histVar, hist)
}
