package handler

import (
	"context"

	"github.com/gjbm2/screen-machine/internal/cmn/logger"
	"github.com/gjbm2/screen-machine/internal/cmn/logger/tag"
	"github.com/gjbm2/screen-machine/internal/collab"
	"github.com/gjbm2/screen-machine/internal/core"
)

func init() {
	Register(core.ActionGenerate, handleGenerate)
	Register(core.ActionAnimate, handleAnimate)
	Register(core.ActionDisplay, handleDisplay)
	Register(core.ActionPublish, handlePublish)
	Register(core.ActionPurge, handlePurge)
	Register(core.ActionDeviceWake, deviceOp("wake"))
	Register(core.ActionDeviceSleep, deviceOp("sleep"))
	Register(core.ActionDeviceStandby, deviceOp("standby"))
	Register(core.ActionDeviceSync, deviceOp("media_sync"))
}

// handleGenerate asks the generator for new assets. With no explicit
// targets the result lands on the running destination; targets: null means
// generate only.
func handleGenerate(ctx context.Context, env *Env, in core.Instruction) (Outcome, error) {
	req := collab.GenerateRequest{
		Prompt:   in.Str("prompt"),
		Refiner:  in.Str("refiner"),
		Workflow: in.Str("workflow"),
	}
	for _, img := range in.List("images") {
		if s, ok := img.(string); ok {
			req.Images = append(req.Images, s)
		}
	}

	if raw, explicit := in.Get("targets"); explicit {
		if raw != nil {
			for _, t := range in.List("targets") {
				if s, ok := t.(string); ok {
					req.Targets = append(req.Targets, s)
				}
			}
		}
	} else {
		req.Targets = []string{env.Destination}
	}

	if props, ok := in.Get("extra_props"); ok {
		if m, isMap := props.(map[string]any); isMap {
			req.ExtraProps = m
		}
	}

	var results []collab.GenerateResult
	err := env.Blocking(func() error {
		var err error
		results, err = env.Collab.Generator.Generate(ctx, req)
		return err
	})
	if err != nil {
		env.Log("generate failed: %v", err)
		return OutcomeContinue, err
	}
	env.Log("generated %d result(s)", len(results))

	if varName := in.Str("output_var"); varName != "" && len(results) > 0 {
		env.Context.SetVar(varName, results[0].Message)
	}
	return OutcomeContinue, nil
}

func handleAnimate(ctx context.Context, env *Env, in core.Instruction) (Outcome, error) {
	req := collab.AnimateRequest{
		Destination: env.Destination,
		Prompt:      in.Str("prompt"),
		Source:      in.Str("source"),
	}
	if err := env.Blocking(func() error { return env.Collab.Animator.Animate(ctx, req) }); err != nil {
		env.Log("animate failed: %v", err)
		return OutcomeContinue, err
	}
	env.Log("animation started")
	return OutcomeContinue, nil
}

func handleDisplay(ctx context.Context, env *Env, in core.Instruction) (Outcome, error) {
	req := collab.DisplayRequest{
		Destination: env.Destination,
		Source:      in.Str("source"),
		Mode:        in.Str("mode"),
	}
	if err := env.Blocking(func() error { return env.Collab.Display.Show(ctx, req) }); err != nil {
		env.Log("display failed: %v", err)
		return OutcomeContinue, err
	}
	env.Log("displayed %s", req.Source)
	return OutcomeContinue, nil
}

func handlePublish(ctx context.Context, env *Env, in core.Instruction) (Outcome, error) {
	req := collab.PublishRequest{
		Source:      in.Str("source"),
		Destination: env.Destination,
	}
	if dest := in.Str("destination"); dest != "" {
		req.Destination = dest
	}
	if silent, ok := in.Bool("silent"); ok {
		req.Silent = silent
	}
	if meta, ok := in.Get("metadata"); ok {
		if m, isMap := meta.(map[string]any); isMap {
			req.Metadata = m
		}
	}

	var res collab.PublishResult
	err := env.Blocking(func() error {
		var err error
		res, err = env.Collab.Publisher.Publish(ctx, req)
		return err
	})
	if err != nil {
		env.Log("publish failed: %v", err)
		return OutcomeContinue, err
	}
	if res.Success {
		env.Log("published %s to %s", req.Source, req.Destination)
	} else {
		env.Log("publish of %s reported failure", req.Source)
	}
	return OutcomeContinue, nil
}

func handlePurge(ctx context.Context, env *Env, in core.Instruction) (Outcome, error) {
	dest := in.Str("destination")
	if dest == "" {
		dest = env.Destination
	}
	if err := env.Blocking(func() error { return env.Collab.Publisher.Purge(ctx, dest, in.Str("before")) }); err != nil {
		env.Log("purge failed: %v", err)
		return OutcomeContinue, err
	}
	env.Log("purged %s", dest)
	return OutcomeContinue, nil
}

// deviceOp builds a handler for one of the device power/media operations.
func deviceOp(op string) Func {
	return func(ctx context.Context, env *Env, in core.Instruction) (Outcome, error) {
		dest := in.Str("destination")
		if dest == "" {
			dest = env.Destination
		}

		err := env.Blocking(func() error {
			switch op {
			case "wake":
				return env.Collab.Device.Wake(ctx, dest)
			case "sleep":
				return env.Collab.Device.Sleep(ctx, dest)
			case "standby":
				return env.Collab.Device.Standby(ctx, dest)
			case "media_sync":
				return env.Collab.Device.MediaSync(ctx, dest)
			}
			return nil
		})
		if err != nil {
			env.Log("device %s failed: %v", op, err)
			logger.Error(ctx, "Device operation failed",
				tag.Destination(dest), tag.Action(op), tag.Error(err))
			return OutcomeContinue, err
		}
		env.Log("device %s", op)
		return OutcomeContinue, nil
	}
}
