package cmd

import (
	"github.com/gjbm2/screen-machine/internal/cmn/config"
	"github.com/gjbm2/screen-machine/internal/cmn/fileutil"
	"github.com/gjbm2/screen-machine/internal/collab"
	"github.com/gjbm2/screen-machine/internal/eventstore"
	"github.com/gjbm2/screen-machine/internal/registry"
	"github.com/gjbm2/screen-machine/internal/runtime"
	"github.com/gjbm2/screen-machine/internal/statestore/filestore"
	"github.com/gjbm2/screen-machine/internal/template"
)

// newManager builds the runtime manager and its shared stores from config.
func newManager(cfg *config.Config) (*runtime.Manager, error) {
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.StateDir, cfg.Paths.SchedulesDir, cfg.Paths.LogDir} {
		if err := fileutil.EnsureDir(dir); err != nil {
			return nil, err
		}
	}

	store := filestore.New(cfg.Paths.StateDir)
	events := eventstore.New(cfg)
	reg := registry.New(cfg.Paths.RegistryFile)
	engine := template.New()
	set := collab.NewHTTPSet(collab.HTTPConfig{
		PublishURL:  cfg.Collaborators.PublishURL,
		GenerateURL: cfg.Collaborators.GenerateURL,
		AnimateURL:  cfg.Collaborators.AnimateURL,
		DisplayURL:  cfg.Collaborators.DisplayURL,
		DeviceURL:   cfg.Collaborators.DeviceURL,
		ReasonURL:   cfg.Collaborators.ReasonURL,
		Timeout:     cfg.Collaborators.Timeout,
	})

	mgr := runtime.New(store, events, reg, engine, set, cfg,
		runtime.WithTickInterval(cfg.TickInterval),
		runtime.WithSweepInterval(cfg.EventSweepInterval),
	)
	return mgr, nil
}
