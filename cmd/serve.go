package main

import (
	"context"

	"github.com/desertthunder/tunesync/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP API until the process is interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}
	states, err := r.stateStore(ctx)
	if err != nil {
		return err
	}

	api := server.NewAPI(server.APIDeps{
		Registry: r.registry,
		States:   states,
		Users:    r.users,
		Mirror:   r.mirror,
		Engine:   r.engine,
		Logger:   r.logger,
	})

	router := server.NewBasicRouter()
	router.Use(server.Recoverer(r.logger), server.RequestLogger(r.logger))
	api.Register(router)
	r.logger.Debug("registered routes", "count", len(router.Routes()), "routes", router.Routes())

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	return server.Serve(ctx, server.New(addr, router), r.logger)
}
