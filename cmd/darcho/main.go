// Command darcho runs the Darcho coffee marketplace.
//
//	darcho migrate && darcho seed
//	darcho serve
//	darcho route:list
//	darcho admin:create --email ops@darcho.et --name Ops
package main

import (
	"context"

	"github.com/darcho/darcho/app/jobs"
	"github.com/darcho/darcho/app/routes"
	"github.com/darcho/darcho/app/services"
	_ "github.com/darcho/darcho/database/migrations"
	"github.com/darcho/darcho/database/seeders"
	"github.com/darcho/darcho/pkg/app"
	"github.com/darcho/darcho/pkg/router"
	"github.com/darcho/darcho/pkg/ws"
)

func main() {
	hub := ws.NewHub()

	app.New("darcho").
		Routes(func(r *router.Router) error { return routes.RegisterAPI(r, hub) }).
		OnBoot(func(context.Context) error {
			jobs.Register(hub)
			jobs.Schedule(services.NewOrderService())
			return nil
		}).
		OnShutdown(hub.Close).
		Seeder(seeders.RunAll).
		Command(adminCreateCmd()).
		Run()
}
