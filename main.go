package main

import (
	"log"

	"github.com/dendotai/transpoze-app/frontend"
	"github.com/dendotai/transpoze-app/internal/bootstrap"
)

func main() {
	app, err := bootstrap.NewWithAssets(frontend.Assets, "")
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
