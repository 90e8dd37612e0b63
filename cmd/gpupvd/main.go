package main

import (
	"context"
	"log"

	"github.com/smart-gpu-pv/gpupv/pkg/api"
)

func main() {
	if err := api.Serve(context.Background()); err != nil {
		log.Fatal(err)
	}
}
