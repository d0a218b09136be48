package main

import (
	"github.com/autopeer-io/clusterpilot/cmd/cpeer-orchestrator/app"
)

func main() {
	app.NewApp().Run()
}
