package main

import (
	"github.com/ekisa-team/beam/app"
	"github.com/ekisa-team/beam/model"
)

func main() {
	app.Execute("beam", model.NewCatalog())
}
