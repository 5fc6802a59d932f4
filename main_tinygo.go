//go:build tinygo

package main

import (
	"drill/app"
	"drill/hal"
)

func main() {
	app.RunForever(hal.New())
}
