package main

import (
	"os"

	"townbeat/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
