package main

import (
	"os"

	"s2s-stream-client/internal/app"
)

func main() {
	os.Exit(app.Main(os.Args[1:], os.Stdout, os.Stderr))
}
