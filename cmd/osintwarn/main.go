package main

import (
	"context"
	"os"

	"osintwarn/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
