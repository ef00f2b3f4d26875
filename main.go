package main

import (
	"os"

	"react-client.dev/cli"
)

func main() {
	os.Exit(cli.Run())
}
