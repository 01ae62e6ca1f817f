package main

import (
	"os"

	"objloader/cmd/objl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
