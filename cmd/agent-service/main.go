package main

import (
	"os"

	"github.com/attendly/attendly/server/agentservice"
)

func main() {
	if err := agentservice.Run(); err != nil {
		os.Exit(1)
	}
}
