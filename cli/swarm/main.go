package main

import (
	"os"

	swarmcmder "github.com/papercomputeco/swarm/cmd/swarm"
)

func main() {
	cmd := swarmcmder.NewSwarmCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
