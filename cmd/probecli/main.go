package main

import (
	"github.com/robotalks/probe.go/pkg/cli/sh"
	"github.com/robotalks/probe.go/pkg/env"

	_ "github.com/robotalks/probe.go/pkg/cli/cmds/probe"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
