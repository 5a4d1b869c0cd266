package main

import (
	"os"

	"github.com/zhouzirui/jac-chat/backend/cmd/jac/cmds"
)

func main() {
	if err := cmds.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
