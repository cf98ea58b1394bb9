package main

import (
	"github.com/kozaktomas/facegate/cmd"
)

func main() {
	cmd.Execute()
}
