package main

import (
	"github.com/smart-gpu-pv/gpupv/pkg/cli"
)

func main() {
	cli.Execute()
}
