package main

import "github.com/devicelab-dev/flowdeploy/pkg/cli"

func main() {
	cli.Execute()
}
