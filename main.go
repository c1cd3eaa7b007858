package main

import "github.com/gjbm2/screen-machine/cmd"

var version = "dev"

func main() {
	cmd.Version = version
	cmd.Execute()
}
