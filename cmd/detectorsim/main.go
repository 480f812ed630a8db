package main

import "github.com/bryanchriswhite/DetectorSim/cmd/detectorsim/commands"

func main() {
	commands.Execute()
}
