package main

import "github.com/beamcast/beamcast/cmd/beamcast/commands"

func main() {
	commands.Execute()
}
