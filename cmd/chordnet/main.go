package main

import "github.com/eslsoft/chordnet/cmd"

func main() {
	cmd.Execute()
}
