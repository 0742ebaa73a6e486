package main

import (
	"PadDeck/cmd"
)

func main() {
	cmd.Execute()
}
