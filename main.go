package main

import "github.com/sergev/fluxtrack/cmd"

func main() {
	cmd.Execute()
}
