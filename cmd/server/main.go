package main

import "github.com/planora/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
