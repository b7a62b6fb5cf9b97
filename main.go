package main

import "github.com/astroward/nightwatch/cmd"

func main() {
	cmd.Execute()
}
