package main

import "github.com/chalkboard/chalkboard/cli"

func main() {
	var rootCmd cli.RootCmd
	rootCmd.Run()
}
