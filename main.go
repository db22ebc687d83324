package main

import "github.com/mayur2811/chainbridge/cmd"

func main() {
	cmd.Execute()
}
