package main

import "github.com/sergev/fluxrecon/cmd"

func main() {
	cmd.Execute()
}
