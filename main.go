package main

import "github.com/brensch/nomenclator/cmd"

func main() {
	cmd.Execute()
}
