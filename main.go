package main

import "github.com/asynctest/asynctest/internal/cmd"

func main() {
	cmd.Execute()
}
