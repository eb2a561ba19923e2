package main

import "trader-core/cmd/trader-cli/cmd"

func main() {
	cmd.Execute()
}
