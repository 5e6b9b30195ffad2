package main

import "plus-ev-alerts/internal/cli"

func main() {
	cli.Execute()
}
