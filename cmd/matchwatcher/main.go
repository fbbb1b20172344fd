package main

import "match-alerts/internal/cli"

func main() {
	cli.Execute()
}
