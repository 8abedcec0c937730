package main

import (
	"market-pulse-bot/internal/cli"
)

func main() {
	cli.Execute()
}
