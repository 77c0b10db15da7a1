package main

import "github.com/mselser95/polymarket-autotrader/cmd"

func main() {
	cmd.Execute()
}
