package main

import "github.com/heimgewebe/sichter/internal/cli"

func main() {
	cli.Execute()
}
