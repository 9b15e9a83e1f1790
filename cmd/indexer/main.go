package main

import "github.com/aquads/indexer/internal/cli"

func main() {
	cli.Execute()
}
