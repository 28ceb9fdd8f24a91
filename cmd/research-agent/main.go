package main

import "github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/cli"

func main() {
	cli.Execute()
}
