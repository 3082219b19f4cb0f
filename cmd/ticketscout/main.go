package main

import "github.com/pfrederiksen/ticketscout/internal/cli"

func main() {
	cli.Execute()
}
