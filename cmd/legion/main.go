package main

import "github.com/legionhq/legion/internal/cmd"

func main() {
	cmd.Execute()
}
