package main

import "github.com/ppiankov/usageguard/internal/cli"

func main() {
	cli.Execute()
}
