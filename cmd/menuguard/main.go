package main

import "github.com/vietddude/menuguard/internal/cli"

func main() {
	cli.Execute()
}
