package main

import "github.com/thalesfsp/hord/internal/cli"

func main() {
	cli.Execute()
}
