package main

import "github.com/felixgeelhaar/dreamer/cmd/dreamer/cli"

func main() {
	cli.Execute()
}
