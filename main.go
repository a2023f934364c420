package main

import "github.com/wfunc/codechallenge/cli"

func main() {
	cli.Execute()
}
