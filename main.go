package main

import "github.com/samhoang/ccx/cmd"

func main() {
	cmd.Execute()
}
