package main

import "github.com/chainaudit/chainaudit/cmd"

func main() {
	cmd.Execute()
}
