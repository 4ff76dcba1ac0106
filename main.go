package main

import "zm-cli/cmd"

func main() {
	cmd.Execute()
}
