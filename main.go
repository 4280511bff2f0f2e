package main

import "combo/cmd"

func main() {
	cmd.Execute()
}
