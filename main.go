package main

import "live-butler/cmd"

func main() {
	cmd.Execute()
}
