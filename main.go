package main

import "plan-agent/cmd"

func main() {
	cmd.Execute()
}
