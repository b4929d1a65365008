package main

import "github.com/braheezy/qoapwm/cmd"

func main() {
	cmd.Execute()
}
