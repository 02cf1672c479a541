package main

import "github.com/kozaktomas/face-logger/cmd"

func main() {
	cmd.Execute()
}
