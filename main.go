package main

import "github.com/example/selfie-check/cmd"

func main() {
	cmd.Execute()
}
