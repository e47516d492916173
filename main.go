package main

import "github.com/iksnae/chatrelay/cmd"

func main() {
	cmd.Execute()
}
