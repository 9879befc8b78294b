package main

import "contextd/cmd"

func main() {
	cmd.Execute()
}
