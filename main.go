package main

import "github.com/promptly-chat/promptly/cmd"

func main() {
	cmd.Execute()
}
