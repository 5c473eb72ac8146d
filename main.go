package main

import (
	"github.com/huddle-chat/huddle/cmd"
	"github.com/huddle-chat/huddle/internal/logging"
)

func main() {
	logging.Init()
	cmd.Execute()
}
