package main

import (
	"feedsync/internal/cmd"
)

func main() {
	cmd.Run()
}
