package main

import "github.com/surge-downloader/trickle/cmd"

func main() {
	cmd.Execute()
}
