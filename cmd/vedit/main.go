package main

import "github.com/sai034/css-video-editor/internal/cli"

func main() {
	cli.Execute()
}
