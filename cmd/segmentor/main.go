package main

import "github.com/matthieukhl/segmentor/internal/cmd"

func main() {
	cmd.Execute()
}
