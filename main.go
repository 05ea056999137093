package main

import "github.com/audiolibrelab/voicecapture/cmd"

func main() {
	cmd.Execute()
}
