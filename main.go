package main

import "OnnxInspector/cmd"

func main() {
	cmd.Execute()
}
