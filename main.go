package main

import "workerwatch/cmd"

func main() {
	cmd.Execute()
}
