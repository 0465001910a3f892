package main

import "hapdb/internal/cmd"

func main() {
	cmd.Execute()
}
