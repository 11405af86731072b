package main

import "github.com/muraty261/GlistEngine/internal/cmd"

func main() {
	cmd.Execute()
}
