package main

import "github.com/Hofman2HQ/LookALike/cmd"

func main() {
	cmd.Execute()
}
