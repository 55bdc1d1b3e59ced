package main

import "photo-library/cmd"

func main() {
	cmd.Execute()
}
