package main

import "course-checkout/cmd"

func main() {
	cmd.Execute()
}
