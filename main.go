package main

import "github.com/jmehdipour/loyalty-gateway/cmd"

func main() {
	cmd.Execute()
}
