package main

import "github.com/mmcdole/offlined/cmd/offlinectl/cmd"

func main() {
	cmd.Execute()
}
