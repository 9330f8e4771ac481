package main

import "github.com/trinsiklabs/onelist/cmd"

func main() {
	cmd.Execute()
}
