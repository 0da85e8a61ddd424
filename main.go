package main

import "github.com/nextlevelbuilder/goanswer/cmd"

func main() {
	cmd.Execute()
}
