package main

import "github.com/joalvis1996/archive-saver-web/cmd"

func main() {
	cmd.Execute()
}
