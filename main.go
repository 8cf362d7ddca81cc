package main

import "github.com/frahmantamala/paygate/cmd"

func main() {
	cmd.Execute()
}
