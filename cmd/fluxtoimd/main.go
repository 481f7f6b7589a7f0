// Command fluxtoimd recovers sectors from a raw flux capture and writes
// them to an ImageDisk (.imd) container.
package main

import "github.com/brouhaha/fluxtoimd/cmd"

func main() {
	cmd.Execute()
}
