// The main package for the sitecrawler executable.
package main

import (
	"github.com/atlasdir/site-crawler/cmd"
)

func main() {
	cmd.Execute()
}
