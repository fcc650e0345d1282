// dot1xctl -- CLI client for the dot1x-authenticatord introspection surface.
package main

import "github.com/dantte-lp/gobfd/cmd/dot1xctl/commands"

func main() {
	commands.Execute()
}
