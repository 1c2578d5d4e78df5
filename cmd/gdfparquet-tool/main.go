package main

import "github.com/fraugster/gdfparquet/cmd/gdfparquet-tool/cmds"

func main() {
	cmds.Execute()
}
