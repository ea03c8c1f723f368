/*
	Copyright 2026 Traffic Lab
*/

package main

import "github.com/trafficlab/roadsim/cmd"

func main() {
	cmd.Execute()
}
