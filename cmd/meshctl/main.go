// meshctl is the operator CLI for the mesh coordination control plane.
package main

import "github.com/hypermesh-online/meshcoord/internal/meshctl/cmd"

func main() {
	cmd.Execute()
}
