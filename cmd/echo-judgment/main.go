// Command echo-judgment evaluates intercepted plugin commands against a stop policy.
package main

import "github.com/Sentinel-Gate/echo-judgment/cmd/echo-judgment/cmd"

func main() {
	cmd.Execute()
}
