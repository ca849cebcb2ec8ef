package main

import "payout-reconciler/cmd"

func main() {
	cmd.Execute()
}
