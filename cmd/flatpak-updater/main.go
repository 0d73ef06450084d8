package main

import "github.com/oshokin/flatpak-updater/cmd/flatpak-updater/cmd"

func main() {
	cmd.Execute()
}
