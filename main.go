package main

import (
	"log/slog"
	"os"

	"cinema-booking/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		slog.Error("cinema-booking exited", "error", err)
		os.Exit(1)
	}
}
