package main

import (
	_ "time/tzdata"

	_ "github.com/joho/godotenv/autoload"

	"github.com/rustyeddy/futures-journal/internal/cli"
)

func main() {
	cli.Execute()
}
