package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/stakebonds/bonds-settlement/cmd/bonds-settlement/cli"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("failed to load .env file")
	}
}

func main() {
	// setup cli commands and flags, the exit code tells callers whether a
	// re-run may help
	if err := cli.Setup(); err != nil {
		log.Error().Err(err).Str("error_code", types.CodeOf(err).String()).Msg("command failed")
		os.Exit(types.ExitCode(err))
	}
}
