// Command admintoken mints a bearer token for the admin HTTP API using the
// secret from the bot configuration.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"odanna-bot/internal/config"
	"odanna-bot/internal/infra/web"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfgPath := flag.String("config", "config.yaml", "path to config yaml")
	envFile := flag.String("env", ".env", "path to dotenv file")
	subject := flag.String("subject", "ops", "token subject, shown in admin request logs")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load(config.Flags{ConfigPath: *cfgPath, EnvFile: *envFile})
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	tok, err := web.NewAuthManager(cfg.Security.AdminJWTSecret, *ttl).Mint(*subject)
	if err != nil {
		log.Fatal().Err(err).Msg("mint")
	}
	fmt.Println(tok)
}
