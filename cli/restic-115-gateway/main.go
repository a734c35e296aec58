package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"github.com/restic115/gateway/pkg/open115"
	"github.com/restic115/gateway/pkg/persistence"
	"github.com/restic115/gateway/pkg/persistence/postgres"
	"github.com/restic115/gateway/pkg/persistence/sqlite"
	"github.com/restic115/gateway/pkg/restic"
	"github.com/restic115/gateway/pkg/utils"
	"github.com/restic115/gateway/pkg/utils/logging"
)

var cli struct {
	AccessToken  string `env:"OPEN115_ACCESS_TOKEN" required:"" help:"115 Open Platform access token"`
	RefreshToken string `env:"OPEN115_REFRESH_TOKEN" required:"" help:"115 Open Platform refresh token"`

	RepoPath  string `env:"OPEN115_REPO_PATH" default:"/restic-backup" help:"Directory path used as the restic repository root"`
	APIBase   string `env:"OPEN115_API_BASE" default:"https://proapi.115.com" help:"115 Open Platform API base URL"`
	UserAgent string `env:"OPEN115_USER_AGENT" default:"restic-115" help:"User-Agent sent on outbound provider calls"`

	PersistTokens  bool   `env:"OPEN115_PERSIST_TOKENS" help:"Write refreshed tokens back to the token store path"`
	TokenStorePath string `env:"OPEN115_TOKEN_STORE_PATH" default:".env" help:"File to upsert OPEN115_ACCESS_TOKEN/OPEN115_REFRESH_TOKEN lines into"`

	ListenAddress        string `env:"OPEN115_LISTEN_ADDRESS" default:"127.0.0.1:8000" help:"Listen address for the restic REST surface"`
	MetricsListenAddress string `env:"OPEN115_METRICS_LISTEN_ADDRESS" default:"127.0.0.1:8001" help:"Listen address for /metrics and /healthz"`

	LogLevel string `env:"OPEN115_LOG_LEVEL" default:"info" enum:"debug,info,warn,error"`
	Debug    bool   `env:"OPEN115_DEBUG" help:"Enable debug mode"`

	TokenInvalidCodes string        `env:"OPEN115_TOKEN_INVALID_CODES" default:"40140123,40140124,40140125,40140126" help:"Comma-separated envelope codes treated as an invalid access token"`
	RateLimitRPS      float64       `env:"OPEN115_RATE_LIMIT_RPS" default:"4" help:"Outbound provider calls per second, 0 = unlimited"`
	RateLimitBurst    float64       `env:"OPEN115_RATE_LIMIT_BURST" default:"8" help:"Outbound provider call burst size"`
	UploadMaxBytes    int64         `env:"OPEN115_UPLOAD_MAX_BYTES" default:"1073741824" help:"Hard cap on a single uploaded object"`
	RequestTimeout    time.Duration `env:"OPEN115_REQUEST_TIMEOUT" default:"5m" help:"Per-outbound-call deadline"`

	DBBackend string `env:"OPEN115_DB_BACKEND" default:"none" enum:"none,sqlite,postgres" help:"Optional persistence backend for warm-start checkpointing"`
	DBDSN     string `env:"OPEN115_DB_DSN" help:"Connection string for the chosen db backend"`
}

func parseTokenInvalidCodes(raw string) []int64 {
	var codes []int64
	for _, part := range utils.CleanStringSlice(strings.Split(raw, ",")) {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Warn().Str("value", part).Msg("ignoring unparsable token-invalid code")
			continue
		}
		codes = append(codes, n)
	}
	return codes
}

func buildPersistenceBackend() persistence.Backend {
	switch cli.DBBackend {
	case "sqlite":
		backend, err := sqlite.NewBackend(cli.DBDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize sqlite persistence backend")
		}
		return backend
	case "postgres":
		backend, err := postgres.NewBackend(cli.DBDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize postgres persistence backend")
		}
		return backend
	default:
		return nil
	}
}

func main() {
	kong.Parse(&cli)

	logging.SetupLogging(cli.LogLevel)
	if cli.Debug {
		log.Info().Msg("debug mode enabled")
	}

	tokens := open115.NewTokenManager(&http.Client{Timeout: cli.RequestTimeout}, cli.AccessToken, cli.RefreshToken, cli.PersistTokens, cli.TokenStorePath)
	if err := tokens.RequireTokens(); err != nil {
		log.Fatal().Err(err).Msg("no credentials supplied")
	}

	client := open115.NewClient(open115.Config{
		APIBase:           cli.APIBase,
		UserAgent:         cli.UserAgent,
		RepoPath:          cli.RepoPath,
		RateLimitRPS:      cli.RateLimitRPS,
		RateLimitBurst:    cli.RateLimitBurst,
		RequestTimeout:    cli.RequestTimeout,
		TokenInvalidCodes: parseTokenInvalidCodes(cli.TokenInvalidCodes),
	}, tokens)

	handlers := &restic.Handlers{
		Client:         client,
		MaxUploadBytes: cli.UploadMaxBytes,
	}

	if backend := buildPersistenceBackend(); backend != nil {
		client.SetPersistence(backend)
		tokens.SetOnRefresh(func(accessToken, refreshToken string) {
			if err := backend.SaveToken(accessToken, refreshToken); err != nil {
				log.Warn().Err(err).Msg("failed to checkpoint refreshed token")
			}
		})

		ctx, cancel := context.WithTimeout(context.Background(), cli.RequestTimeout)
		if err := client.WarmStart(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to warm-start from persistence backend")
		}
		cancel()

		if accessToken, refreshToken, ok, err := backend.LoadToken(); err != nil {
			log.Warn().Err(err).Msg("failed to load persisted token")
		} else if ok {
			tokens.Adopt(accessToken, refreshToken)
		}
	}

	handlers.SetReady()

	router := restic.GetRouter(cli.MetricsListenAddress, handlers, true)

	log.Info().Msgf("Listening on %s", cli.ListenAddress)
	if err := router.Run(cli.ListenAddress); err != nil {
		log.Fatal().Err(err).Msg("Failed HTTP server loop")
	}
}
