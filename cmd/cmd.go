package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/quakecast/quake-delivery-service/config"
	"github.com/quakecast/quake-delivery-service/infra/auth"
	infrapubsub "github.com/quakecast/quake-delivery-service/infra/pubsub"
	pubsubadapter "github.com/quakecast/quake-delivery-service/internal/adapter/pubsub"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/urfave/cli/v2"
)

const (
	ServiceName      = "quake-delivery-service"
	ServiceNamespace = "quakecast"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Real-time earthquake and station pick distribution",
		Version: fmt.Sprintf("%s (%s@%s, %s)", version, commit, branch, commitDate),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config_file",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
				EnvVars: []string{config.EnvPrefix + "_CONFIG_FILE"},
			},
		},
		Commands: []*cli.Command{
			serverCmd(),
			publishCmd(),
			keysCmd(),
			tokenCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the delivery server",
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config_file"))
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("SHUTTING_DOWN")
			return app.Stop(context.Background())
		},
	}
}

// publishCmd injects one JSON record through Redis, exactly as the upstream system would.
func publishCmd() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Aliases:   []string{"p"},
		Usage:     "Publish a JSON record to a Redis channel",
		ArgsUsage: "<file|->",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "channel",
				Value: model.ChannelEvent.String(),
				Usage: "Channel name (EVENT or PICK)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config_file"))
			if err != nil {
				return err
			}

			payload, err := readInput(c.Args().First())
			if err != nil {
				return err
			}

			rdb := newRedisClient(cfg)
			defer rdb.Close()

			logger := ProvideLogger(cfg)
			pub := infrapubsub.NewRedisPublisher(rdb, infrapubsub.PublisherConfig{}, ProvideWatermillLogger(logger))
			defer pub.Close()

			ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
			defer cancel()

			ch := model.Channel(c.String("channel"))
			if err := pubsubadapter.NewEventDispatcher(pub).Publish(ctx, ch, payload); err != nil {
				return err
			}
			logger.Info("RECORD_PUBLISHED", slog.String("channel", ch.String()), slog.Int("bytes", len(payload)))
			return nil
		},
	}
}

func keysCmd() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "Generate a VAPID key pair for Web Push",
		Action: func(c *cli.Context) error {
			priv, pub, err := webpush.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "push:\n  vapid_public_key: %s\n  vapid_private_key: %s\n", pub, priv)
			return nil
		},
	}
}

// tokenCmd signs a producer token for the restricted injection endpoints.
func tokenCmd() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue a producer JWT for the injection endpoints",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Value: "producer"},
			&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config_file"))
			if err != nil {
				return err
			}
			token, err := auth.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, c.String("subject"), cfg.Auth.Role, c.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, token)
			return nil
		},
	}
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
