package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	bind             string
	bins             int
	caption          string
	hostPassword     string
	hostPasswordHash string
	image            string
	maxGuess         int
	metrics          bool
	port             int
	prefix           string
	profile          bool
	sessionKey       string
	tlsCert          string
	tlsKey           string
	trueCount        int
	verbose          bool
	version          bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxGuess < 1 {
		return fmt.Errorf("invalid max guess (must be at least 1): %d", c.maxGuess)
	}
	if c.trueCount < 0 {
		return fmt.Errorf("invalid true count (must not be negative): %d", c.trueCount)
	}
	if c.bins < 0 {
		return fmt.Errorf("invalid bin count (must not be negative): %d", c.bins)
	}
	if c.hostPassword != "" && c.hostPasswordHash != "" {
		return errors.New("only one of --host-password and --host-password-hash may be provided")
	}
	if c.hostPasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(c.hostPasswordHash)); err != nil {
			return fmt.Errorf("invalid --host-password-hash: %w", err)
		}
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for use with --host-password-hash.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading password from stdin: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return err
		},
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("JARGUESS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "jarguess",
		Short:         "Guess how many items are in the jar, then reveal the crowd's answer.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: JARGUESS_BIND)")
	fs.IntVar(&cfg.bins, "bins", 0, "number of histogram bins, or 0 to pick automatically (env: JARGUESS_BINS)")
	fs.StringVar(&cfg.caption, "caption", "How many items do you think are in this jar?", "caption shown under the jar (env: JARGUESS_CAPTION)")
	fs.StringVar(&cfg.hostPassword, "host-password", "", "password that grants the host role (env: JARGUESS_HOST_PASSWORD)")
	fs.StringVar(&cfg.hostPasswordHash, "host-password-hash", "", "bcrypt hash of the host password (env: JARGUESS_HOST_PASSWORD_HASH)")
	fs.StringVar(&cfg.image, "image", "", "path to a photo of the jar (env: JARGUESS_IMAGE)")
	fs.IntVar(&cfg.maxGuess, "max-guess", 100000, "largest accepted guess; larger values are clamped (env: JARGUESS_MAX_GUESS)")
	fs.BoolVar(&cfg.metrics, "metrics", false, "expose prometheus metrics at /metrics (env: JARGUESS_METRICS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: JARGUESS_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: JARGUESS_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: JARGUESS_PROFILE)")
	fs.StringVar(&cfg.sessionKey, "session-key", "", "key used to sign session cookies; random if unset (env: JARGUESS_SESSION_KEY)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: JARGUESS_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: JARGUESS_TLS_KEY)")
	fs.IntVar(&cfg.trueCount, "true-count", 735, "actual number of items in the jar (env: JARGUESS_TRUE_COUNT)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: JARGUESS_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: JARGUESS_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(newHashCmd())

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("jarguess v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
