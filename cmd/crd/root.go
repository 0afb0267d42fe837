package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/crd"
	logpkg "github.com/kailas-cloud/crd/internal/logger"
	"github.com/kailas-cloud/crd/internal/version"
	"github.com/kailas-cloud/crd/record"
)

var errUsage = errors.New("usage error")

// globalFlags are shared by every subcommand.
type globalFlags struct {
	endpoint  string
	userAgent string
	timeout   time.Duration
	lenient   bool
	verbose   bool
	json      bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "crd",
		Short: "Search the Collaborative Reference Database",
		Long: `crd queries the CRD search API of the National Diet Library
for reference cases, research manuals, special collections and
participating library profiles.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.endpoint, "endpoint", crd.DefaultEndpoint, "search API URL")
	pf.StringVar(&g.userAgent, "user-agent", version.UserAgent("crd-cli"), "User-Agent header")
	pf.DurationVar(&g.timeout, "timeout", 30*time.Second, "request timeout")
	pf.BoolVar(&g.lenient, "lenient", false, "accept result entries holding several records")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log requests to stderr")
	pf.BoolVar(&g.json, "json", false, "output as JSON")

	root.AddCommand(newSearchCmd(g))
	root.AddCommand(newURLCmd(g))
	root.AddCommand(newVersionCmd())
	return root
}

// newClient builds a client from the global flags.
func (g *globalFlags) newClient() (*crd.Client, error) {
	logger := zap.NewNop()
	if g.verbose {
		var err error
		if logger, err = logpkg.NewLogger("local", "debug"); err != nil {
			return nil, err
		}
	}
	policy := record.Strict
	if g.lenient {
		policy = record.Lenient
	}
	return crd.New(
		crd.WithEndpoint(g.endpoint),
		crd.WithUserAgent(g.userAgent),
		crd.WithTimeout(g.timeout),
		crd.WithRecordPolicy(policy),
		crd.WithLogger(logger),
	)
}
