// Command upchain explores an upstream production chain: it recursively
// decomposes a sourcing requirement into sub-requirements, grades candidate
// process records against each requirement, selects the best match, and
// traces the selected process's input flows further upstream.
//
// Usage:
//
//	upchain explore "Source rolled steel in Germany around 2020" --config upchain.yaml
//	upchain tables --config upchain.yaml
//	upchain validate upchain.yaml
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/upchain"
	"github.com/kadirpekel/upchain/pkg/config"
	"github.com/kadirpekel/upchain/pkg/config/provider"
	"github.com/kadirpekel/upchain/pkg/datasource"
	"github.com/kadirpekel/upchain/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Explore  ExploreCmd  `cmd:"" help:"Explore the upstream chain of a requirement."`
	Tables   TablesCmd   `cmd:"" help:"List the tables of the configured data source."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config    string `short:"c" help:"Path to config file." default:"upchain.yaml" type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (text or json)." default:"text"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(upchain.VersionString())
	return nil
}

// TablesCmd lists the tables of the configured data source.
type TablesCmd struct{}

func (c *TablesCmd) Run(cli *CLI) error {
	cfg, closer, err := loadConfig(context.Background(), cli.Config)
	if err != nil {
		return err
	}
	defer closer()

	source, err := datasource.New(&cfg.DataSource)
	if err != nil {
		return err
	}
	defer source.Close()

	tables, err := source.ListTables(context.Background())
	if err != nil {
		return err
	}

	for _, table := range tables {
		fmt.Println(table)
	}
	return nil
}

// loadConfig loads and validates the config file; the returned closer stops
// the provider.
func loadConfig(ctx context.Context, path string) (*config.Config, func(), error) {
	p, err := provider.New(provider.Options{Path: path})
	if err != nil {
		return nil, nil, err
	}

	loader := config.NewLoader(p)
	cfg, err := loader.Load(ctx)
	if err != nil {
		_ = p.Close()
		return nil, nil, err
	}

	return cfg, func() { _ = loader.Close() }, nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("upchain"),
		kong.Description("upchain - recursive upstream production-chain explorer"),
		kong.UsageOnError(),
	)

	logger.Setup(logger.Options{Level: cli.LogLevel, Format: cli.LogFormat})

	err := ctx.Run(&cli)
	if err != nil {
		ctx.Errorf("%v", err)
		os.Exit(1)
	}
}
