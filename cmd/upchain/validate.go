package main

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ValidateCmd validates a configuration file.
type ValidateCmd struct {
	Config string `arg:"" name:"config" help:"Configuration file path." placeholder:"PATH"`

	// PrintConfig prints the expanded configuration with defaults applied
	// and env vars resolved.
	PrintConfig bool `short:"p" name:"print-config" help:"Print the expanded configuration."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, closer, err := loadConfig(context.Background(), c.Config)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	defer closer()

	fmt.Printf("%s: configuration valid\n", c.Config)

	if c.PrintConfig {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	}
	return nil
}
