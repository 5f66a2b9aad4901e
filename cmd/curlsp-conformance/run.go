package main

import (
	"fmt"
	"os"
	"time"

	"curlsp.dev/conformance/internal/client"
	"curlsp.dev/conformance/internal/config"
	"curlsp.dev/conformance/internal/conformance"
	"curlsp.dev/conformance/internal/log"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	runConfigPath string
	runTransport  string
	runServer     string
	runAddress    string
	runTimeout    time.Duration
	runVerbose    bool
)

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "Path to a harness config file (YAML or JSONC)")
	runCmd.Flags().StringVar(&runTransport, "transport", "", "Channel transport: stdio, tcp, or websocket")
	runCmd.Flags().StringVar(&runServer, "server", "", "Server command to spawn (stdio transport)")
	runCmd.Flags().StringVar(&runAddress, "address", "", "Server address (tcp/websocket transports)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Per-request response timeout")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Log every message exchanged")
}

var runCmd = &cobra.Command{
	Use:          "run",
	Short:        "Run the conformance scenario against a language server",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		applyLogLevel(cfg)

		ch, err := cfg.Channel()
		if err != nil {
			return err
		}

		c := client.New(ch, client.WithRequestTimeout(cfg.RequestTimeout.Std()))
		if err := c.Start(); err != nil {
			return err
		}

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		fixtures, err := cfg.ExpandFixtures(cwd)
		if err != nil {
			return err
		}

		results := conformance.NewScenario(c, conformance.Options{
			Expect:   cfg.Expectations(),
			RootURI:  cfg.RootURI,
			Fixtures: fixtures,
		}).Run()

		report(results)
		if !conformance.Passed(results) {
			return fmt.Errorf("conformance failed")
		}
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if runConfigPath != "" {
		loaded, err := config.Load(runConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// Flags override file values.
	if runTransport != "" {
		cfg.Server.Transport = runTransport
	}
	if runServer != "" {
		cfg.Server.Command = runServer
	}
	if runAddress != "" {
		cfg.Server.Address = runAddress
	}
	if runTimeout > 0 {
		cfg.RequestTimeout = config.Duration(runTimeout)
	}
	if runVerbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func applyLogLevel(cfg *config.Config) {
	switch cfg.LogLevel {
	case "debug":
		log.SetLevel(log.LevelDebug)
	case "warn":
		log.SetLevel(log.LevelWarn)
	case "error":
		log.SetLevel(log.LevelError)
	default:
		log.SetLevel(log.LevelInfo)
	}
}

func report(results []conformance.StepResult) {
	pass := color.New(color.FgGreen, color.Bold).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	failed := 0
	for _, r := range results {
		if r.Passed {
			fmt.Printf("%s %-12s %s %s\n", pass("PASS"), r.Name, dim(r.Method), r.Detail)
			continue
		}
		failed++
		fmt.Printf("%s %-12s %s %s\n", fail("FAIL"), r.Name, dim(r.Method), r.Detail)
		if len(r.Raw) > 0 {
			fmt.Printf("     payload: %s\n", r.Raw)
		}
	}

	fmt.Println()
	if failed == 0 {
		fmt.Printf("%s %d steps\n", pass("OK"), len(results))
	} else {
		fmt.Printf("%s %d of %d steps failed\n", fail("NOT OK"), failed, len(results))
	}
}
