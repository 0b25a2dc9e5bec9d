package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/migadu/ezlist/config"
	"github.com/migadu/ezlist/helpers"
	"github.com/migadu/ezlist/localizer"
	"github.com/migadu/ezlist/registry"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "list-subscribers":
		handleListSubscribers()
	case "add-subscriber":
		handleAddSubscriber()
	case "remove-subscriber":
		handleRemoveSubscriber()
	case "validate-templates":
		handleValidateTemplates()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`EZLIST Admin Tool

Usage:
  ezlist-admin <command> [options]

Commands:
  list-subscribers    List all subscribers of the list
  add-subscriber      Add a subscriber without a confirmation mail
  remove-subscriber   Remove a subscriber without a confirmation mail
  validate-templates  Check that the reply templates render
  help                Show this help message

Examples:
  ezlist-admin list-subscribers
  ezlist-admin add-subscriber --email user@example.com
  ezlist-admin remove-subscriber --email user@example.com
  ezlist-admin validate-templates --config /path/to/config.toml

Use 'ezlist-admin <command> --help' for more information about a command.
`)
}

// loadConfig reads the TOML configuration the same way the main binary
// does, except that a missing default config file is fatal here: admin
// commands need to know which registry to talk to.
func loadConfig(path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration file '%s': %v\n", path, err)
		os.Exit(1)
	}
	if err := cfg.Storage.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid storage configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func openStore(ctx context.Context, cfg config.Config) registry.Store {
	store, err := registry.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open subscriber registry: %v\n", err)
		os.Exit(1)
	}
	return store
}

func handleListSubscribers() {
	fs := flag.NewFlagSet("list-subscribers", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	fs.Parse(os.Args[2:])

	cfg := loadConfig(*configPath)
	ctx := context.Background()
	store := openStore(ctx, cfg)
	defer store.Close()

	subscribers, err := store.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list subscribers: %v\n", err)
		os.Exit(1)
	}

	for _, addr := range subscribers {
		fmt.Println(addr)
	}
	fmt.Fprintf(os.Stderr, "%d subscriber(s)\n", len(subscribers))
}

func handleAddSubscriber() {
	fs := flag.NewFlagSet("add-subscriber", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	email := fs.String("email", "", "Address to subscribe (required)")
	fs.Parse(os.Args[2:])

	addr := helpers.NormalizeAddress(*email)
	if !helpers.ValidAddress(addr) {
		fmt.Fprintf(os.Stderr, "A valid --email address is required\n")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	ctx := context.Background()
	store := openStore(ctx, cfg)
	defer store.Close()

	result, err := store.Add(ctx, addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to add subscriber: %v\n", err)
		os.Exit(1)
	}

	switch result {
	case registry.Added:
		fmt.Printf("Subscribed %s\n", addr)
	case registry.AlreadyPresent:
		fmt.Printf("%s is already subscribed\n", addr)
	}
}

func handleRemoveSubscriber() {
	fs := flag.NewFlagSet("remove-subscriber", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	email := fs.String("email", "", "Address to unsubscribe (required)")
	fs.Parse(os.Args[2:])

	addr := helpers.NormalizeAddress(*email)
	if !helpers.ValidAddress(addr) {
		fmt.Fprintf(os.Stderr, "A valid --email address is required\n")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	ctx := context.Background()
	store := openStore(ctx, cfg)
	defer store.Close()

	result, err := store.Remove(ctx, addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to remove subscriber: %v\n", err)
		os.Exit(1)
	}

	switch result {
	case registry.Removed:
		fmt.Printf("Unsubscribed %s\n", addr)
	case registry.NotPresent:
		fmt.Printf("%s was not subscribed\n", addr)
	}
}

func handleValidateTemplates() {
	fs := flag.NewFlagSet("validate-templates", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	fs.Parse(os.Args[2:])

	cfg := loadConfig(*configPath)

	loc := localizer.New(cfg.Templates.Path, cfg.List.DefaultLanguage)
	languages, err := loc.Languages()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to enumerate template languages: %v\n", err)
		os.Exit(1)
	}

	if err := loc.Validate(localizer.TemplateSubscribeConfirmation, localizer.TemplateUnsubscribeConfirmation); err != nil {
		fmt.Fprintf(os.Stderr, "Template validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Templates OK (%d language(s): %v)\n", len(languages), languages)
}
