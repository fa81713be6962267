package dispatch

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tonimelisma/gdpoller-go/internal/httpc"
)

// Config selects and parameterises one dispatcher from a settings entry.
// Options carries the class-specific fields verbatim; each constructor
// decodes the subset it understands.
type Config struct {
	Class          string
	BufferInterval time.Duration
	Mappings       []string
	Options        map[string]any
}

// Deps are the shared pieces every dispatcher is built with.
type Deps struct {
	Session *httpc.Session
	Logger  *slog.Logger
}

type urlKeyOptions struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	APIKey string `yaml:"apikey"`
}

type discordOptions struct {
	URL          string            `yaml:"url"`
	WebhookID    string            `yaml:"webhook_id"`
	WebhookToken string            `yaml:"webhook_token"`
	Colors       map[string]string `yaml:"colors"`
}

type commandOptions struct {
	Command           string `yaml:"command"`
	WaitForProcess    bool   `yaml:"wait_for_process"`
	DropDuringProcess bool   `yaml:"drop_during_process"`
	Timeout           int    `yaml:"timeout"`
}

type multiServerOptions struct {
	Rclones   []ServerConfig `yaml:"rclones"`
	Plexes    []ServerConfig `yaml:"plexes"`
	Jellyfins []ServerConfig `yaml:"jellyfins"`
	Kavitas   []ServerConfig `yaml:"kavitas"`
	Stashes   []ServerConfig `yaml:"stashes"`
}

// New builds the dispatcher selected by cfg.Class.
func New(cfg Config, deps Deps) (Dispatcher, error) {
	switch cfg.Class {
	case "", "DummyDispatcher":
		return NewDummy(cfg.Mappings, deps.Logger)

	case "PlexDispatcher":
		var opts urlKeyOptions
		if err := decodeOptions(cfg, &opts); err != nil {
			return nil, err
		}

		return NewPlex(opts.URL, opts.Token, cfg.Mappings, deps.Session, deps.Logger)

	case "RcloneDispatcher":
		var opts urlKeyOptions
		if err := decodeOptions(cfg, &opts); err != nil {
			return nil, err
		}

		return NewRclone(opts.URL, cfg.Mappings, deps.Session, deps.Logger)

	case "KavitaDispatcher":
		var opts urlKeyOptions
		if err := decodeOptions(cfg, &opts); err != nil {
			return nil, err
		}

		return NewKavita(opts.URL, opts.APIKey, cfg.Mappings, cfg.BufferInterval, deps.Session, deps.Logger)

	case "DiscordDispatcher":
		var opts discordOptions
		if err := decodeOptions(cfg, &opts); err != nil {
			return nil, err
		}

		return NewDiscord(opts.URL, opts.WebhookID, opts.WebhookToken, opts.Colors, cfg.Mappings, deps.Session, deps.Logger)

	case "GDSToolDispatcher":
		var opts urlKeyOptions
		if err := decodeOptions(cfg, &opts); err != nil {
			return nil, err
		}

		return NewGDSTool(opts.URL, opts.APIKey, cfg.Mappings, cfg.BufferInterval, deps.Session, deps.Logger)

	case "FlaskfarmaiderDispatcher":
		var opts urlKeyOptions
		if err := decodeOptions(cfg, &opts); err != nil {
			return nil, err
		}

		return NewFlaskfarmaider(opts.URL, opts.APIKey, cfg.Mappings, cfg.BufferInterval, deps.Session, deps.Logger)

	case "PlexmateDispatcher":
		var opts urlKeyOptions
		if err := decodeOptions(cfg, &opts); err != nil {
			return nil, err
		}

		return NewPlexmate(opts.URL, opts.APIKey, cfg.Mappings, deps.Session, deps.Logger)

	case "CommandDispatcher":
		opts := commandOptions{Timeout: 300}
		if err := decodeOptions(cfg, &opts); err != nil {
			return nil, err
		}

		return NewCommand(opts.Command, opts.WaitForProcess, opts.DropDuringProcess,
			time.Duration(opts.Timeout)*time.Second, cfg.Mappings, deps.Logger)

	case "JellyfinDispatcher":
		var opts urlKeyOptions
		if err := decodeOptions(cfg, &opts); err != nil {
			return nil, err
		}

		return NewJellyfin(opts.URL, opts.APIKey, cfg.Mappings, cfg.BufferInterval, deps.Session, deps.Logger)

	case "StashDispatcher":
		var opts urlKeyOptions
		if err := decodeOptions(cfg, &opts); err != nil {
			return nil, err
		}

		return NewStash(opts.URL, opts.APIKey, cfg.Mappings, cfg.BufferInterval, deps.Session, deps.Logger)

	case "MultiServerDispatcher":
		var opts multiServerOptions
		if err := decodeOptions(cfg, &opts); err != nil {
			return nil, err
		}

		return NewMultiServer(opts.Rclones, opts.Plexes, opts.Jellyfins, opts.Kavitas, opts.Stashes,
			cfg.Mappings, cfg.BufferInterval, deps.Session, deps.Logger)

	default:
		return nil, fmt.Errorf("dispatch: unknown dispatcher class %q", cfg.Class)
	}
}

// decodeOptions maps the free-form options onto a typed struct through a
// YAML round trip, matching the tags used in the settings file.
func decodeOptions(cfg Config, out any) error {
	if len(cfg.Options) == 0 {
		return nil
	}

	raw, err := yaml.Marshal(cfg.Options)
	if err != nil {
		return fmt.Errorf("dispatch: encoding %s options: %w", cfg.Class, err)
	}

	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("dispatch: decoding %s options: %w", cfg.Class, err)
	}

	return nil
}
