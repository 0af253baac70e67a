package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/errors"
	"github.com/alecthomas/kong"

	"github.com/block/ghtoken/internal/appjwt"
	"github.com/block/ghtoken/internal/config"
	"github.com/block/ghtoken/internal/githubapi"
	"github.com/block/ghtoken/internal/logging"
	"github.com/block/ghtoken/internal/workflow"
)

type CLI struct {
	LoggingConfig logging.Config `embed:"" prefix:"log-"`

	Hostname string `help:"GitHub hostname. Anything other than api.github.com is treated as a GitHub Enterprise Server." default:"api.github.com"`

	Installations InstallationsCmd `cmd:"" help:"List installations for the app." group:"Operations:"`
	Generate      GenerateCmd      `cmd:"" help:"Generate an installation access token." group:"Operations:"`
	Revoke        RevokeCmd        `cmd:"" help:"Revoke an installation access token." group:"Operations:"`
}

func main() {
	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Description("Exchange a GitHub App private key for short-lived GitHub API tokens."),
		kong.UsageOnError(),
		kong.HelpOptions{Compact: true},
		kong.DefaultEnvars("GHTOKEN"),
		kong.Configuration(config.Loader, "/etc/ghtoken/config.hcl", "~/.config/ghtoken/config.hcl"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	_, ctx = logging.Configure(ctx, cli.LoggingConfig)

	wf := workflow.New(appjwt.RS256Signer{}, githubapi.New(githubapi.Endpoint(cli.Hostname)))

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.Bind(wf)
	kctx.FatalIfErrorf(kctx.Run(ctx))
}

// credentialFlags are shared by the subcommands that authenticate as the app.
type credentialFlags struct {
	Key       string `short:"k" help:"Path to a PEM-encoded RSA private key." placeholder:"PATH"`
	Base64Key string `short:"b" help:"Base64-encoded PEM private key." placeholder:"BLOB"`
	AppID     string `short:"a" help:"GitHub App ID." placeholder:"ID" required:""`
	Duration  int    `short:"d" help:"JWT lifetime in minutes (GitHub caps this at 10)." default:"10"`
}

func (c credentialFlags) credentials() workflow.Credentials {
	return workflow.Credentials{
		KeyPath:         c.Key,
		Base64Key:       c.Base64Key,
		AppID:           c.AppID,
		DurationMinutes: c.Duration,
	}
}

type InstallationsCmd struct {
	credentialFlags `embed:""`
}

func (c *InstallationsCmd) Run(ctx context.Context, wf *workflow.Workflow) error {
	installations, err := wf.Installations(ctx, c.credentials())
	if err != nil {
		return err
	}
	if installations == nil {
		// Zero installations is a valid result; emit an empty list, not null.
		installations = []githubapi.Installation{}
	}
	return emit(installations)
}

type GenerateCmd struct {
	credentialFlags `embed:""`

	InstallationID int64 `short:"i" help:"Installation ID. Discovered automatically when omitted." placeholder:"ID"`
	TokenOnly      bool  `short:"o" help:"Print only the token, useful for piping to other commands."`
}

func (c *GenerateCmd) Run(ctx context.Context, wf *workflow.Workflow) error {
	token, err := wf.Generate(ctx, c.credentials(), c.InstallationID)
	if err != nil {
		return err
	}

	if c.TokenOnly {
		fmt.Println(token.Token) //nolint:forbidigo
		return nil
	}
	return emit(token)
}

type RevokeCmd struct {
	Token string `short:"t" help:"Installation access token to revoke." placeholder:"TOKEN" required:""`
}

func (c *RevokeCmd) Run(ctx context.Context, wf *workflow.Workflow) error {
	result, err := wf.Revoke(ctx, c.Token)
	if err != nil {
		return err
	}

	if !result.Revoked {
		logging.FromContext(ctx).WarnContext(ctx, "GitHub did not revoke the token",
			slog.Int("status", result.Status))
	}
	return emit(result)
}

// emit writes the command result as JSON to stdout.
func emit(result any) error {
	enc := json.NewEncoder(os.Stdout)
	return errors.Wrap(enc.Encode(result), "failed to encode result")
}
