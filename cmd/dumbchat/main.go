// Command dumbchat is a terminal client for the dumb chat server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/debianrose/dumbchat/internal/config"
	"github.com/debianrose/dumbchat/internal/conversation"
	"github.com/debianrose/dumbchat/internal/credential"
	"github.com/debianrose/dumbchat/internal/gateway"
	"github.com/debianrose/dumbchat/internal/live"
	"github.com/debianrose/dumbchat/internal/logger"
	"github.com/debianrose/dumbchat/internal/rtc"
	"github.com/debianrose/dumbchat/internal/session"
	"github.com/debianrose/dumbchat/internal/tui"
	"github.com/debianrose/dumbchat/internal/twofa"
	"github.com/debianrose/dumbchat/internal/version"
)

var (
	flagConfig   string
	flagUsername string
	flagPassword string
	flagChannel  string
)

// app bundles the wired client components.
type app struct {
	cfg   config.Config
	api   *gateway.Client
	creds *credential.Store
	conv  *conversation.State
	ctrl  *session.Controller
	live  *live.Client
}

func buildApp(cfgPath string, logToFile bool) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if logToFile {
		// The TUI owns the terminal; logs go to a file.
		_ = logger.InitFile(cfg.Log.File, cfg.Log.Level, cfg.Log.Format)
	} else {
		logger.Init(cfg.Log.Level, cfg.Log.Format)
	}

	creds := credential.NewStore()
	api := gateway.NewClient(logger.L, cfg.Server.APIBaseURL, creds, cfg.Client.Timeout())
	conv := conversation.NewState(logger.L, cfg.Client.DefaultChannel)
	ctrl := session.NewController(logger.L, api, creds, conv, cfg.Client.HistoryLimit, rate.Every(cfg.Client.Timeout()/10))
	l := live.NewClient(logger.L, cfg.Server.WebSocketURL(), ctrl.HandlePush, ctrl.HandleStatus)
	ctrl.AttachLive(l)

	return &app{cfg: cfg, api: api, creds: creds, conv: conv, ctrl: ctrl, live: l}, nil
}

func resolveCredentials() (string, string, error) {
	username := strings.TrimSpace(flagUsername)
	if username == "" {
		fmt.Print("Username: ")
		if _, err := fmt.Scanln(&username); err != nil {
			return "", "", fmt.Errorf("read username: %w", err)
		}
	}

	password := flagPassword
	if password == "" {
		password = os.Getenv("DUMBCHAT_PASSWORD")
	}
	if password == "" {
		fmt.Print("Password: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", "", fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	}
	if username == "" || password == "" {
		return "", "", errors.New("username and password are required")
	}
	return username, password, nil
}

// loginForCommand authenticates a one-shot CLI invocation, prompting for a
// 2FA code when the account requires one.
func loginForCommand(ctx context.Context, a *app) error {
	username, password, err := resolveCredentials()
	if err != nil {
		return err
	}
	if err := a.ctrl.Login(ctx, username, password); err != nil {
		return err
	}
	if a.ctrl.State() == session.AwaitingSecondFactor {
		fmt.Print("2FA code: ")
		var code string
		if _, err := fmt.Scanln(&code); err != nil {
			return fmt.Errorf("read code: %w", err)
		}
		return a.ctrl.SubmitSecondFactor(ctx, code)
	}
	return nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dumbchat",
		Short: "Terminal client for the dumb chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(flagConfig, true)
			if err != nil {
				return err
			}
			defer a.ctrl.Logout()

			model := tui.New(a.ctrl, a.conv)
			_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
			return err
		},
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to dumbchat.toml")
	root.PersistentFlags().StringVarP(&flagUsername, "username", "u", "", "username")
	root.PersistentFlags().StringVarP(&flagPassword, "password", "p", "", "password (or set DUMBCHAT_PASSWORD)")

	root.AddCommand(newRegisterCmd(), newSendCmd(), newTwoFACmd(), newCallCmd(), newVersionCmd())
	return root
}

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Create an account (does not log in)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(flagConfig, false)
			if err != nil {
				return err
			}
			username, password, err := resolveCredentials()
			if err != nil {
				return err
			}
			if err := a.ctrl.Register(cmd.Context(), username, password); err != nil {
				return err
			}
			fmt.Println("Registration successful. Log in with: dumbchat")
			return nil
		},
	}
}

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Send a single message and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(flagConfig, false)
			if err != nil {
				return err
			}
			defer a.ctrl.Logout()

			if err := loginForCommand(cmd.Context(), a); err != nil {
				return err
			}
			if flagChannel != "" && flagChannel != a.conv.ActiveChannel() {
				if err := a.ctrl.JoinChannel(cmd.Context(), flagChannel); err != nil {
					return err
				}
			}
			return a.ctrl.SendMessage(cmd.Context(), strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&flagChannel, "channel", "c", "", "target channel (defaults to the configured channel)")
	return cmd
}

func newTwoFACmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "2fa",
		Short: "Manage two-factor authentication",
	}

	withService := func(run func(ctx context.Context, svc *twofa.Service, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(flagConfig, false)
			if err != nil {
				return err
			}
			defer a.ctrl.Logout()
			if err := loginForCommand(cmd.Context(), a); err != nil {
				return err
			}
			return run(cmd.Context(), twofa.NewService(logger.L, a.api), args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show whether 2FA is enabled",
			RunE: withService(func(ctx context.Context, svc *twofa.Service, _ []string) error {
				enabled, err := svc.Status(ctx)
				if err != nil {
					return err
				}
				if enabled {
					fmt.Println("2FA is enabled")
				} else {
					fmt.Println("2FA is disabled")
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "enable",
			Short: "Enroll and enable 2FA",
			RunE: withService(func(ctx context.Context, svc *twofa.Service, _ []string) error {
				setup, err := svc.Setup(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Secret: %s\n", setup.Secret)
				fmt.Printf("QR code: %s\n", setup.QRCodeURL)
				fmt.Print("Code from your authenticator: ")
				var code string
				if _, err := fmt.Scanln(&code); err != nil {
					return fmt.Errorf("read code: %w", err)
				}
				if err := svc.Enable(ctx, code); err != nil {
					return err
				}
				fmt.Println("2FA enabled")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "disable <code>",
			Short: "Disable 2FA with a current code",
			Args:  cobra.ExactArgs(1),
			RunE: withService(func(ctx context.Context, svc *twofa.Service, args []string) error {
				if err := svc.Disable(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("2FA disabled")
				return nil
			}),
		},
	)
	return root
}

func newCallCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "call",
		Short: "Inspect and end voice-call signaling",
	}

	withSignaler := func(run func(ctx context.Context, sig *rtc.Signaler, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(flagConfig, false)
			if err != nil {
				return err
			}
			defer a.ctrl.Logout()
			if err := loginForCommand(cmd.Context(), a); err != nil {
				return err
			}
			return run(cmd.Context(), rtc.NewSignaler(logger.L, a.api), args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "check <user>",
			Short: "Check for a pending call offer from a user",
			Args:  cobra.ExactArgs(1),
			RunE: withSignaler(func(ctx context.Context, sig *rtc.Signaler, args []string) error {
				resp, err := sig.FetchOffer(ctx, args[0])
				if err != nil {
					return err
				}
				if resp.Offer == "" {
					fmt.Printf("no pending call from %s\n", args[0])
					return nil
				}
				fmt.Printf("pending call from %s\n", resp.From)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "hangup <user>",
			Short: "End an active call with a user",
			Args:  cobra.ExactArgs(1),
			RunE: withSignaler(func(ctx context.Context, sig *rtc.Signaler, args []string) error {
				if err := sig.EndCall(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("call ended")
				return nil
			}),
		},
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("dumbchat %s\n", version.GetInfo())
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
