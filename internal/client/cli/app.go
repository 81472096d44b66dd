package cli

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/dmitrijs2005/stellarkeeper/internal/client/config"
	"github.com/dmitrijs2005/stellarkeeper/internal/common"
	"github.com/dmitrijs2005/stellarkeeper/internal/custody"
	"github.com/dmitrijs2005/stellarkeeper/internal/logging"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

type App struct {
	config *config.Config
	reader *bufio.Reader
	out    io.Writer
	vault  *custody.Vault

	httpClient *http.Client
	dialOpts   []grpc.DialOption

	// persistent flags
	configPath  string
	server      string
	sessionFile string
}

func NewApp(in io.Reader, out io.Writer) *App {
	return &App{
		reader:     bufio.NewReader(in),
		out:        out,
		vault:      custody.NewVault(logging.NewNop(), nil),
		httpClient: &http.Client{},
	}
}

// Command builds the walletctl command tree.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:           "walletctl",
		Short:         "StellarKeeper wallet client and key tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			if a.server != "" {
				cfg.ServerEndpointAddr = a.server
			}
			if a.sessionFile != "" {
				cfg.SessionFile = a.sessionFile
			}
			a.config = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "JSON config file")
	root.PersistentFlags().StringVarP(&a.server, "server", "a", "", "server address (host:port)")
	root.PersistentFlags().StringVar(&a.sessionFile, "session", "", "session file (default ~/.stellarkeeper/session.json)")

	root.AddCommand(
		a.keygenCmd(), a.verifyCmd(), a.reencryptCmd(),
		a.pingCmd(), a.registerCmd(), a.loginCmd(), a.logoutCmd(),
		a.createWalletCmd(), a.exportKeyCmd(),
		a.balancesCmd(), a.historyCmd(),
		a.trustCmd(), a.untrustCmd(),
		a.payCmd(), a.sendCmd(), a.receiveCmd(), a.swapCmd(),
		a.anchorCmd(), a.avatarCmd(),
	)
	root.SetOut(a.out)
	root.SetErr(a.out)
	return root
}

// Execute runs walletctl against the process arguments and terminal.
func Execute(ctx context.Context) error {
	return NewApp(os.Stdin, os.Stdout).Command().ExecuteContext(ctx)
}

// text returns flagValue or, when empty, prompts for it.
func (a *App) text(flagValue, prompt string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	return GetSimpleText(a.reader, prompt, a.out)
}

// secret prompts for a hidden value and returns it as a string. The read
// buffer is wiped.
func (a *App) secret(prompt string) (string, error) {
	b, err := GetSecret(a.out, prompt)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(b)
	return string(b), nil
}

// passphrase collects the secrets a wallet seed is sealed under. Emails are
// stored lower-cased by the server, so the same is done here.
func (a *App) passphrase(email, passwordHash, pinPrompt string) (custody.Passphrase, error) {
	email, err := a.text(email, "Email")
	if err != nil {
		return custody.Passphrase{}, err
	}
	passwordHash, err = a.text(passwordHash, "Password hash")
	if err != nil {
		return custody.Passphrase{}, err
	}
	pin, err := a.secret(pinPrompt)
	if err != nil {
		return custody.Passphrase{}, err
	}
	return custody.Passphrase{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		PIN:          pin,
	}, nil
}
