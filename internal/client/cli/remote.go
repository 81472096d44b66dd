package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/dmitrijs2005/stellarkeeper/internal/netx"
	"github.com/dmitrijs2005/stellarkeeper/internal/walletapi"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// withClient connects to the server with the stored session, runs fn and
// writes back the token pair if the client rotated it.
func (a *App) withClient(cmd *cobra.Command, fn func(ctx context.Context, c *walletapi.Client) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), a.config.RequestTimeout)
	defer cancel()

	conn, err := walletapi.Dial(a.config.ServerEndpointAddr, a.dialOpts...)
	if err != nil {
		return err
	}
	defer conn.Close()

	stored, err := a.loadSession()
	if err != nil {
		return err
	}
	c := walletapi.NewClient(conn)
	c.SetTokens(stored.AccessToken, stored.RefreshToken)

	runErr := fn(ctx, c)

	access, refresh := c.Tokens()
	if access != stored.AccessToken || refresh != stored.RefreshToken {
		if err := a.saveSession(session{AccessToken: access, RefreshToken: refresh}); err != nil {
			return err
		}
	}
	return runErr
}

func (a *App) printOperation(r *walletapi.OperationResponse) {
	fmt.Fprintf(a.out, "hash:   %s\n", r.Hash)
	if r.Ledger != 0 {
		fmt.Fprintf(a.out, "ledger: %d\n", r.Ledger)
	}
	if r.Bound != "" {
		fmt.Fprintf(a.out, "bound:  %s\n", r.Bound)
	}
}

func (a *App) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server is serving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.config.RequestTimeout)
			defer cancel()

			conn, err := walletapi.Dial(a.config.ServerEndpointAddr, a.dialOpts...)
			if err != nil {
				return err
			}
			defer conn.Close()

			resp, err := healthpb.NewHealthClient(conn).Check(ctx,
				&healthpb.HealthCheckRequest{Service: walletapi.ServiceName}, grpc.CallContentSubtype("proto"))
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, resp.GetStatus().String())
			return nil
		},
	}
}

func (a *App) registerCmd() *cobra.Command {
	var email, username string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := a.text(email, "Email")
			if err != nil {
				return err
			}
			username, err := a.text(username, "Username")
			if err != nil {
				return err
			}
			password, err := a.secret("Password")
			if err != nil {
				return err
			}
			pin, err := a.secret("PIN (4-8 digits)")
			if err != nil {
				return err
			}

			return a.withClient(cmd, func(ctx context.Context, c *walletapi.Client) error {
				resp, err := c.Register(ctx, &walletapi.RegisterRequest{Email: email, Username: username, Password: password, PIN: pin})
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "registered: %s\n", resp.AccountID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&username, "username", "", "display name")
	return cmd
}

func (a *App) loginCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := a.text(email, "Email")
			if err != nil {
				return err
			}
			password, err := a.secret("Password")
			if err != nil {
				return err
			}

			return a.withClient(cmd, func(ctx context.Context, c *walletapi.Client) error {
				if _, err := c.Login(ctx, &walletapi.LoginRequest{Email: email, Password: password}); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "logged in")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

func (a *App) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.clearSession()
		},
	}
}

func (a *App) createWalletCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-wallet",
		Short: "Create and fund the account's Stellar wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(ctx context.Context, c *walletapi.Client) error {
				resp, err := c.CreateWallet(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "public key: %s\n", resp.PublicKey)
				return nil
			})
		},
	}
}

func (a *App) exportKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-key",
		Short: "Print the wallet secret seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pin, err := a.secret("PIN")
			if err != nil {
				return err
			}
			return a.withClient(cmd, func(ctx context.Context, c *walletapi.Client) error {
				resp, err := c.ExportPrivateKey(ctx, &walletapi.ExportPrivateKeyRequest{PIN: pin})
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "secret seed: %s\n", resp.SecretSeed)
				return nil
			})
		},
	}
}

func (a *App) balancesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balances",
		Short: "Show wallet balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(ctx context.Context, c *walletapi.Client) error {
				resp, err := c.Balances(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s\n", resp.PublicKey)
				for _, b := range resp.Base {
					fmt.Fprintf(a.out, "  %-12s %s\n", balanceCode(b), b.Balance)
				}
				for _, b := range resp.Yield {
					fmt.Fprintf(a.out, "  %-12s %s (yield)\n", balanceCode(b), b.Balance)
				}
				return nil
			})
		},
	}
}

func balanceCode(b walletapi.Balance) string {
	if b.AssetType == "native" {
		return "XLM"
	}
	return b.AssetCode
}

func (a *App) historyCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded wallet transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(ctx context.Context, c *walletapi.Client) error {
				resp, err := c.History(ctx, &walletapi.HistoryRequest{Limit: limit, Offset: offset})
				if err != nil {
					return err
				}
				for _, tx := range resp.Transactions {
					fmt.Fprintf(a.out, "%s  %-15s %s %s -> %s %s  %s\n",
						tx.CreatedAt.Format("2006-01-02 15:04"), tx.Kind,
						tx.Amount, tx.SourceAsset, tx.DestAmount, tx.DestAsset, tx.Hash)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "rows to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func (a *App) trustCmd() *cobra.Command {
	var limit string
	cmd := &cobra.Command{
		Use:   "trust <asset>",
		Short: "Add or update a trustline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(ctx context.Context, c *walletapi.Client) error {
				resp, err := c.ChangeTrust(ctx, &walletapi.ChangeTrustRequest{AssetCode: args[0], Limit: limit})
				if err != nil {
					return err
				}
				a.printOperation(resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&limit, "limit", "", "trust limit (default: maximum)")
	return cmd
}

func (a *App) untrustCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "untrust <asset>",
		Short: "Remove a trustline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(ctx context.Context, c *walletapi.Client) error {
				resp, err := c.RemoveTrust(ctx, &walletapi.RemoveTrustRequest{AssetCode: args[0]})
				if err != nil {
					return err
				}
				a.printOperation(resp)
				return nil
			})
		},
	}
}

func (a *App) payCmd() *cobra.Command {
	var memo, bankAccount, bankName, accountName string
	cmd := &cobra.Command{
		Use:   "pay <destination> <asset> <amount>",
		Short: "Send a payment",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &walletapi.PayRequest{Destination: args[0], AssetCode: args[1], Amount: args[2], Memo: memo}
			if bankAccount != "" {
				req.Bank = &walletapi.BankDetails{AccountNumber: bankAccount, AccountName: accountName, BankName: bankName}
			}
			return a.withClient(cmd, func(ctx context.Context, c *walletapi.Client) error {
				resp, err := c.Pay(ctx, req)
				if err != nil {
					return err
				}
				a.printOperation(resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&memo, "memo", "", "text memo (max 28 bytes)")
	cmd.Flags().StringVar(&bankAccount, "bank-account", "", "payout account number for a fiat withdrawal")
	cmd.Flags().StringVar(&accountName, "bank-account-name", "", "payout account holder")
	cmd.Flags().StringVar(&bankName, "bank-name", "", "payout bank")
	return cmd
}

type conversionFlags struct {
	estimate string
	slippage float64
}

func (f *conversionFlags) bind(cmd *cobra.Command, estimateHelp string) {
	cmd.Flags().StringVar(&f.estimate, "estimate", "", estimateHelp)
	cmd.Flags().Float64Var(&f.slippage, "slippage", 1, "slippage tolerance in percent")
}

func (a *App) conversion(cmd *cobra.Command, call func(context.Context, *walletapi.Client) (*walletapi.OperationResponse, error)) error {
	return a.withClient(cmd, func(ctx context.Context, c *walletapi.Client) error {
		resp, err := call(ctx, c)
		if err != nil {
			return err
		}
		a.printOperation(resp)
		return nil
	})
}

func (a *App) sendCmd() *cobra.Command {
	var f conversionFlags
	cmd := &cobra.Command{
		Use:   "send <destination> <source-asset> <dest-asset> <amount>",
		Short: "Spend an exact amount, converting along the best path",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &walletapi.ConversionRequest{Destination: args[0], SourceAsset: args[1], DestAsset: args[2],
				Amount: args[3], DestAmount: f.estimate, Slippage: f.slippage}
			return a.conversion(cmd, func(ctx context.Context, c *walletapi.Client) (*walletapi.OperationResponse, error) {
				return c.StrictSend(ctx, req)
			})
		},
	}
	f.bind(cmd, "expected destination amount")
	return cmd
}

func (a *App) receiveCmd() *cobra.Command {
	var f conversionFlags
	cmd := &cobra.Command{
		Use:   "receive <destination> <source-asset> <dest-asset> <amount>",
		Short: "Deliver an exact amount, converting along the cheapest path",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &walletapi.ConversionRequest{Destination: args[0], SourceAsset: args[1], DestAsset: args[2],
				Amount: args[3], DestAmount: f.estimate, Slippage: f.slippage}
			return a.conversion(cmd, func(ctx context.Context, c *walletapi.Client) (*walletapi.OperationResponse, error) {
				return c.StrictReceive(ctx, req)
			})
		},
	}
	f.bind(cmd, "expected source cost")
	return cmd
}

func (a *App) swapCmd() *cobra.Command {
	var f conversionFlags
	cmd := &cobra.Command{
		Use:   "swap <source-asset> <dest-asset> <amount>",
		Short: "Convert between two assets held by the wallet",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &walletapi.ConversionRequest{SourceAsset: args[0], DestAsset: args[1],
				Amount: args[2], DestAmount: f.estimate, Slippage: f.slippage}
			return a.conversion(cmd, func(ctx context.Context, c *walletapi.Client) (*walletapi.OperationResponse, error) {
				return c.Swap(ctx, req)
			})
		},
	}
	f.bind(cmd, "expected destination amount")
	return cmd
}

func (a *App) printDocument(doc *walletapi.AnchorDocument) error {
	var v any
	if err := json.Unmarshal(doc.Document, &v); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, string(b))
	return nil
}

func (a *App) anchorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anchor",
		Short: "Deposit and withdraw through the anchor",
	}

	interactive := func(direction string) *cobra.Command {
		return &cobra.Command{
			Use:   direction + " <asset>",
			Short: "Start an interactive " + direction,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withClient(cmd, func(ctx context.Context, c *walletapi.Client) error {
					resp, err := c.AnchorInteractive(ctx, &walletapi.AnchorInteractiveRequest{Type: direction, AssetCode: args[0]})
					if err != nil {
						return err
					}
					fmt.Fprintf(a.out, "id:  %s\nurl: %s\n", resp.ID, resp.URL)
					return nil
				})
			},
		}
	}

	info := &cobra.Command{
		Use:   "info",
		Short: "Show the anchor's supported assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(ctx context.Context, c *walletapi.Client) error {
				doc, err := c.AnchorInfo(ctx)
				if err != nil {
					return err
				}
				return a.printDocument(doc)
			})
		},
	}

	transactions := &cobra.Command{
		Use:   "transactions <asset>",
		Short: "List anchor transactions for an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(ctx context.Context, c *walletapi.Client) error {
				doc, err := c.AnchorTransactions(ctx, &walletapi.AnchorTransactionsRequest{AssetCode: args[0]})
				if err != nil {
					return err
				}
				return a.printDocument(doc)
			})
		},
	}

	cmd.AddCommand(info, interactive("deposit"), interactive("withdraw"), transactions)
	return cmd
}

func (a *App) avatarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "avatar",
		Short: "Manage the profile picture",
	}

	upload := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a profile picture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return a.withClient(cmd, func(ctx context.Context, c *walletapi.Client) error {
				resp, err := c.AvatarUploadURL(ctx)
				if err != nil {
					return err
				}
				if err := netx.PutPresigned(ctx, a.httpClient, resp.URL, http.DetectContentType(data), data); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "uploaded %d bytes as %s\n", len(data), resp.Key)
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "url",
		Short: "Print a temporary download link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(ctx context.Context, c *walletapi.Client) error {
				resp, err := c.AvatarURL(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, resp.URL)
				return nil
			})
		},
	}

	cmd.AddCommand(upload, show)
	return cmd
}
