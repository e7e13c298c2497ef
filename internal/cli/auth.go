package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xolex/xolex/internal/models"
	"github.com/xolex/xolex/internal/remote"
	"github.com/xolex/xolex/internal/session"
)

const (
	msgLoginFailed      = "Login failed"
	msgNoTokenReceived  = "No token received"
	msgNetworkError     = "Network error"
	msgNotAuthenticated = "User not authenticated"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the credential",
	Long: `Sign in with email and password. The password is read from stdin
(not passed as an argument).

Examples:
  xolex login --email agent@xolex.test              # prompts for password
  echo "secret" | xolex login --email agent@xolex.test`,
	Args: cobra.NoArgs,
	Run:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored credential",
	Args:  cobra.NoArgs,
	Run:   runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	Aliases: []string{"profile"},
	Short:   "Show the signed-in user",
	Args:    cobra.NoArgs,
	Run:     runWhoami,
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email (prompted when omitted)")
}

func runLogin(cmd *cobra.Command, args []string) {
	c := initSessionContext()
	defer c.Close()

	reader := bufio.NewReader(os.Stdin)
	email := strings.TrimSpace(loginEmail)
	if email == "" {
		fmt.Fprint(os.Stderr, "Email: ")
		line, err := readLine(reader)
		if err != nil {
			exitError("failed to read email: %v", err)
		}
		email = line
	}

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := readLine(reader)
	if err != nil {
		exitError("failed to read password: %v", err)
	}
	if email == "" || password == "" {
		exitError("email and password are required")
	}

	token, err := c.Client.Login(context.Background(), email, password)
	if err != nil {
		c.Logger.Debug("login failed", "error", err)
		exitError("%s", loginMessage(err))
	}

	if err := c.Store.SetValue(session.TokenKey, token); err != nil {
		exitError("failed to store credential: %v", err)
	}

	p := session.DecodeCredential(token)
	color.New(color.FgGreen).Printf("Logged in as %s\n", p.DisplayName())
}

// loginMessage maps a login failure to the text shown to the user.
func loginMessage(err error) string {
	if errors.Is(err, remote.ErrNoToken) {
		return msgNoTokenReceived
	}
	return remote.MessageOr(err, msgLoginFailed, msgNetworkError)
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func runLogout(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	if err := c.Store.DeleteValue(session.TokenKey); err != nil {
		exitError("failed to remove credential: %v", err)
	}
	fmt.Println("Logged out")
}

func runWhoami(cmd *cobra.Command, args []string) {
	c := initSessionContext()
	defer c.Close()

	if !c.Session.Authenticated() {
		exitError("%s", msgNotAuthenticated)
	}
	printPrincipal(os.Stdout, c.Session.Principal())
}

func printPrincipal(w io.Writer, p models.Principal) {
	fmt.Fprintf(w, "%s  %s\n", color.New(color.FgBlack, color.BgCyan).Sprintf(" %s ", p.Initial()), p.DisplayName())
	if p.Email != "" {
		fmt.Fprintf(w, "  %s %s\n", label.Sprint("Email:"), p.Email)
	}
	if p.ID != "" {
		fmt.Fprintf(w, "  %s %s\n", label.Sprint("ID:"), p.ID)
	}
}
