/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kedevs/blogapi/config"
	"github.com/kedevs/blogapi/internal/auth"
	"github.com/kedevs/blogapi/internal/db"
	"github.com/kedevs/blogapi/internal/services"
	"github.com/kedevs/blogapi/internal/store"
	"github.com/kedevs/blogapi/types"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Test seams for terminal access.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// userCmd represents the user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user, optionally with staff or superuser rights",
	Long: `Create a user account. The password is prompted for on the terminal,
or read from the first line of stdin with --password-stdin.

	blogapi user create --email admin@example.com --username admin --superuser
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUserService(cmd.Context(), func(users *services.UserService) error {
			return runUserCreate(cmd, users)
		})
	},
}

var userSetStaffCmd = &cobra.Command{
	Use:   "set-staff <email>",
	Short: "Grant or revoke staff status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		staff, err := cmd.Flags().GetBool("staff")
		if err != nil {
			return err
		}
		return withUserService(cmd.Context(), func(users *services.UserService) error {
			user, err := users.SetStaff(cmd.Context(), args[0], staff)
			if err != nil {
				return userError(args[0], err)
			}
			printUser(cmd.OutOrStdout(), user)
			return nil
		})
	},
}

var userDeactivateCmd = &cobra.Command{
	Use:   "deactivate <email>",
	Short: "Disable login and revoke outstanding tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, args[0], false)
	},
}

var userActivateCmd = &cobra.Command{
	Use:   "activate <email>",
	Short: "Re-enable login for a deactivated user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, args[0], true)
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd, userSetStaffCmd, userDeactivateCmd, userActivateCmd)

	addUserCreateFlags(userCreateCmd)
	userSetStaffCmd.Flags().Bool("staff", true, "staff status to set")
}

func addUserCreateFlags(cmd *cobra.Command) {
	cmd.Flags().String("email", "", "login email (required)")
	cmd.Flags().String("username", "", "public username (required)")
	cmd.Flags().Bool("staff", false, "grant staff rights")
	cmd.Flags().Bool("superuser", false, "grant superuser and staff rights")
	cmd.Flags().Bool("password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("username")
}

func withUserService(ctx context.Context, fn func(*services.UserService) error) error {
	cfg := config.LoadConfig()

	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(newUserService(conn, cfg))
}

func newUserService(conn *sql.DB, cfg config.Config) *services.UserService {
	return services.NewUserService(store.NewUserRepository(conn), auth.NewBcryptHasher(cfg.Auth.BcryptCost))
}

func runUserCreate(cmd *cobra.Command, users *services.UserService) error {
	flags := cmd.Flags()
	email, _ := flags.GetString("email")
	username, _ := flags.GetString("username")
	staff, _ := flags.GetBool("staff")
	superuser, _ := flags.GetBool("superuser")
	fromStdin, _ := flags.GetBool("password-stdin")

	password, err := promptPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), fromStdin)
	if err != nil {
		return err
	}

	in := services.RegisterInput{Username: username, Email: email, Password: password}
	var user types.User
	switch {
	case superuser:
		user, err = users.CreateSuperuser(cmd.Context(), in)
	case staff:
		user, err = users.CreateStaff(cmd.Context(), in)
	default:
		user, err = users.Register(cmd.Context(), in)
	}
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return errors.New("a user with that username or email already exists")
		}
		return err
	}

	printUser(cmd.OutOrStdout(), user)
	return nil
}

func setActive(cmd *cobra.Command, email string, active bool) error {
	return withUserService(cmd.Context(), func(users *services.UserService) error {
		user, err := users.SetActive(cmd.Context(), email, active)
		if err != nil {
			return userError(email, err)
		}
		printUser(cmd.OutOrStdout(), user)
		return nil
	})
}

// promptPassword reads the first line of in when fromStdin is set, and
// otherwise prompts twice on the terminal without echo.
func promptPassword(in io.Reader, out io.Writer, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("read password from stdin: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return "", errors.New("stdin is not a terminal, use --password-stdin")
	}

	fmt.Fprint(out, "Password: ")
	first, err := readPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	fmt.Fprint(out, "Password (again): ")
	second, err := readPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func userError(email string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no user with email %q", email)
	}
	return err
}

func printUser(w io.Writer, user types.User) {
	fmt.Fprintf(w, "id=%d username=%s email=%s active=%t staff=%t superuser=%t\n",
		user.ID, user.Username, user.Email, user.IsActive, user.IsStaff, user.IsSuperuser)
}
