package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fioncat/csync/internal/cli/output"
	"github.com/fioncat/csync/internal/cli/prompt"
	"github.com/fioncat/csync/internal/cli/timeutil"
	"github.com/fioncat/csync/pkg/config"
	"github.com/fioncat/csync/pkg/models"
	"github.com/fioncat/csync/pkg/secret"
	"github.com/fioncat/csync/pkg/store"
)

var (
	userAddPassword    string
	userAddAdmin       bool
	userDeleteYes      bool
	userListOutput     string
	userPasswdPassword string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User management",
	Long: `Manage users in the csync database.

These commands operate directly on the database and do not require a
running server. Password and admin changes take effect immediately;
connected devices are not notified of blobs removed by 'user delete',
so prefer the HTTP API for deletions while the server is online.

Examples:
  # Create a user interactively
  csyncd user add

  # Create a user with flags
  csyncd user add alice --password secret

  # List all users
  csyncd user list

  # Change a password
  csyncd user passwd alice

  # Delete a user and all their blobs
  csyncd user delete alice`,
}

var userAddCmd = &cobra.Command{
	Use:   "add [username]",
	Short: "Create a new user",
	Long: `Create a new user.

If the username or password are not provided, you will be prompted to
enter them interactively.

Examples:
  # Create user interactively
  csyncd user add

  # Create user with flags
  csyncd user add alice --password secret

  # Create a user with the admin flag
  csyncd user add ops --password secret --admin`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUserAdd,
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Delete a user and their blobs",
	Long: `Delete a user from the csync database.

All blobs owned by the user are deleted in the same transaction. This
action is irreversible. You will be prompted for confirmation unless
--yes is specified.

Examples:
  # Delete user with confirmation
  csyncd user delete alice

  # Delete user without confirmation
  csyncd user delete alice --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runUserDelete,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	Long: `List all users in the csync database.

Examples:
  # List users as table
  csyncd user list

  # List as JSON
  csyncd user list -o json`,
	RunE: runUserList,
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "Change a user's password",
	Long: `Change a user's password.

A fresh salt is generated alongside the new password hash. Bearer
tokens already issued to the user stay valid until they expire.

Examples:
  # Change password interactively
  csyncd user passwd alice

  # Change password with a flag (less secure)
  csyncd user passwd alice --password newsecret`,
	Args: cobra.ExactArgs(1),
	RunE: runUserPasswd,
}

func init() {
	userAddCmd.Flags().StringVarP(&userAddPassword, "password", "p", "", "Password (prompts if not provided)")
	userAddCmd.Flags().BoolVar(&userAddAdmin, "admin", false, "Grant the admin flag")
	userDeleteCmd.Flags().BoolVarP(&userDeleteYes, "yes", "y", false, "Skip confirmation prompt")
	userListCmd.Flags().StringVarP(&userListOutput, "output", "o", "table", "Output format (table|json|yaml)")
	userPasswdCmd.Flags().StringVarP(&userPasswdPassword, "password", "p", "", "New password (prompts if not provided)")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userDeleteCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userPasswdCmd)
}

// openUserStore loads the configuration and opens the database the
// server uses. WAL mode allows this while the server is running.
func openUserStore() (*config.Config, *store.Store, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return cfg, st, nil
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	// Interactive mode prompts for everything not given on the line
	interactive := len(args) == 0

	var username string
	var err error
	if len(args) > 0 {
		username = args[0]
	} else {
		username, err = prompt.InputRequired("Username")
		if err != nil {
			return handleAbort(err)
		}
	}
	if err := models.ValidateUserName(username); err != nil {
		return err
	}

	password := userAddPassword
	if password == "" {
		password, err = prompt.PasswordWithConfirmation("Password", "Confirm password", 8)
		if err != nil {
			return handleAbort(err)
		}
	}

	admin := userAddAdmin
	if interactive && !cmd.Flags().Changed("admin") {
		role, err := prompt.Select("Role", []prompt.SelectOption{
			{Label: "user", Value: "user", Description: "Regular user, sees only their own blobs"},
			{Label: "admin", Value: "admin", Description: "Administrator with access to all blobs"},
		})
		if err != nil {
			return handleAbort(err)
		}
		admin = role == "admin"
	}

	cfg, st, err := openUserStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	salt, err := secret.NewSalt(cfg.Auth.SaltLength)
	if err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	params := store.CreateUserParams{
		Name:  username,
		Hash:  secret.PasswordHash(password, salt),
		Salt:  salt,
		Admin: admin,
	}

	err = st.Transaction(cmd.Context(), func(tx *store.Tx) error {
		_, err := tx.CreateUser(params, time.Now())
		return err
	})
	if err != nil {
		return err
	}

	fmt.Printf("User %q created\n", username)
	return nil
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	username := args[0]

	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Delete user %q and all their blobs?", username), userDeleteYes)
	if err != nil {
		return handleAbort(err)
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}

	_, st, err := openUserStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	var deletedBlobs int
	err = st.Transaction(cmd.Context(), func(tx *store.Tx) error {
		metas, err := tx.GetMetadatas(models.MetadataQuery{Owner: username})
		if err != nil {
			return err
		}
		if len(metas) > 0 {
			ids := make([]int64, len(metas))
			for i, m := range metas {
				ids[i] = m.ID
			}
			if _, err := tx.DeleteBlobs(ids); err != nil {
				return err
			}
		}
		deletedBlobs = len(metas)
		return tx.DeleteUser(username)
	})
	if err != nil {
		return err
	}

	fmt.Printf("User %q deleted (%d blobs removed)\n", username, deletedBlobs)
	return nil
}

// userList renders users as a table.
type userList []models.User

func (ul userList) Headers() []string {
	return []string{"NAME", "ADMIN", "UPDATED", "AGE"}
}

func (ul userList) Rows() [][]string {
	rows := make([][]string, 0, len(ul))
	for _, u := range ul {
		admin := "no"
		if u.Admin {
			admin = "yes"
		}
		rows = append(rows, []string{
			u.Name,
			admin,
			timeutil.FormatUnix(u.UpdateTime),
			timeutil.FormatAge(u.UpdateTime),
		})
	}
	return rows
}

func runUserList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(userListOutput)
	if err != nil {
		return err
	}

	_, st, err := openUserStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	var users []models.User
	err = st.Transaction(cmd.Context(), func(tx *store.Tx) error {
		users, err = tx.GetUsers(models.UserQuery{})
		return err
	})
	if err != nil {
		return err
	}

	if len(users) == 0 && format == output.FormatTable {
		fmt.Println("No users found.")
		return nil
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, users)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, users)
	default:
		return output.PrintTable(os.Stdout, userList(users))
	}
}

func runUserPasswd(cmd *cobra.Command, args []string) error {
	username := args[0]

	password := userPasswdPassword
	var err error
	if password == "" {
		password, err = prompt.NewPassword()
		if err != nil {
			return handleAbort(err)
		}
	}

	cfg, st, err := openUserStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	salt, err := secret.NewSalt(cfg.Auth.SaltLength)
	if err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	patch := store.UserPatch{
		Name: username,
		Hash: secret.PasswordHash(password, salt),
		Salt: salt,
	}

	err = st.Transaction(cmd.Context(), func(tx *store.Tx) error {
		_, err := tx.UpdateUser(patch, time.Now())
		return err
	})
	if err != nil {
		return err
	}

	fmt.Printf("Password changed for user %q\n", username)
	return nil
}
