package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/amaumene/stremarr/internal/models"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type userFlags struct {
	stremioAuthKey string
	addons         []string
	languages      []string
	minResolution  string
}

func (f *userFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.stremioAuthKey, "stremio-auth-key", "", "Stremio account auth key")
	cmd.Flags().StringSliceVar(&f.addons, "addons", nil, "Addon ids to restrict probing to (default: all installed)")
	cmd.Flags().StringSliceVar(&f.languages, "languages", nil, "Language tags a stream must mention, at most 2")
	cmd.Flags().StringVar(&f.minResolution, "min-resolution", "", "Minimum stream resolution: 480p, 720p, 1080p or 4K")
}

// apply copies the flags the user set onto user
func (f *userFlags) apply(cmd *cobra.Command, user *models.User) error {
	if cmd.Flags().Changed("stremio-auth-key") {
		user.StremioAuthKey = strings.TrimSpace(f.stremioAuthKey)
	}
	if cmd.Flags().Changed("addons") {
		user.SelectedAddons = compact(f.addons)
	}
	if cmd.Flags().Changed("languages") {
		languages := compact(f.languages)
		if len(languages) > models.MaxLanguageTags {
			return fmt.Errorf("at most %d language tags are allowed", models.MaxLanguageTags)
		}
		user.Filters.Languages = languages
	}
	if cmd.Flags().Changed("min-resolution") {
		resolution, ok := models.ParseResolution(f.minResolution)
		if !ok {
			return fmt.Errorf("invalid minimum resolution %q", f.minResolution)
		}
		user.Filters.MinResolution = resolution
	}
	return nil
}

func newUserCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(newUserAddCommand(ctx))
	cmd.AddCommand(newUserUpdateCommand(ctx))
	cmd.AddCommand(newUserListCommand(ctx))
	return cmd
}

func newUserAddCommand(ctx *commandContext) *cobra.Command {
	var flags userFlags

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a user and print its API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.ensureDatabase()
			if err != nil {
				return err
			}

			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("user name is required")
			}
			if _, err := db.GetUserByName(name); err == nil {
				return fmt.Errorf("user %q already exists", name)
			} else if !models.IsNotFound(err) {
				return fmt.Errorf("failed to look up user: %w", err)
			}

			user := &models.User{Name: name, APIKey: uuid.NewString()}
			if err := flags.apply(cmd, user); err != nil {
				return err
			}
			if err := db.CreateUser(user); err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User ID: %d\n", user.ID)
			fmt.Fprintf(out, "API key: %s\n", user.APIKey)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newUserUpdateCommand(ctx *commandContext) *cobra.Command {
	var flags userFlags
	var rotateKey bool

	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Change a user's Stremio account, addon selection or filters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.ensureDatabase()
			if err != nil {
				return err
			}

			user, err := db.GetUserByName(strings.TrimSpace(args[0]))
			if err != nil {
				if models.IsNotFound(err) {
					return fmt.Errorf("user %q not found", args[0])
				}
				return fmt.Errorf("failed to look up user: %w", err)
			}

			if err := flags.apply(cmd, user); err != nil {
				return err
			}
			if rotateKey {
				user.APIKey = uuid.NewString()
			}
			if err := db.UpdateUser(user); err != nil {
				return fmt.Errorf("failed to update user: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "User %s updated\n", user.Name)
			if rotateKey {
				fmt.Fprintf(cmd.OutOrStdout(), "API key: %s\n", user.APIKey)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&rotateKey, "rotate-key", false, "Issue a new API key")
	return cmd
}

func newUserListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.ensureDatabase()
			if err != nil {
				return err
			}

			users, err := db.GetAllUsers()
			if err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTREMIO\tADDONS\tLANGUAGES\tMIN RESOLUTION")
			for _, user := range users {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					user.ID,
					user.Name,
					linked(user.StremioAuthKey),
					orDash(strings.Join(user.SelectedAddons, ",")),
					orDash(strings.Join(user.Filters.Languages, ",")),
					orDash(string(user.Filters.MinResolution)),
				)
			}
			return w.Flush()
		},
	}
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func linked(authKey string) string {
	if authKey == "" {
		return "no"
	}
	return "yes"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func parseID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(arg), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}
