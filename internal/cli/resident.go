package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"society-gate-backend/internal/directory"
	"society-gate-backend/internal/model"
	"society-gate-backend/internal/parse"
	"society-gate-backend/internal/store"
)

func newResidentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resident",
		Short: "Manage the local resident directory",
	}
	cmd.AddCommand(newResidentAddCmd(), newResidentSyncCmd())
	return cmd
}

func newResidentAddCmd() *cobra.Command {
	var r model.Resident
	var role string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a directory entry",
		Long:  "Add or update a directory entry by id. Useful when the upstream directory is not configured.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, ok := model.ParseRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			r.Role = parsed
			if parsed == model.RoleResident {
				unit, err := parse.UnitNumber(r.UnitNumber)
				if err != nil {
					return err
				}
				r.UnitNumber = unit
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			gormDB, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer closeDB(gormDB)

			if err := store.NewGormStore(gormDB).UpsertResidents(cmd.Context(), []model.Resident{r}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s %s (%s)\n", r.Role, r.ID, r.UnitNumber)
			return nil
		},
	}

	cmd.Flags().StringVar(&r.ID, "id", "", "account id from the auth service")
	cmd.Flags().StringVar(&r.Name, "name", "", "display name")
	cmd.Flags().StringVar(&r.UnitNumber, "unit", "", "unit number (residents only)")
	cmd.Flags().StringVar(&r.Phone, "phone", "", "primary phone")
	cmd.Flags().StringVar(&r.PhoneSecondary, "phone2", "", "secondary phone")
	cmd.Flags().StringVar(&role, "role", string(model.RoleResident), "resident|guard|admin")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newResidentSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Pull the upstream resident directory once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Directory.URL == "" {
				return fmt.Errorf("directory.url is not configured")
			}
			gormDB, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer closeDB(gormDB)

			n, err := directory.NewSyncer(cfg.Directory, store.NewGormStore(gormDB)).SyncOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d directory entries\n", n)
			return nil
		},
	}
}
