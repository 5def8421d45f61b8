package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"orgdirectory/internal/blob"
	"orgdirectory/internal/core"
)

func newSeedCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the sample directory unless data is already present",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			report, err := a.svc.SeedFixtures(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		}),
	}
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show how many buildings, activities and organizations are stored",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			st, err := a.svc.FixtureStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		}),
	}
}

func newTreeCommand(a *app) *cobra.Command {
	var maxLevel int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the activity tree",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			var tree []core.ActivityNode
			var err error
			if cmd.Flags().Changed("max-level") {
				tree, err = a.svc.ActivityTree(cmd.Context(), maxLevel)
			} else {
				tree, err = a.svc.DefaultActivityTree(cmd.Context())
			}
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), tree)
			}
			var b strings.Builder
			writeTree(&b, tree)
			_, err = fmt.Fprint(cmd.OutOrStdout(), b.String())
			return err
		}),
	}
	cmd.Flags().IntVar(&maxLevel, "max-level", 0, "number of levels to include; unset uses ORGDIR_TREE_MAX_LEVEL")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the tree as JSON")
	return cmd
}

func writeTree(b *strings.Builder, nodes []core.ActivityNode) {
	stack := make([]core.ActivityNode, 0, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		stack = append(stack, nodes[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fmt.Fprintf(b, "%s%s (%d)\n", strings.Repeat("  ", n.Level), n.Name, n.ID)
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

func newNearbyCommand(a *app) *cobra.Command {
	var lat, lng, radius float64
	var orgs bool
	cmd := &cobra.Command{
		Use:   "nearby",
		Short: "List buildings (or organizations) within a radius of a point",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			center := core.Point{Lat: lat, Lng: lng}
			if orgs {
				out, err := a.svc.OrganizationsInRadius(cmd.Context(), center, radius)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			}
			out, err := a.svc.BuildingsInRadius(cmd.Context(), center, radius)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		}),
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "center latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "center longitude")
	cmd.Flags().Float64Var(&radius, "radius-km", 1, "search radius in kilometres")
	cmd.Flags().BoolVar(&orgs, "organizations", false, "list organizations instead of buildings")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	return cmd
}

func newSearchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find organizations by name",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			out, err := a.svc.SearchOrganizations(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		}),
	}
}

func newExportCommand(a *app) *cobra.Command {
	var prefix string
	var presign time.Duration
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON and XLSX snapshot of the directory to the blob store",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := blob.Open(ctx, a.cfg.Blob)
			if err != nil {
				return fmt.Errorf("open blob store: %w", err)
			}
			manifest, err := a.svc.ExportDirectory(ctx, store, core.ExportOptions{Prefix: prefix})
			if err != nil {
				return err
			}
			out := struct {
				core.ExportManifest
				URLs map[string]string `json:"urls,omitempty"`
			}{ExportManifest: manifest}
			if presign > 0 {
				out.URLs = make(map[string]string, len(manifest.Files))
				for _, f := range manifest.Files {
					url, err := store.PresignURL(ctx, f.Key, blob.SignedURLOptions{Expiry: presign})
					if err != nil {
						return fmt.Errorf("presign %s: %w", f.Key, err)
					}
					out.URLs[f.Key] = url
				}
			}
			return printJSON(cmd.OutOrStdout(), out)
		}),
	}
	cmd.Flags().StringVar(&prefix, "prefix", core.DefaultExportPrefix, "key prefix for the export folder")
	cmd.Flags().DurationVar(&presign, "presign", 0, "also print download URLs valid for this long")
	return cmd
}
