package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/proximl/pkg/output"
	"github.com/rmax-ai/proximl/pkg/resources"
	"github.com/rmax-ai/proximl/pkg/store"
)

func storageColumns(kind string) []output.Column {
	return []output.Column{
		{Header: "id", Path: fmt.Sprintf("id || %s_uuid", kind)},
		{Header: "name", Path: "name"},
		{Header: "status", Path: "status"},
		{Header: "size", Path: "size || used_size"},
	}
}

// newStorageCmd builds the command group for one storage kind.
func newStorageCmd(a *app, kind string, service func(*resources.ProxiML) *resources.StorageService) *cobra.Command {
	cmd := &cobra.Command{
		Use:   kind,
		Short: fmt.Sprintf("Manage %ss", kind),
	}
	columns := storageColumns(kind)

	svc := func(cmd *cobra.Command) (*resources.StorageService, error) {
		px, err := a.api(cmd.Context())
		if err != nil {
			return nil, err
		}
		return service(px), nil
	}
	get := func(cmd *cobra.Command, id string) (resources.Storage, error) {
		s, err := svc(cmd)
		if err != nil {
			return resources.Storage{}, err
		}
		return s.Get(cmd.Context(), id, nil)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %ss in the active project", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := svc(cmd)
			if err != nil {
				return err
			}
			items, err := s.List(cmd.Context(), nil)
			if err != nil {
				return err
			}
			return a.render(cmd, raws(items), columns)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: fmt.Sprintf("Show a %s", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := get(cmd, args[0])
			if err != nil {
				return err
			}
			return a.render(cmd, item.Raw(), columns)
		},
	})

	var create resources.CreateStorage
	createCmd := &cobra.Command{
		Use:   "create",
		Short: fmt.Sprintf("Create a %s from a source", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := svc(cmd)
			if err != nil {
				return err
			}
			item, err := s.Create(cmd.Context(), create)
			if err != nil {
				return err
			}
			return a.render(cmd, item.Raw(), columns)
		},
	}
	createCmd.Flags().StringVar(&create.Name, "name", "", "Name of the new "+kind)
	createCmd.Flags().StringVar(&create.SourceType, "source-type", "", "Source type (aws, gcp, azure, git, web, ...)")
	createCmd.Flags().StringVar(&create.SourceURI, "source-uri", "", "Source location")
	if kind == "volume" {
		createCmd.Flags().StringVar(&create.Capacity, "capacity", "", "Volume capacity, e.g. 10G")
	}
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: fmt.Sprintf("Delete a %s", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := svc(cmd)
			if err != nil {
				return err
			}
			if err := s.Remove(cmd.Context(), args[0], nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s %s\n", kind, args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <id> <name>",
		Short: fmt.Sprintf("Rename a %s", kind),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := get(cmd, args[0])
			if err != nil {
				return err
			}
			if item, err = item.Rename(cmd.Context(), args[1]); err != nil {
				return err
			}
			return a.render(cmd, item.Raw(), columns)
		},
	})

	var exportType, exportURI string
	exportCmd := &cobra.Command{
		Use:   "export <id>",
		Short: fmt.Sprintf("Export a %s to external storage", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := get(cmd, args[0])
			if err != nil {
				return err
			}
			if item, err = item.Export(cmd.Context(), exportType, exportURI, nil); err != nil {
				return err
			}
			return a.render(cmd, item.Raw(), columns)
		},
	}
	exportCmd.Flags().StringVar(&exportType, "type", "", "Output type (aws, gcp, azure, ...)")
	exportCmd.Flags().StringVar(&exportURI, "uri", "", "Output location")
	cmd.AddCommand(exportCmd)

	var timeout time.Duration
	waitCmd := &cobra.Command{
		Use:   "wait <id> <status>",
		Short: fmt.Sprintf("Wait until a %s reaches a status", kind),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := get(cmd, args[0])
			if err != nil {
				return err
			}
			final, err := item.WaitFor(cmd.Context(), args[1], timeout)
			if err != nil {
				return err
			}
			if !final.Exists() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s no longer exists\n", kind, args[0])
				return nil
			}
			return a.render(cmd, final.Raw(), columns)
		},
	}
	waitCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Maximum time to wait")
	cmd.AddCommand(waitCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "attach <id>",
		Short: fmt.Sprintf("Stream a %s's logs until it settles", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := get(cmd, args[0])
			if err != nil {
				return err
			}
			handler, err := a.logHandler(cmd.Context(), cmd.OutOrStdout(), store.Source{
				Entity:      kind,
				EntityID:    item.ID(),
				ProjectUUID: item.ProjectUUID(),
			})
			if err != nil {
				return err
			}
			return item.Attach(cmd.Context(), handler)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "details <id>",
		Short: fmt.Sprintf("Show a %s's server-side details and connection settings", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := get(cmd, args[0])
			if err != nil {
				return err
			}
			details, err := item.Details(cmd.Context())
			if err != nil {
				return err
			}
			result := map[string]any{"details": details}
			if conn, ok := item.ConnectionDetails(); ok {
				result["connection"] = conn
			}
			return a.render(cmd, result, nil)
		},
	})

	return cmd
}
