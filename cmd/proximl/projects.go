package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/proximl/pkg/client"
	"github.com/rmax-ai/proximl/pkg/config"
	"github.com/rmax-ai/proximl/pkg/output"
	"github.com/rmax-ai/proximl/pkg/resources"
)

var projectColumns = []output.Column{
	{Header: "id", Path: "id || project_uuid"},
	{Header: "name", Path: "name"},
	{Header: "owner", Path: "owner_name"},
}

func newProjectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects and their keys, secrets, services and datastores",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			px, err := a.api(cmd.Context())
			if err != nil {
				return err
			}
			projects, err := px.Projects.List(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd, raws(projects), projectColumns)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "current",
		Short: "Show the active project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			px, err := a.api(cmd.Context())
			if err != nil {
				return err
			}
			project, err := px.Projects.Current(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd, project.Raw(), projectColumns)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-active <id>",
		Short: "Make a project the default scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			px, err := a.api(cmd.Context())
			if err != nil {
				return err
			}
			project, err := px.Projects.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := config.SetActiveProject(a.cfg.ConfigDir, project.ID()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active project: %s (%s)\n", project.Name(), project.ID())
			return nil
		},
	})

	var copyKeys bool
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			px, err := a.api(cmd.Context())
			if err != nil {
				return err
			}
			project, err := px.Projects.Create(cmd.Context(), args[0], copyKeys)
			if err != nil {
				return err
			}
			return a.render(cmd, project.Raw(), projectColumns)
		},
	}
	createCmd.Flags().BoolVar(&copyKeys, "copy-keys", false, "Copy third-party keys from the active project")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			px, err := a.api(cmd.Context())
			if err != nil {
				return err
			}
			if err := px.Projects.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed project %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(newProjectKeyCmd(a))
	cmd.AddCommand(newProjectSecretCmd(a))
	cmd.AddCommand(newProjectServiceCmd(a))
	cmd.AddCommand(newProjectDatastoreCmd(a))
	return cmd
}

// activeProject returns the services and the id of the project in scope.
func (a *app) activeProject(cmd *cobra.Command) (*resources.ProxiML, string, error) {
	px, err := a.api(cmd.Context())
	if err != nil {
		return nil, "", err
	}
	id := px.API.Project()
	if id == "" {
		return nil, "", &client.SpecificationError{Attribute: "project", Message: "no active project, use --project or 'proximl project set-active'"}
	}
	return px, id, nil
}

func newProjectKeyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage third-party keys of the active project",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			px, id, err := a.activeProject(cmd)
			if err != nil {
				return err
			}
			keys, err := px.Projects.Keys(id).List(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd, raws(keys), []output.Column{{Header: "type"}, {Header: "key_id"}, {Header: "updatedAt"}})
		},
	})

	var keyID, secret, tenant string
	putCmd := &cobra.Command{
		Use:   "put <type>",
		Short: "Set a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			px, id, err := a.activeProject(cmd)
			if err != nil {
				return err
			}
			key, err := px.Projects.Keys(id).Put(cmd.Context(), args[0], keyID, secret, tenant)
			if err != nil {
				return err
			}
			return a.render(cmd, key.Raw(), []output.Column{{Header: "type"}, {Header: "key_id"}})
		},
	}
	putCmd.Flags().StringVar(&keyID, "key-id", "", "Key identifier")
	putCmd.Flags().StringVar(&secret, "secret", "", "Key secret")
	putCmd.Flags().StringVar(&tenant, "tenant", "", "Tenant (azure only)")
	cmd.AddCommand(putCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <type>",
		Short: "Remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			px, id, err := a.activeProject(cmd)
			if err != nil {
				return err
			}
			return px.Projects.Keys(id).Remove(cmd.Context(), args[0])
		},
	})
	return cmd
}

func newProjectSecretCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets of the active project",
	}
	columns := []output.Column{{Header: "name"}, {Header: "updatedAt"}}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			px, id, err := a.activeProject(cmd)
			if err != nil {
				return err
			}
			secrets, err := px.Projects.Secrets(id).List(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd, raws(secrets), columns)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "put <name> <value>",
		Short: "Set a secret",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			px, id, err := a.activeProject(cmd)
			if err != nil {
				return err
			}
			s, err := px.Projects.Secrets(id).Put(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.render(cmd, s.Raw(), columns)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			px, id, err := a.activeProject(cmd)
			if err != nil {
				return err
			}
			return px.Projects.Secrets(id).Remove(cmd.Context(), args[0])
		},
	})
	return cmd
}

func newProjectServiceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage services available to the active project",
	}
	columns := []output.Column{{Header: "id"}, {Header: "name"}, {Header: "hostname"}, {Header: "public"}}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			px, id, err := a.activeProject(cmd)
			if err != nil {
				return err
			}
			services, err := px.Projects.Services(id).List(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd, raws(services), columns)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Re-sync services from the project's regions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			px, id, err := a.activeProject(cmd)
			if err != nil {
				return err
			}
			return px.Projects.Services(id).Refresh(cmd.Context())
		},
	})

	for _, enable := range []bool{true, false} {
		use, short := "enable <id>", "Enable a service"
		if !enable {
			use, short = "disable <id>", "Disable a service"
		}
		cmd.AddCommand(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				px, id, err := a.activeProject(cmd)
				if err != nil {
					return err
				}
				service, err := px.Projects.Services(id).Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if enable {
					return service.Enable(cmd.Context())
				}
				return service.Disable(cmd.Context())
			},
		})
	}
	return cmd
}

func newProjectDatastoreCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datastore",
		Short: "Manage datastores available to the active project",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List datastores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			px, id, err := a.activeProject(cmd)
			if err != nil {
				return err
			}
			stores, err := px.Projects.Datastores(id).List(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd, raws(stores), []output.Column{{Header: "id"}, {Header: "name"}, {Header: "type"}})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Re-sync datastores from the project's regions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			px, id, err := a.activeProject(cmd)
			if err != nil {
				return err
			}
			return px.Projects.Datastores(id).Refresh(cmd.Context())
		},
	})
	return cmd
}
