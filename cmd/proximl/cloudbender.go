package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/proximl/pkg/output"
	"github.com/rmax-ai/proximl/pkg/resources"
)

func newCloudbenderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cloudbender",
		Short: "Manage cloudbender providers, regions, services and datastores",
	}
	cmd.AddCommand(newProviderCmd(a))
	cmd.AddCommand(newRegionCmd(a))
	cmd.AddCommand(newServiceCmd(a))
	cmd.AddCommand(newDatastoreCmd(a))
	return cmd
}

func (a *app) cloudbender(cmd *cobra.Command) (*resources.Cloudbender, error) {
	px, err := a.api(cmd.Context())
	if err != nil {
		return nil, err
	}
	return px.Cloudbender, nil
}

func removed(cmd *cobra.Command, kind, id string) {
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s %s\n", kind, id)
}

func newProviderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "provider", Short: "Manage providers"}
	columns := []output.Column{{Header: "id", Path: "provider_uuid"}, {Header: "type"}, {Header: "credits"}}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := a.cloudbender(cmd)
			if err != nil {
				return err
			}
			providers, err := cb.Providers.List(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd, raws(providers), columns)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <provider>",
		Short: "Show a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := a.cloudbender(cmd)
			if err != nil {
				return err
			}
			p, err := cb.Providers.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(cmd, p.Raw(), columns)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "enable <type>",
		Short: "Enable a provider type (physical, aws, gcp, ...)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := a.cloudbender(cmd)
			if err != nil {
				return err
			}
			p, err := cb.Providers.Enable(cmd.Context(), args[0], nil)
			if err != nil {
				return err
			}
			return a.render(cmd, p.Raw(), columns)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <provider>",
		Short: "Remove a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := a.cloudbender(cmd)
			if err != nil {
				return err
			}
			if err := cb.Providers.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			removed(cmd, "provider", args[0])
			return nil
		},
	})
	return cmd
}

func newRegionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "region", Short: "Manage regions of a provider"}
	columns := []output.Column{{Header: "id", Path: "region_uuid"}, {Header: "name"}, {Header: "status"}, {Header: "provider", Path: "provider_type"}}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <provider>",
		Short: "List regions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := a.cloudbender(cmd)
			if err != nil {
				return err
			}
			regions, err := cb.Regions.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(cmd, raws(regions), columns)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <provider> <region>",
		Short: "Show a region",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := a.cloudbender(cmd)
			if err != nil {
				return err
			}
			r, err := cb.Regions.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.render(cmd, r.Raw(), columns)
		},
	})

	var create resources.CreateRegion
	createCmd := &cobra.Command{
		Use:   "create <provider>",
		Short: "Create a region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := a.cloudbender(cmd)
			if err != nil {
				return err
			}
			r, err := cb.Regions.Create(cmd.Context(), args[0], create)
			if err != nil {
				return err
			}
			return a.render(cmd, r.Raw(), columns)
		},
	}
	createCmd.Flags().StringVar(&create.Name, "name", "", "Region name")
	createCmd.Flags().BoolVar(&create.Public, "public", false, "Offer the region's capacity publicly")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <provider> <region>",
		Short: "Remove a region",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := a.cloudbender(cmd)
			if err != nil {
				return err
			}
			if err := cb.Regions.Remove(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			removed(cmd, "region", args[1])
			return nil
		},
	})
	return cmd
}

func newServiceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "service", Short: "Manage services of a region"}
	columns := []output.Column{
		{Header: "id", Path: "service_id"},
		{Header: "name"},
		{Header: "type"},
		{Header: "hostname", Path: "custom_hostname || hostname"},
		{Header: "status"},
	}

	get := func(cmd *cobra.Command, args []string) (resources.Service, error) {
		cb, err := a.cloudbender(cmd)
		if err != nil {
			return resources.Service{}, err
		}
		return cb.Services.Get(cmd.Context(), args[0], args[1], args[2])
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <provider> <region>",
		Short: "List services",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := a.cloudbender(cmd)
			if err != nil {
				return err
			}
			services, err := cb.Services.List(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.render(cmd, raws(services), columns)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <provider> <region> <service>",
		Short: "Show a service",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := get(cmd, args)
			if err != nil {
				return err
			}
			return a.render(cmd, s.Raw(), columns)
		},
	})

	var create resources.CreateService
	createCmd := &cobra.Command{
		Use:   "create <provider> <region>",
		Short: "Create a service",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := a.cloudbender(cmd)
			if err != nil {
				return err
			}
			s, err := cb.Services.Create(cmd.Context(), args[0], args[1], create)
			if err != nil {
				return err
			}
			return a.render(cmd, s.Raw(), columns)
		},
	}
	createCmd.Flags().StringVar(&create.Name, "name", "", "Service name")
	createCmd.Flags().StringVar(&create.Type, "type", "https", "Service type (https, tcp, udp)")
	createCmd.Flags().BoolVar(&create.Public, "public", false, "Expose the service publicly")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <provider> <region> <service>",
		Short: "Remove a service",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := a.cloudbender(cmd)
			if err != nil {
				return err
			}
			if err := cb.Services.Remove(cmd.Context(), args[0], args[1], args[2]); err != nil {
				return err
			}
			removed(cmd, "service", args[2])
			return nil
		},
	})

	var timeout time.Duration
	waitCmd := &cobra.Command{
		Use:   "wait <provider> <region> <service> <status>",
		Short: "Wait until a service reaches a status",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := get(cmd, args)
			if err != nil {
				return err
			}
			final, err := s.WaitFor(cmd.Context(), args[3], timeout)
			if err != nil {
				return err
			}
			if !final.Exists() {
				fmt.Fprintf(cmd.OutOrStdout(), "service %s no longer exists\n", args[2])
				return nil
			}
			return a.render(cmd, final.Raw(), columns)
		},
	}
	waitCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Maximum time to wait")
	cmd.AddCommand(waitCmd)

	var algorithm string
	certCmd := &cobra.Command{
		Use:   "generate-certificate <provider> <region> <service>",
		Short: "Issue a new certificate for a service",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := get(cmd, args)
			if err != nil {
				return err
			}
			if s, err = s.GenerateCertificate(cmd.Context(), algorithm); err != nil {
				return err
			}
			return a.render(cmd, s.Raw(), columns)
		},
	}
	certCmd.Flags().StringVar(&algorithm, "algorithm", "ed25519", "Key algorithm")
	cmd.AddCommand(certCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "sign-certificate <provider> <region> <service> <csr-file>",
		Short: "Sign a client certificate request for a service",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			csr, err := os.ReadFile(args[3])
			if err != nil {
				return fmt.Errorf("failed to read certificate request: %w", err)
			}
			s, err := get(cmd, args[:3])
			if err != nil {
				return err
			}
			cert, err := s.SignClientCertificate(cmd.Context(), string(csr))
			if err != nil {
				return err
			}
			return a.render(cmd, cert, nil)
		},
	})
	return cmd
}

func newDatastoreCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "datastore", Short: "Manage datastores of a region"}
	columns := []output.Column{{Header: "id", Path: "store_id"}, {Header: "name"}, {Header: "type"}, {Header: "uri"}}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <provider> <region>",
		Short: "List datastores",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := a.cloudbender(cmd)
			if err != nil {
				return err
			}
			stores, err := cb.Datastores.List(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.render(cmd, raws(stores), columns)
		},
	})

	var create resources.CreateDatastore
	createCmd := &cobra.Command{
		Use:   "create <provider> <region>",
		Short: "Create a datastore",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := a.cloudbender(cmd)
			if err != nil {
				return err
			}
			d, err := cb.Datastores.Create(cmd.Context(), args[0], args[1], create)
			if err != nil {
				return err
			}
			return a.render(cmd, d.Raw(), columns)
		},
	}
	createCmd.Flags().StringVar(&create.Name, "name", "", "Datastore name")
	createCmd.Flags().StringVar(&create.Type, "type", "nfs", "Datastore type")
	createCmd.Flags().StringVar(&create.URI, "uri", "", "Datastore address")
	createCmd.Flags().StringVar(&create.Root, "root", "", "Root path on the datastore")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <provider> <region> <datastore>",
		Short: "Remove a datastore",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := a.cloudbender(cmd)
			if err != nil {
				return err
			}
			if err := cb.Datastores.Remove(cmd.Context(), args[0], args[1], args[2]); err != nil {
				return err
			}
			removed(cmd, "datastore", args[2])
			return nil
		},
	})
	return cmd
}
