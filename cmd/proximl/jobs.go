package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/proximl/pkg/output"
	"github.com/rmax-ai/proximl/pkg/resources"
	"github.com/rmax-ai/proximl/pkg/store"
)

var jobColumns = []output.Column{
	{Header: "id", Path: "id || job_uuid"},
	{Header: "name", Path: "name"},
	{Header: "type", Path: "type"},
	{Header: "status", Path: "status"},
	{Header: "gpus", Path: "resources.gpu_count"},
}

// readJobSpec loads a job definition from a YAML or JSON file.
func readJobSpec(path string) (resources.CreateJob, error) {
	var spec resources.CreateJob
	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("failed to read job file: %w", err)
	}
	// YAML is a superset of JSON; round-trip through JSON so the json tags apply.
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return spec, fmt.Errorf("failed to parse job file: %w", err)
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return spec, fmt.Errorf("failed to encode job file: %w", err)
	}
	if err := json.Unmarshal(encoded, &spec); err != nil {
		return spec, fmt.Errorf("invalid job file: %w", err)
	}
	return spec, nil
}

func newJobCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage jobs",
	}

	get := func(cmd *cobra.Command, id string) (resources.Job, error) {
		px, err := a.api(cmd.Context())
		if err != nil {
			return resources.Job{}, err
		}
		return px.Jobs.Get(cmd.Context(), id, nil)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List jobs in the active project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			px, err := a.api(cmd.Context())
			if err != nil {
				return err
			}
			jobs, err := px.Jobs.List(cmd.Context(), nil)
			if err != nil {
				return err
			}
			return a.render(cmd, raws(jobs), jobColumns)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := get(cmd, args[0])
			if err != nil {
				return err
			}
			return a.render(cmd, job.Raw(), jobColumns)
		},
	})

	var file string
	createCmd := &cobra.Command{
		Use:   "create -f <file>",
		Short: "Create a job from a YAML or JSON definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := readJobSpec(file)
			if err != nil {
				return err
			}
			px, err := a.api(cmd.Context())
			if err != nil {
				return err
			}
			job, err := px.Jobs.Create(cmd.Context(), spec)
			if err != nil {
				return err
			}
			return a.render(cmd, job.Raw(), jobColumns)
		},
	}
	createCmd.Flags().StringVarP(&file, "file", "f", "", "Job definition file")
	createCmd.MarkFlagRequired("file")
	cmd.AddCommand(createCmd)

	for _, c := range []struct{ command, short string }{
		{"start", "Start a stopped job"},
		{"stop", "Stop a running job"},
	} {
		command := c.command
		cmd.AddCommand(&cobra.Command{
			Use:   command + " <id>",
			Short: c.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				job, err := get(cmd, args[0])
				if err != nil {
					return err
				}
				if command == "start" {
					job, err = job.Start(cmd.Context())
				} else {
					job, err = job.Stop(cmd.Context())
				}
				if err != nil {
					return err
				}
				return a.render(cmd, job.Raw(), jobColumns)
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			px, err := a.api(cmd.Context())
			if err != nil {
				return err
			}
			if err := px.Jobs.Remove(cmd.Context(), args[0], nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed job %s\n", args[0])
			return nil
		},
	})

	var timeout time.Duration
	waitCmd := &cobra.Command{
		Use:   "wait <id> <status>",
		Short: "Wait until a job reaches a status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := get(cmd, args[0])
			if err != nil {
				return err
			}
			final, err := job.WaitFor(cmd.Context(), args[1], timeout)
			if err != nil {
				return err
			}
			if !final.Exists() {
				fmt.Fprintf(cmd.OutOrStdout(), "job %s no longer exists\n", args[0])
				return nil
			}
			return a.render(cmd, final.Raw(), jobColumns)
		},
	}
	waitCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Maximum time to wait")
	cmd.AddCommand(waitCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "attach <id>",
		Short: "Stream a job's logs until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := get(cmd, args[0])
			if err != nil {
				return err
			}
			handler, err := a.logHandler(cmd.Context(), cmd.OutOrStdout(), store.Source{
				Entity:      "job",
				EntityID:    job.ID(),
				ProjectUUID: job.ProjectUUID(),
			})
			if err != nil {
				return err
			}
			return job.Attach(cmd.Context(), handler)
		},
	})

	return cmd
}
