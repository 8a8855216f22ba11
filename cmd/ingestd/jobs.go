package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	ingest "github.com/wina-futureobjects/track-futura-new-sub007"
	ingestcommand "github.com/wina-futureobjects/track-futura-new-sub007/command"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
	ingestquery "github.com/wina-futureobjects/track-futura-new-sub007/query"
)

var (
	jobID       string
	jobSnapshot string
	jobName     string
	jobStatus   string
	jobMetadata string
	jobLimit    int
	jobOffset   int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Register and inspect scraping jobs",
}

var jobsRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a job so deliveries can link to it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		metadata := map[string]any{}
		if jobMetadata != "" {
			if err := json.Unmarshal([]byte(jobMetadata), &metadata); err != nil {
				return fmt.Errorf("--metadata must be a JSON object: %w", err)
			}
		}
		return withRuntime(cmd, func(ctx context.Context, rt *ingest.Runtime) error {
			job, err := execute[core.Job](ctx, rt.Facade.Commands().RegisterJob, ingestcommand.RegisterJobMessage{
				Input: core.RegisterJobInput{
					ID:         jobID,
					SnapshotID: jobSnapshot,
					Name:       jobName,
					Status:     core.JobStatus(jobStatus),
					Metadata:   metadata,
				},
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, job)
		})
	},
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Set a job's status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *ingest.Runtime) error {
			job, err := execute[core.Job](ctx, rt.Facade.Commands().UpdateJobStatus, ingestcommand.UpdateJobStatusMessage{
				JobID:  jobID,
				Status: core.JobStatus(jobStatus),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, job)
		})
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show a job and its folder tree",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *ingest.Runtime) error {
			queries := rt.Facade.Queries()
			job, err := query(ctx, queries.GetJob, ingestquery.GetJobMessage{JobID: jobID})
			if err != nil {
				return err
			}
			folders, err := query(ctx, queries.ListFolders, ingestquery.ListFoldersMessage{JobID: job.ID})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"job": job, "folders": folders})
		})
	},
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *ingest.Runtime) error {
			page, err := query(ctx, rt.Facade.Queries().ListJobs, ingestquery.ListJobsMessage{
				Status: core.JobStatus(jobStatus),
				Limit:  jobLimit,
				Offset: jobOffset,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, page)
		})
	},
}

func init() {
	register := jobsRegisterCmd.Flags()
	register.StringVar(&jobID, "id", "", "job id (generated when empty)")
	register.StringVar(&jobSnapshot, "snapshot", "", "BrightData snapshot id")
	register.StringVar(&jobName, "name", "", "display name")
	register.StringVar(&jobStatus, "status", "", "initial status (default pending)")
	register.StringVar(&jobMetadata, "metadata", "", "metadata as a JSON object")

	jobsStatusCmd.Flags().StringVar(&jobID, "id", "", "job id")
	jobsStatusCmd.Flags().StringVar(&jobStatus, "status", "", "pending, running, complete or failed")
	_ = jobsStatusCmd.MarkFlagRequired("id")
	_ = jobsStatusCmd.MarkFlagRequired("status")

	jobsGetCmd.Flags().StringVar(&jobID, "id", "", "job id")
	_ = jobsGetCmd.MarkFlagRequired("id")

	jobsListCmd.Flags().StringVar(&jobStatus, "status", "", "filter by status")
	jobsListCmd.Flags().IntVar(&jobLimit, "limit", 50, "page size")
	jobsListCmd.Flags().IntVar(&jobOffset, "offset", 0, "page offset")

	jobsCmd.AddCommand(jobsRegisterCmd, jobsStatusCmd, jobsGetCmd, jobsListCmd)
}
