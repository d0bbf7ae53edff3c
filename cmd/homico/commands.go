package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"homico/internal/domain"
	"homico/internal/engine"
	"homico/internal/repo"
)

// userAction runs fn with the engine and the --user-id caller.
func userAction(cmd *cobra.Command, fn func(ctx context.Context, e engine.Engine, userID string) error) error {
	userID, err := requireUser()
	if err != nil {
		return err
	}
	return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
		return fn(ctx, e, userID)
	})
}

func jobCmd() *cobra.Command {
	job := &cobra.Command{Use: "job", Short: "Manage jobs"}
	job.AddCommand(jobCreateCmd())
	job.AddCommand(jobListCmd())
	job.AddCommand(jobShowCmd())
	job.AddCommand(jobCancelCmd())
	job.AddCommand(jobRenewCmd())
	job.AddCommand(jobInviteCmd())
	job.AddCommand(&cobra.Command{
		Use:   "view <job-id>",
		Short: "Record a job view by --user-id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				return e.RecordJobView(ctx, args[0], userID)
			})
		},
	})
	return job
}

func jobCreateCmd() *cobra.Command {
	var title, desc, category, jobType string
	var budget float64
	var invite []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Post a job as --user-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				opts := engine.JobCreateOptions{
					ClientID:    userID,
					Title:       title,
					Description: desc,
					Category:    category,
					JobType:     domain.JobType(jobType),
					InvitedPros: invite,
				}
				if cmd.Flags().Changed("budget") {
					opts.Budget = &budget
				}
				j, err := e.CreateJob(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "job title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&jobType, "type", string(domain.JobTypeMarketplace), "marketplace|direct_request")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget")
	cmd.Flags().StringSliceVar(&invite, "invite", nil, "invited professional ids (direct requests)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func jobListCmd() *cobra.Command {
	var status, client string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListJobs(ctx, repo.JobFilters{ClientID: client, Status: domain.JobStatus(status), Limit: limit})
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&client, "client", "", "client id filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func jobShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.GetJob(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
}

func jobCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job as its client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				j, err := e.CancelJob(ctx, args[0], userID, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func jobRenewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "renew <job-id>",
		Short: "Reopen an expired job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				j, err := e.RenewJob(ctx, args[0], userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
}

func jobInviteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invite <job-id> <pro-id>...",
		Short: "Invite more professionals to a direct request",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				j, err := e.InvitePros(ctx, args[0], userID, args[1:])
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
}

func proposalCmd() *cobra.Command {
	prop := &cobra.Command{Use: "proposal", Short: "Manage proposals"}
	prop.AddCommand(proposalSubmitCmd())
	prop.AddCommand(proposalListCmd())

	var choice string
	shortlist := &cobra.Command{
		Use:   "shortlist <proposal-id>",
		Short: "Shortlist a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				p, err := e.Shortlist(ctx, args[0], userID, domain.HiringChoice(choice))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	shortlist.Flags().StringVar(&choice, "choice", string(domain.HiringChoiceHomico), "homico|direct")
	prop.AddCommand(shortlist)

	prop.AddCommand(&cobra.Command{
		Use:   "accept <proposal-id>",
		Short: "Hire the professional behind a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				p, t, err := e.Accept(ctx, args[0], userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"proposal": p, "tracking": t})
				}
				printProposals([]domain.Proposal{p})
				printTracking(t)
				return nil
			})
		},
	})

	for _, a := range []struct {
		use, short string
		fn         func(engine.Engine) func(context.Context, string, string) (domain.Proposal, error)
	}{
		{"reject", "Reject a proposal", func(e engine.Engine) func(context.Context, string, string) (domain.Proposal, error) { return e.Reject }},
		{"revert", "Return a proposal to pending", func(e engine.Engine) func(context.Context, string, string) (domain.Proposal, error) {
			return e.RevertToPending
		}},
		{"withdraw", "Withdraw your proposal", func(e engine.Engine) func(context.Context, string, string) (domain.Proposal, error) { return e.Withdraw }},
		{"reveal", "Reveal the professional's contact", func(e engine.Engine) func(context.Context, string, string) (domain.Proposal, error) {
			return e.RevealContact
		}},
	} {
		prop.AddCommand(&cobra.Command{
			Use:   a.use + " <proposal-id>",
			Short: a.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
					p, err := a.fn(e)(ctx, args[0], userID)
					if err != nil {
						return err
					}
					return printJSONOrTable(p)
				})
			},
		})
	}
	return prop
}

func proposalSubmitCmd() *cobra.Command {
	var cover, unit string
	var price float64
	var duration int
	cmd := &cobra.Command{
		Use:   "submit <job-id>",
		Short: "Bid on a marketplace job as --user-id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				p, err := e.SubmitProposal(ctx, engine.ProposalSubmitOptions{
					JobID:                 args[0],
					ProID:                 userID,
					CoverLetter:           cover,
					ProposedPrice:         price,
					EstimatedDuration:     duration,
					EstimatedDurationUnit: unit,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&cover, "cover", "", "cover letter")
	cmd.Flags().Float64Var(&price, "price", 0, "proposed price")
	cmd.Flags().IntVar(&duration, "duration", 0, "estimated duration")
	cmd.Flags().StringVar(&unit, "unit", "days", "days|weeks|months")
	return cmd
}

func proposalListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <job-id>",
		Short: "List proposals visible to --user-id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				items, err := e.ListProposals(ctx, args[0], userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func directCmd() *cobra.Command {
	direct := &cobra.Command{Use: "direct", Short: "Answer direct requests"}
	direct.AddCommand(&cobra.Command{
		Use:   "accept <job-id>",
		Short: "Accept a direct request as --user-id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				t, err := e.AcceptDirectRequest(ctx, args[0], userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	})
	direct.AddCommand(&cobra.Command{
		Use:   "decline <job-id>",
		Short: "Decline a direct request as --user-id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				j, err := e.DeclineDirectRequest(ctx, args[0], userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	})
	return direct
}

func trackingCmd() *cobra.Command {
	tr := &cobra.Command{
		Use:   "tracking",
		Short: "Follow a hired project",
		Long:  "Stages: " + stageList() + ". Entering a stage raises progress to the stage floor; the client confirms completion once.",
	}
	tr.AddCommand(&cobra.Command{
		Use:   "show <job-id>",
		Short: "Show project tracking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				t, err := e.GetTracking(ctx, args[0], userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	})

	var note string
	var images []string
	stage := &cobra.Command{
		Use:   "stage <job-id> <stage>",
		Short: "Move the project to another stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := domain.ParseStage(args[1])
			if err != nil {
				return err
			}
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				t, err := e.UpdateStage(ctx, engine.StageUpdateOptions{JobID: args[0], UserID: userID, Stage: st, Note: note, Images: images})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	stage.Flags().StringVar(&note, "note", "", "note for the stage history")
	stage.Flags().StringSliceVar(&images, "image", nil, "completion image URLs")
	tr.AddCommand(stage)

	var progress int
	prog := &cobra.Command{
		Use:   "progress <job-id>",
		Short: "Report progress as the hired professional",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				t, err := e.UpdateProgress(ctx, args[0], userID, progress)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	prog.Flags().IntVar(&progress, "value", 0, "progress percentage")
	tr.AddCommand(prog)

	tr.AddCommand(&cobra.Command{
		Use:   "confirm <job-id>",
		Short: "Confirm completion as the client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				t, err := e.ConfirmCompletion(ctx, args[0], userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	})

	tr.AddCommand(&cobra.Command{
		Use:   "message <job-id> <text>",
		Short: "Post a project message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				h, err := e.PostMessage(ctx, args[0], userID, strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				return printJSONOrTable(h)
			})
		},
	})

	var limit int
	history := &cobra.Command{
		Use:   "history <job-id>",
		Short: "Show the project timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				items, err := e.ListHistory(ctx, args[0], userID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "At", "Type", "User"})
				for _, h := range items {
					tw.AppendRow(table.Row{h.ID, h.CreatedAt, h.Type, h.UserID})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	history.Flags().IntVar(&limit, "limit", 50, "max events")
	tr.AddCommand(history)

	tr.AddCommand(&cobra.Command{
		Use:   "unread <job-id>",
		Short: "Unread counts for --user-id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				counts, err := e.UnreadCounts(ctx, args[0], userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(counts)
			})
		},
	})

	tr.AddCommand(&cobra.Command{
		Use:   "viewed <job-id> <chat|polls|materials>",
		Short: "Mark a timeline feature as read",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := domain.ParseFeature(args[1])
			if err != nil {
				return err
			}
			return userAction(cmd, func(ctx context.Context, e engine.Engine, userID string) error {
				return e.MarkViewed(ctx, args[0], userID, f)
			})
		},
	})
	return tr
}

func stageList() string {
	var out []string
	for _, s := range domain.Stages() {
		out = append(out, fmt.Sprintf("%s (%d%%)", s, s.Floor()))
	}
	return strings.Join(out, " -> ")
}
