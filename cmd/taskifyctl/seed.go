package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"taskify/internal/db"
	"taskify/internal/domain"
	"taskify/internal/repository"
	"taskify/internal/service"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func seedCmd() *cobra.Command {
	var (
		email string
		name  string
		demo  bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create (or reuse) a user and print an API token",
		Example: `  taskifyctl seed --email ann@example.com --name Ann
  taskifyctl seed --email ann@example.com --demo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := requireEnv("DATABASE_URL")
			if err != nil {
				return err
			}
			if err := initJWT(); err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := db.Connect(ctx, dsn, 2)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			return seed(ctx, cmd.OutOrStdout(), repository.NewPostgresStore(pool), name, email, demo)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "user email (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().BoolVar(&demo, "demo", false, "also create a demo client with completed tasks")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func seed(ctx context.Context, out io.Writer, store repository.Store, name, email string, demo bool) error {
	svc := service.New(store)

	user, created, err := svc.Users.Ensure(ctx, name, email)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	if created {
		fmt.Fprintf(out, "user created id=%d\n", user.ID)
	} else {
		fmt.Fprintf(out, "user already exists id=%d\n", user.ID)
	}

	if demo {
		if err := seedDemo(ctx, out, svc, user.ID); err != nil {
			return err
		}
	}

	token, err := service.GenerateJWT(user.ID)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	fmt.Fprintf(out, "token=%s\n", token)
	return nil
}

func seedDemo(ctx context.Context, out io.Writer, svc *service.Services, userID int64) error {
	client, err := svc.Clients.Create(ctx, userID, service.ClientInput{
		Name:    "Demo Client",
		TIN:     "DEMO-" + strconv.FormatInt(userID, 10),
		Email:   "demo-" + strconv.FormatInt(userID, 10) + "@example.com",
		Company: "Demo Ltd",
	})
	if err != nil {
		return fmt.Errorf("create demo client: %w", err)
	}

	start := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -14)
	amounts := []string{"120.00", "80.50", "45.25"}
	for i, a := range amounts {
		amount := decimal.RequireFromString(a)
		t, err := svc.Tasks.Create(ctx, userID, service.TaskInput{
			Title:        fmt.Sprintf("Demo task %d", i+1),
			Priority:     domain.TaskPriorityMedium,
			StartingDate: start.AddDate(0, 0, i*3),
			DueDate:      start.AddDate(0, 0, i*3+2),
			Status:       domain.TaskStatusCompleted,
			Amount:       &amount,
			ClientID:     client.ID,
		})
		if err != nil {
			return fmt.Errorf("create demo task: %w", err)
		}
		fmt.Fprintf(out, "task created id=%d amount=%s\n", t.ID, amount.StringFixed(2))
	}
	fmt.Fprintf(out, "demo client id=%d\n", client.ID)
	return nil
}
