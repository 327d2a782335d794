package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

var (
	flagTemplateFile string
	flagTemplateName string
	flagTemplateUser string
)

var seedTemplatesCmd = &cobra.Command{
	Use:   "seed-templates",
	Short: "Load budget and savings templates from a TOML file",
	RunE:  runSeedTemplates,
}

var applyTemplateCmd = &cobra.Command{
	Use:   "apply-template",
	Short: "Create budgets for a user from a stored template",
	RunE:  runApplyTemplate,
}

func init() {
	seedTemplatesCmd.Flags().StringVarP(&flagTemplateFile, "file", "f", "templates.toml", "Template definition file")
	applyTemplateCmd.Flags().StringVar(&flagTemplateName, "template", "", "Template name")
	applyTemplateCmd.Flags().StringVar(&flagTemplateUser, "user", "", "User to create budgets for")
	applyTemplateCmd.MarkFlagRequired("template")
	applyTemplateCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(seedTemplatesCmd)
	rootCmd.AddCommand(applyTemplateCmd)
}

// templateFile mirrors the TOML layout:
//
//	[[budget]]
//	name = "starter"
//	  [[budget.item]]
//	  category = "groceries"
//	  limit_cents = 50000
//
//	[[savings]]
//	name = "emergency-fund"
//	suggested_amount_cents = 300000
type templateFile struct {
	Budgets []budgetTemplateDef  `toml:"budget"`
	Savings []savingsTemplateDef `toml:"savings"`
}

type budgetTemplateDef struct {
	Name        string          `toml:"name"`
	Description string          `toml:"description"`
	Default     bool            `toml:"default"`
	Items       []budgetItemDef `toml:"item"`
}

type budgetItemDef struct {
	Category       string `toml:"category"`
	LimitCents     int64  `toml:"limit_cents"`
	Period         string `toml:"period"`
	AlertThreshold string `toml:"alert_threshold"`
}

type savingsTemplateDef struct {
	Name                 string `toml:"name"`
	Description          string `toml:"description"`
	SuggestedAmountCents int64  `toml:"suggested_amount_cents"`
	TimelineMonths       int    `toml:"timeline_months"`
	Priority             string `toml:"priority"`
	Category             string `toml:"category"`
	Default              bool   `toml:"default"`
}

func runSeedTemplates(cmd *cobra.Command, _ []string) error {
	data, err := os.ReadFile(flagTemplateFile)
	if err != nil {
		return fmt.Errorf("reading template file: %w", err)
	}
	var file templateFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing template file: %w", err)
	}

	repo, _, err := openRepo()
	if err != nil {
		return err
	}
	defer repo.Close()
	ctx := cmd.Context()

	for _, def := range file.Budgets {
		tmpl, err := def.toDomain()
		if err != nil {
			return fmt.Errorf("template %q: %w", def.Name, err)
		}
		if err := repo.UpsertBudgetTemplate(ctx, tmpl); err != nil {
			return fmt.Errorf("template %q: %w", def.Name, err)
		}
		fmt.Printf("Budget template %q: %d categories\n", def.Name, len(def.Items))
	}

	for _, def := range file.Savings {
		priority := core.Priority(def.Priority)
		if priority == "" {
			priority = core.PriorityMedium
		}
		err := repo.UpsertSavingsTemplate(ctx, core.SavingsTemplate{
			Name:            def.Name,
			Description:     def.Description,
			SuggestedAmount: core.Money{Cents: def.SuggestedAmountCents},
			TimelineMonths:  def.TimelineMonths,
			Priority:        priority,
			Category:        def.Category,
			Default:         def.Default,
		})
		if err != nil {
			return fmt.Errorf("savings template %q: %w", def.Name, err)
		}
		fmt.Printf("Savings template %q\n", def.Name)
	}

	return nil
}

func (def budgetTemplateDef) toDomain() (core.BudgetTemplate, error) {
	tmpl := core.BudgetTemplate{
		Name:        def.Name,
		Description: def.Description,
		Default:     def.Default,
	}
	for _, item := range def.Items {
		threshold := core.DefaultAlertThreshold
		if item.AlertThreshold != "" {
			var err error
			threshold, err = decimal.NewFromString(item.AlertThreshold)
			if err != nil {
				return core.BudgetTemplate{}, fmt.Errorf("category %q: invalid alert threshold %q", item.Category, item.AlertThreshold)
			}
		}
		period := core.Period(item.Period)
		if period == "" {
			period = core.Monthly
		}
		tmpl.Items = append(tmpl.Items, core.BudgetTemplateItem{
			Category:       item.Category,
			Limit:          core.Money{Cents: item.LimitCents},
			Period:         period,
			AlertThreshold: threshold,
		})
	}
	return tmpl, nil
}

func runApplyTemplate(cmd *cobra.Command, _ []string) error {
	repo, cfg, err := openRepo()
	if err != nil {
		return err
	}
	defer repo.Close()
	ctx := cmd.Context()

	tmpl, err := repo.GetBudgetTemplate(ctx, flagTemplateName)
	if err != nil {
		return fmt.Errorf("load template %q: %w", flagTemplateName, err)
	}

	engine := services.NewBudgetEngine(repo, nil, cfg.AlertDedupWindow, cfg.AlertRetention, cfg.RecalcBatchSize)
	applied := 0
	for _, item := range tmpl.Items {
		created, err := engine.CreateBudget(ctx, core.Budget{
			UserID:         flagTemplateUser,
			Category:       item.Category,
			Limit:          item.Limit,
			Period:         item.Period,
			AlertThreshold: item.AlertThreshold,
		})
		if errors.Is(err, core.ErrDuplicateBudget) {
			fmt.Printf("Skipping %q: budget already exists\n", item.Category)
			continue
		}
		if err != nil {
			return fmt.Errorf("create budget for %q: %w", item.Category, err)
		}
		applied++
		fmt.Printf("Created budget %s: %s %s\n", created.ID, created.Category, created.Period)
	}

	fmt.Printf("Applied template %q: %d budgets for %s\n", tmpl.Name, applied, flagTemplateUser)
	return nil
}
