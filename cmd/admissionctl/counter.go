package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
	"github.com/noah-isme/sma-admissions-api/internal/service"
)

func newCounterCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Show the last identifier issued per category",
		Long: `Show the last identifier issued per category.

Examples:
  admissionctl counter
  admissionctl counter --category admission`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			categories := models.Categories
			if category != "" {
				c := models.ApplicationCategory(strings.ToLower(category))
				if !c.Valid() {
					return fmt.Errorf("unknown category %q", category)
				}
				categories = []models.ApplicationCategory{c}
			}
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			formatter, err := service.NewIdentifierFormatter(e.cfg.Identifiers)
			if err != nil {
				return err
			}
			allocator := service.NewSequenceAllocator(repository.NewCounterRepository(e.db), formatter, nil, e.logger)
			now := time.Now().UTC()
			out := make([]dto.CounterResponse, 0, len(categories))
			for _, c := range categories {
				key, value, err := allocator.Current(cmd.Context(), c, now)
				if err != nil {
					return err
				}
				row := dto.CounterResponse{Category: c, Key: key, Value: value}
				if value > 0 {
					row.LastID, _ = formatter.Format(c, value, now)
				}
				out = append(out, row)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "enquiry, admission or registration")
	return cmd
}
