package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/platformx/platformx/internal/model"
	"github.com/platformx/platformx/internal/service"
)

func newSeedBaseModelsCmd(opts *globalOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed-basemodels",
		Short: "Upsert the base model catalog from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			ctx, repo, cleanup, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := service.NewBaseModelService(repo, opts.logger()).Seed(ctx, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d base models\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "configs/basemodels.yaml", "catalog file")
	return cmd
}

// marketplaceSeed is one listing in a marketplace seed file.
type marketplaceSeed struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description" yaml:"description"`
	Category    string           `json:"category" yaml:"category"`
	Rating      float64          `json:"rating" yaml:"rating"`
	Data        []map[string]any `json:"data" yaml:"data"`
}

type marketplaceSeedFile struct {
	Datasets []marketplaceSeed `json:"datasets" yaml:"datasets"`
}

// parseMarketplaceSeed decodes a seed file. The format follows the file
// extension: .json is JSON, anything else is YAML.
func parseMarketplaceSeed(name string, r io.Reader) ([]marketplaceSeed, error) {
	var file marketplaceSeedFile

	if strings.EqualFold(filepath.Ext(name), ".json") {
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	} else {
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	}

	seen := make(map[string]bool, len(file.Datasets))
	for i, ds := range file.Datasets {
		switch {
		case ds.ID == "":
			return nil, fmt.Errorf("dataset %d has no id", i)
		case seen[ds.ID]:
			return nil, fmt.Errorf("duplicate dataset id %q", ds.ID)
		case ds.Name == "" || ds.Category == "":
			return nil, fmt.Errorf("dataset %q needs a name and a category", ds.ID)
		case ds.Category == model.FilterAll:
			return nil, fmt.Errorf("dataset %q: %q is reserved", ds.ID, model.FilterAll)
		case ds.Rating < 0 || ds.Rating > 5:
			return nil, fmt.Errorf("dataset %q: rating must be between 0 and 5", ds.ID)
		}
		seen[ds.ID] = true
	}
	return file.Datasets, nil
}

func newSeedMarketplaceCmd(opts *globalOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed-marketplace",
		Short: "Upsert marketplace datasets from a YAML or JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			seeds, err := parseMarketplaceSeed(file, f)
			if err != nil {
				return err
			}

			ctx, repo, cleanup, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			now := time.Now().UTC()
			for _, s := range seeds {
				ds := &model.MarketplaceDataset{
					ID:          s.ID,
					Name:        s.Name,
					Description: s.Description,
					Category:    s.Category,
					Rating:      s.Rating,
					CreatedAt:   now,
				}
				content := &model.MarketplaceContent{DatasetID: s.ID, Data: s.Data}
				if err := repo.UpsertMarketplaceDataset(ctx, ds, content); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d marketplace datasets\n", len(seeds))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file (.yaml, .yml or .json)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
