package synthesis

import (
	"sort"
	"strings"

	"deepscholar/internal/types"
)

// BuildTaxonomy assembles the comparative matrix from clusters and study
// cards. Axis lists are sorted for stable output; cells map (theme,
// dataset, metric) to the papers that reported that combination.
func BuildTaxonomy(clusters []*types.Cluster, cards map[string]*types.StudyCard) *types.TaxonomyMatrix {
	matrix := &types.TaxonomyMatrix{
		Cells: map[types.TaxonomyCell][]string{},
	}

	themeOf := map[string]string{}
	themeSet := map[string]bool{}
	for _, cluster := range clusters {
		themeSet[cluster.Name] = true
		for _, paperID := range cluster.PaperIDs {
			themeOf[paperID] = cluster.Name
		}
	}

	datasetSet := map[string]bool{}
	metricSet := map[string]bool{}
	methodSet := map[string]bool{}
	for paperID, card := range cards {
		theme := themeOf[paperID]
		if theme == "" {
			continue
		}
		if card.Method != "" {
			methodSet[card.Method] = true
		}
		for _, dataset := range card.Datasets {
			dataset = strings.TrimSpace(dataset)
			if dataset == "" {
				continue
			}
			datasetSet[dataset] = true
			for _, metric := range card.Metrics {
				metric = strings.TrimSpace(metric)
				if metric == "" {
					continue
				}
				metricSet[metric] = true
				cell := types.TaxonomyCell{Theme: theme, Dataset: dataset, Metric: metric}
				matrix.Cells[cell] = append(matrix.Cells[cell], paperID)
			}
		}
	}

	matrix.Themes = sortedKeys(themeSet)
	matrix.Datasets = sortedKeys(datasetSet)
	matrix.Metrics = sortedKeys(metricSet)
	matrix.MethodFamilies = sortedKeys(methodSet)

	for cell := range matrix.Cells {
		sort.Strings(matrix.Cells[cell])
	}
	return matrix
}

// EmptyCells enumerates (theme, dataset, metric) combinations no paper
// covers, in axis order.
func EmptyCells(m *types.TaxonomyMatrix) []types.TaxonomyCell {
	var empty []types.TaxonomyCell
	for _, theme := range m.Themes {
		for _, dataset := range m.Datasets {
			for _, metric := range m.Metrics {
				cell := types.TaxonomyCell{Theme: theme, Dataset: dataset, Metric: metric}
				if len(m.Cells[cell]) == 0 {
					empty = append(empty, cell)
				}
			}
		}
	}
	return empty
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
