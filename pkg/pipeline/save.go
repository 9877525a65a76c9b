package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// WriteSummary writes the run id, configuration, per-epoch losses, and
// evaluation metrics as YAML.
func (r *Results) WriteSummary(path string) error {
	out, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("pipeline: marshal summary: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("pipeline: write summary: %w", err)
	}
	return nil
}

// SaveEmbeddings writes entity and relation embeddings as text, one labeled
// vector per line with a "count dim" header line.
func (r *Results) SaveEmbeddings(entityPath, relationPath string) error {
	if err := writeVectors(entityPath, r.EntityToEmbedding); err != nil {
		return err
	}
	return writeVectors(relationPath, r.RelationToEmbedding)
}

func writeVectors(path string, vectors map[string][]float64) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("pipeline: create %s: %w", path, err)
	}
	defer file.Close()

	labels := make([]string, 0, len(vectors))
	dim := 0
	for label, vec := range vectors {
		labels = append(labels, label)
		if len(vec) > dim {
			dim = len(vec)
		}
	}
	sort.Strings(labels)

	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "%d %d\n", len(labels), dim)
	for _, label := range labels {
		fmt.Fprintf(w, "%s", label)
		for _, v := range vectors[label] {
			fmt.Fprintf(w, " %.6f", v)
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("pipeline: write %s: %w", path, err)
	}
	return nil
}
