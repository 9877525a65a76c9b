// Package triples holds the triple data model shared by every knowledge-graph
// embedding model: dense integer ids for entities and relations, label
// mappings, corpus loading, and train/test splitting. Models never see labels,
// only ids; the Factory is the boundary where labels are resolved.
package triples

import (
	"bufio"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

// ErrUnknownLabel is returned when a label has no id mapping.
var ErrUnknownLabel = errors.New("triples: unknown label")

// Triple is one (head, relation, tail) statement. Ids are dense and
// contiguous within a Factory. Triples are immutable values.
type Triple struct {
	Head     int
	Relation int
	Tail     int
}

// Pair fixes two slots of a triple for closed-world scoring. For tail
// prediction A is the head id and B the relation id; for head prediction A is
// the relation id and B the tail id.
type Pair struct {
	A int
	B int
}

// Factory maps entity and relation labels to dense ids and owns the loaded
// positive triples.
type Factory struct {
	EntityToID   map[string]int
	RelationToID map[string]int
	entityKeys   []string
	relationKeys []string

	Triples []Triple
}

// NewFactory creates an empty triples factory.
func NewFactory() *Factory {
	return &Factory{
		EntityToID:   make(map[string]int),
		RelationToID: make(map[string]int),
	}
}

// NumEntities returns the number of distinct entities seen so far.
func (f *Factory) NumEntities() int { return len(f.entityKeys) }

// NumRelations returns the number of distinct relations seen so far.
func (f *Factory) NumRelations() int { return len(f.relationKeys) }

// NumTriples returns the number of loaded triples.
func (f *Factory) NumTriples() int { return len(f.Triples) }

// Add registers one labeled triple, creating ids as needed, and returns the
// id-form triple.
func (f *Factory) Add(head, relation, tail string) Triple {
	t := Triple{
		Head:     f.getOrCreateEntity(head),
		Relation: f.getOrCreateRelation(relation),
		Tail:     f.getOrCreateEntity(tail),
	}
	f.Triples = append(f.Triples, t)
	return t
}

// Load reads whitespace-separated triples from a file.
// Format: head relation tail, one triple per line. Lines with fewer than
// three fields and lines starting with '#' are skipped.
func (f *Factory) Load(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("triples: open %s: %w", filename, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}
		f.Add(parts[0], parts[1], parts[2])
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("triples: read %s: %w", filename, err)
	}
	return nil
}

// getOrCreateEntity gets or creates an entity id.
func (f *Factory) getOrCreateEntity(label string) int {
	if id, ok := f.EntityToID[label]; ok {
		return id
	}
	id := len(f.entityKeys)
	f.EntityToID[label] = id
	f.entityKeys = append(f.entityKeys, label)
	return id
}

// getOrCreateRelation gets or creates a relation id.
func (f *Factory) getOrCreateRelation(label string) int {
	if id, ok := f.RelationToID[label]; ok {
		return id
	}
	id := len(f.relationKeys)
	f.RelationToID[label] = id
	f.relationKeys = append(f.relationKeys, label)
	return id
}

// EntityLabel returns the label for an entity id, or "" if out of range.
func (f *Factory) EntityLabel(id int) string {
	if id < 0 || id >= len(f.entityKeys) {
		return ""
	}
	return f.entityKeys[id]
}

// RelationLabel returns the label for a relation id, or "" if out of range.
func (f *Factory) RelationLabel(id int) string {
	if id < 0 || id >= len(f.relationKeys) {
		return ""
	}
	return f.relationKeys[id]
}

// EntityID resolves an entity label.
func (f *Factory) EntityID(label string) (int, error) {
	id, ok := f.EntityToID[label]
	if !ok {
		return 0, fmt.Errorf("%w: entity %q", ErrUnknownLabel, label)
	}
	return id, nil
}

// RelationID resolves a relation label.
func (f *Factory) RelationID(label string) (int, error) {
	id, ok := f.RelationToID[label]
	if !ok {
		return 0, fmt.Errorf("%w: relation %q", ErrUnknownLabel, label)
	}
	return id, nil
}

// Split partitions the loaded triples into train and test sets. testRatio is
// the fraction held out for testing; the split permutes a copy, the factory's
// own triple order is untouched.
func (f *Factory) Split(testRatio float64, rng *rand.Rand) (train, test []Triple) {
	n := len(f.Triples)
	perm := rng.Perm(n)

	numTest := int(float64(n) * testRatio)
	if numTest > n {
		numTest = n
	}

	test = make([]Triple, 0, numTest)
	train = make([]Triple, 0, n-numTest)
	for i, p := range perm {
		if i < numTest {
			test = append(test, f.Triples[p])
		} else {
			train = append(train, f.Triples[p])
		}
	}
	return train, test
}
