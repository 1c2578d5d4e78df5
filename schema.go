package gdfparquet

import (
	"fmt"

	"github.com/fraugster/parquet-go/parquet"
	"github.com/pkg/errors"
)

// leafColumn is one primitive column of the schema tree.
type leafColumn struct {
	*parquet.SchemaElement
	// flatName is the dotted path of the column including all parent groups.
	flatName string
	index    int
	maxDef   int
	maxRep   int
}

func (c *leafColumn) String() string {
	return fmt.Sprintf("%d => %s", c.index, c.flatName)
}

// fileSchema is the resolved schema of a file.
type fileSchema struct {
	columns []*leafColumn
	byName  map[string]*leafColumn
}

func (s *fileSchema) column(flatName string) *leafColumn {
	return s.byName[flatName]
}

// resolveSchema walks the flattened schema element list of the footer and computes the
// dotted names and maximum levels of all leaf columns.
func resolveSchema(meta *parquet.FileMetaData) (*fileSchema, error) {
	if len(meta.Schema) == 0 {
		return nil, newError(SchemaError, "schema", errors.New("schema has no elements"))
	}
	s := &fileSchema{byName: map[string]*leafColumn{}}
	end, err := s.createGroup(meta.Schema, "", 0, 0, 0)
	if err != nil {
		return nil, newError(SchemaError, "schema", err)
	}
	if end != len(meta.Schema)-1 {
		return nil, errorf(SchemaError, "schema", "too many SchemaElements, only %d out of %d have been used",
			end+1, len(meta.Schema))
	}
	return s, nil
}

func (s *fileSchema) createGroup(schema []*parquet.SchemaElement, name string, idx, dLevel, rLevel int) (int, error) {
	el := schema[idx]
	if el.Type != nil {
		return 0, errors.Errorf("field Type is not nil in index %d", idx)
	}
	if el.NumChildren == nil {
		return 0, errors.Errorf("the field NumChildren is invalid in index %d", idx)
	}
	if *el.NumChildren <= 0 {
		return 0, errors.Errorf("the field NumChildren is zero in index %d", idx)
	}
	l := int(*el.NumChildren)
	if len(schema) <= idx+l {
		return 0, errors.Errorf("not enough element in the schema list in index %d", idx)
	}

	if idx != 0 {
		dLevel, rLevel = levels(el.RepetitionType, dLevel, rLevel)
		if name == "" {
			name = el.Name
		} else {
			name += "." + el.Name
		}
	}

	var err error
	for i := 0; i < l; i++ {
		idx++
		if schema[idx].Type == nil {
			if idx, err = s.createGroup(schema, name, idx, dLevel, rLevel); err != nil {
				return 0, err
			}
			continue
		}
		if err = s.createLeaf(schema[idx], name, idx, dLevel, rLevel); err != nil {
			return 0, err
		}
	}
	return idx, nil
}

func (s *fileSchema) createLeaf(el *parquet.SchemaElement, name string, idx, dLevel, rLevel int) error {
	if el.RepetitionType == nil {
		return errors.Errorf("field RepetitionType is nil in index %d", idx)
	}
	dLevel, rLevel = levels(el.RepetitionType, dLevel, rLevel)

	c := &leafColumn{
		SchemaElement: el,
		flatName:      el.Name,
		index:         len(s.columns),
		maxDef:        dLevel,
		maxRep:        rLevel,
	}
	if name != "" {
		c.flatName = name + "." + el.Name
	}
	s.columns = append(s.columns, c)
	if _, ok := s.byName[c.flatName]; !ok {
		s.byName[c.flatName] = c
	}
	return nil
}

func levels(rep *parquet.FieldRepetitionType, dLevel, rLevel int) (int, int) {
	if rep == nil {
		return dLevel, rLevel
	}
	if *rep != parquet.FieldRepetitionType_REQUIRED {
		dLevel++
	}
	if *rep == parquet.FieldRepetitionType_REPEATED {
		rLevel++
	}
	return dLevel, rLevel
}
