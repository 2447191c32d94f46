package columns

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/pipedrive-export/internal/model"
)

type yamlDictionary struct {
	Columns []yamlColumn      `yaml:"columns"`
	Labels  map[string]string `yaml:"labels"`
}

// yamlColumn accepts either a bare key or a {key, label} mapping.
type yamlColumn model.Column

func (c *yamlColumn) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Key = model.FieldKey(node.Value)
		return nil
	}
	var full struct {
		Key   string `yaml:"key"`
		Label string `yaml:"label"`
	}
	if err := node.Decode(&full); err != nil {
		return eris.Wrapf(err, "columns: line %d", node.Line)
	}
	c.Key = model.FieldKey(full.Key)
	c.Label = full.Label
	return nil
}

func readYAML(path string) (Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dictionary{}, eris.Wrapf(err, "columns: read %s", path)
	}

	var raw yamlDictionary
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Dictionary{}, eris.Wrapf(err, "columns: parse %s", path)
	}

	dict := Dictionary{Labels: raw.Labels}
	for _, c := range raw.Columns {
		dict.Columns = append(dict.Columns, model.Column(c))
	}
	return dict, nil
}
