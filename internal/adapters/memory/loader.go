package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/avdept/flowmachine/pkg/domain"
)

// flowFile is the on-disk shape for a flow definition loaded at startup.
type flowFile struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CompanyID string          `json:"companyId"`
	Nodes     json.RawMessage `json:"nodes"`
	Edges     json.RawMessage `json:"edges"`
}

// LoadDirectory reads every .json file under dir as a flow definition and
// registers it on the provider. Files are loaded in lexical order, which
// fixes the trigger-matching order across restarts. Returns the number of
// flows loaded.
func (p *FlowProvider) LoadDirectory(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read flow directory %s: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return loaded, fmt.Errorf("read flow file %s: %w", path, err)
		}

		var file flowFile
		if err := json.Unmarshal(data, &file); err != nil {
			return loaded, fmt.Errorf("parse flow file %s: %w", path, err)
		}
		if file.ID == "" {
			file.ID = strings.TrimSuffix(entry.Name(), ".json")
		}

		flow := domain.ParseFlow(file.ID, nil, file.Nodes, file.Edges)
		flow.Name = file.Name
		p.Register(file.CompanyID, flow)
		loaded++
	}
	return loaded, nil
}
