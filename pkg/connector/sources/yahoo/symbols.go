package yahoo

import (
	"os"
	"strings"

	"github.com/tickflow/tickflow/pkg/errors"
)

// LoadSymbols reads ticker symbols from the first column of a CSV file.
// A leading header row starting with "symbol" and empty lines are
// skipped.
func LoadSymbols(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read symbols file")
	}

	var symbols []string
	for i, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if i == 0 && strings.HasPrefix(strings.ToLower(line), "symbol") {
			continue
		}
		symbol := strings.TrimSpace(strings.SplitN(line, ",", 2)[0])
		if symbol != "" {
			symbols = append(symbols, symbol)
		}
	}
	return symbols, nil
}
