package credentials

import (
	"bufio"
	"os"
	"strings"

	"github.com/schmitthub/envrepair/internal/logger"
)

// LoadDotEnv loads key=value pairs from a .env file. A missing file is not
// an error; it returns a nil map.
func LoadDotEnv(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	result := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := parseEnvLine(line)
		if !ok {
			logger.Debug().
				Int("line", lineNum).
				Str("content", line).
				Msg("skipping invalid .env line")
			continue
		}

		result[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	logger.Debug().
		Int("count", len(result)).
		Str("file", path).
		Msg("loaded environment variables from .env file")

	return result, nil
}

// parseEnvLine parses a single "export KEY=value" or "KEY=value" line.
func parseEnvLine(line string) (key, value string, ok bool) {
	if strings.HasPrefix(line, "export ") {
		line = strings.TrimPrefix(line, "export ")
	}

	idx := strings.Index(line, "=")
	if idx < 1 {
		return "", "", false
	}

	key = strings.TrimSpace(line[:idx])
	value = unquote(strings.TrimSpace(line[idx+1:]))
	return key, value, true
}

// unquote strips a single matching pair of surrounding quotes.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	if s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	if s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	return s
}
